package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"github.com/nhle/mailai/internal/failure"
	"github.com/nhle/mailai/internal/model"
)

// defaultSMTPTimeout bounds a delivery when none is configured.
const defaultSMTPTimeout = 30 * time.Second

// Sender delivers replies over SMTP. A connection is opened per message
// and closed before Send returns.
type Sender struct {
	cfg       model.SMTPConfig
	tlsConfig *tls.Config
	log       zerolog.Logger
}

// NewSender creates a sender for the given relay.
func NewSender(cfg model.SMTPConfig, log zerolog.Logger) *Sender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	return &Sender{
		cfg:       cfg,
		tlsConfig: &tls.Config{ServerName: cfg.Host},
		log:       log.With().Str("component", "smtp").Logger(),
	}
}

// Render serializes reply as an RFC 5322 message.
func Render(reply model.OutboundReply) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: reply.From}})
	h.SetAddressList("To", []*mail.Address{{Name: reply.To.Name, Address: reply.To.Email}})
	h.SetSubject(reply.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}
	if reply.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{reply.InReplyTo})
	}
	if len(reply.References) > 0 {
		h.SetMsgIDList("References", reply.References)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(w, reply.Body); err != nil {
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message body: %w", err)
	}

	return buf.Bytes(), nil
}

// Send renders and delivers reply. Dial and handshake problems are
// connection failures; anything the server rejects afterwards is a
// delivery failure. Nothing is retried.
func (s *Sender) Send(ctx context.Context, reply model.OutboundReply) error {
	body, err := Render(reply)
	if err != nil {
		return failure.Wrap(failure.KindDelivery, failure.StageCompose, err)
	}

	client, err := s.connect(ctx)
	if err != nil {
		return failure.Connection(failure.StageSend, err)
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return failure.Wrap(failure.KindDelivery, failure.StageSend, err)
	}

	if err := sendMailViaSMTPClient(client, reply.From, reply.To.Email, body); err != nil {
		return failure.Wrap(failure.KindDelivery, failure.StageSend, err)
	}

	// The server accepted the message once DATA closed; a failed QUIT
	// does not undo that.
	if err := client.Quit(); err != nil {
		s.log.Warn().Err(err).Str("to", reply.To.Email).Msg("SMTP QUIT after accepted message")
	}

	return nil
}

// connect dials the relay and negotiates TLS according to the configured
// security mode. The whole session is bounded by the context deadline or
// the configured timeout, whichever comes first.
func (s *Sender) connect(ctx context.Context) (*smtp.Client, error) {
	addr := s.cfg.Addr()
	dialer := &net.Dialer{Timeout: s.cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial to %s: %w", addr, err)
	}

	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting deadline: %w", err)
	}

	if s.cfg.Security == model.SecurityTLS {
		tlsConn := tls.Client(conn, s.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake with %s: %w", addr, err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}

	if s.cfg.Security == model.SecurityStartTLS {
		if err := client.StartTLS(s.tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("SMTP STARTTLS: %w", err)
		}
	}

	return client, nil
}

func (s *Sender) authenticate(client *smtp.Client) error {
	if s.cfg.Username == "" {
		return nil
	}
	if ok, _ := client.Extension("AUTH"); !ok {
		return fmt.Errorf("SMTP server %s does not offer AUTH", s.cfg.Host)
	}
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}
	return nil
}

// sendMailViaSMTPClient sends a message using an already-authenticated
// SMTP client. The session is left open for QUIT.
func sendMailViaSMTPClient(
	client *smtp.Client, from, to string, body []byte,
) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}

	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}

	if _, err := writer.Write(body); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return nil
}
