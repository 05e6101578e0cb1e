package email

import (
	"bytes"
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"slices"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/rs/zerolog"

	"github.com/nhle/mailai/internal/failure"
	"github.com/nhle/mailai/internal/model"
)

// dialTimeout bounds the TCP connect when the context has no deadline.
const dialTimeout = 30 * time.Second

// Handler receives the candidates of one poll.
type Handler interface {
	// Match decides from the envelope alone whether a message is a
	// request. Only matching messages are downloaded.
	Match(env model.Envelope) bool

	// Process handles one downloaded message, already flagged \Seen.
	// A non-nil error aborts the poll.
	Process(ctx context.Context, msg *model.InboundMessage) (model.ProcessingResult, error)

	// Reject reports a matching message that could not be handed to
	// Process.
	Reject(env model.Envelope, err error)
}

// PollOptions bounds one poll.
type PollOptions struct {
	// Limit caps the number of messages handed to Process. Zero means no
	// cap.
	Limit int

	// Stop is checked before each message. Once closed, no further
	// message is started.
	Stop <-chan struct{}
}

// PollStats describes what one poll saw.
type PollStats struct {
	Unseen   int
	Matched  int
	Handled  int
	Rejected int
	Stopped  bool
}

// Poller reads unseen messages from an IMAP mailbox. Every call opens its
// own connection and closes it before returning.
type Poller struct {
	cfg           model.IMAPConfig
	maxAttachment int64
	tlsConfig     *tls.Config
	log           zerolog.Logger
}

// NewPoller creates a poller for the given mailbox.
func NewPoller(
	cfg model.IMAPConfig, maxAttachment int64, log zerolog.Logger,
) *Poller {
	return &Poller{
		cfg:           cfg,
		maxAttachment: maxAttachment,
		tlsConfig:     &tls.Config{ServerName: cfg.Host},
		log:           log.With().Str("component", "imap").Logger(),
	}
}

// connect dials the server, negotiates TLS, and logs in. The returned
// client is closed when ctx is done; callers must call the returned
// release func.
func (p *Poller) connect(ctx context.Context) (*imapclient.Client, func(), error) {
	addr := p.cfg.Addr()
	dialer := &net.Dialer{Timeout: dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}
	if d, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(d)
	}

	opts := &imapclient.Options{
		TLSConfig:   p.tlsConfig,
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	var client *imapclient.Client
	switch p.cfg.Security {
	case model.SecurityTLS:
		client = imapclient.New(tls.Client(conn, p.tlsConfig), opts)
	case model.SecurityStartTLS:
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("IMAP STARTTLS with %s: %w", addr, err)
		}
	default:
		client = imapclient.New(conn, opts)
	}

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	release := func() {
		stop()
		_ = client.Logout().Wait()
		_ = client.Close()
	}

	if err := client.Login(p.cfg.Username, p.cfg.Password).Wait(); err != nil {
		release()
		return nil, nil, fmt.Errorf(
			"authentication failed for %s: %w", p.cfg.Username, err,
		)
	}

	if _, err := client.Select(p.cfg.Mailbox, nil).Wait(); err != nil {
		release()
		return nil, nil, fmt.Errorf("selecting %s: %w", p.cfg.Mailbox, err)
	}

	return client, release, nil
}

// CountUnseen connects, selects the mailbox, and returns the number of
// unseen messages.
func (p *Poller) CountUnseen(ctx context.Context) (int, error) {
	client, release, err := p.connect(ctx)
	if err != nil {
		return 0, failure.Connection(failure.StageFetch, err)
	}
	defer release()

	uids, err := searchUnseen(client)
	if err != nil {
		return 0, failure.Connection(failure.StageFetch, err)
	}
	return len(uids), nil
}

// Poll runs one pass over the unseen messages of the mailbox. Connection
// problems abort the pass and are returned as connection failures. A
// message that cannot be downloaded, parsed, or flagged is passed to
// h.Reject and the pass continues.
func (p *Poller) Poll(
	ctx context.Context, h Handler, opts PollOptions,
) (PollStats, error) {
	var stats PollStats

	client, release, err := p.connect(ctx)
	if err != nil {
		return stats, failure.Connection(failure.StageFetch, err)
	}
	defer release()

	uids, err := searchUnseen(client)
	if err != nil {
		return stats, failure.Connection(failure.StageFetch, err)
	}
	stats.Unseen = len(uids)
	if len(uids) == 0 {
		return stats, nil
	}

	envelopes, err := fetchEnvelopes(client, uids)
	if err != nil {
		return stats, failure.Connection(failure.StageFetch, err)
	}

	var matched []model.Envelope
	for _, env := range envelopes {
		if slices.Contains(env.Flags, string(imap.FlagSeen)) {
			continue
		}
		if h.Match(env) {
			matched = append(matched, env)
		}
	}
	stats.Matched = len(matched)
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	p.log.Debug().
		Int("unseen", stats.Unseen).
		Int("matched", stats.Matched).
		Int("selected", len(matched)).
		Msg("mailbox scanned")

	for _, env := range matched {
		if stopped(opts.Stop) {
			stats.Stopped = true
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, failure.Connection(failure.StageFetch, err)
		}

		msg, err := p.download(client, env)
		var parseErr error
		if failure.Is(err, failure.KindMalformed) {
			parseErr, err = err, nil
		}
		if err != nil {
			if !isCommandError(err) {
				return stats, failure.Connection(failure.StageFetch, err)
			}
			stats.Rejected++
			h.Reject(env, failure.Wrap(failure.KindConnection, failure.StageFetch, err))
			continue
		}

		if err := addFlag(client, env.UID, imap.FlagSeen); err != nil {
			if !isCommandError(err) {
				return stats, failure.Connection(failure.StageMark, err)
			}
			stats.Rejected++
			h.Reject(env, failure.Wrap(failure.KindConnection, failure.StageMark, err))
			continue
		}

		if parseErr != nil {
			stats.Rejected++
			h.Reject(env, parseErr)
			continue
		}

		res, err := h.Process(ctx, msg)
		if err != nil {
			return stats, err
		}
		stats.Handled++

		if res.Status == model.StatusDelivered {
			if err := addFlag(client, env.UID, imap.FlagAnswered); err != nil {
				p.log.Warn().Err(err).Uint32("uid", env.UID).Msg("flagging answered")
			}
		}
	}

	return stats, nil
}

// download fetches the full message without setting \Seen. A message
// that arrives but fails to parse yields a KindMalformed error so the
// caller can still flag it and not fetch it again.
func (p *Poller) download(
	client *imapclient.Client, env model.Envelope,
) (*model.InboundMessage, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(imap.UID(env.UID)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	data := fetchCmd.Next()
	if data == nil {
		if err := fetchCmd.Close(); err != nil {
			return nil, fmt.Errorf("fetching UID %d: %w", env.UID, err)
		}
		return nil, &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Text: fmt.Sprintf("message UID %d not found", env.UID),
		}
	}

	buf, err := data.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting UID %d: %w", env.UID, err)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching UID %d: %w", env.UID, err)
	}

	raw := buf.FindBodySection(section)
	msg, err := ParseMessage(bytes.NewReader(raw), env.UID, p.maxAttachment)
	if err != nil {
		p.log.Warn().Err(err).Uint32("uid", env.UID).Msg("unparseable message")
		return nil, failure.Wrap(failure.KindMalformed, failure.StageParse, err)
	}
	if msg.Subject == "" {
		msg.Subject = env.Subject
	}
	if msg.MessageID == "" {
		msg.MessageID = env.MessageID
	}

	return msg, nil
}

func searchUnseen(client *imapclient.Client) ([]imap.UID, error) {
	data, err := client.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}
	uids := data.AllUIDs()
	slices.Sort(uids)
	return uids, nil
}

func fetchEnvelopes(
	client *imapclient.Client, uids []imap.UID,
) ([]model.Envelope, error) {
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
	})

	bufs, err := fetchCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching envelopes: %w", err)
	}

	envelopes := make([]model.Envelope, 0, len(bufs))
	for _, buf := range bufs {
		envelopes = append(envelopes, envelopeFromBuffer(buf))
	}
	slices.SortFunc(envelopes, func(a, b model.Envelope) int {
		return cmp.Compare(a.UID, b.UID)
	})

	return envelopes, nil
}

func addFlag(client *imapclient.Client, uid uint32, flag imap.Flag) error {
	return client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{flag},
	}, nil).Close()
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) model.Envelope {
	env := model.Envelope{UID: uint32(buf.UID)}

	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			env.From = buf.Envelope.From[0].Addr()
		}
	}

	for _, flag := range buf.Flags {
		env.Flags = append(env.Flags, string(flag))
	}

	return env
}

// isCommandError reports whether err is a tagged NO/BAD response, which
// leaves the connection usable.
func isCommandError(err error) bool {
	var imapErr *imap.Error
	return errors.As(err, &imapErr)
}

func stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
