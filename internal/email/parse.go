package email

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailai/internal/model"
)

// ParseMessage reads a raw RFC 5322 message. Attachment payloads larger
// than maxAttachment bytes are drained and marked oversize instead of
// kept; maxAttachment <= 0 keeps everything.
func ParseMessage(
	r io.Reader, uid uint32, maxAttachment int64,
) (*model.InboundMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("reading message header: %w", err)
	}
	defer mr.Close()

	msg := &model.InboundMessage{UID: uid}
	readHeader(&mr.Header, msg)

	var textBody, htmlBody string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !(message.IsUnknownCharset(err) && part != nil) {
			return nil, fmt.Errorf("reading message part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, params, _ := h.ContentType()
			if !strings.HasPrefix(contentType, "text/") {
				att, err := readAttachment(
					part.Body, inlineFilename(h, params), contentType, maxAttachment,
				)
				if err != nil {
					return nil, err
				}
				msg.Attachments = append(msg.Attachments, att)
				continue
			}

			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("reading text part: %w", err)
			}
			switch contentType {
			case "text/html":
				if htmlBody == "" {
					htmlBody = string(body)
				}
			case "text/plain":
				if textBody == "" {
					textBody = string(body)
				}
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			att, err := readAttachment(part.Body, filename, contentType, maxAttachment)
			if err != nil {
				return nil, err
			}
			msg.Attachments = append(msg.Attachments, att)
		}
	}

	if strings.TrimSpace(textBody) == "" && htmlBody != "" {
		textBody = stripHTML(htmlBody)
	}
	msg.Body = strings.TrimSpace(strings.ReplaceAll(textBody, "\r\n", "\n"))

	return msg, nil
}

func readHeader(h *mail.Header, msg *model.InboundMessage) {
	msg.Subject, _ = h.Subject()
	msg.MessageID, _ = h.MessageID()
	msg.Date, _ = h.Date()

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = model.Address{Name: from[0].Name, Email: from[0].Address}
	}
	if replyTo, err := h.AddressList("Reply-To"); err == nil && len(replyTo) > 0 {
		msg.ReplyTo = model.Address{Name: replyTo[0].Name, Email: replyTo[0].Address}
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		msg.InReplyTo = ids[0]
	}
	if refs, err := h.MsgIDList("References"); err == nil {
		msg.References = refs
	}
}

// inlineFilename recovers a name for a non-text part sent inline.
func inlineFilename(h *mail.InlineHeader, typeParams map[string]string) string {
	if _, params, err := h.ContentDisposition(); err == nil && params["filename"] != "" {
		return params["filename"]
	}
	return typeParams["name"]
}

func readAttachment(
	body io.Reader, filename, contentType string, max int64,
) (model.Attachment, error) {
	att := model.Attachment{Filename: filename, MediaType: contentType}

	if max <= 0 {
		data, err := io.ReadAll(body)
		if err != nil {
			return att, fmt.Errorf("reading attachment %q: %w", filename, err)
		}
		att.Data = data
		att.Size = int64(len(data))
		return att, nil
	}

	data, err := io.ReadAll(io.LimitReader(body, max+1))
	if err != nil {
		return att, fmt.Errorf("reading attachment %q: %w", filename, err)
	}
	if int64(len(data)) <= max {
		att.Data = data
		att.Size = int64(len(data))
		return att, nil
	}

	rest, err := io.Copy(io.Discard, body)
	if err != nil {
		return att, fmt.Errorf("draining attachment %q: %w", filename, err)
	}
	att.Size = int64(len(data)) + rest
	att.Oversize = true
	return att, nil
}

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes HTML tags from a string and decodes common
// entities, providing a basic plain-text rendering.
func stripHTML(html string) string {
	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
