package email

import (
	"fmt"
	"strings"

	"github.com/nhle/mailai/internal/model"
)

// Composer builds threaded replies.
type Composer struct {
	from string
}

// NewComposer returns a composer sending as from.
func NewComposer(from string) *Composer {
	return &Composer{from: from}
}

// ReplySubject prefixes subject with "Re: " unless it already carries a
// reply marker.
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// Compose builds the reply to original. Threading headers are set only
// when the original carries a Message-ID.
func (c *Composer) Compose(
	original *model.InboundMessage,
	answer model.Answer,
	manifest []model.AttachmentResult,
) model.OutboundReply {
	reply := model.OutboundReply{
		From:    c.from,
		To:      original.ReplyAddress(),
		Subject: ReplySubject(original.Subject),
		Body:    replyBody(answer, manifest),
	}

	if original.MessageID != "" {
		reply.InReplyTo = original.MessageID
		refs := make([]string, 0, len(original.References)+1)
		for _, ref := range original.References {
			if ref != original.MessageID {
				refs = append(refs, ref)
			}
		}
		reply.References = append(refs, original.MessageID)
	}

	return reply
}

func replyBody(answer model.Answer, manifest []model.AttachmentResult) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(answer.Text))
	sb.WriteString("\n")

	if len(manifest) > 0 {
		sb.WriteString("\nAttachments:\n")
		for _, r := range manifest {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", displayName(r.Filename), manifestStatus(r)))
		}
	}

	sb.WriteString("\n--\n")
	label := answer.Label
	if label == "" {
		label = answer.Provider
	}
	if answer.Model != "" {
		sb.WriteString(fmt.Sprintf("Answered by %s (%s)\n", label, answer.Model))
	} else {
		sb.WriteString(fmt.Sprintf("Answered by %s\n", label))
	}

	return sb.String()
}

func manifestStatus(r model.AttachmentResult) string {
	if r.Used() {
		if r.Truncated {
			return "text used (truncated)"
		}
		return "text used"
	}
	return "skipped: " + r.Detail()
}

func displayName(filename string) string {
	if filename == "" {
		return "(unnamed)"
	}
	return filename
}
