package email

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/mailai/internal/model"
)

func TestReplySubject(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"AI: what is 2+2?", "Re: AI: what is 2+2?"},
		{"Re: AI: follow-up", "Re: AI: follow-up"},
		{"RE: AI", "RE: AI"},
		{"re:AI", "re:AI"},
		{"Reunion about AI", "Re: Reunion about AI"},
		{"Résumé AI", "Re: Résumé AI"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, ReplySubject(tt.in), "subject %q", tt.in)
	}
}

func TestComposeThreadsReply(t *testing.T) {
	c := NewComposer("bot@example.com")
	original := &model.InboundMessage{
		From:       model.Address{Name: "Ana", Email: "ana@example.com"},
		Subject:    "AI: what is 2+2?",
		MessageID:  "q1@example.com",
		References: []string{"r0@example.com"},
	}

	reply := c.Compose(original, model.Answer{
		Text: "4", Provider: "chatgpt", Label: "ChatGPT", Model: "gpt-5-mini",
	}, nil)

	require.Equal(t, "bot@example.com", reply.From)
	require.Equal(t, "ana@example.com", reply.To.Email)
	require.Equal(t, "Re: AI: what is 2+2?", reply.Subject)
	require.Equal(t, "q1@example.com", reply.InReplyTo)
	require.Equal(t, []string{"r0@example.com", "q1@example.com"}, reply.References)
	require.Contains(t, reply.Body, "4")
	require.Contains(t, reply.Body, "Answered by ChatGPT (gpt-5-mini)")
}

func TestComposeWithoutMessageIDOmitsThreading(t *testing.T) {
	c := NewComposer("bot@example.com")
	original := &model.InboundMessage{
		From:       model.Address{Email: "ana@example.com"},
		Subject:    "AI question",
		References: []string{"r0@example.com"},
	}

	reply := c.Compose(original, model.Answer{Text: "yes", Provider: "ollama"}, nil)

	require.Empty(t, reply.InReplyTo)
	require.Empty(t, reply.References)
}

func TestComposePrefersReplyTo(t *testing.T) {
	c := NewComposer("bot@example.com")
	original := &model.InboundMessage{
		From:    model.Address{Email: "list@example.com"},
		ReplyTo: model.Address{Email: "ana@example.com"},
		Subject: "AI",
	}

	reply := c.Compose(original, model.Answer{Text: "ok"}, nil)
	require.Equal(t, "ana@example.com", reply.To.Email)
}

func TestComposeListsAttachmentManifest(t *testing.T) {
	c := NewComposer("bot@example.com")
	original := &model.InboundMessage{Subject: "AI: summarize", MessageID: "q2@example.com"}

	reply := c.Compose(original, model.Answer{Text: "Summary."}, []model.AttachmentResult{
		{Filename: "report.pdf", Outcome: model.OutcomeTextUsed},
		{Filename: "scan.pdf", Outcome: model.OutcomeTooLarge, Reason: "exceeds 1.0 MB"},
		{Filename: "photo.png", Outcome: model.OutcomeUnsupported, Reason: "type image/png"},
	})

	require.Contains(t, reply.Body, "- report.pdf: text used")
	require.Contains(t, reply.Body, "- scan.pdf: skipped: too-large (exceeds 1.0 MB)")
	require.Contains(t, reply.Body, "- photo.png: skipped: unsupported (type image/png)")
}

func TestComposeKeepsUnicode(t *testing.T) {
	c := NewComposer("bot@example.com")
	original := &model.InboundMessage{Subject: "IA: ¿qué es π?", MessageID: "q3@example.com"}

	reply := c.Compose(original, model.Answer{Text: "π ≈ 3.14159 — número irracional"}, nil)

	require.Equal(t, "Re: IA: ¿qué es π?", reply.Subject)
	require.Contains(t, reply.Body, "π ≈ 3.14159 — número irracional")
}
