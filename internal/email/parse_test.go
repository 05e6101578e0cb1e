package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

const multipartMessage = `From: Ana <ana@example.com>
Reply-To: ana.work@example.com
To: bot@example.com
Subject: =?UTF-8?Q?AI:_resum=C3=A9_please?=
Message-ID: <q1@example.com>
In-Reply-To: <r1@example.com>
References: <r0@example.com> <r1@example.com>
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8

Summarize the attachment.
--b1
Content-Type: application/pdf
Content-Disposition: attachment; filename="doc.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQK
--b1--
`

func TestParseMessageMultipart(t *testing.T) {
	msg, err := ParseMessage(strings.NewReader(crlf(multipartMessage)), 42, 0)
	require.NoError(t, err)

	require.Equal(t, uint32(42), msg.UID)
	require.Equal(t, "AI: resumé please", msg.Subject)
	require.Equal(t, "ana@example.com", msg.From.Email)
	require.Equal(t, "Ana", msg.From.Name)
	require.Equal(t, "ana.work@example.com", msg.ReplyAddress().Email)
	require.Equal(t, "q1@example.com", msg.MessageID)
	require.Equal(t, "r1@example.com", msg.InReplyTo)
	require.Equal(t, []string{"r0@example.com", "r1@example.com"}, msg.References)
	require.Equal(t, "Summarize the attachment.", msg.Body)

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	require.Equal(t, "doc.pdf", att.Filename)
	require.Equal(t, "application/pdf", att.MediaType)
	require.Equal(t, int64(9), att.Size)
	require.False(t, att.Oversize)
	require.Equal(t, "%PDF-1.4\n", string(att.Data))
}

func TestParseMessageOversizeAttachmentIsDrained(t *testing.T) {
	msg, err := ParseMessage(strings.NewReader(crlf(multipartMessage)), 1, 4)
	require.NoError(t, err)

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	require.True(t, att.Oversize)
	require.Nil(t, att.Data)
	require.Equal(t, int64(9), att.Size)
}

func TestParseMessageHTMLOnly(t *testing.T) {
	raw := crlf(`From: ana@example.com
Subject: AI question
Content-Type: text/html; charset=utf-8

<p>What is <b>2+2</b>?</p><p>Thanks &amp; regards</p>
`)

	msg, err := ParseMessage(strings.NewReader(raw), 3, 0)
	require.NoError(t, err)

	require.Equal(t, "What is 2+2?\nThanks & regards", msg.Body)
	require.Empty(t, msg.MessageID)
	require.Empty(t, msg.References)
}

func TestParseMessagePrefersPlainText(t *testing.T) {
	raw := crlf(`From: ana@example.com
Subject: AI
Content-Type: multipart/alternative; boundary="alt"

--alt
Content-Type: text/plain; charset=utf-8

plain version
--alt
Content-Type: text/html; charset=utf-8

<p>html version</p>
--alt--
`)

	msg, err := ParseMessage(strings.NewReader(raw), 4, 0)
	require.NoError(t, err)
	require.Equal(t, "plain version", msg.Body)
}

func TestParseMessageMalformedPartHeader(t *testing.T) {
	_, err := ParseMessage(strings.NewReader(crlf(brokenMultipart)), 5, 0)
	require.ErrorContains(t, err, "reading message part")
}
