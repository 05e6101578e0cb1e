package model

import "time"

// Envelope is the light-weight view of a mailbox message used while
// filtering, before the body is downloaded.
type Envelope struct {
	UID       uint32
	MessageID string
	Subject   string
	From      string
	Date      time.Time
	Flags     []string
}

// Address is a parsed mailbox address.
type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

// InboundMessage is a fully fetched candidate message. It is not modified
// after parsing.
type InboundMessage struct {
	UID        uint32
	From       Address
	ReplyTo    Address
	Subject    string
	Body       string
	MessageID  string
	InReplyTo  string
	References []string
	Date       time.Time

	Attachments []Attachment
}

// ReplyAddress returns the address a reply should go to.
func (m *InboundMessage) ReplyAddress() Address {
	if m.ReplyTo.Email != "" {
		return m.ReplyTo
	}
	return m.From
}

// Attachment is one file carried by an inbound message. Data is nil when
// the payload exceeded the configured size limit.
type Attachment struct {
	Filename  string
	MediaType string
	Size      int64
	Oversize  bool
	Data      []byte
}

// AttachmentOutcome records what happened to an attachment's text.
type AttachmentOutcome string

const (
	OutcomeTextUsed    AttachmentOutcome = "text-used"
	OutcomeUnsupported AttachmentOutcome = "unsupported"
	OutcomeTooLarge    AttachmentOutcome = "too-large"
	OutcomeParseFailed AttachmentOutcome = "parse-failed"
)

// AttachmentResult is one manifest entry. Text is set only when Outcome
// is OutcomeTextUsed.
type AttachmentResult struct {
	Filename  string
	MediaType string
	Size      int64
	Outcome   AttachmentOutcome
	Text      string
	Reason    string
	Truncated bool
}

// Used reports whether the attachment contributed text.
func (r AttachmentResult) Used() bool {
	return r.Outcome == OutcomeTextUsed
}

// Detail renders the outcome with its reason, e.g.
// "too-large (larger than 1.0 MB limit)".
func (r AttachmentResult) Detail() string {
	if r.Reason == "" || r.Reason == string(r.Outcome) {
		return string(r.Outcome)
	}
	return string(r.Outcome) + " (" + r.Reason + ")"
}

// OutboundReply is a composed reply ready for delivery.
type OutboundReply struct {
	From       string
	To         Address
	Subject    string
	Body       string
	InReplyTo  string
	References []string
}

// Answer is a successful provider response. Text is never empty.
type Answer struct {
	Text     string
	Provider string
	Label    string
	Model    string

	// Attempts describes the candidates that failed before this one.
	Attempts []string
}
