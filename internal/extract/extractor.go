// Package extract turns message attachments into plain text.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/nhle/mailai/internal/model"
)

// Media types recognized without looking at the filename.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// TruncationMarker ends text cut to the configured length.
const TruncationMarker = "[Text truncated]"

// pageSeparator joins the text of consecutive PDF pages. A form feed keeps
// page breaks distinct from paragraph breaks.
const pageSeparator = "\f"

var errNoText = errors.New("no extractable text")

type format int

const (
	formatUnknown format = iota
	formatPDF
	formatDOCX
)

// SupportedFormats lists the attachment types text can be read from.
func SupportedFormats() []string {
	return []string{"PDF (.pdf)", "Word (.docx)"}
}

// Extractor reads text from supported attachments.
type Extractor struct {
	maxChars int
	maxBytes int64
}

// New returns an extractor honoring the given limits.
func New(cfg model.ExtractConfig) *Extractor {
	return &Extractor{
		maxChars: cfg.MaxDocumentChars,
		maxBytes: cfg.MaxAttachmentBytes,
	}
}

// ExtractAll returns one manifest entry per attachment, in order.
func (e *Extractor) ExtractAll(atts []model.Attachment) []model.AttachmentResult {
	results := make([]model.AttachmentResult, 0, len(atts))
	for _, att := range atts {
		results = append(results, e.Extract(att))
	}
	return results
}

// Extract reads the text of one attachment. It never fails: problems are
// reported through the result's Outcome and Reason.
func (e *Extractor) Extract(att model.Attachment) model.AttachmentResult {
	res := model.AttachmentResult{
		Filename:  att.Filename,
		MediaType: att.MediaType,
		Size:      att.Size,
	}

	if att.Oversize || (e.maxBytes > 0 && att.Size > e.maxBytes) {
		res.Outcome = model.OutcomeTooLarge
		res.Reason = fmt.Sprintf("larger than %s limit", formatSize(e.maxBytes))
		return res
	}

	var (
		text string
		err  error
	)
	switch detect(att) {
	case formatPDF:
		text, err = pdfText(att.Data)
	case formatDOCX:
		text, err = docxText(att.Data)
	default:
		res.Outcome = model.OutcomeUnsupported
		res.Reason = "type " + displayType(att)
		return res
	}

	if err == nil && strings.TrimSpace(text) == "" {
		err = errNoText
	}
	if err != nil {
		res.Outcome = model.OutcomeParseFailed
		res.Reason = err.Error()
		return res
	}

	res.Outcome = model.OutcomeTextUsed
	res.Text, res.Truncated = truncate(strings.TrimSpace(text), e.maxChars)
	return res
}

// detect trusts the declared media type and falls back to the file
// extension when the sender used a generic type.
func detect(att model.Attachment) format {
	mediaType := strings.ToLower(att.MediaType)
	switch mediaType {
	case MediaTypePDF, "application/x-pdf":
		return formatPDF
	case MediaTypeDOCX:
		return formatDOCX
	case "", "application/octet-stream", "application/x-download", "binary/octet-stream":
		switch strings.ToLower(filepath.Ext(att.Filename)) {
		case ".pdf":
			return formatPDF
		case ".docx":
			return formatDOCX
		}
	}
	return formatUnknown
}

func displayType(att model.Attachment) string {
	if att.MediaType != "" {
		return att.MediaType
	}
	if ext := filepath.Ext(att.Filename); ext != "" {
		return ext
	}
	return "unknown"
}

// truncate cuts text to max runes and appends TruncationMarker. max <= 0
// disables truncation.
func truncate(text string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:max]) + "\n\n" + TruncationMarker, true
}

// formatSize formats a byte size into a human-readable string.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	case bytes >= 1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
