package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/mailai/internal/extract/extracttest"
	"github.com/nhle/mailai/internal/model"
)

func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	return extracttest.PDF(pages...)
}

// buildDOCX zips a main document part holding body.
func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><Types/>`))
	require.NoError(t, err)

	w, err = zw.Create(documentPart)
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="%s"><w:body>%s</w:body></w:document>`, wordNamespace, body)
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func para(text string) string {
	return `<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func newExtractor(maxChars int) *Extractor {
	return New(model.ExtractConfig{MaxAttachmentBytes: 1 << 20, MaxDocumentChars: maxChars})
}

func TestExtractPDFPagesInOrder(t *testing.T) {
	data := buildPDF(t, "Hello page one", "Second page text")

	res := newExtractor(0).Extract(model.Attachment{
		Filename: "doc.pdf", MediaType: MediaTypePDF, Data: data, Size: int64(len(data)),
	})

	require.Equal(t, model.OutcomeTextUsed, res.Outcome, res.Reason)
	require.Equal(t, "Hello page one\fSecond page text", res.Text)
	require.False(t, res.Truncated)
}

func TestExtractPDFByExtension(t *testing.T) {
	data := buildPDF(t, "Quarterly numbers")

	res := newExtractor(0).Extract(model.Attachment{
		Filename: "Report.PDF", MediaType: "application/octet-stream", Data: data, Size: int64(len(data)),
	})

	require.Equal(t, model.OutcomeTextUsed, res.Outcome, res.Reason)
	require.Equal(t, "Quarterly numbers", res.Text)
}

func TestExtractCorruptPDFIsParseFailed(t *testing.T) {
	data := []byte("%PDF-1.4\nthis is not really a pdf document at all\n")

	res := newExtractor(0).Extract(model.Attachment{
		Filename: "broken.pdf", MediaType: MediaTypePDF, Data: data, Size: int64(len(data)),
	})

	require.Equal(t, model.OutcomeParseFailed, res.Outcome)
	require.NotEmpty(t, res.Reason)
	require.Empty(t, res.Text)
}

func TestExtractTextlessPDFIsParseFailed(t *testing.T) {
	data := buildPDF(t, "")

	res := newExtractor(0).Extract(model.Attachment{
		Filename: "scan.pdf", MediaType: MediaTypePDF, Data: data, Size: int64(len(data)),
	})

	require.Equal(t, model.OutcomeParseFailed, res.Outcome)
	require.Contains(t, res.Reason, "no extractable text")
}

func TestExtractDOCXParagraphsAndTables(t *testing.T) {
	body := para("First paragraph") +
		`<w:p><w:r><w:t>Tab</w:t><w:tab/><w:t>bed</w:t></w:r></w:p>` +
		`<w:tbl><w:tr>` +
		`<w:tc>` + para("Name") + `</w:tc><w:tc>` + para("Value") + `</w:tc>` +
		`</w:tr><w:tr>` +
		`<w:tc>` + para("alpha") + `</w:tc><w:tc>` + para("42") + `</w:tc>` +
		`</w:tr></w:tbl>` +
		para("Après le tableau")
	data := buildDOCX(t, body)

	res := newExtractor(0).Extract(model.Attachment{
		Filename: "notes.docx", MediaType: MediaTypeDOCX, Data: data, Size: int64(len(data)),
	})

	require.Equal(t, model.OutcomeTextUsed, res.Outcome, res.Reason)
	require.Equal(t,
		"First paragraph\nTab\tbed\nName | Value\nalpha | 42\nAprès le tableau",
		res.Text,
	)
}

func TestExtractCorruptDOCXIsParseFailed(t *testing.T) {
	res := newExtractor(0).Extract(model.Attachment{
		Filename: "notes.docx", MediaType: MediaTypeDOCX, Data: []byte("PK not a zip"), Size: 12,
	})
	require.Equal(t, model.OutcomeParseFailed, res.Outcome)
}

func TestExtractTruncatesLongText(t *testing.T) {
	data := buildDOCX(t, para("Hello world"))

	res := newExtractor(5).Extract(model.Attachment{
		Filename: "long.docx", MediaType: MediaTypeDOCX, Data: data, Size: int64(len(data)),
	})

	require.Equal(t, model.OutcomeTextUsed, res.Outcome, res.Reason)
	require.True(t, res.Truncated)
	require.Equal(t, "Hello\n\n"+TruncationMarker, res.Text)
}

func TestExtractOversizeIsTooLarge(t *testing.T) {
	res := newExtractor(0).Extract(model.Attachment{
		Filename: "huge.pdf", MediaType: MediaTypePDF, Size: 5 << 20, Oversize: true,
	})

	require.Equal(t, model.OutcomeTooLarge, res.Outcome)
	require.Contains(t, res.Reason, "1.0 MB")
	require.Empty(t, res.Text)
}

func TestExtractUnsupportedType(t *testing.T) {
	res := newExtractor(0).Extract(model.Attachment{
		Filename: "photo.png", MediaType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}, Size: 4,
	})

	require.Equal(t, model.OutcomeUnsupported, res.Outcome)
	require.Equal(t, "type image/png", res.Reason)
}

func TestExtractAllKeepsOrder(t *testing.T) {
	pdfData := buildPDF(t, "Inside the PDF")
	results := newExtractor(0).ExtractAll([]model.Attachment{
		{Filename: "big.pdf", MediaType: MediaTypePDF, Size: 2 << 20, Oversize: true},
		{Filename: "ok.pdf", MediaType: MediaTypePDF, Data: pdfData, Size: int64(len(pdfData))},
		{Filename: "a.zip", MediaType: "application/zip", Size: 10},
	})

	require.Len(t, results, 3)
	require.Equal(t, model.OutcomeTooLarge, results[0].Outcome)
	require.Equal(t, model.OutcomeTextUsed, results[1].Outcome)
	require.Equal(t, "Inside the PDF", results[1].Text)
	require.Equal(t, model.OutcomeUnsupported, results[2].Outcome)
}
