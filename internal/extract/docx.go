package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	documentPart  = "word/document.xml"

	// maxDocumentXML bounds the decompressed main document part.
	maxDocumentXML = 64 << 20
)

// docxText returns the paragraphs of the main document part in document
// order. Each table row becomes one line with its cells joined by " | ".
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening DOCX: %w", err)
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", fmt.Errorf("opening DOCX: %s missing", documentPart)
	}

	rc, err := part.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", documentPart, err)
	}
	defer rc.Close()

	return readParagraphs(io.LimitReader(rc, maxDocumentXML))
}

// paragraphCollector accumulates text while walking WordprocessingML.
type paragraphCollector struct {
	lines      []string
	para       strings.Builder
	inText     bool
	tableDepth int
	cellParas  []string
	rowCells   []string
}

func readParagraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	c := &paragraphCollector{}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == wordNamespace {
				c.start(t.Name.Local)
			}
		case xml.EndElement:
			if t.Name.Space == wordNamespace {
				c.end(t.Name.Local)
			}
		case xml.CharData:
			if c.inText {
				c.para.Write(t)
			}
		}
	}

	return strings.Join(c.lines, "\n"), nil
}

func (c *paragraphCollector) start(name string) {
	switch name {
	case "t":
		c.inText = true
	case "tab":
		c.para.WriteString("\t")
	case "br", "cr":
		c.para.WriteString("\n")
	case "tbl":
		c.tableDepth++
	}
}

func (c *paragraphCollector) end(name string) {
	switch name {
	case "t":
		c.inText = false
	case "p":
		text := strings.TrimSpace(c.para.String())
		c.para.Reset()
		if text == "" {
			return
		}
		if c.tableDepth > 0 {
			c.cellParas = append(c.cellParas, text)
		} else {
			c.lines = append(c.lines, text)
		}
	case "tc":
		c.rowCells = append(c.rowCells, strings.Join(c.cellParas, " "))
		c.cellParas = nil
	case "tr":
		if strings.TrimSpace(strings.Join(c.rowCells, "")) != "" {
			c.lines = append(c.lines, strings.Join(c.rowCells, " | "))
		}
		c.rowCells = nil
	case "tbl":
		if c.tableDepth > 0 {
			c.tableDepth--
		}
	}
}
