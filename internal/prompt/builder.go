// Package prompt assembles the text sent to AI providers from an inbound
// message and its extracted attachments.
package prompt

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/nhle/mailai/internal/model"
)

// GenericTemplate names the instructions used when no template matches.
const GenericTemplate = "generic"

// Prompt is a rendered request.
type Prompt struct {
	Text     string
	Template string
}

// Builder renders prompts.
type Builder struct {
	instructions string
	templates    []model.PromptTemplate
}

// NewBuilder returns a builder using cfg's instructions. Configured
// templates replace built-in ones with the same name and are otherwise
// added to them.
func NewBuilder(cfg model.PromptConfig) *Builder {
	instructions := strings.TrimSpace(cfg.Instructions)
	if instructions == "" {
		instructions = model.DefaultInstructions
	}

	templates := BuiltinTemplates()
	for _, t := range cfg.Templates {
		idx := slices.IndexFunc(templates, func(b model.PromptTemplate) bool {
			return b.Name == t.Name
		})
		if idx >= 0 {
			templates[idx] = t
		} else {
			templates = append(templates, t)
		}
	}
	slices.SortStableFunc(templates, func(a, b model.PromptTemplate) int {
		return cmp.Compare(b.Priority, a.Priority)
	})

	return &Builder{instructions: instructions, templates: templates}
}

// Build renders the prompt for msg. It reports false when neither the
// body nor any attachment carries text.
func (b *Builder) Build(
	msg *model.InboundMessage, manifest []model.AttachmentResult,
) (Prompt, bool) {
	body := strings.TrimSpace(msg.Body)

	var docs []string
	for _, r := range manifest {
		if r.Used() {
			docs = append(docs, r.Text)
		}
	}
	if body == "" && len(docs) == 0 {
		return Prompt{}, false
	}

	tmpl := b.Select(body + "\n" + strings.Join(docs, "\n"))

	var sb strings.Builder
	sb.WriteString(tmpl.Instructions)
	sb.WriteString("\n\n")
	if tmpl.Name != GenericTemplate && b.instructions != tmpl.Instructions {
		sb.WriteString(b.instructions)
		sb.WriteString("\n\n")
	}

	sb.WriteString("EMAIL SUBJECT: ")
	sb.WriteString(msg.Subject)
	sb.WriteString("\n\nEMAIL CONTENT:\n")
	if body == "" {
		sb.WriteString("(no text, see the attached documents)")
	} else {
		sb.WriteString(body)
	}
	sb.WriteString("\n")

	if len(manifest) > 0 {
		sb.WriteString("\nATTACHED DOCUMENTS:\n")
		for _, r := range manifest {
			name := r.Filename
			if name == "" {
				name = "(unnamed)"
			}
			if r.Used() {
				sb.WriteString(fmt.Sprintf("\n--- %s ---\n%s\n", name, r.Text))
				continue
			}
			sb.WriteString(fmt.Sprintf("\n--- %s (not read: %s) ---\n", name, r.Detail()))
		}
	}

	return Prompt{Text: sb.String(), Template: tmpl.Name}, true
}

// Select returns the highest priority template with a keyword in text,
// or the generic template.
func (b *Builder) Select(text string) model.PromptTemplate {
	fold := cases.Fold()
	folded := fold.String(text)
	for _, t := range b.templates {
		for _, kw := range t.Keywords {
			if containsWord(folded, fold.String(kw)) {
				return t
			}
		}
	}
	return model.PromptTemplate{Name: GenericTemplate, Instructions: b.instructions}
}

// containsWord reports whether word occurs in text delimited by
// non-letters, so "act" does not match "contact".
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	for start := 0; ; {
		i := strings.Index(text[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		if boundaryBefore(text, i) && boundaryAfter(text, end) {
			return true
		}
		start = i + 1
	}
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
