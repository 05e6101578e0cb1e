package email

import (
	"strings"

	"golang.org/x/text/cases"
)

// Filter selects AI requests by subject keyword.
type Filter struct {
	keywords []string
	fold     cases.Caser
}

// NewFilter returns a filter for the given keywords. Blank keywords are
// ignored.
func NewFilter(keywords []string) *Filter {
	f := &Filter{fold: cases.Fold()}
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			f.keywords = append(f.keywords, f.fold.String(k))
		}
	}
	return f
}

// Matches reports whether any keyword occurs in subject, ignoring case.
// A blank subject or an empty keyword set never matches.
func (f *Filter) Matches(subject string) bool {
	if strings.TrimSpace(subject) == "" || len(f.keywords) == 0 {
		return false
	}
	folded := f.fold.String(subject)
	for _, k := range f.keywords {
		if strings.Contains(folded, k) {
			return true
		}
	}
	return false
}

// Keywords returns the normalized keyword set.
func (f *Filter) Keywords() []string {
	return f.keywords
}

// MatchesAny is the one-shot form of Filter.Matches.
func MatchesAny(subject string, keywords []string) bool {
	return NewFilter(keywords).Matches(subject)
}
