// Package dedupe rejects candidates that repeat a business already seen,
// by normalized name or by phone digits.
package dedupe

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/prospect-cli/internal/model"
)

// NormalizeName lower-cases a name, folds accents and collapses whitespace.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// PhoneDigits strips every non-digit character.
func PhoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Index remembers the names and phones of accepted businesses.
type Index struct {
	names  map[string]struct{}
	phones map[string]struct{}
}

// NewIndex creates an index over the accepted candidates.
func NewIndex(accepted ...model.BusinessCandidate) *Index {
	ix := &Index{names: make(map[string]struct{}), phones: make(map[string]struct{})}
	for _, c := range accepted {
		ix.Add(c)
	}
	return ix
}

// Seen reports whether c matches an indexed business on either signal.
func (ix *Index) Seen(c model.BusinessCandidate) bool {
	if n := NormalizeName(c.Name); n != "" {
		if _, ok := ix.names[n]; ok {
			return true
		}
	}
	if p := PhoneDigits(c.Phone); p != "" {
		if _, ok := ix.phones[p]; ok {
			return true
		}
	}
	return false
}

// Add indexes c.
func (ix *Index) Add(c model.BusinessCandidate) {
	if n := NormalizeName(c.Name); n != "" {
		ix.names[n] = struct{}{}
	}
	if p := PhoneDigits(c.Phone); p != "" {
		ix.phones[p] = struct{}{}
	}
}

// Filter returns the items of batch matching neither accepted nor an earlier
// survivor of batch, in batch order, plus the number dropped.
func Filter[T any](batch, accepted []T, candidate func(T) model.BusinessCandidate) ([]T, int) {
	ix := NewIndex()
	for _, a := range accepted {
		ix.Add(candidate(a))
	}
	var kept []T
	for _, item := range batch {
		c := candidate(item)
		if ix.Seen(c) {
			continue
		}
		ix.Add(c)
		kept = append(kept, item)
	}
	return kept, len(batch) - len(kept)
}

// Leads is Filter over leads.
func Leads(batch, accepted []*model.QualifiedLead) ([]*model.QualifiedLead, int) {
	return Filter(batch, accepted, func(l *model.QualifiedLead) model.BusinessCandidate { return l.BusinessCandidate })
}
