// Package adapters implements the capability interfaces of package provider
// over the wire clients in pkg/.
package adapters

import (
	"context"
	"errors"
	"strings"

	"github.com/sells-group/prospect-cli/internal/dedupe"
	"github.com/sells-group/prospect-cli/internal/provider"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

// Provider names of the built-in adapters. Registry adapters are named by
// configuration.
const (
	NameGoogle     = "google"
	NameWebsite    = "website"
	NameHunter     = "hunter"
	NameApollo     = "apollo"
	NameProPublica = "propublica"
)

// statusCoder is implemented by the APIError of every wire client.
type statusCoder interface {
	HTTPStatus() int
}

// callError tags a wire-client error with the provider, operation and HTTP
// status so the gateway can tell transient failures from permanent ones.
// Caller cancellation passes through untouched.
func callError(name, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	status := 0
	var sc statusCoder
	if errors.As(err, &sc) {
		status = sc.HTTPStatus()
	}
	return resilience.NewProviderCallError(name, op, status, err)
}

var corporateSuffixes = map[string]bool{
	"llc": true, "inc": true, "pllc": true, "pc": true, "pa": true, "corp": true,
	"corporation": true, "co": true, "company": true, "ltd": true, "lp": true,
	"llp": true, "the": true, "and": true, "of": true,
}

// nameTokens splits a business name into comparable words, dropping
// punctuation and legal suffixes.
func nameTokens(name string) []string {
	norm := dedupe.NormalizeName(name)
	words := strings.FieldsFunc(norm, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	out := words[:0]
	for _, w := range words {
		if !corporateSuffixes[w] {
			out = append(out, w)
		}
	}
	return out
}

// nameSimilarity is the Jaccard overlap of the two names' tokens, in [0,1].
func nameSimilarity(a, b string) float64 {
	ta, tb := nameTokens(a), nameTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(tb))
	for _, t := range tb {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// minNameSimilarity is the overlap below which a registry hit is treated as
// a different business.
const minNameSimilarity = 0.6

// cityMatches is lenient: an unknown city on either side matches.
func cityMatches(want, got string) bool {
	if want == "" || got == "" {
		return true
	}
	return dedupe.NormalizeName(want) == dedupe.NormalizeName(got)
}

var (
	_ provider.Searcher        = (*Google)(nil)
	_ provider.SiteChecker     = (*Website)(nil)
	_ provider.EmailFinder     = (*Website)(nil)
	_ provider.EmailFinder     = (*Hunter)(nil)
	_ provider.EmailVerifier   = (*Hunter)(nil)
	_ provider.CompanyEnricher = (*Apollo)(nil)
	_ provider.PersonEnricher  = (*Apollo)(nil)
	_ provider.RegistryChecker = (*ProPublica)(nil)
	_ provider.RegistryChecker = (*Registry)(nil)
)
