package routing

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/scoring"
)

// Entity signals found in business names.
const (
	SignalCorporate = "corporate"
	SignalNonprofit = "nonprofit"
)

// Context is the campaign information routing depends on.
type Context struct {
	BusinessType string
	Location     string
}

// Classification is the structured view of a candidate that routing
// decisions are made from.
type Classification struct {
	Geography     []string `json:"geography"`
	IndustryTags  []string `json:"industry_tags"`
	EntitySignals []string `json:"entity_signals"`
}

// HasTag reports whether the classification carries an industry tag.
func (c Classification) HasTag(tag string) bool {
	return contains(c.IndustryTags, tag)
}

var (
	corporateWords = map[string]bool{
		"inc": true, "incorporated": true, "corp": true, "corporation": true,
		"llc": true, "pllc": true, "ltd": true, "limited": true, "llp": true,
		"lp": true, "company": true, "pc": true,
	}
	nonprofitWords = map[string]bool{
		"foundation": true, "nonprofit": true, "charity": true, "charitable": true,
		"ministries": true, "society": true, "fund": true,
	}

	upperStateRe = regexp.MustCompile(`\b([A-Z]{2})\b`)
	punctRe      = regexp.MustCompile(`[^a-z0-9\s-]+`)
)

// Classify derives geography, industry tags and entity signals from the
// candidate and the campaign context. Pure.
func Classify(t Tables, c model.BusinessCandidate, ctx Context) Classification {
	var cl Classification

	if st := stateFromText(c.Address); st != "" {
		cl.Geography = append(cl.Geography, st)
	} else if st := stateFromText(ctx.Location); st != "" {
		cl.Geography = append(cl.Geography, st)
	}

	text := normalizeText(c.Name + " " + ctx.BusinessType)
	for tag, kws := range t.IndustryKeywords {
		for _, kw := range kws {
			if matchKeyword(text, kw) {
				cl.IndustryTags = append(cl.IndustryTags, tag)
				break
			}
		}
	}
	sort.Strings(cl.IndustryTags)

	for _, w := range strings.Fields(normalizeText(c.Name)) {
		switch {
		case corporateWords[w] && !contains(cl.EntitySignals, SignalCorporate):
			cl.EntitySignals = append(cl.EntitySignals, SignalCorporate)
		case nonprofitWords[w] && !contains(cl.EntitySignals, SignalNonprofit):
			cl.EntitySignals = append(cl.EntitySignals, SignalNonprofit)
		}
	}
	sort.Strings(cl.EntitySignals)
	return cl
}

// stateFromText returns the last US state code, or a full state name,
// found in an address or location string.
func stateFromText(s string) string {
	matches := upperStateRe.FindAllStringSubmatch(s, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if scoring.IsStateCode(matches[i][1]) {
			return strings.ToUpper(matches[i][1])
		}
	}
	parts := strings.Split(s, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		p := strings.TrimSpace(parts[i])
		if code := scoring.StateFromName(p); code != "" {
			return code
		}
		if len(p) == 2 && scoring.IsStateCode(p) {
			return strings.ToUpper(p)
		}
	}
	return ""
}

func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ".", "")
	s = punctRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// matchKeyword matches single words exactly, by plural, or by prefix for
// stems of five letters or more. Multi-word keywords match as phrases.
func matchKeyword(text, kw string) bool {
	kw = strings.ToLower(kw)
	if strings.Contains(kw, " ") {
		return strings.Contains(" "+text+" ", " "+kw+" ")
	}
	for _, w := range strings.Fields(text) {
		if w == kw || w == kw+"s" || w == kw+"es" {
			return true
		}
		if len(kw) >= 5 && strings.HasPrefix(w, kw) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
