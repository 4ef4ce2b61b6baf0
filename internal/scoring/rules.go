package scoring

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Rule is one fake-data or low-quality pattern. A matching rule either
// zeroes its dimension or subtracts Penalty from it.
type Rule struct {
	ID        string
	Dimension model.Dimension
	// Match receives the raw field value, trimmed.
	Match   func(value string) bool
	Zero    bool
	Penalty int
}

// Apply runs every rule for dim against value and returns the adjusted
// subscore with the rules that matched. Scores floor at zero.
func Apply(rules []Rule, dim model.Dimension, value string, score int) (int, []model.RuleHit) {
	var hits []model.RuleHit
	for _, r := range rules {
		if r.Dimension != dim || !r.Match(value) {
			continue
		}
		hits = append(hits, model.RuleHit{Rule: r.ID, Dimension: dim})
		if r.Zero {
			return 0, hits
		}
		score -= r.Penalty
	}
	if score < 0 {
		score = 0
	}
	return score, hits
}

func matchRegexp(re *regexp.Regexp) func(string) bool {
	return func(v string) bool { return re.MatchString(v) }
}

var (
	placeholderNameRe  = regexp.MustCompile(`(?i)^(test|sample|demo|example|fake|my|your|generic|placeholder|acme)?\s*(business|company|corp|store|shop|biz)\s*(inc\.?|llc|ltd|co\.?|corp\.?)?$`)
	testNameRe         = regexp.MustCompile(`(?i)\b(test business|test company|lorem ipsum|placeholder|asdf|qwerty)\b|^(test|n/?a|tbd|none|unknown|x{3,})$`)
	syntheticStreetRe  = regexp.MustCompile(`(?i)^\d{1,3}\s+(main|fake|test|elm|oak|first|1st)\s+(st|street|ave|avenue|rd|road)\b`)
	sequentialStreetRe = regexp.MustCompile(`^(123|1234|12345|234|2345|345|456|4567|567|678|789)\s`)
	poBoxRe            = regexp.MustCompile(`(?i)\b(p\.?\s*o\.?\s*box|post\s+office\s+box)\b`)
	placeholderMailRe  = regexp.MustCompile(`(?i)^(test|example|sample|fake|demo|noreply|no-reply|donotreply|email|user|name|someone|abc|asdf)@|@(example|test|domain|email|sample|mailinator)\.`)
)

var aggregatorDomains = []string{
	"facebook.com", "instagram.com", "linkedin.com", "twitter.com", "x.com",
	"yelp.com", "yellowpages.com", "bbb.org", "angi.com", "angieslist.com",
	"thumbtack.com", "nextdoor.com", "tripadvisor.com", "mapquest.com",
	"google.com", "business.site", "manta.com", "houzz.com", "homeadvisor.com",
}

var placeholderDomains = []string{
	"example.com", "example.org", "test.com", "domain.com", "website.com", "yoursite.com",
}

// DefaultRules returns the built-in rule table.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "name_placeholder", Dimension: model.DimensionName, Match: matchRegexp(placeholderNameRe), Zero: true},
		{ID: "name_test_marker", Dimension: model.DimensionName, Match: matchRegexp(testNameRe), Zero: true},
		{ID: "name_no_letters", Dimension: model.DimensionName, Match: func(v string) bool {
			return !strings.ContainsFunc(v, unicode.IsLetter)
		}, Zero: true},

		{ID: "address_synthetic_street", Dimension: model.DimensionAddress, Match: matchRegexp(syntheticStreetRe), Zero: true},
		{ID: "address_sequential_number", Dimension: model.DimensionAddress, Match: matchRegexp(sequentialStreetRe), Zero: true},
		{ID: "address_po_box", Dimension: model.DimensionAddress, Match: matchRegexp(poBoxRe), Zero: true},

		{ID: "phone_repeated_digit", Dimension: model.DimensionPhone, Match: func(v string) bool {
			return repeatedDigit(NormalizePhone(v))
		}, Zero: true},
		{ID: "phone_sequential", Dimension: model.DimensionPhone, Match: func(v string) bool {
			return sequentialDigits(NormalizePhone(v))
		}, Zero: true},
		{ID: "phone_reserved_exchange", Dimension: model.DimensionPhone, Match: func(v string) bool {
			d := NormalizePhone(v)
			return len(d) == 10 && d[3:6] == "555"
		}, Zero: true},
		{ID: "phone_reserved_area", Dimension: model.DimensionPhone, Match: func(v string) bool {
			d := NormalizePhone(v)
			if len(d) != 10 {
				return false
			}
			switch d[:3] {
			case "000", "111", "555", "911", "999":
				return true
			}
			return d[0] == '0' || d[0] == '1'
		}, Zero: true},

		{ID: "website_placeholder_domain", Dimension: model.DimensionWebsite, Match: func(v string) bool {
			return hostMatches(websiteHost(v), placeholderDomains)
		}, Zero: true},
		{ID: "website_aggregator", Dimension: model.DimensionWebsite, Match: func(v string) bool {
			return hostMatches(websiteHost(v), aggregatorDomains)
		}, Penalty: 12},
		{ID: "website_no_scheme", Dimension: model.DimensionWebsite, Match: func(v string) bool {
			lv := strings.ToLower(v)
			return !strings.HasPrefix(lv, "http://") && !strings.HasPrefix(lv, "https://")
		}, Penalty: 5},

		{ID: "email_placeholder", Dimension: model.DimensionEmail, Match: matchRegexp(placeholderMailRe), Zero: true},
	}
}

// websiteHost returns the lower-cased host of a website, tolerating a
// missing scheme.
func websiteHost(website string) string {
	w := strings.TrimSpace(website)
	if w == "" {
		return ""
	}
	if !strings.Contains(w, "://") {
		w = "http://" + w
	}
	u, err := url.Parse(w)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func hostMatches(host string, domains []string) bool {
	if host == "" {
		return false
	}
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func repeatedDigit(d string) bool {
	if len(d) != 10 {
		return false
	}
	return strings.Count(d, d[:1]) == len(d)
}

func sequentialDigits(d string) bool {
	if len(d) != 10 {
		return false
	}
	return strings.Contains("01234567890", d) || strings.Contains("09876543210", d) ||
		d[3:] == "1234567" || d[3:] == "7654321"
}
