package campaign

import (
	"strings"
)

// queryTemplates are expanded with a business type variant ({type}) and the
// location ({loc}).
var queryTemplates = []string{
	"{type} in {loc}",
	"{type} near {loc}",
	"best {type} in {loc}",
	"local {type} {loc}",
	"top rated {type} {loc}",
	"{type} services {loc}",
	"licensed {type} {loc}",
	"family owned {type} {loc}",
}

// Queries returns the de-duplicated search queries for a campaign, at most
// limit of them. Every template is tried with the literal business type
// before any variant.
func Queries(businessType, location string, limit int) []string {
	businessType = strings.Join(strings.Fields(businessType), " ")
	location = strings.Join(strings.Fields(location), " ")
	if businessType == "" {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, variant := range typeVariants(businessType) {
		for _, tmpl := range queryTemplates {
			q := strings.NewReplacer("{type}", variant, "{loc}", location).Replace(tmpl)
			q = strings.Join(strings.Fields(q), " ")
			key := strings.ToLower(q)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, q)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// typeVariants returns the business type followed by its singular or
// plural form.
func typeVariants(t string) []string {
	lower := strings.ToLower(t)
	switch {
	case strings.HasSuffix(lower, "ies") && len(lower) > 4:
		return []string{t, t[:len(t)-3] + "y"}
	case strings.HasSuffix(lower, "ss"):
		return []string{t, t + "es"}
	case strings.HasSuffix(lower, "s") && len(lower) > 3:
		return []string{t, t[:len(t)-1]}
	case strings.HasSuffix(lower, "y") && len(lower) > 2 && !strings.ContainsRune("aeiou", rune(lower[len(lower)-2])):
		return []string{t, t[:len(t)-1] + "ies"}
	case strings.HasSuffix(lower, "ch") || strings.HasSuffix(lower, "sh") || strings.HasSuffix(lower, "x"):
		return []string{t, t + "es"}
	default:
		return []string{t, t + "s"}
	}
}
