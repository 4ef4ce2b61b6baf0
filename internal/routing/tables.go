package routing

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ProviderKind groups verification providers for skip rules and ordering.
type ProviderKind string

const (
	KindGovernment  ProviderKind = "government"
	KindNonprofit   ProviderKind = "nonprofit"
	KindLicense     ProviderKind = "license"
	KindAssociation ProviderKind = "association"
)

// Tables are the routing lookup tables. Every provider named in Geography,
// Industry or Entity must be declared in Providers.
type Tables struct {
	// Providers declares each routable provider and its kind.
	Providers map[string]ProviderKind `yaml:"providers"`
	// Geography maps a state postal code to its registries.
	Geography map[string][]string `yaml:"geography"`
	// Industry maps an industry tag to providers.
	Industry map[string][]string `yaml:"industry"`
	// Entity maps an entity signal to providers.
	Entity map[string][]string `yaml:"entity"`
	// IndustryKeywords maps an industry tag to the words that assign it.
	IndustryKeywords map[string][]string `yaml:"industry_keywords"`
	// SkipTags are the industry tags of small local-service businesses.
	SkipTags []string `yaml:"skip_tags"`
	// SkipKinds are the provider kinds the skip rule removes.
	SkipKinds []ProviderKind `yaml:"skip_kinds"`
}

// DefaultTables returns the built-in routing tables.
func DefaultTables() Tables {
	return Tables{
		Providers: map[string]ProviderKind{
			"ca_sos":         KindGovernment,
			"ny_dos":         KindGovernment,
			"tx_sos":         KindGovernment,
			"fl_sunbiz":      KindGovernment,
			"opencorporates": KindGovernment,
			"propublica":     KindNonprofit,
			"license_board":  KindLicense,
			"association":    KindAssociation,
		},
		Geography: map[string][]string{
			"CA": {"ca_sos"},
			"NY": {"ny_dos"},
			"TX": {"tx_sos"},
			"FL": {"fl_sunbiz"},
		},
		Industry: map[string][]string{
			"nonprofit":      {"propublica"},
			"licensed_trade": {"license_board"},
			"healthcare":     {"license_board", "association"},
			"legal":          {"license_board", "association"},
			"accounting":     {"license_board", "association"},
			"real_estate":    {"license_board"},
		},
		Entity: map[string][]string{
			SignalCorporate: {"opencorporates"},
			SignalNonprofit: {"propublica"},
		},
		IndustryKeywords: map[string][]string{
			"nonprofit":      {"nonprofit", "non-profit", "foundation", "charity", "charitable", "ministries"},
			"licensed_trade": {"plumber", "plumbing", "electrician", "electrical", "hvac", "roofing", "roofer", "contractor", "contracting", "construction", "pest control"},
			"healthcare":     {"dentist", "dental", "orthodont", "chiropract", "clinic", "medical", "physician", "pharmacy", "optometr", "veterinar"},
			"legal":          {"law firm", "law office", "attorney", "lawyer", "legal"},
			"accounting":     {"accountant", "accounting", "cpa", "bookkeeping", "tax preparation"},
			"real_estate":    {"realty", "realtor", "real estate", "property management"},
			"local_service":  {"spa", "med spa", "wellness", "fitness", "gym", "yoga", "pilates", "massage", "salon", "nail", "barber", "beauty", "tanning"},
		},
		SkipTags:  []string{"local_service"},
		SkipKinds: []ProviderKind{KindGovernment, KindNonprofit},
	}
}

// LoadTables reads routing tables from a YAML file with a top-level
// "routing" key.
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, eris.Wrapf(err, "routing: read tables %s", path)
	}
	return ParseTables(data)
}

// ParseTables parses YAML routing tables over the defaults. Map entries in
// the file replace the default entry with the same key.
func ParseTables(data []byte) (Tables, error) {
	var wrapper struct {
		Routing Tables `yaml:"routing"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Tables{}, eris.Wrap(err, "routing: parse tables")
	}

	t := DefaultTables()
	in := wrapper.Routing
	for k, v := range in.Providers {
		t.Providers[k] = v
	}
	mergeLists(t.Geography, in.Geography)
	mergeLists(t.Industry, in.Industry)
	mergeLists(t.Entity, in.Entity)
	mergeLists(t.IndustryKeywords, in.IndustryKeywords)
	if in.SkipTags != nil {
		t.SkipTags = in.SkipTags
	}
	if in.SkipKinds != nil {
		t.SkipKinds = in.SkipKinds
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// Validate checks that every routed provider is declared.
func (t Tables) Validate() error {
	check := func(section string, m map[string][]string) error {
		for key, names := range m {
			for _, n := range names {
				if _, ok := t.Providers[n]; !ok {
					return eris.Errorf("routing: %s[%s] names undeclared provider %q", section, key, n)
				}
			}
		}
		return nil
	}
	if err := check("geography", t.Geography); err != nil {
		return err
	}
	if err := check("industry", t.Industry); err != nil {
		return err
	}
	return check("entity", t.Entity)
}

func mergeLists(dst, src map[string][]string) {
	for k, v := range src {
		dst[k] = v
	}
}
