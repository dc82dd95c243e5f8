// Package supplier holds the read-only per-supplier configuration: which
// candidate strategy a supplier uses, its URL templates, and its domain
// allowlist.
package supplier

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Strategy selects the candidate discovery variant for a supplier.
type Strategy string

const (
	StrategyGeneric    Strategy = "generic"
	StrategyPattern    Strategy = "pattern"
	StrategySiteSearch Strategy = "site_search"
	StrategyAPI        Strategy = "api"
	StrategyWebSearch  Strategy = "web_search"
)

// KeyField names the normalized identifier a template is keyed to.
type KeyField string

const (
	KeySKUNorm         KeyField = "skuNorm"
	KeyNDCItemCodeNorm KeyField = "ndcItemCodeNorm"
)

// Placeholder is substituted with the URL-escaped key value in templates.
const Placeholder = "{value}"

// Table maps supplier keys to their configuration.
type Table struct {
	Suppliers map[string]Supplier `yaml:"suppliers"`
}

// Supplier configures candidate discovery and verification for one supplier.
type Supplier struct {
	Name           string           `yaml:"name"`
	Strategy       Strategy         `yaml:"strategy"`
	AllowedDomains []string         `yaml:"allowed_domains"`
	Patterns       []Pattern        `yaml:"patterns"`
	SiteSearch     *SiteSearch      `yaml:"site_search,omitempty"`
	API            *APILookup       `yaml:"api,omitempty"`
	WebSearch      *WebSearchConfig `yaml:"web_search,omitempty"`
}

// Pattern is a URL template keyed to one normalized identifier.
type Pattern struct {
	Key      KeyField `yaml:"key"`
	Template string   `yaml:"template"`
}

// SiteSearch configures scraping a supplier's own search results page.
type SiteSearch struct {
	Key          KeyField `yaml:"key"`
	Template     string   `yaml:"template"`
	LinkSelector string   `yaml:"link_selector"`
	MaxResults   int      `yaml:"max_results"`
}

// APILookup configures a JSON lookup endpoint that returns a product URL.
type APILookup struct {
	Key      KeyField          `yaml:"key"`
	Template string            `yaml:"template"`
	URLField string            `yaml:"url_field"`
	Headers  map[string]string `yaml:"headers"`
}

// WebSearchConfig configures a general web search restricted to one site.
type WebSearchConfig struct {
	Site       string `yaml:"site"`
	MaxResults int    `yaml:"max_results"`
}

// LoadTable reads and validates a supplier table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "supplier: read table %s", path)
	}
	return ParseTable(data)
}

// ParseTable parses and validates a supplier table. Supplier keys are
// lowercased and defaults applied.
func ParseTable(data []byte) (*Table, error) {
	var raw Table
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "supplier: parse table")
	}

	t := &Table{Suppliers: make(map[string]Supplier, len(raw.Suppliers))}
	for key, s := range raw.Suppliers {
		k := strings.ToLower(strings.TrimSpace(key))
		if k == "" {
			return nil, eris.New("supplier: empty supplier key")
		}
		if _, dup := t.Suppliers[k]; dup {
			return nil, eris.Errorf("supplier: duplicate supplier key %q", k)
		}
		applyDefaults(&s)
		if err := s.validate(); err != nil {
			return nil, eris.Wrapf(err, "supplier: %s", k)
		}
		t.Suppliers[k] = s
	}
	return t, nil
}

// Empty returns a table with no suppliers; every lookup falls back to the
// generic strategy.
func Empty() *Table {
	return &Table{Suppliers: map[string]Supplier{}}
}

// Get returns the configuration for a supplier key.
func (t *Table) Get(key string) (Supplier, bool) {
	if t == nil {
		return Supplier{}, false
	}
	s, ok := t.Suppliers[strings.ToLower(strings.TrimSpace(key))]
	return s, ok
}

// AllowedDomains returns the domain allowlist for a supplier, or nil.
func (t *Table) AllowedDomains(key string) []string {
	s, _ := t.Get(key)
	return s.AllowedDomains
}

// Keys returns the configured supplier keys in sorted order.
func (t *Table) Keys() []string {
	if t == nil {
		return nil
	}
	keys := make([]string, 0, len(t.Suppliers))
	for k := range t.Suppliers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func applyDefaults(s *Supplier) {
	if s.Strategy == "" {
		switch {
		case len(s.Patterns) > 0:
			s.Strategy = StrategyPattern
		case s.SiteSearch != nil:
			s.Strategy = StrategySiteSearch
		case s.API != nil:
			s.Strategy = StrategyAPI
		case s.WebSearch != nil:
			s.Strategy = StrategyWebSearch
		default:
			s.Strategy = StrategyGeneric
		}
	}
	for i, d := range s.AllowedDomains {
		s.AllowedDomains[i] = strings.ToLower(strings.TrimSpace(d))
	}
	if s.SiteSearch != nil {
		if s.SiteSearch.Key == "" {
			s.SiteSearch.Key = KeySKUNorm
		}
		if s.SiteSearch.LinkSelector == "" {
			s.SiteSearch.LinkSelector = "a[href]"
		}
		if s.SiteSearch.MaxResults <= 0 {
			s.SiteSearch.MaxResults = 5
		}
	}
	if s.API != nil && s.API.Key == "" {
		s.API.Key = KeySKUNorm
	}
	if s.WebSearch != nil {
		if s.WebSearch.Site == "" && len(s.AllowedDomains) > 0 {
			s.WebSearch.Site = s.AllowedDomains[0]
		}
		if s.WebSearch.MaxResults <= 0 {
			s.WebSearch.MaxResults = 5
		}
	}
}

func (s Supplier) validate() error {
	switch s.Strategy {
	case StrategyGeneric:
	case StrategyPattern:
		if len(s.Patterns) == 0 {
			return eris.New("pattern strategy requires at least one pattern")
		}
		for i, p := range s.Patterns {
			if err := validTemplate(p.Key, p.Template); err != nil {
				return eris.Wrapf(err, "pattern %d", i)
			}
		}
	case StrategySiteSearch:
		if s.SiteSearch == nil {
			return eris.New("site_search strategy requires a site_search block")
		}
		if err := validTemplate(s.SiteSearch.Key, s.SiteSearch.Template); err != nil {
			return eris.Wrap(err, "site_search")
		}
	case StrategyAPI:
		if s.API == nil {
			return eris.New("api strategy requires an api block")
		}
		if err := validTemplate(s.API.Key, s.API.Template); err != nil {
			return eris.Wrap(err, "api")
		}
		if s.API.URLField == "" {
			return eris.New("api: url_field is required")
		}
	case StrategyWebSearch:
		if s.WebSearch == nil || s.WebSearch.Site == "" {
			return eris.New("web_search strategy requires a site or an allowed domain")
		}
	default:
		return eris.Errorf("unknown strategy %q", s.Strategy)
	}
	return nil
}

func validTemplate(key KeyField, tmpl string) error {
	switch key {
	case KeySKUNorm, KeyNDCItemCodeNorm:
	default:
		return eris.Errorf("unknown key %q", key)
	}
	if !strings.Contains(tmpl, Placeholder) {
		return eris.Errorf("template %q has no %s placeholder", tmpl, Placeholder)
	}
	return nil
}
