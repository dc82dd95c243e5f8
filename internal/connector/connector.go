// Package connector proposes candidate product-page URLs for a supplier.
// Each supplier is mapped to one strategy variant by the supplier table;
// unknown suppliers get the no-op generic variant.
package connector

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medicalexcom/avidiatech-match/internal/fetcher"
	"github.com/medicalexcom/avidiatech-match/internal/model"
	"github.com/medicalexcom/avidiatech-match/internal/resilience"
	"github.com/medicalexcom/avidiatech-match/internal/safety"
	"github.com/medicalexcom/avidiatech-match/internal/supplier"
	"github.com/medicalexcom/avidiatech-match/pkg/jina"
)

// Input is what a connector sees for one resolution attempt.
type Input struct {
	Request model.Request
	Key     model.NormalizedKey
}

// Result holds the candidates a connector proposed, in discovery order.
type Result struct {
	Candidates []model.Candidate
}

// Connector proposes candidate URLs for an item.
type Connector interface {
	Method() model.Method
	ResolveCandidates(ctx context.Context, in Input) (*Result, error)
}

// Deps are the collaborators the non-trivial strategies need. A strategy
// whose collaborator is missing degrades to Generic.
type Deps struct {
	Fetcher  fetcher.Fetcher
	Searcher jina.Searcher
	HTTP     *http.Client
	Retry    resilience.RetryConfig
}

// Registry maps supplier keys to connectors. It is built once from the
// supplier table and is safe for concurrent use.
type Registry struct {
	connectors map[string]Connector
	fallback   Connector
}

// NewRegistry builds one connector per configured supplier.
func NewRegistry(tbl *supplier.Table, deps Deps) *Registry {
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	r := &Registry{
		connectors: make(map[string]Connector),
		fallback:   Generic{},
	}
	for _, key := range tbl.Keys() {
		s, _ := tbl.Get(key)
		r.connectors[key] = build(key, s, deps)
	}
	return r
}

func build(key string, s supplier.Supplier, deps Deps) Connector {
	switch s.Strategy {
	case supplier.StrategyPattern:
		return NewPattern(s.Patterns)
	case supplier.StrategySiteSearch:
		if s.SiteSearch != nil && deps.Fetcher != nil {
			return NewSiteSearch(*s.SiteSearch, deps.Fetcher)
		}
	case supplier.StrategyAPI:
		if s.API != nil {
			return NewAPI(*s.API, deps.HTTP, deps.Retry)
		}
	case supplier.StrategyWebSearch:
		if s.WebSearch != nil && deps.Searcher != nil {
			return NewWebSearch(*s.WebSearch, deps.Searcher)
		}
	default:
		return Generic{}
	}
	zap.L().Warn("connector: strategy not configured, using generic",
		zap.String("supplier", key),
		zap.String("strategy", string(s.Strategy)),
	)
	return Generic{}
}

// Get returns the connector for a supplier key. Unknown keys get Generic.
func (r *Registry) Get(supplierKey string) Connector {
	if r == nil {
		return Generic{}
	}
	if c, ok := r.connectors[strings.ToLower(strings.TrimSpace(supplierKey))]; ok {
		return c
	}
	return r.fallback
}

// keyValue returns the normalized identifier a template is keyed to.
func keyValue(field supplier.KeyField, key model.NormalizedKey) string {
	switch field {
	case supplier.KeySKUNorm:
		return key.SKUNorm
	case supplier.KeyNDCItemCodeNorm:
		return key.NDCItemCodeNorm
	default:
		return ""
	}
}

// queryDelims are left alone by url.PathEscape but split a query string.
var queryDelims = strings.NewReplacer("&", "%26", "=", "%3D", "+", "%2B")

// expand substitutes the escaped value into a template. The value is safe in
// both path and query positions.
func expand(template, value string) string {
	return strings.ReplaceAll(template, supplier.Placeholder, queryDelims.Replace(url.PathEscape(value)))
}

func newCandidate(rawURL string, method model.Method, base float64, reasons ...string) model.Candidate {
	return model.Candidate{
		URL:            rawURL,
		Domain:         safety.DomainOf(rawURL),
		Method:         method,
		BaseConfidence: base,
		Reasons:        reasons,
	}
}
