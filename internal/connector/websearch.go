package connector

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/medicalexcom/avidiatech-match/internal/model"
	"github.com/medicalexcom/avidiatech-match/internal/supplier"
	"github.com/medicalexcom/avidiatech-match/pkg/jina"
)

const webSearchBaseConfidence = 0.3

// WebSearch runs a general web search restricted to the supplier's site.
type WebSearch struct {
	cfg      supplier.WebSearchConfig
	searcher jina.Searcher
}

// NewWebSearch creates a web-search connector.
func NewWebSearch(cfg supplier.WebSearchConfig, s jina.Searcher) *WebSearch {
	return &WebSearch{cfg: cfg, searcher: s}
}

// Method implements Connector.
func (w *WebSearch) Method() model.Method { return model.MethodWebSearch }

// ResolveCandidates implements Connector.
func (w *WebSearch) ResolveCandidates(ctx context.Context, in Input) (*Result, error) {
	query := searchQuery(in)
	if query == "" {
		return &Result{}, nil
	}

	resp, err := w.searcher.Search(ctx, query, jina.WithSiteFilter(w.cfg.Site), jina.WithLimit(w.cfg.MaxResults))
	if err != nil {
		return nil, eris.Wrap(err, "connector: web search")
	}

	res := &Result{}
	for _, hit := range resp.Data {
		if hit.URL == "" {
			continue
		}
		res.Candidates = append(res.Candidates,
			newCandidate(hit.URL, model.MethodWebSearch, webSearchBaseConfidence, "search:"+query))
		if w.cfg.MaxResults > 0 && len(res.Candidates) >= w.cfg.MaxResults {
			break
		}
	}
	return res, nil
}

// searchQuery prefers the raw SKU with the product name, then the NDC code.
func searchQuery(in Input) string {
	sku := strings.TrimSpace(in.Request.SKU)
	name := strings.TrimSpace(in.Request.ProductName)
	switch {
	case sku != "" && name != "":
		return `"` + sku + `" ` + name
	case sku != "":
		return `"` + sku + `"`
	case in.Key.NDCItemCodeNorm != "":
		return `"` + in.Key.NDCItemCodeNorm + `"`
	default:
		return name
	}
}
