package connector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/medicalexcom/avidiatech-match/internal/model"
	"github.com/medicalexcom/avidiatech-match/internal/resilience"
	"github.com/medicalexcom/avidiatech-match/internal/supplier"
)

const apiBaseConfidence = 0.6

// API asks a supplier lookup endpoint for the product URL. The endpoint
// returns JSON; URLField is a dotted path to a string or a list of strings.
type API struct {
	cfg   supplier.APILookup
	http  *http.Client
	retry resilience.RetryConfig
}

// NewAPI creates an API lookup connector.
func NewAPI(cfg supplier.APILookup, hc *http.Client, retry resilience.RetryConfig) *API {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("connector", "api lookup")
	}
	return &API{cfg: cfg, http: hc, retry: retry}
}

// Method implements Connector.
func (a *API) Method() model.Method { return model.MethodAPI }

// ResolveCandidates implements Connector. A 404 means the supplier does not
// know the item and yields no candidates.
func (a *API) ResolveCandidates(ctx context.Context, in Input) (*Result, error) {
	v := keyValue(a.cfg.Key, in.Key)
	if v == "" {
		return &Result{}, nil
	}
	endpoint := expand(a.cfg.Template, v)

	doc, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (any, error) {
		return a.lookup(ctx, endpoint)
	})
	if err != nil {
		return nil, eris.Wrap(err, "connector: api lookup")
	}

	res := &Result{}
	for _, u := range urlsAt(doc, a.cfg.URLField) {
		res.Candidates = append(res.Candidates,
			newCandidate(u, model.MethodAPI, apiBaseConfidence, "api:"+a.cfg.URLField))
	}
	return res, nil
}

func (a *API) lookup(ctx context.Context, endpoint string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(eris.Errorf("status %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, eris.Errorf("unexpected status %d", resp.StatusCode)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, eris.Wrap(err, "decode response")
	}
	return doc, nil
}

// urlsAt walks a dotted path through decoded JSON objects and returns the
// non-empty strings found at the end.
func urlsAt(doc any, path string) []string {
	cur := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[part]
	}

	var out []string
	switch v := cur.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
