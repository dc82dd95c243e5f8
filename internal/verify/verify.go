// Package verify scores a candidate URL by fetching it once and looking for
// the expected identifiers in the page body.
package verify

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/medicalexcom/avidiatech-match/internal/fetcher"
	"github.com/medicalexcom/avidiatech-match/internal/model"
	"github.com/medicalexcom/avidiatech-match/internal/resilience"
	"github.com/medicalexcom/avidiatech-match/internal/safety"
	"github.com/medicalexcom/avidiatech-match/internal/supplier"
)

// Evidence weights. They are additive and the total is not clamped, so a
// page with every signal scores 1.35.
const (
	WeightSKU        = 0.35
	WeightSKUNorm    = 0.35
	WeightNDC        = 0.35
	WeightNameTokens = 0.20
	WeightBrand      = 0.10

	SearchPagePenalty = 0.15

	// ConfidentThreshold is the score at which a page is trusted.
	ConfidentThreshold = 0.75
	// ReviewThreshold is the lower bound of the needs-review band.
	ReviewThreshold = 0.55

	maxNameTokens = 8
	maxSnippetLen = 200
)

// DefaultTimeout bounds a single candidate fetch.
const DefaultTimeout = 10 * time.Second

var searchPageRe = regexp.MustCompile(`<input[^>]*name=["']?(q|query|search|keyword)["'\s>]|search results|category|product-listing`)

// Input carries the request and its normalized form.
type Input struct {
	Request model.Request
	Key     model.NormalizedKey
}

// Options configures a Verifier.
type Options struct {
	Timeout time.Duration
}

// Verifier scores candidates. Safe for concurrent use if its Fetcher is.
type Verifier struct {
	fetcher   fetcher.Fetcher
	suppliers *supplier.Table
	timeout   time.Duration
}

// New creates a Verifier. A nil table means no supplier has an allowlist.
func New(f fetcher.Fetcher, suppliers *supplier.Table, opts Options) *Verifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Verifier{fetcher: f, suppliers: suppliers, timeout: opts.Timeout}
}

// Verify fetches the candidate and scores it. Every failure is reported in
// the returned Verification; it never returns an error.
func (v *Verifier) Verify(ctx context.Context, in Input, c model.Candidate) model.Verification {
	if !safety.IsSafePublicURL(c.URL) {
		return rejected(model.SignalUnsafeURL)
	}

	allowed := v.suppliers.AllowedDomains(in.Key.SupplierKey)
	if len(allowed) > 0 && !safety.InAllowlist(safety.DomainOf(c.URL), allowed) {
		return rejected(model.SignalNotInAllowlist)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	page, err := v.fetcher.Fetch(fetchCtx, c.URL)
	if err != nil {
		zap.L().Debug("verify: fetch failed", zap.String("url", c.URL), zap.Error(err))
		res := rejected(model.SignalFetchError)
		res.Error = err.Error()
		res.Retryable = resilience.IsTransient(err)
		return res
	}

	res := Score(page.Body, in)
	res.StatusCode = page.StatusCode
	res.Snippet = snippet(page.Body)
	return res
}

// Score applies the evidence checks to a page body.
func Score(body string, in Input) model.Verification {
	text := strings.ToLower(body)
	res := model.Verification{Signals: []string{}}

	rawSKU := strings.ToLower(strings.TrimSpace(in.Request.SKU))
	rawHit := rawSKU != "" && strings.Contains(text, rawSKU)
	if rawHit {
		res.Score += WeightSKU
		res.Signals = append(res.Signals, model.SignalSKUFound)
	}
	if in.Key.SKUNorm != "" && strings.Contains(text, in.Key.SKUNorm) {
		res.Score += WeightSKUNorm
		if !rawHit {
			res.Signals = append(res.Signals, model.SignalSKUNormFound)
		}
	}

	if ndc := strings.ToLower(in.Key.NDCItemCodeNorm); ndc != "" && strings.Contains(text, ndc) {
		res.Score += WeightNDC
		res.Signals = append(res.Signals, model.SignalNDCFound)
	}

	if ratio := nameTokenRatio(text, in.Key.ProductNameNorm); ratio > 0 {
		res.Score += ratio * WeightNameTokens
		res.Signals = append(res.Signals, model.SignalNameTokens)
	}

	if brand := strings.ToLower(strings.TrimSpace(in.Request.BrandName)); brand != "" && strings.Contains(text, brand) {
		res.Score += WeightBrand
		res.Signals = append(res.Signals, model.SignalBrandFound)
	}

	if name := strings.ToLower(strings.TrimSpace(in.Request.SupplierName)); name != "" && strings.Contains(text, name) {
		res.Signals = append(res.Signals, model.SignalSupplierFound)
	}

	if res.Score < ConfidentThreshold && searchPageRe.MatchString(text) {
		res.Score = max(0, res.Score-SearchPagePenalty)
		res.Signals = append(res.Signals, model.SignalSearchPage)
	}

	res.OK = res.Score >= ConfidentThreshold
	res.NeedsReview = !res.OK && res.Score >= ReviewThreshold
	return res
}

// nameTokenRatio is hits over the first eight name tokens, counting only
// tokens longer than two characters as hits.
func nameTokenRatio(text, name string) float64 {
	tokens := strings.Fields(name)
	if len(tokens) == 0 {
		return 0
	}
	if len(tokens) > maxNameTokens {
		tokens = tokens[:maxNameTokens]
	}
	hits := 0
	for _, tok := range tokens {
		if len(tok) > 2 && strings.Contains(text, tok) {
			hits++
		}
	}
	return min(1, float64(hits)/float64(len(tokens)))
}

func rejected(signal string) model.Verification {
	return model.Verification{Score: 0, Signals: []string{signal}}
}

// snippet returns the page title, og:title, or first h1.
func snippet(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	var s string
	for _, pick := range []func() string{
		func() string { return doc.Find("title").First().Text() },
		func() string { v, _ := doc.Find(`meta[property="og:title"]`).Attr("content"); return v },
		func() string { return doc.Find("h1").First().Text() },
	} {
		if s = strings.Join(strings.Fields(pick()), " "); s != "" {
			break
		}
	}
	if r := []rune(s); len(r) > maxSnippetLen {
		s = string(r[:maxSnippetLen])
	}
	return s
}
