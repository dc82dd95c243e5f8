package model

// Method identifies the discovery strategy that proposed a candidate URL.
type Method string

const (
	MethodPattern    Method = "pattern"
	MethodSiteSearch Method = "site-search"
	MethodAPI        Method = "api"
	MethodWebSearch  Method = "web-search"
	MethodOther      Method = "other"
)

// Candidate is a proposed product page URL that has not been verified yet.
type Candidate struct {
	URL            string   `json:"url"`
	Domain         string   `json:"domain"`
	Method         Method   `json:"method"`
	BaseConfidence float64  `json:"base_confidence"`
	Reasons        []string `json:"reasons,omitempty"`
}

// Evidence tags emitted by the verifier.
const (
	SignalUnsafeURL      = "unsafe_url"
	SignalNotInAllowlist = "not_in_allowlist"
	SignalFetchError     = "fetch_error"
	SignalSKUFound       = "sku_found"
	SignalSKUNormFound   = "sku_norm_found"
	SignalNDCFound       = "ndc_found"
	SignalNameTokens     = "name_tokens"
	SignalBrandFound     = "brand_found"
	SignalSupplierFound  = "supplier_found"
	SignalSearchPage     = "search_page"
	SignalVerifyFailed   = "verify_failed"
	SignalUnverified     = "unverified"
)

// Verification is the evidence score for one candidate.
type Verification struct {
	OK          bool     `json:"ok"`
	Score       float64  `json:"score"`
	Signals     []string `json:"signals"`
	Error       string   `json:"error,omitempty"`
	NeedsReview bool     `json:"needs_review,omitempty"`
	Snippet     string   `json:"snippet,omitempty"`
	StatusCode  int      `json:"status_code,omitempty"`
	// Retryable marks a fetch failure that looked transient. The verifier
	// never retries; callers may.
	Retryable bool `json:"retryable,omitempty"`
}

// HasSignal reports whether tag is among the verification signals.
func (v Verification) HasSignal(tag string) bool {
	for _, s := range v.Signals {
		if s == tag {
			return true
		}
	}
	return false
}
