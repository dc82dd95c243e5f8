// Package fetcher performs the single outbound GET the verifier and the
// discovery strategies need: per-host rate limiting, a hard timeout, bounded
// body size, charset decoding, and a dial-time guard against internal
// addresses.
package fetcher

import (
	"context"
	"net/http"
)

// Page is a fetched response. Non-2xx responses are returned as pages, not
// errors; only transport failures are errors.
type Page struct {
	URL         string      `json:"url"`
	FinalURL    string      `json:"final_url"`
	StatusCode  int         `json:"status_code"`
	ContentType string      `json:"content_type"`
	Body        string      `json:"-"`
	Header      http.Header `json:"-"`
	Truncated   bool        `json:"truncated,omitempty"`
}

// OK reports whether the response status was 2xx.
func (p *Page) OK() bool {
	return p != nil && p.StatusCode >= 200 && p.StatusCode < 300
}

// Fetcher fetches a URL and returns its decoded body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}
