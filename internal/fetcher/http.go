package fetcher

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/medicalexcom/avidiatech-match/internal/safety"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	MaxRedirects int
	// RatePerHost is the steady request rate allowed against a single host.
	RatePerHost rate.Limit
	Burst       int
	// GuardPrivateNetworks refuses connections to internal addresses at dial
	// time and re-validates every redirect hop with the safety filter.
	GuardPrivateNetworks bool
}

// DefaultHTTPOptions returns the production fetch settings.
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		UserAgent:            "Mozilla/5.0 (compatible; skumatch/1.0)",
		Timeout:              10 * time.Second,
		MaxBodyBytes:         2 << 20,
		MaxRedirects:         5,
		RatePerHost:          2,
		Burst:                4,
		GuardPrivateNetworks: true,
	}
}

// hostLimiter paces requests to one supplier host. Throttling responses
// (429, 503) halve the rate, down to a quarter of the base rate; any other
// answered request raises it by a fifth, up to twice the base.
type hostLimiter struct {
	mu   sync.Mutex
	lim  *rate.Limiter
	base rate.Limit
}

func newHostLimiter(base rate.Limit, burst int) *hostLimiter {
	return &hostLimiter{lim: rate.NewLimiter(base, burst), base: base}
}

func (h *hostLimiter) wait(ctx context.Context) error {
	return h.lim.Wait(ctx)
}

// observe adjusts the rate from a response status and reports whether the
// host was throttling.
func (h *hostLimiter) observe(status int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur := h.lim.Limit()
	throttled := status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
	switch {
	case throttled:
		cur = max(cur/2, h.base/4)
	case status < 500:
		cur = min(cur*1.2, h.base*2)
	default:
		return false
	}
	h.lim.SetLimit(cur)
	return throttled
}

func (h *hostLimiter) limit() rate.Limit {
	return h.lim.Limit()
}

// HTTPFetcher implements Fetcher using net/http. It never retries; a failed
// fetch is terminal for that URL.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*hostLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	def := DefaultHTTPOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = def.MaxRedirects
	}
	if opts.RatePerHost <= 0 {
		opts.RatePerHost = def.RatePerHost
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	if opts.GuardPrivateNetworks {
		dialer.Control = refusePrivate
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	f := &HTTPFetcher{
		opts:     opts,
		limiters: make(map[string]*hostLimiter),
	}
	f.client = &http.Client{
		Timeout:       opts.Timeout,
		Transport:     transport,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

func (f *HTTPFetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= f.opts.MaxRedirects {
		return eris.Errorf("stopped after %d redirects", len(via))
	}
	if f.opts.GuardPrivateNetworks && !safety.IsSafePublicURL(req.URL.String()) {
		return eris.Errorf("redirect to unsafe url %s", req.URL.Redacted())
	}
	return nil
}

// refusePrivate runs after DNS resolution, so hostnames that resolve to
// internal addresses are caught too.
func refusePrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return eris.Wrap(err, "fetch: split dial address")
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return eris.Wrapf(err, "fetch: parse dial address %s", host)
	}
	if safety.IsPrivateIP(addr) {
		return eris.Errorf("fetch: refusing to dial internal address %s", addr)
	}
	return nil
}

func (f *HTTPFetcher) limiterFor(host string) *hostLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = newHostLimiter(f.opts.RatePerHost, f.opts.Burst)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch performs one GET against rawURL and returns the decoded body.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: parse url")
	}

	lim := f.limiterFor(strings.ToLower(u.Host))
	if err := lim.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetch: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: request")
	}
	defer func() { _ = resp.Body.Close() }()

	if lim.observe(resp.StatusCode) {
		zap.L().Warn("fetch: supplier host throttling, slowing down",
			zap.String("host", u.Host),
			zap.Int("status", resp.StatusCode),
			zap.Float64("new_rate", float64(lim.limit())),
		)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "fetch: read body")
	}
	truncated := int64(len(raw)) > f.opts.MaxBodyBytes
	if truncated {
		raw = raw[:f.opts.MaxBodyBytes]
	}

	contentType := resp.Header.Get("Content-Type")
	return &Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        decodeBody(raw, contentType),
		Header:      resp.Header,
		Truncated:   truncated,
	}, nil
}

// decodeBody converts a body to UTF-8 using the charset declared in the
// Content-Type header. Unknown or missing charsets pass through unchanged.
func decodeBody(raw []byte, contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(raw)
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(raw)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(raw)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
