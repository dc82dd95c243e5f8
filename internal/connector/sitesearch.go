package connector

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/medicalexcom/avidiatech-match/internal/fetcher"
	"github.com/medicalexcom/avidiatech-match/internal/model"
	"github.com/medicalexcom/avidiatech-match/internal/safety"
	"github.com/medicalexcom/avidiatech-match/internal/supplier"
)

const siteSearchBaseConfidence = 0.4

// SiteSearch fetches the supplier's own search page and proposes the
// product links it lists.
type SiteSearch struct {
	cfg     supplier.SiteSearch
	fetcher fetcher.Fetcher
}

// NewSiteSearch creates a site-search connector.
func NewSiteSearch(cfg supplier.SiteSearch, f fetcher.Fetcher) *SiteSearch {
	return &SiteSearch{cfg: cfg, fetcher: f}
}

// Method implements Connector.
func (s *SiteSearch) Method() model.Method { return model.MethodSiteSearch }

// ResolveCandidates implements Connector.
func (s *SiteSearch) ResolveCandidates(ctx context.Context, in Input) (*Result, error) {
	v := keyValue(s.cfg.Key, in.Key)
	if v == "" {
		return &Result{}, nil
	}
	searchURL := expand(s.cfg.Template, v)
	if !safety.IsSafePublicURL(searchURL) {
		return nil, eris.Errorf("connector: unsafe search url %s", searchURL)
	}

	page, err := s.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return nil, eris.Wrap(err, "connector: site search fetch")
	}
	if !page.OK() {
		return nil, eris.Errorf("connector: site search status %d", page.StatusCode)
	}

	base, err := url.Parse(page.FinalURL)
	if err != nil || page.FinalURL == "" {
		base, _ = url.Parse(searchURL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return nil, eris.Wrap(err, "connector: parse search page")
	}

	res := &Result{}
	seen := make(map[string]bool)
	doc.Find(s.cfg.LinkSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		link := absolute(base, href)
		if link == "" || link == searchURL || seen[link] {
			return true
		}
		seen[link] = true
		res.Candidates = append(res.Candidates,
			newCandidate(link, model.MethodSiteSearch, siteSearchBaseConfidence, "search:"+string(s.cfg.Key)))
		return len(res.Candidates) < s.cfg.MaxResults
	})
	return res, nil
}

// absolute resolves href against base, dropping fragments and anything that
// is not http(s).
func absolute(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
