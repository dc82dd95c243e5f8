// Package resolve is the entry point for SKU-to-URL resolution: index probe,
// candidate discovery, verification, ranking, and classification.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/medicalexcom/avidiatech-match/internal/connector"
	"github.com/medicalexcom/avidiatech-match/internal/index"
	"github.com/medicalexcom/avidiatech-match/internal/model"
	"github.com/medicalexcom/avidiatech-match/internal/normalize"
	"github.com/medicalexcom/avidiatech-match/internal/safety"
	"github.com/medicalexcom/avidiatech-match/internal/verify"
)

const (
	DefaultMaxCandidates = 10
	DefaultBudget        = 90 * time.Second

	reviewListSize = 5
	rawListSize    = 3
	writeTimeout   = 5 * time.Second
)

// Index is the cache the resolver reads before discovery and writes after a
// confident resolution.
type Index interface {
	Lookup(ctx context.Context, tenantID, supplierKey, skuNorm, ndcNorm string) (*model.IndexEntry, index.MatchKey)
	Upsert(ctx context.Context, e model.IndexEntry) bool
}

// Sources maps a supplier key to its candidate connector.
type Sources interface {
	Get(supplierKey string) connector.Connector
}

// Verifier scores a single candidate.
type Verifier interface {
	Verify(ctx context.Context, in verify.Input, c model.Candidate) model.Verification
}

// Options tunes a Resolver.
type Options struct {
	// VerifyConcurrency above 1 verifies candidates in parallel. Ranking is
	// the same either way.
	VerifyConcurrency int
	// Budget bounds a whole Resolve call. Candidates still unverified when
	// it runs out score zero.
	Budget        time.Duration
	MaxCandidates int
}

// Resolver resolves requests. Safe for concurrent use.
type Resolver struct {
	index    Index
	sources  Sources
	verifier Verifier
	opts     Options

	writes sync.WaitGroup
}

// New creates a Resolver. A nil index disables caching.
func New(ix Index, sources Sources, v Verifier, opts Options) *Resolver {
	if opts.VerifyConcurrency <= 0 {
		opts.VerifyConcurrency = 1
	}
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxCandidates
	}
	return &Resolver{index: ix, sources: sources, verifier: v, opts: opts}
}

type scored struct {
	cand model.Candidate
	ver  model.Verification
}

// Resolve runs one resolution. Infrastructure faults degrade the outcome
// instead of failing the call; the error is non-nil only when ctx is
// already done on entry.
func (r *Resolver) Resolve(ctx context.Context, req model.Request) (*model.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "resolve: context done before start")
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.Budget)
	defer cancel()

	key := normalize.Request(req)
	log := zap.L().With(
		zap.String("tenant", req.TenantID),
		zap.String("supplier", key.SupplierKey),
		zap.String("sku_norm", key.SKUNorm),
	)

	if r.index != nil {
		if e, match := r.index.Lookup(ctx, req.TenantID, key.SupplierKey, key.SKUNorm, key.NDCItemCodeNorm); e != nil {
			log.Info("resolve: index hit", zap.String("matched_by", string(match)))
			return &model.Outcome{
				Status:      model.StatusConfident,
				ResolvedURL: e.SourceURL,
				Confidence:  e.Confidence,
				MatchedBy:   string(match),
				Signals:     e.Signals.Tags,
				Snippet:     e.Signals.Snippet,
			}, nil
		}
	}

	conn := r.sources.Get(key.SupplierKey)
	var raw []model.Candidate
	res, err := conn.ResolveCandidates(ctx, connector.Input{Request: req, Key: key})
	if err != nil {
		log.Warn("resolve: connector failed", zap.String("method", string(conn.Method())), zap.Error(err))
	} else if res != nil {
		raw = res.Candidates
	}

	cands := filterCandidates(raw, r.opts.MaxCandidates)
	if len(cands) == 0 {
		out := &model.Outcome{Status: model.StatusUnresolved, Candidates: rawList(raw)}
		log.Info("resolve: no usable candidates", zap.Int("raw", len(raw)))
		return out, nil
	}

	in := verify.Input{Request: req, Key: key}
	results := r.verifyAll(ctx, in, cands)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ver.Score > results[j].ver.Score
	})

	out := r.classify(ctx, req, key, results)
	log.Info("resolve: outcome",
		zap.String("status", string(out.Status)),
		zap.Int("candidates", len(cands)),
		zap.Float64("top_score", results[0].ver.Score),
	)
	return out, nil
}

// filterCandidates drops unsafe URLs, dedupes by exact URL keeping the first
// occurrence, and caps the list.
func filterCandidates(raw []model.Candidate, limit int) []model.Candidate {
	seen := make(map[string]bool, len(raw))
	out := make([]model.Candidate, 0, min(len(raw), limit))
	for _, c := range raw {
		if len(out) == limit {
			break
		}
		if seen[c.URL] || !safety.IsSafePublicURL(c.URL) {
			continue
		}
		seen[c.URL] = true
		out = append(out, c)
	}
	return out
}

func rawList(raw []model.Candidate) []model.RankedCandidate {
	out := make([]model.RankedCandidate, 0, min(len(raw), rawListSize))
	for _, c := range raw {
		if len(out) == rawListSize {
			break
		}
		out = append(out, model.RankedCandidate{
			URL:     c.URL,
			Method:  c.Method,
			Signals: []string{model.SignalUnverified},
		})
	}
	return out
}

func (r *Resolver) verifyAll(ctx context.Context, in verify.Input, cands []model.Candidate) []scored {
	results := make([]scored, len(cands))
	if r.opts.VerifyConcurrency == 1 {
		for i, c := range cands {
			results[i] = scored{cand: c, ver: r.verifyOne(ctx, in, c)}
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(r.opts.VerifyConcurrency)
	for i, c := range cands {
		g.Go(func() error {
			results[i] = scored{cand: c, ver: r.verifyOne(ctx, in, c)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// verifyOne isolates one candidate: a panic or an exhausted budget becomes
// a zero score for that candidate only.
func (r *Resolver) verifyOne(ctx context.Context, in verify.Input, c model.Candidate) (v model.Verification) {
	if err := ctx.Err(); err != nil {
		return model.Verification{Signals: []string{model.SignalFetchError}, Error: err.Error(), Retryable: true}
	}
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("resolve: verifier panicked", zap.String("url", c.URL), zap.Any("panic", p))
			v = model.Verification{Signals: []string{model.SignalVerifyFailed}, Error: fmt.Sprint(p)}
		}
	}()
	v = r.verifier.Verify(ctx, in, c)
	zap.L().Debug("resolve: verified candidate",
		zap.String("url", c.URL),
		zap.Float64("score", v.Score),
		zap.Strings("signals", v.Signals),
	)
	return v
}

func (r *Resolver) classify(ctx context.Context, req model.Request, key model.NormalizedKey, results []scored) *model.Outcome {
	top := results[0]
	switch {
	case top.ver.Score >= verify.ConfidentThreshold && top.ver.OK:
		matchedBy := "connector:" + string(top.cand.Method)
		r.remember(ctx, model.IndexEntry{
			TenantID:        req.TenantID,
			SupplierKey:     key.SupplierKey,
			SKU:             req.SKU,
			SKUNorm:         key.SKUNorm,
			NDCItemCode:     req.NDCItemCode,
			NDCItemCodeNorm: key.NDCItemCodeNorm,
			ProductName:     req.ProductName,
			ProductNameNorm: key.ProductNameNorm,
			BrandName:       req.BrandName,
			SourceURL:       top.cand.URL,
			Confidence:      top.ver.Score,
			Signals: model.Evidence{
				Tags:    top.ver.Signals,
				Snippet: top.ver.Snippet,
				Score:   top.ver.Score,
			},
			MatchedBy: matchedBy,
		})
		return &model.Outcome{
			Status:      model.StatusConfident,
			ResolvedURL: top.cand.URL,
			Confidence:  min(1, top.ver.Score),
			MatchedBy:   matchedBy,
			Signals:     top.ver.Signals,
			Snippet:     top.ver.Snippet,
		}
	case top.ver.Score >= verify.ReviewThreshold:
		return &model.Outcome{Status: model.StatusNeedsReview, Candidates: ranked(results, reviewListSize)}
	default:
		return &model.Outcome{Status: model.StatusUnresolved, Candidates: ranked(results, reviewListSize)}
	}
}

func ranked(results []scored, n int) []model.RankedCandidate {
	out := make([]model.RankedCandidate, 0, min(len(results), n))
	for _, s := range results[:min(len(results), n)] {
		out = append(out, model.RankedCandidate{
			URL:     s.cand.URL,
			Method:  s.cand.Method,
			Score:   s.ver.Score,
			Signals: s.ver.Signals,
			Error:   s.ver.Error,
		})
	}
	return out
}

// remember writes the entry in the background. The write outlives the
// request context but not writeTimeout.
func (r *Resolver) remember(ctx context.Context, e model.IndexEntry) {
	if r.index == nil {
		return
	}
	r.writes.Add(1)
	go func() {
		defer r.writes.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		r.index.Upsert(wctx, e)
	}()
}

// Wait blocks until background index writes have finished.
func (r *Resolver) Wait() {
	r.writes.Wait()
}
