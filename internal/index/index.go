// Package index is the tenant-scoped cache of verified product URLs. It is
// an optimization only: read failures are misses and write failures are
// dropped.
package index

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/medicalexcom/avidiatech-match/internal/model"
	"github.com/medicalexcom/avidiatech-match/internal/safety"
	"github.com/medicalexcom/avidiatech-match/internal/store"
)

// MatchKey records which identifier an index hit matched on.
type MatchKey string

const (
	MatchNone MatchKey = ""
	MatchNDC  MatchKey = "index:supplier+ndc"
	MatchSKU  MatchKey = "index:supplier+sku"
)

// Options configures an Index.
type Options struct {
	// MaxAge drops hits whose last_seen_at is older than this. Zero keeps
	// entries forever.
	MaxAge time.Duration
	Now    func() time.Time
}

// Index wraps a store with the lookup priority and error policy.
type Index struct {
	store  store.Store
	maxAge time.Duration
	now    func() time.Time
}

// New creates an Index over st.
func New(st store.Store, opts Options) *Index {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Index{store: st, maxAge: opts.MaxAge, now: opts.Now}
}

// Lookup tries the NDC key first, then the SKU key. An NDC hit is returned
// without checking that the SKU agrees.
func (ix *Index) Lookup(ctx context.Context, tenantID, supplierKey, skuNorm, ndcNorm string) (*model.IndexEntry, MatchKey) {
	if ndcNorm != "" {
		e, err := ix.store.LookupByNDC(ctx, tenantID, supplierKey, ndcNorm)
		if err != nil {
			ix.warn("index: ndc lookup failed", tenantID, supplierKey, err)
		} else if ix.fresh(e) {
			return e, MatchNDC
		}
	}
	if skuNorm != "" {
		e, err := ix.store.LookupBySKU(ctx, tenantID, supplierKey, skuNorm)
		if err != nil {
			ix.warn("index: sku lookup failed", tenantID, supplierKey, err)
		} else if ix.fresh(e) {
			return e, MatchSKU
		}
	}
	return nil, MatchNone
}

func (ix *Index) fresh(e *model.IndexEntry) bool {
	if e == nil {
		return false
	}
	if ix.maxAge <= 0 {
		return true
	}
	return ix.now().Sub(e.LastSeenAt) <= ix.maxAge
}

// Upsert writes e keyed by (tenant, supplier, sku_norm). Errors are logged
// and swallowed. Entries without a normalized SKU have no natural key and
// are skipped.
func (ix *Index) Upsert(ctx context.Context, e model.IndexEntry) bool {
	if e.SKUNorm == "" {
		zap.L().Debug("index: skipping upsert without sku_norm",
			zap.String("tenant", e.TenantID),
			zap.String("supplier", e.SupplierKey),
		)
		return false
	}
	e.SourceDomain = safety.DomainOf(e.SourceURL)
	e.Confidence = min(1, max(0, e.Confidence))
	e.LastSeenAt = ix.now().UTC()

	if err := ix.store.UpsertEntry(ctx, &e); err != nil {
		ix.warn("index: upsert failed", e.TenantID, e.SupplierKey, err)
		return false
	}
	return true
}

func (ix *Index) warn(msg, tenantID, supplierKey string, err error) {
	zap.L().Warn(msg,
		zap.String("tenant", tenantID),
		zap.String("supplier", supplierKey),
		zap.Error(err),
	)
}
