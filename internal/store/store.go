// Package store persists the resolution index. All backends key entries by
// (tenant_id, supplier_key, sku_norm) and resolve duplicate identifier
// matches to the most recently seen entry.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/medicalexcom/avidiatech-match/internal/model"
)

// Store is the persistence contract behind the index.
type Store interface {
	// LookupByNDC and LookupBySKU return nil, nil when nothing matches.
	LookupByNDC(ctx context.Context, tenantID, supplierKey, ndcNorm string) (*model.IndexEntry, error)
	LookupBySKU(ctx context.Context, tenantID, supplierKey, skuNorm string) (*model.IndexEntry, error)
	// UpsertEntry inserts or overwrites the entry with the same natural key.
	UpsertEntry(ctx context.Context, e *model.IndexEntry) error
	// ImportEntries bulk-upserts entries, last occurrence of a key winning.
	ImportEntries(ctx context.Context, entries []model.IndexEntry) (int64, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Driver names a store backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Driver      Driver      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open creates the configured store. An empty driver means memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(strings.ToLower(string(cfg.Driver))) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: sqlite requires database_url")
		}
		return NewSQLite(cfg.DatabaseURL)
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres requires database_url")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// prepare validates e and stamps its id and timestamps for a write at now.
// CreatedAt is only kept by a backend when the row is new.
func prepare(e *model.IndexEntry, now time.Time) error {
	if e == nil {
		return eris.New("nil entry")
	}
	switch {
	case e.TenantID == "":
		return eris.New("entry missing tenant_id")
	case e.SupplierKey == "":
		return eris.New("entry missing supplier_key")
	case e.SKUNorm == "":
		return eris.New("entry missing sku_norm")
	case e.SourceURL == "":
		return eris.New("entry missing source_url")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.LastSeenAt.IsZero() {
		e.LastSeenAt = now
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

type naturalKey struct {
	tenant, supplier, sku string
}

func keyOf(e *model.IndexEntry) naturalKey {
	return naturalKey{e.TenantID, e.SupplierKey, e.SKUNorm}
}

// prepareBatch validates and stamps entries, keeping the last occurrence of
// each natural key in first-seen order.
func prepareBatch(entries []model.IndexEntry, now time.Time) ([]model.IndexEntry, error) {
	pos := make(map[naturalKey]int, len(entries))
	out := make([]model.IndexEntry, 0, len(entries))
	for i := range entries {
		e := entries[i]
		if err := prepare(&e, now); err != nil {
			return nil, eris.Wrapf(err, "entry %d", i)
		}
		k := keyOf(&e)
		if j, ok := pos[k]; ok {
			out[j] = e
			continue
		}
		pos[k] = len(out)
		out = append(out, e)
	}
	return out, nil
}
