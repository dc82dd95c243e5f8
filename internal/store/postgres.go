package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/medicalexcom/avidiatech-match/internal/db"
	"github.com/medicalexcom/avidiatech-match/internal/model"
	"github.com/medicalexcom/avidiatech-match/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. The initial
// ping is retried so the CLI tolerates a database that is still starting.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 3
	retry.ShouldRetry = func(error) bool { return true }
	retry.OnRetry = resilience.RetryLogger("postgres", "ping")
	if err := resilience.Do(ctx, retry, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	zap.L().Debug("postgres: connected", zap.Int32("max_conns", maxConns))
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: utcNow}, nil
}

func utcNow() time.Time { return time.Now().UTC() }

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sku_url_index (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id          TEXT NOT NULL,
	supplier_key       TEXT NOT NULL,
	sku                TEXT NOT NULL DEFAULT '',
	sku_norm           TEXT NOT NULL,
	ndc_item_code      TEXT NOT NULL DEFAULT '',
	ndc_item_code_norm TEXT NOT NULL DEFAULT '',
	product_name       TEXT NOT NULL DEFAULT '',
	product_name_norm  TEXT NOT NULL DEFAULT '',
	brand_name         TEXT NOT NULL DEFAULT '',
	source_url         TEXT NOT NULL,
	source_domain      TEXT NOT NULL DEFAULT '',
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 1),
	signals            JSONB NOT NULL DEFAULT '{}'::jsonb,
	matched_by         TEXT NOT NULL DEFAULT '',
	last_seen_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_sku_url_index_sku ON sku_url_index(tenant_id, supplier_key, sku_norm);
CREATE INDEX IF NOT EXISTS idx_sku_url_index_ndc ON sku_url_index(tenant_id, supplier_key, ndc_item_code_norm)
	WHERE ndc_item_code_norm <> '';
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LookupByNDC(ctx context.Context, tenantID, supplierKey, ndcNorm string) (*model.IndexEntry, error) {
	if ndcNorm == "" {
		return nil, nil
	}
	return s.lookup(ctx, "ndc_item_code_norm", tenantID, supplierKey, ndcNorm)
}

func (s *PostgresStore) LookupBySKU(ctx context.Context, tenantID, supplierKey, skuNorm string) (*model.IndexEntry, error) {
	if skuNorm == "" {
		return nil, nil
	}
	return s.lookup(ctx, "sku_norm", tenantID, supplierKey, skuNorm)
}

func (s *PostgresStore) lookup(ctx context.Context, column, tenantID, supplierKey, value string) (*model.IndexEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM sku_url_index
		 WHERE tenant_id = $1 AND supplier_key = $2 AND `+column+` = $3
		 ORDER BY last_seen_at DESC, updated_at DESC, id DESC LIMIT 1`,
		tenantID, supplierKey, value,
	)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lookup by %s", column)
	}
	return e, nil
}

var postgresUpsert = `INSERT INTO sku_url_index (` + entryColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	ON CONFLICT (tenant_id, supplier_key, sku_norm) DO UPDATE SET ` + setExcluded("EXCLUDED")

func (s *PostgresStore) UpsertEntry(ctx context.Context, e *model.IndexEntry) error {
	if err := prepare(e, s.now()); err != nil {
		return eris.Wrap(err, "postgres: upsert entry")
	}
	args, err := entryValues(e)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert entry")
	}
	_, err = s.pool.Exec(ctx, postgresUpsert, args...)
	return eris.Wrap(err, "postgres: upsert entry")
}

// ImportEntries loads a batch through COPY and a single merge statement.
func (s *PostgresStore) ImportEntries(ctx context.Context, entries []model.IndexEntry) (int64, error) {
	batch, err := prepareBatch(entries, s.now())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import entries")
	}
	rows := make([][]any, 0, len(batch))
	for i := range batch {
		vals, err := entryValues(&batch[i])
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: import entry %d", i)
		}
		rows = append(rows, vals)
	}
	n, err := db.CopyMerge(ctx, s.pool, db.Merge{
		Table:     tableName,
		Columns:   columnNames,
		Key:       []string{"tenant_id", "supplier_key", "sku_norm"},
		Overwrite: updateOnConflict,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import entries")
	}
	return n, nil
}
