package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/medicalexcom/avidiatech-match/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: utcNow}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sku_url_index (
	id                 TEXT PRIMARY KEY,
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
	confidence         REAL NOT NULL DEFAULT 0,
	signals            TEXT NOT NULL DEFAULT '{}',
	matched_by         TEXT NOT NULL DEFAULT '',
	last_seen_at       DATETIME NOT NULL,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_sku_url_index_sku ON sku_url_index(tenant_id, supplier_key, sku_norm);
CREATE INDEX IF NOT EXISTS idx_sku_url_index_ndc ON sku_url_index(tenant_id, supplier_key, ndc_item_code_norm);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LookupByNDC(ctx context.Context, tenantID, supplierKey, ndcNorm string) (*model.IndexEntry, error) {
	if ndcNorm == "" {
		return nil, nil
	}
	return s.lookup(ctx, "ndc_item_code_norm", tenantID, supplierKey, ndcNorm)
}

func (s *SQLiteStore) LookupBySKU(ctx context.Context, tenantID, supplierKey, skuNorm string) (*model.IndexEntry, error) {
	if skuNorm == "" {
		return nil, nil
	}
	return s.lookup(ctx, "sku_norm", tenantID, supplierKey, skuNorm)
}

// lookup column is one of two constants chosen above, never caller input.
func (s *SQLiteStore) lookup(ctx context.Context, column, tenantID, supplierKey, value string) (*model.IndexEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM sku_url_index
		 WHERE tenant_id = ? AND supplier_key = ? AND `+column+` = ?
		 ORDER BY last_seen_at DESC, updated_at DESC, id DESC LIMIT 1`,
		tenantID, supplierKey, value,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: lookup by %s", column)
	}
	return e, nil
}

var sqliteUpsert = `INSERT INTO sku_url_index (` + entryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (tenant_id, supplier_key, sku_norm) DO UPDATE SET ` + setExcluded("excluded")

func setExcluded(prefix string) string {
	parts := make([]string, len(updateOnConflict))
	for i, c := range updateOnConflict {
		parts[i] = c + " = " + prefix + "." + c
	}
	return strings.Join(parts, ", ")
}

func (s *SQLiteStore) UpsertEntry(ctx context.Context, e *model.IndexEntry) error {
	if err := prepare(e, s.now()); err != nil {
		return eris.Wrap(err, "sqlite: upsert entry")
	}
	args, err := entryValues(e)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert entry")
	}
	_, err = s.db.ExecContext(ctx, sqliteUpsert, args...)
	return eris.Wrap(err, "sqlite: upsert entry")
}

func (s *SQLiteStore) ImportEntries(ctx context.Context, entries []model.IndexEntry) (int64, error) {
	batch, err := prepareBatch(entries, s.now())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import entries")
	}
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer func() { _ = stmt.Close() }()

	for i := range batch {
		args, err := entryValues(&batch[i])
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import entry %d", i)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import entry %d", i)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return int64(len(batch)), nil
}
