package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge describes a bulk load into a table keyed by a natural key, such as
// the index's (tenant_id, supplier_key, sku_norm).
type Merge struct {
	Table string
	// Columns is the order of values in every row.
	Columns []string
	// Key is the natural key and the ON CONFLICT target.
	Key []string
	// Overwrite lists the columns replaced when a row with the same key
	// already exists. Columns outside Key and Overwrite keep their stored
	// value, which is how id and created_at survive a re-import.
	Overwrite []string
}

func (m Merge) validate() error {
	if m.Table == "" {
		return eris.New("db: merge: no table")
	}
	if len(m.Columns) == 0 {
		return eris.New("db: merge: no columns")
	}
	if len(m.Key) == 0 {
		return eris.New("db: merge: no natural key")
	}
	for _, c := range append(slices.Clone(m.Key), m.Overwrite...) {
		if !slices.Contains(m.Columns, c) {
			return eris.Errorf("db: merge: column %q is not loaded", c)
		}
	}
	for _, c := range m.Overwrite {
		if slices.Contains(m.Key, c) {
			return eris.Errorf("db: merge: key column %q cannot be overwritten", c)
		}
	}
	return nil
}

// stagingTable is dropped at commit.
func (m Merge) stagingTable() string {
	return "_stage_" + strings.ReplaceAll(m.Table, ".", "_")
}

func (m Merge) mergeSQL() string {
	cols := quoteAndJoin(m.Columns)
	action := "DO NOTHING"
	if len(m.Overwrite) > 0 {
		sets := make([]string, len(m.Overwrite))
		for i, c := range m.Overwrite {
			id := pgx.Identifier{c}.Sanitize()
			sets[i] = id + " = EXCLUDED." + id
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(m.Table), cols, cols,
		pgx.Identifier{m.stagingTable()}.Sanitize(),
		quoteAndJoin(m.Key), action)
}

// checkRows rejects rows of the wrong width and repeated natural keys. A
// single INSERT ... ON CONFLICT cannot touch the same row twice, so callers
// collapse duplicates before loading.
func (m Merge) checkRows(rows [][]any) error {
	keyIdx := make([]int, len(m.Key))
	for i, k := range m.Key {
		keyIdx[i] = slices.Index(m.Columns, k)
	}
	seen := make(map[string]int, len(rows))
	for i, row := range rows {
		if len(row) != len(m.Columns) {
			return eris.Errorf("db: merge: row %d has %d values, want %d", i, len(row), len(m.Columns))
		}
		parts := make([]string, len(keyIdx))
		for j, idx := range keyIdx {
			parts[j] = fmt.Sprint(row[idx])
		}
		k := strings.Join(parts, "\x00")
		if first, dup := seen[k]; dup {
			return eris.Errorf("db: merge: rows %d and %d share natural key (%s)", first, i, strings.Join(parts, ", "))
		}
		seen[k] = i
	}
	return nil
}

// CopyMerge stages rows with COPY and merges them into the table in one
// transaction. It returns the number of rows inserted or overwritten.
func CopyMerge(ctx context.Context, pool Pool, m Merge, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := m.validate(); err != nil {
		return 0, err
	}
	if err := m.checkRows(rows); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: merge: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stage := pgx.Identifier{m.stagingTable()}
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stage.Sanitize(), sanitizeTable(m.Table),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: merge: stage %s", m.Table)
	}

	if _, err := tx.CopyFrom(ctx, stage, m.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: merge: copy %d rows into stage", len(rows))
	}

	tag, err := tx.Exec(ctx, m.mergeSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge: into %s", m.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: merge: commit")
	}
	return tag.RowsAffected(), nil
}

// sanitizeTable quotes a table name, keeping an optional schema prefix.
func sanitizeTable(table string) string {
	return pgx.Identifier(strings.SplitN(table, ".", 2)).Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
