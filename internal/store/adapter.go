package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Adapter is the abstract capability set of spec §4.1: parameterized
// queries, upsert-by-key, and an atomic conditional update. Nothing above
// this layer builds SQL by string interpolation of values — only schema
// names go in templates, values are always bound parameters (Design Note,
// spec §9).
type Adapter interface {
	// Query runs a parameterized read and hands the caller a scan function.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

	// Exec runs a parameterized write that is not a conditional update
	// (e.g. a plain INSERT of one row).
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Upsert inserts rows into table, skipping any row whose conflictCols
	// already match an existing row. It is idempotent: re-running with the
	// same rows and conflictCols never creates duplicates and never
	// updates an existing row (insert-if-absent only, per spec §4.1).
	Upsert(ctx context.Context, table string, columns []string, rows [][]any, conflictCols []string) (inserted int64, err error)

	// AtomicUpdateWhere executes a single conditional UPDATE as one
	// serialized operation. The store guarantees row-level serialization of
	// concurrent conditional updates touching the same rows.
	AtomicUpdateWhere(ctx context.Context, sql string, args ...any) (affected int64, err error)
}

// PGAdapter implements Adapter over a pgxpool.Pool, grounded on the
// teacher's insertRowsDB (fetchd.go) for batched, chunk-free single-table
// upserts and on ryanshabaneh-atlas-queue's claim/mark SQL for the
// conditional-update discipline.
type PGAdapter struct {
	pool *pgxpool.Pool
}

func NewPGAdapter(pool *pgxpool.Pool) *PGAdapter {
	return &PGAdapter{pool: pool}
}

func (a *PGAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := a.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify("query", err)
	}
	return rows, nil
}

func (a *PGAdapter) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := a.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classify("exec", err)
	}
	return tag.RowsAffected(), nil
}

func (a *PGAdapter) AtomicUpdateWhere(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := a.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classify("atomic_update_where", err)
	}
	return tag.RowsAffected(), nil
}

// Upsert mirrors the teacher's insertRowsDB: one pgx.Batch per call, one
// queued INSERT ... ON CONFLICT DO NOTHING per row, summing RowsAffected.
// Callers are responsible for chunking at MERGE_CHUNK_SIZE (spec §4.5 step
// 4); Upsert itself places no limit on len(rows).
func (a *PGAdapter) Upsert(ctx context.Context, table string, columns []string, rows [][]any, conflictCols []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "), strings.Join(conflictCols, ", "),
	)

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(sql, row...)
	}
	br := a.pool.SendBatch(ctx, batch)
	defer br.Close()

	var total int64
	for range rows {
		tag, err := br.Exec()
		if err != nil {
			return total, classify("upsert", err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
