package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// whereBuilder collects numbered conditions for dynamic filters.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

func (w *whereBuilder) add(format string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conditions = append(w.conditions, fmt.Sprintf(format, len(w.args)))
}

func (w *whereBuilder) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conditions, " AND ")
}

// next returns the placeholder number for an argument appended after the filters.
func (w *whereBuilder) next() int {
	return len(w.args) + 1
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// advisoryLock serializes transactions on key until the transaction ends.
func advisoryLock(ctx context.Context, tx pgx.Tx, key string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

// advisoryLocks takes every key in sorted order so two transactions locking
// the same set always queue on the same first key.
func advisoryLocks(ctx context.Context, tx pgx.Tx, keys ...string) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, key := range sorted {
		if err := advisoryLock(ctx, tx, key); err != nil {
			return err
		}
	}
	return nil
}

// likePattern escapes LIKE wildcards so user input matches literally as a
// substring. Used with ESCAPE '\'.
func likePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return "%" + s + "%"
}

// incrementSequence bumps the warehouse counter under its row lock. The
// insert only happens for warehouses present in the master table, so an
// unknown code returns found=false.
func incrementSequence(ctx context.Context, q querier, warehouseCode string) (int64, bool, error) {
	query := `
		INSERT INTO gate_entry_sequences (warehouse_code, last_value)
		SELECT warehouse_code, 1 FROM warehouses WHERE warehouse_code = $1
		ON CONFLICT (warehouse_code) DO UPDATE
		SET last_value = gate_entry_sequences.last_value + 1,
		    updated_at = NOW()
		RETURNING last_value
	`
	var value int64
	err := q.QueryRow(ctx, query, warehouseCode).Scan(&value)
	if isNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}
