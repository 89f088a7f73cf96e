package datastore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is a PostgreSQL-backed Store.
type PgStore struct {
	sqlStore
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	s := &PgStore{pool: pool}
	s.sqlStore = sqlStore{
		d: dialect{
			bind:       func(n int) string { return "$" + strconv.Itoa(n) },
			encode:     pgEncode,
			columnType: pgColumnType,
			wrapErr:    pgWrapErr,
		},
		db:   pgConn{q: pool},
		inTx: s.inTx,
	}
	return s
}

// Close releases the pool.
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PgStore) inTx(ctx context.Context, fn func(conn) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(pgConn{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgConn struct {
	q pgQuerier
}

func (c pgConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c pgConn) query(ctx context.Context, t *Table, query string, args ...any) ([]Row, error) {
	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		r, err := decodeRow(t, vals)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// decodeRow maps positional values in catalog column order back to a Row.
func decodeRow(t *Table, vals []any) (Row, error) {
	if len(vals) != len(t.Columns) {
		return nil, fmt.Errorf("%s: got %d columns, want %d", t.Name, len(vals), len(t.Columns))
	}
	r := make(Row, len(vals))
	for i, c := range t.Columns {
		v, err := normalize(c, vals[i])
		if err != nil {
			return nil, err
		}
		r[c.Name] = v
	}
	return r, nil
}

func pgEncode(c Column, v any) any {
	if c.Kind == KindDate {
		if s, ok := v.(string); ok {
			if d, err := time.Parse(dateLayout, s); err == nil {
				return d
			}
		}
	}
	return v
}

func pgColumnType(k Kind) string {
	switch k {
	case KindInt:
		return "INTEGER"
	case KindDate:
		return "DATE"
	case KindTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func pgWrapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503", "23505", "23502", "23514":
			return fmt.Errorf("%w: %s", ErrConstraint, pgErr.Message)
		}
	}
	return err
}
