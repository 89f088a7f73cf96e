// Package datastore is a small generic record-query layer over the tracker's
// five tables. Callers address rows by table and field name; every name is
// checked against the schema catalog before any SQL is built.
package datastore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrUnknownTable = errors.New("unknown table")
	ErrUnknownField = errors.New("unknown field")
	ErrInvalidValue = errors.New("invalid value")
	ErrConstraint   = errors.New("constraint violation")
)

// Row is one record keyed by column name. Values read back from a Store are
// normalised: text is string, int is int64, date is a "YYYY-MM-DD" string,
// timestamp is a UTC time.Time, and NULL is nil.
type Row map[string]any

// String returns the text value of col, or "" when missing or NULL.
func (r Row) String(col string) string {
	s, _ := r[col].(string)
	return s
}

// StringPtr returns the text value of col, or nil when NULL.
func (r Row) StringPtr(col string) *string {
	s, ok := r[col].(string)
	if !ok {
		return nil
	}
	return &s
}

// Int returns the integer value of col, or 0.
func (r Row) Int(col string) int64 {
	n, _ := r[col].(int64)
	return n
}

// Time returns the timestamp value of col, or the zero time.
func (r Row) Time(col string) time.Time {
	t, _ := r[col].(time.Time)
	return t
}

// TimePtr returns the timestamp value of col, or nil when NULL.
func (r Row) TimePtr(col string) *time.Time {
	t, ok := r[col].(time.Time)
	if !ok {
		return nil
	}
	return &t
}

// Order is one ORDER BY term. Ascending order puts NULLs last and descending
// order puts them first.
type Order struct {
	Field string
	Desc  bool
}

// Asc and Desc build Order terms.
func Asc(field string) Order  { return Order{Field: field} }
func Desc(field string) Order { return Order{Field: field, Desc: true} }

// Store is the record-query contract the tracker consumes.
type Store interface {
	FetchByEquality(ctx context.Context, table, field string, value any, order ...Order) ([]Row, error)
	FetchByMembership(ctx context.Context, table, field string, values []any, order ...Order) ([]Row, error)
	FetchOrdered(ctx context.Context, table string, order ...Order) ([]Row, error)
	// FetchOne returns the single row whose key field equals keyValue.
	FetchOne(ctx context.Context, table, keyField string, keyValue any) (Row, error)

	// Insert stores records and returns them as persisted, including any
	// generated id and created_at.
	Insert(ctx context.Context, table string, records ...Row) ([]Row, error)
	Update(ctx context.Context, table, keyField string, keyValue any, patch Row) error
	Delete(ctx context.Context, table, keyField string, keyValue any) error

	// ReplaceSet atomically reconciles the rows whose scopeField equals
	// scopeValue with records: known ids are updated, the rest inserted, and
	// stored rows missing from records deleted.
	ReplaceSet(ctx context.Context, table, scopeField string, scopeValue any, records []Row) ([]Row, error)

	EnsureSchema(ctx context.Context) error
	Close() error
}
