package datastore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-process Store with the same semantics as the SQL
// backends, including foreign keys. It backs tests and the demo server.
type MemStore struct {
	mu     sync.RWMutex
	tables map[string]*memTable
	clock  func() time.Time
}

type memTable struct {
	rows  map[string]Row
	order []string // insertion order of keys
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	m := &MemStore{tables: make(map[string]*memTable, len(Tables))}
	for _, t := range Tables {
		m.tables[t.Name] = &memTable{rows: make(map[string]Row)}
	}
	return m
}

func (m *MemStore) now() time.Time {
	if m.clock != nil {
		return m.clock()
	}
	return time.Now()
}

func (m *MemStore) EnsureSchema(context.Context) error { return nil }
func (m *MemStore) Close() error                       { return nil }

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// scan returns copies of rows matching keep, in insertion order.
func (m *MemStore) scan(t *Table, keep func(Row) bool) []Row {
	mt := m.tables[t.Name]
	out := []Row{}
	for _, k := range mt.order {
		r := mt.rows[k]
		if keep == nil || keep(r) {
			out = append(out, copyRow(r))
		}
	}
	return out
}

func (m *MemStore) FetchByEquality(_ context.Context, table, field string, value any, order ...Order) ([]Row, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	c, err := lookupColumn(t, field)
	if err != nil {
		return nil, err
	}
	if err := checkOrder(t, order); err != nil {
		return nil, err
	}
	v, err := normalize(c, value)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.scan(t, func(r Row) bool { return equal(r[field], v) })
	sortRows(rows, order)
	return rows, nil
}

func (m *MemStore) FetchByMembership(_ context.Context, table, field string, values []any, order ...Order) ([]Row, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	c, err := lookupColumn(t, field)
	if err != nil {
		return nil, err
	}
	if err := checkOrder(t, order); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		nv, err := normalize(c, v)
		if err != nil {
			return nil, err
		}
		if nv != nil {
			set[keyString(nv)] = true
		}
	}
	if len(set) == 0 {
		return []Row{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.scan(t, func(r Row) bool { return r[field] != nil && set[keyString(r[field])] })
	sortRows(rows, order)
	return rows, nil
}

func (m *MemStore) FetchOrdered(_ context.Context, table string, order ...Order) ([]Row, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	if err := checkOrder(t, order); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.scan(t, nil)
	sortRows(rows, order)
	return rows, nil
}

func (m *MemStore) FetchOne(ctx context.Context, table, keyField string, keyValue any) (Row, error) {
	rows, err := m.FetchByEquality(ctx, table, keyField, keyValue)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s=%v: %w", table, keyField, deref(keyValue), ErrNotFound)
	}
	return rows[0], nil
}

// checkRefs verifies every non-null foreign key in r points at a stored row.
func (m *MemStore) checkRefs(t *Table, r Row) error {
	for _, c := range t.Columns {
		v, ok := r[c.Name]
		if c.Ref == nil || !ok || v == nil {
			continue
		}
		if _, found := m.tables[c.Ref.Table].rows[keyString(v)]; !found {
			return fmt.Errorf("%w: %s.%s references missing %s %v", ErrConstraint, t.Name, c.Name, c.Ref.Table, v)
		}
	}
	return nil
}

func (m *MemStore) insertLocked(t *Table, r Row) error {
	mt := m.tables[t.Name]
	k := keyString(r[t.Key])
	if _, dup := mt.rows[k]; dup {
		return fmt.Errorf("%w: duplicate %s %s", ErrConstraint, t.Name, k)
	}
	if err := m.checkRefs(t, r); err != nil {
		return err
	}
	mt.rows[k] = copyRow(r)
	mt.order = append(mt.order, k)
	return nil
}

func (m *MemStore) Insert(_ context.Context, table string, records ...Row) ([]Row, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	now := m.now()
	prepared := make([]Row, 0, len(records))
	for _, rec := range records {
		r, err := prepareInsert(t, rec, now)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, r)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	for _, r := range prepared {
		if err := m.insertLocked(t, r); err != nil {
			m.tables = snap
			return nil, fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return prepared, nil
}

func (m *MemStore) updateLocked(t *Table, key string, patch Row) error {
	cur, ok := m.tables[t.Name].rows[key]
	if !ok {
		return fmt.Errorf("%s %s: %w", t.Name, key, ErrNotFound)
	}
	if err := m.checkRefs(t, patch); err != nil {
		return err
	}
	for k, v := range patch {
		cur[k] = v
	}
	return nil
}

func (m *MemStore) Update(_ context.Context, table, keyField string, keyValue any, patch Row) error {
	t, err := lookupTable(table)
	if err != nil {
		return err
	}
	if _, err := lookupColumn(t, keyField); err != nil {
		return err
	}
	if keyField != t.Key {
		return fmt.Errorf("%w: %s is not the key of %s", ErrUnknownField, keyField, table)
	}
	p, err := preparePatch(t, patch)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateLocked(t, keyString(deref(keyValue)), p); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

// deleteLocked removes a row and applies ON DELETE actions to referencing rows.
func (m *MemStore) deleteLocked(t *Table, key string) error {
	mt := m.tables[t.Name]
	if _, ok := mt.rows[key]; !ok {
		return fmt.Errorf("%s %s: %w", t.Name, key, ErrNotFound)
	}
	for _, child := range Tables {
		for _, c := range child.Columns {
			if c.Ref == nil || c.Ref.Table != t.Name {
				continue
			}
			ct := m.tables[child.Name]
			for _, ck := range append([]string(nil), ct.order...) {
				cr, ok := ct.rows[ck]
				if !ok || cr[c.Name] == nil || keyString(cr[c.Name]) != key {
					continue
				}
				switch c.Ref.OnDelete {
				case Cascade:
					if err := m.deleteLocked(child, ck); err != nil {
						return err
					}
				case SetNull:
					cr[c.Name] = nil
				default:
					return fmt.Errorf("%w: %s %s is referenced by %s", ErrConstraint, t.Name, key, child.Name)
				}
			}
		}
	}
	delete(mt.rows, key)
	for i, k := range mt.order {
		if k == key {
			mt.order = append(mt.order[:i], mt.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemStore) Delete(_ context.Context, table, keyField string, keyValue any) error {
	t, err := lookupTable(table)
	if err != nil {
		return err
	}
	if _, err := lookupColumn(t, keyField); err != nil {
		return err
	}
	if keyField != t.Key {
		return fmt.Errorf("%w: %s is not the key of %s", ErrUnknownField, keyField, table)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := m.deleteLocked(t, keyString(deref(keyValue))); err != nil {
		m.tables = snap
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func (m *MemStore) ReplaceSet(_ context.Context, table, scopeField string, scopeValue any, records []Row) ([]Row, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	scope, err := lookupColumn(t, scopeField)
	if err != nil {
		return nil, err
	}
	sv, err := normalize(scope, scopeValue)
	if err != nil || sv == nil {
		return nil, fmt.Errorf("%w: scope %v", ErrInvalidValue, scopeValue)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.scan(t, func(r Row) bool { return equal(r[scopeField], sv) })
	plan, err := planReplace(t, scopeField, sv, existing, records, m.now())
	if err != nil {
		return nil, err
	}

	snap := m.snapshot()
	apply := func() error {
		for _, k := range plan.deletes {
			if err := m.deleteLocked(t, keyString(k)); err != nil {
				return err
			}
		}
		for _, u := range plan.updates {
			if err := m.updateLocked(t, keyString(u.key), u.patch); err != nil {
				return err
			}
		}
		for _, r := range plan.inserts {
			if err := m.insertLocked(t, r); err != nil {
				return err
			}
		}
		return nil
	}
	if err := apply(); err != nil {
		m.tables = snap
		return nil, fmt.Errorf("replace %s where %s=%v: %w", table, scopeField, sv, err)
	}
	return plan.result, nil
}

// snapshot deep-copies every table so a failed multi-row write can be undone.
func (m *MemStore) snapshot() map[string]*memTable {
	out := make(map[string]*memTable, len(m.tables))
	for name, mt := range m.tables {
		cp := &memTable{rows: make(map[string]Row, len(mt.rows)), order: append([]string(nil), mt.order...)}
		for k, r := range mt.rows {
			cp.rows[k] = copyRow(r)
		}
		out[name] = cp
	}
	return out
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

// compare orders two normalised values of the same column. NULL handling is
// left to the caller.
func compare(a, b any) int {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case int64:
		y, _ := b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	}
	return 0
}

func sortRows(rows []Row, order []Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			a, b := rows[i][o.Field], rows[j][o.Field]
			switch {
			case a == nil && b == nil:
				continue
			case a == nil:
				return o.Desc
			case b == nil:
				return !o.Desc
			}
			c := compare(a, b)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
