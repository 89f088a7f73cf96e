package datastore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// conn is the minimal surface shared by a pool, a *sql.DB and a transaction.
type conn interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, t *Table, query string, args ...any) ([]Row, error)
}

// dialect captures the per-database differences in SQL text and bind values.
type dialect struct {
	bind       func(n int) string
	encode     func(c Column, v any) any
	columnType func(k Kind) string
	wrapErr    func(err error) error
}

// sqlStore implements Store over any conn with a dialect. Backends embed it
// and supply transactions.
type sqlStore struct {
	d     dialect
	db    conn
	inTx  func(ctx context.Context, fn func(conn) error) error
	clock func() time.Time
}

func quote(ident string) string { return `"` + ident + `"` }

func (s *sqlStore) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

func orderClause(order []Order) string {
	if len(order) == 0 {
		return ""
	}
	terms := make([]string, len(order))
	for i, o := range order {
		if o.Desc {
			terms[i] = quote(o.Field) + " DESC NULLS FIRST"
		} else {
			terms[i] = quote(o.Field) + " ASC NULLS LAST"
		}
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

func selectList(t *Table) string {
	cols := t.columnNames()
	for i, c := range cols {
		cols[i] = quote(c)
	}
	return strings.Join(cols, ", ")
}

func (s *sqlStore) arg(c Column, v any) (any, error) {
	nv, err := normalize(c, v)
	if err != nil {
		return nil, err
	}
	if nv == nil {
		return nil, nil
	}
	return s.d.encode(c, nv), nil
}

func (s *sqlStore) FetchByEquality(ctx context.Context, table, field string, value any, order ...Order) ([]Row, error) {
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
	arg, err := s.arg(c, value)
	if err != nil {
		return nil, err
	}
	var q string
	var args []any
	if arg == nil {
		q = fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NULL%s", selectList(t), quote(t.Name), quote(field), orderClause(order))
	} else {
		q = fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s%s", selectList(t), quote(t.Name), quote(field), s.d.bind(1), orderClause(order))
		args = []any{arg}
	}
	rows, err := s.db.query(ctx, t, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s by %s: %w", table, field, s.d.wrapErr(err))
	}
	return rows, nil
}

func (s *sqlStore) FetchByMembership(ctx context.Context, table, field string, values []any, order ...Order) ([]Row, error) {
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

	var args []any
	seen := make(map[any]bool, len(values))
	for _, v := range values {
		a, err := s.arg(c, v)
		if err != nil {
			return nil, err
		}
		if a == nil || seen[keyString(a)] {
			continue
		}
		seen[keyString(a)] = true
		args = append(args, a)
	}
	if len(args) == 0 {
		return []Row{}, nil
	}

	marks := make([]string, len(args))
	for i := range args {
		marks[i] = s.d.bind(i + 1)
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)%s",
		selectList(t), quote(t.Name), quote(field), strings.Join(marks, ", "), orderClause(order))
	rows, err := s.db.query(ctx, t, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s by %s membership: %w", table, field, s.d.wrapErr(err))
	}
	return rows, nil
}

func (s *sqlStore) FetchOrdered(ctx context.Context, table string, order ...Order) ([]Row, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	if err := checkOrder(t, order); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s%s", selectList(t), quote(t.Name), orderClause(order))
	rows, err := s.db.query(ctx, t, q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, s.d.wrapErr(err))
	}
	return rows, nil
}

func (s *sqlStore) FetchOne(ctx context.Context, table, keyField string, keyValue any) (Row, error) {
	rows, err := s.FetchByEquality(ctx, table, keyField, keyValue)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s=%v: %w", table, keyField, deref(keyValue), ErrNotFound)
	}
	return rows[0], nil
}

func (s *sqlStore) insertRow(ctx context.Context, db conn, t *Table, r Row) error {
	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	args := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quote(c.Name)
		marks[i] = s.d.bind(i + 1)
		if v := r[c.Name]; v != nil {
			args[i] = s.d.encode(c, v)
		}
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(t.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))
	_, err := db.exec(ctx, q, args...)
	return err
}

func (s *sqlStore) Insert(ctx context.Context, table string, records ...Row) ([]Row, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	now := s.now()
	prepared := make([]Row, 0, len(records))
	for _, rec := range records {
		r, err := prepareInsert(t, rec, now)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, r)
	}
	if len(prepared) == 0 {
		return prepared, nil
	}

	write := func(db conn) error {
		for _, r := range prepared {
			if err := s.insertRow(ctx, db, t, r); err != nil {
				return err
			}
		}
		return nil
	}
	if len(prepared) == 1 {
		err = write(s.db)
	} else {
		err = s.inTx(ctx, write)
	}
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, s.d.wrapErr(err))
	}
	return prepared, nil
}

func (s *sqlStore) updateRow(ctx context.Context, db conn, t *Table, key Column, keyValue any, patch Row) (int64, error) {
	fields := make([]string, 0, len(patch))
	for k := range patch {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	sets := make([]string, len(fields))
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		c, _ := t.Column(f)
		sets[i] = quote(f) + " = " + s.d.bind(i+1)
		var v any
		if patch[f] != nil {
			v = s.d.encode(c, patch[f])
		}
		args = append(args, v)
	}
	args = append(args, s.d.encode(key, keyValue))
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		quote(t.Name), strings.Join(sets, ", "), quote(key.Name), s.d.bind(len(fields)+1))
	return db.exec(ctx, q, args...)
}

func (s *sqlStore) Update(ctx context.Context, table, keyField string, keyValue any, patch Row) error {
	t, err := lookupTable(table)
	if err != nil {
		return err
	}
	key, err := lookupColumn(t, keyField)
	if err != nil {
		return err
	}
	if keyField != t.Key {
		return fmt.Errorf("%w: %s is not the key of %s", ErrUnknownField, keyField, table)
	}
	p, err := preparePatch(t, patch)
	if err != nil {
		return err
	}
	kv, err := normalize(key, keyValue)
	if err != nil || kv == nil {
		return fmt.Errorf("%w: key %v", ErrInvalidValue, keyValue)
	}
	n, err := s.updateRow(ctx, s.db, t, key, kv, p)
	if err != nil {
		return fmt.Errorf("update %s %v: %w", table, kv, s.d.wrapErr(err))
	}
	if n == 0 {
		return fmt.Errorf("update %s %v: %w", table, kv, ErrNotFound)
	}
	return nil
}

func (s *sqlStore) deleteRow(ctx context.Context, db conn, t *Table, key Column, keyValue any) (int64, error) {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", quote(t.Name), quote(key.Name), s.d.bind(1))
	return db.exec(ctx, q, s.d.encode(key, keyValue))
}

func (s *sqlStore) Delete(ctx context.Context, table, keyField string, keyValue any) error {
	t, err := lookupTable(table)
	if err != nil {
		return err
	}
	key, err := lookupColumn(t, keyField)
	if err != nil {
		return err
	}
	if keyField != t.Key {
		return fmt.Errorf("%w: %s is not the key of %s", ErrUnknownField, keyField, table)
	}
	kv, err := normalize(key, keyValue)
	if err != nil || kv == nil {
		return fmt.Errorf("%w: key %v", ErrInvalidValue, keyValue)
	}
	n, err := s.deleteRow(ctx, s.db, t, key, kv)
	if err != nil {
		return fmt.Errorf("delete %s %v: %w", table, kv, s.d.wrapErr(err))
	}
	if n == 0 {
		return fmt.Errorf("delete %s %v: %w", table, kv, ErrNotFound)
	}
	return nil
}

func (s *sqlStore) ReplaceSet(ctx context.Context, table, scopeField string, scopeValue any, records []Row) ([]Row, error) {
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
	key, _ := t.Column(t.Key)

	var result []Row
	err = s.inTx(ctx, func(db conn) error {
		q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", selectList(t), quote(t.Name), quote(scopeField), s.d.bind(1))
		existing, err := db.query(ctx, t, q, s.d.encode(scope, sv))
		if err != nil {
			return err
		}
		plan, err := planReplace(t, scopeField, sv, existing, records, s.now())
		if err != nil {
			return err
		}
		for _, k := range plan.deletes {
			if _, err := s.deleteRow(ctx, db, t, key, k); err != nil {
				return err
			}
		}
		for _, u := range plan.updates {
			if len(u.patch) == 0 {
				continue
			}
			if _, err := s.updateRow(ctx, db, t, key, u.key, u.patch); err != nil {
				return err
			}
		}
		for _, r := range plan.inserts {
			if err := s.insertRow(ctx, db, t, r); err != nil {
				return err
			}
		}
		result = plan.result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace %s where %s=%v: %w", table, scopeField, sv, s.d.wrapErr(err))
	}
	return result, nil
}

// ddl returns the CREATE statements for the whole catalog.
func (s *sqlStore) ddl() []string {
	var stmts []string
	for _, t := range Tables {
		defs := make([]string, 0, len(t.Columns)+1)
		for _, c := range t.Columns {
			def := quote(c.Name) + " " + s.d.columnType(c.Kind)
			if c.Name == t.Key {
				def += " PRIMARY KEY"
			} else if !c.Nullable {
				def += " NOT NULL"
			}
			if c.Ref != nil {
				rt, _ := lookupTable(c.Ref.Table)
				def += fmt.Sprintf(" REFERENCES %s(%s) ON DELETE %s", quote(rt.Name), quote(rt.Key), c.Ref.OnDelete)
			}
			defs = append(defs, def)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quote(t.Name), strings.Join(defs, ",\n\t")))
		for _, c := range t.Columns {
			if c.Ref != nil {
				stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
					quote("idx_"+t.Name+"_"+c.Name), quote(t.Name), quote(c.Name)))
			}
		}
	}
	stmts = append(stmts,
		`CREATE INDEX IF NOT EXISTS "idx_tasks_status" ON "tasks"("status")`,
		`CREATE INDEX IF NOT EXISTS "idx_tasks_assignee_user_id" ON "tasks"("assignee_user_id")`,
	)
	return stmts
}

func (s *sqlStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.ddl() {
		if _, err := s.db.exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", s.d.wrapErr(err))
		}
	}
	return nil
}
