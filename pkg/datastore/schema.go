package datastore

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the storage type of a column.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindDate
	KindTimestamp
)

// RefAction is what happens to referencing rows when the target is deleted.
type RefAction string

const (
	Restrict RefAction = "RESTRICT"
	Cascade  RefAction = "CASCADE"
	SetNull  RefAction = "SET NULL"
)

// Column describes one field of a table.
type Column struct {
	Name     string
	Kind     Kind
	Nullable bool
	Ref      *Ref
}

// Ref is a foreign key from a column to another table's key.
type Ref struct {
	Table    string
	OnDelete RefAction
}

// Table describes one table in the catalog.
type Table struct {
	Name    string
	Key     string
	Columns []Column
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t *Table) hasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

func (t *Table) columnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

func text(name string) Column       { return Column{Name: name, Kind: KindText} }
func optText(name string) Column    { return Column{Name: name, Kind: KindText, Nullable: true} }
func optDate(name string) Column    { return Column{Name: name, Kind: KindDate, Nullable: true} }
func timestamp(name string) Column  { return Column{Name: name, Kind: KindTimestamp} }
func optTimestamp(name string) Column {
	return Column{Name: name, Kind: KindTimestamp, Nullable: true}
}

func ref(c Column, table string, action RefAction) Column {
	c.Ref = &Ref{Table: table, OnDelete: action}
	return c
}

// Tables lists the catalog in dependency order: referenced tables come first.
var Tables = []*Table{
	{
		Name: "clients",
		Key:  "id",
		Columns: []Column{
			text("id"),
			text("name"),
			timestamp("created_at"),
		},
	},
	{
		Name: "team_users",
		Key:  "user_id",
		Columns: []Column{
			text("user_id"),
			text("name"),
			optText("phone"),
			text("role"),
			timestamp("created_at"),
		},
	},
	{
		Name: "projects",
		Key:  "id",
		Columns: []Column{
			text("id"),
			ref(text("client_id"), "clients", Restrict),
			optText("owner_user_id"),
			text("name"),
			text("status"),
			text("priority"),
			optDate("start_date"),
			optDate("due_date"),
			timestamp("created_at"),
		},
	},
	{
		Name: "services",
		Key:  "id",
		Columns: []Column{
			text("id"),
			ref(text("project_id"), "projects", Cascade),
			text("type"),
			{Name: "quantity", Kind: KindInt},
			optText("notes"),
			timestamp("created_at"),
		},
	},
	{
		Name: "tasks",
		Key:  "id",
		Columns: []Column{
			text("id"),
			ref(text("project_id"), "projects", Cascade),
			ref(optText("service_id"), "services", SetNull),
			text("title"),
			text("status"),
			text("priority"),
			optDate("due_date"),
			text("assignee_user_id"),
			optText("blocked_reason"),
			timestamp("last_update_at"),
			optTimestamp("last_reminded_at"),
			timestamp("created_at"),
		},
	},
}

func lookupTable(name string) (*Table, error) {
	for _, t := range Tables {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
}

func lookupColumn(t *Table, name string) (Column, error) {
	c, ok := t.Column(name)
	if !ok {
		return Column{}, fmt.Errorf("%w: %s.%q", ErrUnknownField, t.Name, name)
	}
	return c, nil
}

func checkOrder(t *Table, order []Order) error {
	for _, o := range order {
		if _, err := lookupColumn(t, o.Field); err != nil {
			return err
		}
	}
	return nil
}

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05.000000Z"
)

// normalize converts a caller-supplied or driver-returned value to the
// canonical Go type for c.Kind.
func normalize(c Column, v any) (any, error) {
	v = deref(v)
	if v == nil {
		return nil, nil
	}
	bad := func() (any, error) {
		return nil, fmt.Errorf("%w: %s = %v (%T)", ErrInvalidValue, c.Name, v, v)
	}

	switch c.Kind {
	case KindText:
		if s, ok := stringValue(v); ok {
			return s, nil
		}
		return bad()

	case KindInt:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() > math.MaxInt64 {
				return bad()
			}
			return int64(rv.Uint()), nil
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if f != math.Trunc(f) || math.IsInf(f, 0) {
				return bad()
			}
			return int64(f), nil
		case reflect.String:
			n, err := strconv.ParseInt(strings.TrimSpace(rv.String()), 10, 64)
			if err != nil {
				return bad()
			}
			return n, nil
		}
		return bad()

	case KindDate:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(dateLayout), nil
		}
		s, ok := stringValue(v)
		if !ok {
			return bad()
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if len(s) > len(dateLayout) {
			// tolerate full timestamps from drivers that widen dates
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t.UTC().Format(dateLayout), nil
			}
		}
		if _, err := time.Parse(dateLayout, s); err != nil {
			return bad()
		}
		return s, nil

	case KindTimestamp:
		switch x := v.(type) {
		case time.Time:
			if x.IsZero() {
				return nil, nil
			}
			return x.UTC().Truncate(time.Microsecond), nil
		}
		s, ok := stringValue(v)
		if !ok {
			return bad()
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return t.UTC().Truncate(time.Microsecond), nil
			}
		}
		return bad()
	}
	return bad()
}

// deref unwraps pointers so *string and *time.Time behave like their values.
func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

// stringValue accepts string, named string types and []byte.
func stringValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

// normalizeRow validates every column name in r and normalises its value.
func normalizeRow(t *Table, r Row) (Row, error) {
	out := make(Row, len(r))
	for k, v := range r {
		c, err := lookupColumn(t, k)
		if err != nil {
			return nil, err
		}
		nv, err := normalize(c, v)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

// prepareInsert fills generated columns and checks required ones. Every
// column of the table is present in the result.
func prepareInsert(t *Table, rec Row, now time.Time) (Row, error) {
	r, err := normalizeRow(t, rec)
	if err != nil {
		return nil, err
	}
	if r[t.Key] == nil && t.Key == "id" {
		r["id"] = uuid.Must(uuid.NewV7()).String()
	}
	if t.hasColumn("created_at") && r["created_at"] == nil {
		r["created_at"] = now.UTC().Truncate(time.Microsecond)
	}
	for _, c := range t.Columns {
		v, present := r[c.Name]
		if !present {
			r[c.Name] = nil
		}
		if v == nil && !c.Nullable {
			return nil, fmt.Errorf("%w: %s.%s is required", ErrConstraint, t.Name, c.Name)
		}
	}
	return r, nil
}

// preparePatch normalises an update patch. The key column cannot be changed
// and required columns cannot be set to NULL.
func preparePatch(t *Table, patch Row) (Row, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("%w: empty patch for %s", ErrInvalidValue, t.Name)
	}
	if _, ok := patch[t.Key]; ok {
		return nil, fmt.Errorf("%w: cannot update key %s.%s", ErrInvalidValue, t.Name, t.Key)
	}
	r, err := normalizeRow(t, patch)
	if err != nil {
		return nil, err
	}
	for k, v := range r {
		c, _ := t.Column(k)
		if v == nil && !c.Nullable {
			return nil, fmt.Errorf("%w: %s.%s is required", ErrConstraint, t.Name, k)
		}
	}
	return r, nil
}

type keyedPatch struct {
	key   any
	patch Row
}

// replacePlan is the set of writes that reconciles a scope with new records.
type replacePlan struct {
	updates []keyedPatch
	inserts []Row
	deletes []any
	result  []Row
}

// planReplace computes the writes for ReplaceSet. existing must already be
// restricted to the scope.
func planReplace(t *Table, scopeField string, scopeValue any, existing, incoming []Row, now time.Time) (*replacePlan, error) {
	stored := make(map[string]Row, len(existing))
	for _, r := range existing {
		stored[keyString(r[t.Key])] = r
	}

	plan := &replacePlan{}
	keep := make(map[string]bool)
	for _, rec := range incoming {
		r := make(Row, len(rec)+1)
		for k, v := range rec {
			r[k] = v
		}
		r[scopeField] = scopeValue

		key, hasKey := r[t.Key]
		if hasKey && key != nil {
			if cur, ok := stored[keyString(deref(key))]; ok && !keep[keyString(deref(key))] {
				ks := keyString(deref(key))
				keep[ks] = true
				delete(r, t.Key)
				delete(r, "created_at")
				patch, err := normalizeRow(t, r)
				if err != nil {
					return nil, err
				}
				merged := make(Row, len(cur))
				for k, v := range cur {
					merged[k] = v
				}
				for k, v := range patch {
					c, _ := t.Column(k)
					if v == nil && !c.Nullable {
						return nil, fmt.Errorf("%w: %s.%s is required", ErrConstraint, t.Name, k)
					}
					merged[k] = v
				}
				plan.updates = append(plan.updates, keyedPatch{key: cur[t.Key], patch: patch})
				plan.result = append(plan.result, merged)
				continue
			}
			// unknown id in this scope: store as a new row
			delete(r, t.Key)
		}
		ins, err := prepareInsert(t, r, now)
		if err != nil {
			return nil, err
		}
		plan.inserts = append(plan.inserts, ins)
		plan.result = append(plan.result, ins)
	}

	for _, r := range existing {
		if !keep[keyString(r[t.Key])] {
			plan.deletes = append(plan.deletes, r[t.Key])
		}
	}
	return plan, nil
}

func keyString(v any) string {
	if s, ok := stringValue(v); ok {
		return s
	}
	return fmt.Sprint(v)
}
