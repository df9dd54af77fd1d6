package store

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"sort"
	"sync"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/observe"
	"github.com/matthewbaird/bindery/internal/predicate"
)

// FieldType is the storage class of an entity field.
type FieldType string

const (
	Text    FieldType = "text"
	Integer FieldType = "integer"
	Real    FieldType = "real"
	Bool    FieldType = "bool"
	JSON    FieldType = "json"
)

func (t FieldType) column() string {
	switch t {
	case Integer, Bool:
		return "INTEGER"
	case Real:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Field is one declared column.
type Field struct {
	Name string    `yaml:"name" json:"name"`
	Type FieldType `yaml:"type" json:"type"`
}

// Entity declares a table. The id column is implicit.
type Entity struct {
	Name   string  `yaml:"name" json:"name"`
	Fields []Field `yaml:"fields" json:"fields"`
}

func (e Entity) field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (e Entity) columns() []string {
	cols := []string{IDKey}
	for _, f := range e.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// SQL implements Store over an ent SQL driver. Queries are built with the
// ent dialect builder; tables come from Define.
type SQL struct {
	drv      *entsql.Driver
	mu       sync.RWMutex
	entities map[string]Entity
	notifier notifier
}

// NewSQL wraps an ent SQL driver.
func NewSQL(drv *entsql.Driver) *SQL {
	return &SQL{drv: drv, entities: make(map[string]Entity)}
}

// OpenSQLite wraps an open sqlite database.
func OpenSQLite(db *stdsql.DB) *SQL {
	return NewSQL(entsql.OpenDB(dialect.SQLite, db))
}

// Define creates the table for e if it does not exist.
func (s *SQL) Define(ctx context.Context, e Entity) error {
	d := entsql.Dialect(dialect.SQLite)
	cols := []entsql.Querier{d.Column(IDKey).Type("TEXT PRIMARY KEY")}
	for _, f := range e.Fields {
		if f.Name == IDKey {
			continue
		}
		cols = append(cols, d.Column(f.Name).Type(f.Type.column()))
	}
	query := d.String(func(b *entsql.Builder) {
		b.WriteString("CREATE TABLE IF NOT EXISTS ").Ident(e.Name).Pad().Wrap(func(b *entsql.Builder) {
			b.JoinComma(cols...)
		})
	})
	var args []any
	var res stdsql.Result
	if err := s.drv.Exec(ctx, query, args, &res); err != nil {
		return errors.Wrapf(err, "define %s", e.Name)
	}
	s.mu.Lock()
	s.entities[e.Name] = e
	s.mu.Unlock()
	return nil
}

func (s *SQL) entity(name string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[name]
	if !ok {
		return Entity{}, errors.Errorf("entity %q is not defined", name)
	}
	return e, nil
}

func (s *SQL) Fetch(ctx context.Context, req Request) ([]Record, error) {
	e, err := s.entity(req.Entity)
	if err != nil {
		return nil, err
	}
	sel := entsql.Dialect(dialect.SQLite).
		Select(e.columns()...).
		From(entsql.Table(e.Name))
	if req.Predicate != "" {
		p, err := predicate.Compile(req.Predicate)
		if err != nil {
			return nil, errors.Wrap(err, "fetch")
		}
		where, err := p.ToSQL(req.Vars)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch %s", e.Name)
		}
		sel.Where(where)
	}
	for _, o := range req.Sort {
		if o.Descending {
			sel.OrderBy(entsql.Desc(o.Field))
		} else {
			sel.OrderBy(entsql.Asc(o.Field))
		}
	}
	// sqlite only accepts OFFSET together with LIMIT.
	if req.Limit > 0 {
		sel.Limit(req.Limit)
		if req.Offset > 0 {
			sel.Offset(req.Offset)
		}
	}
	query, args := sel.Query()
	return s.query(ctx, e, query, args)
}

func (s *SQL) query(ctx context.Context, e Entity, query string, args []any) ([]Record, error) {
	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return nil, errors.Wrapf(err, "query %s", e.Name)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrapf(err, "scan %s", e.Name)
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[c] = decode(e, c, vals[i])
		}
		out = append(out, rec)
	}
	return out, errors.Wrapf(rows.Err(), "read %s", e.Name)
}

func decode(e Entity, col string, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	f, ok := e.field(col)
	if !ok || v == nil {
		return v
	}
	switch f.Type {
	case Bool:
		n, _ := predicate.Number(v)
		return n != 0
	case JSON:
		s, ok := v.(string)
		if !ok {
			return v
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return s
		}
		return out
	}
	return v
}

func encode(e Entity, col string, v any) any {
	f, ok := e.field(col)
	if !ok || v == nil {
		return v
	}
	switch f.Type {
	case Bool:
		if predicate.Truthy(v) {
			return 1
		}
		return 0
	case JSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)
	case Text:
		return keypath.String(v)
	}
	return v
}

// writable returns the declared columns present in rec, sorted, id excluded.
func writable(e Entity, rec Record) []string {
	var cols []string
	for k := range rec {
		if _, ok := e.field(k); ok && k != IDKey {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return cols
}

func (s *SQL) Insert(ctx context.Context, entity string, rec Record) (Record, error) {
	e, err := s.entity(entity)
	if err != nil {
		return nil, err
	}
	rec = rec.Clone()
	if rec.ID() == "" {
		rec[IDKey] = uuid.NewString()
	}
	cols := append([]string{IDKey}, writable(e, rec)...)
	vals := make([]any, len(cols))
	vals[0] = rec.ID()
	for i, c := range cols[1:] {
		vals[i+1] = encode(e, c, rec[c])
	}
	query, args := entsql.Dialect(dialect.SQLite).
		Insert(e.Name).
		Columns(cols...).
		Values(vals...).
		Query()
	var res stdsql.Result
	if err := s.drv.Exec(ctx, query, args, &res); err != nil {
		return nil, errors.Wrapf(err, "insert %s", entity)
	}
	saved, err := s.get(ctx, e, rec.ID())
	if err != nil {
		return nil, err
	}
	s.notifier.notify(Change{Entity: entity, Kind: Inserted, Record: saved.Clone()})
	return saved, nil
}

func (s *SQL) Update(ctx context.Context, entity string, rec Record) error {
	e, err := s.entity(entity)
	if err != nil {
		return err
	}
	cols := writable(e, rec)
	if len(cols) == 0 {
		return nil
	}
	upd := entsql.Dialect(dialect.SQLite).Update(e.Name)
	for _, c := range cols {
		upd.Set(c, encode(e, c, rec[c]))
	}
	query, args := upd.Where(entsql.EQ(IDKey, rec.ID())).Query()
	var res stdsql.Result
	if err := s.drv.Exec(ctx, query, args, &res); err != nil {
		return errors.Wrapf(err, "update %s", entity)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrNotFound, "update %s %s", entity, rec.ID())
	}
	saved, err := s.get(ctx, e, rec.ID())
	if err != nil {
		return err
	}
	s.notifier.notify(Change{Entity: entity, Kind: Updated, Record: saved})
	return nil
}

func (s *SQL) Delete(ctx context.Context, entity, id string) error {
	e, err := s.entity(entity)
	if err != nil {
		return err
	}
	old, err := s.get(ctx, e, id)
	if err != nil {
		return err
	}
	query, args := entsql.Dialect(dialect.SQLite).
		Delete(e.Name).
		Where(entsql.EQ(IDKey, id)).
		Query()
	var res stdsql.Result
	if err := s.drv.Exec(ctx, query, args, &res); err != nil {
		return errors.Wrapf(err, "delete %s", entity)
	}
	s.notifier.notify(Change{Entity: entity, Kind: Deleted, Record: old})
	return nil
}

func (s *SQL) get(ctx context.Context, e Entity, id string) (Record, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select(e.columns()...).
		From(entsql.Table(e.Name)).
		Where(entsql.EQ(IDKey, id)).
		Query()
	recs, err := s.query(ctx, e, query, args)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "%s %s", e.Name, id)
	}
	return recs[0], nil
}

func (s *SQL) Observe(entity string, fn func(Change)) observe.Subscription {
	return s.notifier.observe(entity, fn)
}

// Close closes the underlying driver.
func (s *SQL) Close() error {
	return s.drv.Close()
}
