package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var taskEntity = Entity{
	Name: "task",
	Fields: []Field{
		{Name: "title", Type: Text},
		{Name: "rank", Type: Integer},
		{Name: "done", Type: Bool},
		{Name: "tags", Type: JSON},
	},
}

func newSQL(t *testing.T) *SQL {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	s := OpenSQLite(db)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Define(context.Background(), taskEntity))
	return s
}

// stores runs fn against every Store implementation.
func stores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
	t.Run("sql", func(t *testing.T) { fn(t, newSQL(t)) })
}

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for _, r := range []Record{
		{"id": "1", "title": "write", "rank": int64(3), "done": false},
		{"id": "2", "title": "read", "rank": int64(1), "done": true},
		{"id": "3", "title": "review", "rank": int64(2), "done": false},
	} {
		_, err := s.Insert(ctx, "task", r)
		require.NoError(t, err)
	}
}

func titles(recs []Record) []string {
	var out []string
	for _, r := range recs {
		out = append(out, r["title"].(string))
	}
	return out
}

func TestStore_FetchPredicateAndSort(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		seed(t, s)
		recs, err := s.Fetch(context.Background(), Request{
			Entity:    "task",
			Predicate: "done = false and rank >= $min",
			Vars:      map[string]any{"min": 2},
			Sort:      []Sort{{Field: "rank", Descending: true}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"write", "review"}, titles(recs))
	})
}

func TestStore_FetchLimitOffset(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		seed(t, s)
		recs, err := s.Fetch(context.Background(), Request{
			Entity: "task",
			Sort:   []Sort{{Field: "title"}},
			Limit:  2,
			Offset: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"review", "write"}, titles(recs))
	})
}

func TestStore_InsertAssignsID(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		rec, err := s.Insert(context.Background(), "task", Record{"title": "new"})
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID())
	})
}

func TestStore_UpdateDeleteAndObserve(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		seed(t, s)
		ctx := context.Background()

		var changes []Change
		sub := s.Observe("task", func(c Change) { changes = append(changes, c) })

		require.NoError(t, s.Update(ctx, "task", Record{"id": "2", "title": "reread"}))
		require.NoError(t, s.Delete(ctx, "task", "1"))
		sub.Cancel()
		require.NoError(t, s.Delete(ctx, "task", "3"))

		require.Len(t, changes, 2)
		assert.Equal(t, Updated, changes[0].Kind)
		assert.Equal(t, "reread", changes[0].Record["title"])
		assert.Equal(t, Deleted, changes[1].Kind)
		assert.Equal(t, "1", changes[1].Record.ID())

		recs, err := s.Fetch(ctx, Request{Entity: "task"})
		require.NoError(t, err)
		assert.Equal(t, []string{"reread"}, titles(recs))
	})
}

func TestStore_MissingRecord(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		err := s.Update(ctx, "task", Record{"id": "nope", "title": "x"})
		assert.Equal(t, ErrNotFound, errors.Cause(err))
		err = s.Delete(ctx, "task", "nope")
		assert.Equal(t, ErrNotFound, errors.Cause(err))
	})
}

func TestSQL_TypedColumns(t *testing.T) {
	s := newSQL(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, "task", Record{"id": "x", "title": "t", "done": true, "tags": []any{"a", "b"}, "ignored": 1})
	require.NoError(t, err)

	recs, err := s.Fetch(ctx, Request{Entity: "task", Predicate: "done = true"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, true, recs[0]["done"])
	assert.Equal(t, []any{"a", "b"}, recs[0]["tags"])
	assert.NotContains(t, recs[0], "ignored")
}

func TestSQL_UndefinedEntity(t *testing.T) {
	s := newSQL(t)
	_, err := s.Fetch(context.Background(), Request{Entity: "nope"})
	assert.Error(t, err)
}

func TestSQL_RejectsRelationPaths(t *testing.T) {
	s := newSQL(t)
	_, err := s.Fetch(context.Background(), Request{Entity: "task", Predicate: "owner.name = 1"})
	assert.Error(t, err)
}

func TestSQL_Define(t *testing.T) {
	s := newSQL(t)
	ctx := context.Background()
	// "order" is a keyword, so the table name must be quoted.
	order := Entity{Name: "order", Fields: []Field{{Name: "label", Type: Text}, {Name: "qty", Type: Integer}}}
	require.NoError(t, s.Define(ctx, order))
	require.NoError(t, s.Define(ctx, order), "defining twice is a no-op")

	saved, err := s.Insert(ctx, "order", Record{"id": "o1", "label": "pens", "qty": int64(4)})
	require.NoError(t, err)
	assert.Equal(t, Record{"id": "o1", "label": "pens", "qty": int64(4)}, saved)

	recs, err := s.Fetch(ctx, Request{Entity: "order"})
	require.NoError(t, err)
	assert.Equal(t, []Record{saved}, recs)

	_, err = s.Insert(ctx, "order", Record{"id": "o1", "label": "again"})
	assert.Error(t, err, "id is the primary key")
}
