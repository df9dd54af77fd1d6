package predicate

import (
	"testing"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lower(t *testing.T, format string, vars map[string]any) (string, []any) {
	t.Helper()
	p, err := MustCompile(format).ToSQL(vars)
	require.NoError(t, err)
	return sql.Dialect(dialect.SQLite).
		Select("*").
		From(sql.Table("items")).
		Where(p).
		Query()
}

func TestToSQL_Comparison(t *testing.T) {
	query, args := lower(t, "a = 5", nil)
	assert.Contains(t, query, "`a` = ?")
	assert.Equal(t, []any{int64(5)}, args)
}

func TestToSQL_FlipsValueOnLeft(t *testing.T) {
	query, args := lower(t, "5 < a", nil)
	assert.Contains(t, query, "`a` > ?")
	assert.Equal(t, []any{int64(5)}, args)
}

func TestToSQL_Logic(t *testing.T) {
	query, args := lower(t, `status = "open" and (n >= 2 or not done)`, nil)
	assert.Contains(t, query, "`status` = ?")
	assert.Contains(t, query, "`n` >= ?")
	assert.Contains(t, query, "NOT")
	assert.Contains(t, query, " OR ")
	assert.Equal(t, "open", args[0])
	assert.Equal(t, int64(2), args[1])
}

func TestToSQL_NullAndIn(t *testing.T) {
	query, _ := lower(t, "a = nil", nil)
	assert.Contains(t, query, "`a` IS NULL")

	query, args := lower(t, `status in ["open", "pending"]`, nil)
	assert.Contains(t, query, "`status` IN (?, ?)")
	assert.Equal(t, []any{"open", "pending"}, args)
}

func TestToSQL_Vars(t *testing.T) {
	query, args := lower(t, "owner = $owner and name like %@", map[string]any{"owner": "ann", "@": "gro*"})
	assert.Contains(t, query, "`owner` = ?")
	assert.Contains(t, query, "`name` LIKE ?")
	assert.Equal(t, []any{"ann", "gro%"}, args)
}

func TestToSQL_Columns(t *testing.T) {
	query, args := lower(t, "a > b", nil)
	assert.Contains(t, query, "`a` > `b`")
	assert.Empty(t, args)
}

func TestToSQL_NotLowerable(t *testing.T) {
	for _, format := range []string{"owner.name = 1", `"x" in tags`, "n like 5"} {
		t.Run(format, func(t *testing.T) {
			_, err := MustCompile(format).ToSQL(nil)
			require.Error(t, err)
			assert.Equal(t, ErrNotLowerable, errors.Cause(err))
		})
	}
}
