package schemestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	v1 = `{"Home": {"elements": {"title": {"type": "Label", "attrs": {"text": "v1"}}}}}`
	v2 = `{"Home": {"elements": {"title": {"type": "Label", "attrs": {"text": "v2"}}}}}`
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "schemes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Versions(t *testing.T) {
	s := open(t)
	n, err := s.Put("home", []byte(v1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Put("home", []byte(v2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, version, err := s.Get("home")
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.JSONEq(t, v2, string(data))

	old, err := s.Version("home", 1)
	require.NoError(t, err)
	assert.JSONEq(t, v1, string(old))

	versions, err := s.Versions("home")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)

	doc, err := s.Load("home")
	require.NoError(t, err)
	assert.Equal(t, []string{"Home"}, doc.ScreenIDs())
}

func TestStore_RejectsInvalid(t *testing.T) {
	s := open(t)
	_, err := s.Put("bad", []byte(`{"Home": {"elements": {"x": {"bindings": "nope"}}}}`))
	assert.Error(t, err)
	_, _, err = s.Get("bad")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_NamesAndDelete(t *testing.T) {
	s := open(t)
	for _, name := range []string{"b", "a"} {
		_, err := s.Put(name, []byte(v1))
		require.NoError(t, err)
	}
	names, err := s.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, s.Delete("a"))
	assert.ErrorIs(t, s.Delete("a"), ErrNotFound)
	_, err = s.Version("b", 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ImportDir(t *testing.T) {
	s := open(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "home.json"), []byte(v1), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`x`), 0o600))

	n, err := s.ImportDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.ImportDir(dir)
	require.NoError(t, err)
	assert.Zero(t, n)

	versions, err := s.Versions("home")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions)
}
