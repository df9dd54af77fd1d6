package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/bindery/internal/store"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bindery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
scheme_dir: ./schemes
log_level: debug
session_idle: 5m
entities:
  - name: task
    fields:
      - {name: title, type: text}
      - {name: rank, type: integer}
`), 0o600))

	cfg, err := load(env(map[string]string{
		"BINDERY_CONFIG": path,
		"PORT":           "9100",
		"ACTIONS_FILE":   "actions.yaml",
	}))
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "./schemes", cfg.SchemeDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "actions.yaml", cfg.ActionsFile)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdle)
	assert.Equal(t, 24*time.Hour, cfg.SessionMaxAge)
	want := []store.Entity{{Name: "task", Fields: []store.Field{
		{Name: "title", Type: store.Text},
		{Name: "rank", Type: store.Integer},
	}}}
	assert.Empty(t, cmp.Diff(want, cfg.Entities))
}

func TestLoad_Errors(t *testing.T) {
	for name, vars := range map[string]map[string]string{
		"bad port":     {"PORT": "http"},
		"port range":   {"PORT": "70000"},
		"bad duration": {"SESSION_IDLE": "soon"},
		"missing file": {"BINDERY_CONFIG": "/nonexistent/bindery.yaml"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := load(env(vars))
			assert.Error(t, err)
		})
	}
}
