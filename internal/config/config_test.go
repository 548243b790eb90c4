package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := Default()
	assert.Equal(t, 500*time.Millisecond, cfg.Delay.Duration)
	assert.Equal(t, KnownStrategies, cfg.Strategies)
	assert.True(t, cfg.Enabled(StrategyScript))
	require.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeConfig(t, dir, `
delay = "250ms"
db = "state/reconciler.db"
strategies = ["syntax", "script"]
language = "go"
skip_while_hidden = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Delay.Duration)
	assert.Equal(t, filepath.Join(dir, "state", "reconciler.db"), cfg.DB)
	assert.Equal(t, []string{"syntax", "script"}, cfg.Strategies)
	assert.False(t, cfg.Enabled(StrategyOutline))
	assert.Equal(t, "go", cfg.Language)
	assert.True(t, cfg.SkipWhileHidden)
	assert.Equal(t, path, cfg.Path)
}

func TestLoad_KeepsUnsetDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, t.TempDir(), `language = "python"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Delay.Duration)
	assert.Equal(t, KnownStrategies, cfg.Strategies)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad duration", `delay = "soon"`, "delay"},
		{"negative delay", `delay = "-1s"`, "delay: must not be negative"},
		{"unknown key", `colour = "red"`, `unknown key "colour"`},
		{"unknown strategy", `strategies = ["lint"]`, `unknown strategy "lint"`},
		{"duplicate strategy", `strategies = ["syntax", "syntax"]`, "listed twice"},
		{"bad language", `language = "cobol"`, "language: unsupported"},
		{"empty db", `db = " "`, "db: must not be empty"},
		{"syntax error", `delay = `, FileName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, t.TempDir(), tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), path)
		})
	}
}

func TestFind_WalksUp(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := writeConfig(t, root, `delay = "1s"`)
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, ok, err := Find(nested)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, path, got)

	cfg, err := Resolve("", nested)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Delay.Duration)
}

func TestResolve_ExplicitPathWins(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, t.TempDir(), `delay = "2s"`)
	cfg, err := Resolve(path, "/")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Delay.Duration)
}
