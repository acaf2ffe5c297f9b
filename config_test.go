package inlay_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rlch/inlay"
)

const sampleConfig = `
log_level: debug
resolve:
  max_rounds: 4
collect:
  timeout: 2s
expr:
  show_types: true
  max_length: 32
upstream:
  - name: gopls
    command: gopls
    args: [serve]
    languages: [go]
  - name: everything
    command: catch-all
    languages: ["*"]
languages:
  go:
    word_pattern: '[A-Za-z_]\w*'
    cheap_line_length: 200
    tokens:
      - name: Ident
        pattern: '[A-Za-z_]\w*'
`

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cfg, err := inlay.ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.MaxResolveRounds(8))
	assert.Equal(t, 2*time.Second, cfg.Collect.Timeout)
	assert.True(t, cfg.ExprEnabled())
	assert.True(t, cfg.Expr.ShowTypes)
	assert.Equal(t, 32, cfg.Expr.MaxLength)

	goServers := cfg.UpstreamFor("go")
	require.Len(t, goServers, 2)
	assert.Equal(t, "gopls", goServers[0].Name)
	assert.Equal(t, []string{"serve"}, goServers[0].Args)
	assert.Equal(t, "everything", cfg.UpstreamFor("rust")[0].Name)

	lang := cfg.Languages["go"]
	assert.Equal(t, 200, lang.CheapLineLength)
	assert.Equal(t, []inlay.TokenRule{{Name: "Ident", Pattern: `[A-Za-z_]\w*`}}, lang.Tokens)
}

func TestParseConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := inlay.ParseConfig([]byte("expr:\n  enabled: false\n"))
	require.NoError(t, err)

	assert.False(t, cfg.ExprEnabled())
	assert.Equal(t, 8, cfg.MaxResolveRounds(8))
	assert.Empty(t, cfg.UpstreamFor("go"))
}

func TestParseConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown log level", yaml: "log_level: verbose\n"},
		{name: "rounds out of bounds", yaml: "resolve:\n  max_rounds: 100\n"},
		{name: "upstream without command", yaml: "upstream:\n  - name: x\n    languages: [go]\n"},
		{name: "upstream without languages", yaml: "upstream:\n  - name: x\n    command: x\n"},
		{name: "upstream names not unique", yaml: "upstream:\n  - name: x\n    command: a\n    languages: [go]\n  - name: x\n    command: b\n    languages: [rust]\n"},
		{name: "upstream language listed twice", yaml: "upstream:\n  - name: x\n    command: x\n    languages: [go, go]\n"},
		{name: "token rule without pattern", yaml: "languages:\n  go:\n    tokens:\n      - name: Ident\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := inlay.ParseConfig([]byte(tt.yaml))
			require.ErrorIs(t, err, inlay.ErrInvalidConfig)
		})
	}

	_, err := inlay.ParseConfig([]byte("log_level: [unclosed"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, inlay.ErrInvalidConfig)
}

func TestFindConfig(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".inlay.yaml"), []byte(sampleConfig), 0o600))

	path, err := inlay.FindConfig(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".inlay.yaml"), path)

	cfg, err := inlay.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigOrDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, path, err := inlay.LoadConfigOrDefault(dir)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, &inlay.Config{}, cfg)
}

func TestWatchConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, ".inlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o600))

	reloads := make(chan *inlay.Config, 4)

	w, err := inlay.WatchConfig(path, zaptest.NewLogger(t), func(cfg *inlay.Config) {
		reloads <- cfg
	})
	require.NoError(t, err)

	defer func() { assert.NoError(t, w.Close()) }()

	// Unrelated files and broken edits do not reload.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("log_level: verbose\n"), 0o600))

	select {
	case cfg := <-reloads:
		t.Fatalf("unexpected reload: %+v", cfg)
	case <-time.After(3 * inlay.DefaultReloadDebounce):
	}

	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o600))

	select {
	case cfg := <-reloads:
		assert.Equal(t, "warn", cfg.LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
