package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	testChdir(t, t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	if got := cfg.CDPURL(); got != "http://127.0.0.1:9220" {
		t.Fatalf("CDPURL() = %q; want %q", got, "http://127.0.0.1:9220")
	}
	require.Equal(t, "127.0.0.1:8188", cfg.BindAddr)
	require.Equal(t, 100*time.Millisecond, cfg.QuietPeriod)
	require.Equal(t, time.Second, cfg.MaxWait)
	require.Equal(t, 50*1024*1024, cfg.MaxBodyBytes)
	require.Equal(t, 20*1024*1024, cfg.MaxFrameBytes)
	require.Empty(t, cfg.Peers)
}

func TestLoadFromEnv(t *testing.T) {
	testChdir(t, t.TempDir())
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("INSPECTOR_LOG_LEVEL", "DEBUG")
	t.Setenv("INSPECTOR_BATCH_QUIET", "250ms")
	t.Setenv("INSPECTOR_PEERS", " ws://a:1/peer , ,ws://b:2/peer")
	t.Setenv("INSPECTOR_COMPRESS", "true")
	t.Setenv("INSPECTOR_SCAN_LIMIT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9333, cfg.CDPPort)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 250*time.Millisecond, cfg.QuietPeriod)
	require.Equal(t, []string{"ws://a:1/peer", "ws://b:2/peer"}, cfg.Peers)
	require.True(t, cfg.Compress)
	require.Equal(t, 5000, cfg.ScanLimit)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INSPECTOR_DATA_DIR=/tmp/from-dotenv\n"), 0o644))
	os.Unsetenv("INSPECTOR_DATA_DIR")
	t.Cleanup(func() { os.Unsetenv("INSPECTOR_DATA_DIR") })

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-dotenv", cfg.DataDir)
}

func TestValidate(t *testing.T) {
	testChdir(t, t.TempDir())
	t.Setenv("INSPECTOR_BATCH_QUIET", "2s")
	t.Setenv("INSPECTOR_BATCH_MAX_WAIT", "1s")
	_, err := Load()
	require.Error(t, err)

	cfg := &Config{CDPPort: 70000, DataDir: "x", QuietPeriod: time.Millisecond, MaxWait: time.Second}
	require.Error(t, cfg.Validate())
}

func TestParsePresets(t *testing.T) {
	presets, err := ParsePresets([]byte(`
presets:
  - name: api-only
    in_scope: ["*.example.com"]
    categories: [api]
  - name: graphql
    url_regex: "/graphql$"
    excluded_extensions: [js]
`))
	require.NoError(t, err)
	require.Len(t, presets, 2)

	api := presets["api-only"]
	require.Equal(t, []string{"*.example.com"}, api.InScope)
	require.NotEmpty(t, api.ExcludedExtensions)
	require.NotEmpty(t, api.ExcludedPaths)

	gql := presets["graphql"]
	require.Equal(t, []string{"js"}, gql.ExcludedExtensions)
	require.Equal(t, "/graphql$", gql.URLRegex)
}

func TestParsePresetsRejects(t *testing.T) {
	cases := map[string]string{
		"missing name": "presets:\n  - in_scope: [a.com]\n",
		"duplicate":    "presets:\n  - name: a\n  - name: a\n",
		"bad regex":    "presets:\n  - name: a\n    url_regex: \"(\"\n",
		"bad yaml":     "presets: [",
	}
	for name, doc := range cases {
		if _, err := ParsePresets([]byte(doc)); err == nil {
			t.Fatalf("ParsePresets(%s) = nil error; want error", name)
		}
	}
}

func TestLoadPresetsMissingFile(t *testing.T) {
	_, err := LoadPresets(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("LoadPresets() error = %v; want os.ErrNotExist", err)
	}
}
