package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1440, cfg.App.Width)
	assert.Equal(t, 900, cfg.App.Height)
	assert.Equal(t, 2048, cfg.Image.DefaultWidth)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Strata", cfg.App.Name)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	data := []byte(`
app:
  name: Compositor
  width: 800
image:
  defaultWidth: 64
  defaultHeight: 32
log:
  level: debug
script:
  timeout: 2s
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Compositor", cfg.App.Name)
	assert.Equal(t, 800, cfg.App.Width)
	assert.Equal(t, 900, cfg.App.Height, "unset fields keep defaults")
	assert.Equal(t, 64, cfg.Image.DefaultWidth)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Second, cfg.Script.Timeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("app: [\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"STRATA_APP_NAME":        "FromEnv",
		"STRATA_IMAGE_WIDTH":     "128",
		"STRATA_METRICS_ENABLED": "false",
		"STRATA_SCRIPT_TIMEOUT":  "750ms",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, "FromEnv", cfg.App.Name)
	assert.Equal(t, 128, cfg.Image.DefaultWidth)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 750*time.Millisecond, cfg.Script.Timeout)

	env["STRATA_APP_WIDTH"] = "wide"
	assert.Error(t, cfg.applyEnv(lookup))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	cfg := Default()
	cfg.ExplorerRoot = "/data/images"
	cfg.Watch.Debounce = time.Second
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
