package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "waveprint.sqlite3", cfg.Index.Path)
	assert.Equal(t, 0.70, cfg.Engine.DuplicateThreshold)
	assert.Equal(t, 0.25, cfg.Engine.FlagThreshold)
	assert.Equal(t, 11025, cfg.Audio.SampleRate)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waveprint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  allowed_origins: ["https://registry.example"]
index:
  path: /var/lib/waveprint/index.sqlite3
engine:
  duplicate_threshold: 0.8
  flag_threshold: 0.3
  top_k: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://registry.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/var/lib/waveprint/index.sqlite3", cfg.Index.Path)
	assert.Equal(t, 0.8, cfg.Engine.DuplicateThreshold)
	assert.Equal(t, 0.3, cfg.Engine.FlagThreshold)
	assert.Equal(t, 10, cfg.Engine.TopK)

	// untouched sections keep their defaults
	assert.Equal(t, "content", cfg.Store.ContentDir)
	assert.Equal(t, 11025, cfg.Audio.SampleRate)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waveprint.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("WAVEPRINT_PORT", "7070")
	t.Setenv("WAVEPRINT_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("WAVEPRINT_DUPLICATE_THRESHOLD", "0.9")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 0.9, cfg.Engine.DuplicateThreshold)
}

func TestEnvEngineKnobs(t *testing.T) {
	t.Setenv("WAVEPRINT_OFFSET_BIN_MS", "500")
	t.Setenv("WAVEPRINT_TOP_K", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Engine.OffsetBinMs)
	assert.Equal(t, 3, cfg.Engine.TopK)

	t.Setenv("WAVEPRINT_TOP_K", "0")
	_, err = Load("")
	assert.ErrorContains(t, err, "top-k")
}

func TestEnvBadValue(t *testing.T) {
	t.Setenv("WAVEPRINT_PORT", "not-a-port")

	_, err := Load("")
	assert.ErrorContains(t, err, "WAVEPRINT_PORT")
}

func TestValidateThresholdOrdering(t *testing.T) {
	t.Setenv("WAVEPRINT_DUPLICATE_THRESHOLD", "0.2")
	t.Setenv("WAVEPRINT_FLAG_THRESHOLD", "0.5")

	_, err := Load("")
	assert.ErrorContains(t, err, "must be below")
}

func TestValidateThresholdRange(t *testing.T) {
	t.Setenv("WAVEPRINT_FLAG_THRESHOLD", "1.5")

	_, err := Load("")
	assert.ErrorContains(t, err, "out of")
}

func TestEngineConfigConversion(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	ec := cfg.EngineConfig()
	assert.Equal(t, cfg.Engine.DuplicateThreshold, ec.DuplicateThreshold)
	assert.Equal(t, cfg.Engine.FlagThreshold, ec.FlagThreshold)
	assert.Equal(t, cfg.Engine.TopK, ec.TopK)

	fc := cfg.ExtractorConfig()
	assert.Equal(t, cfg.Audio.SampleRate, fc.SampleRate)
	assert.Equal(t, 1024, fc.WindowSize)
}
