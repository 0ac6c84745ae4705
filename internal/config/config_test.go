package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, NewDefaultConfig().Mining.MinSupport, cfg.Mining.MinSupport)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := NewDefaultConfig()
	cfg.Mining.MinSupport = 0.25
	cfg.Mining.CustomExcludes = []string{"weather.home"}
	cfg.Store.Path = filepath.Join(dir, "patterns.db")

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, loaded.Mining.MinSupport)
	assert.Equal(t, []string{"weather.home"}, loaded.Mining.CustomExcludes)
}

func TestValidateRejectsMissingRecorderSource(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "patterns.db")
	cfg.Recorder.SQLitePath = ""
	cfg.Recorder.MySQLDSN = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeThresholds(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "patterns.db")
	cfg.Mining.MinSupport = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "patterns.db")
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}
