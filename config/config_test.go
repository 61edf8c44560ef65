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
	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Watchlist.FreshFor)
	assert.Equal(t, 24*time.Hour, cfg.Watchlist.StaleFor)
	assert.Equal(t, "local-first", cfg.Watchlist.RatingPolicy)
	assert.Equal(t, int64(100<<20), cfg.Images.MaxMemoryBytes)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plexfront.yaml")
	yaml := `
data_dir: /var/lib/plexfront
plex:
  server_url: http://plex.local:32400
watchlist:
  fresh_for: 2m
  rating_policy: source-first
logos:
  negative_ttl: 12h
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("PLEXFRONT_TMDB_API_KEY", "secret")
	t.Setenv("PLEXFRONT_WATCHLIST_STALE_FOR", "48h")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/plexfront", cfg.DataDir)
	assert.Equal(t, "http://plex.local:32400", cfg.Plex.ServerURL)
	assert.Equal(t, 2*time.Minute, cfg.Watchlist.FreshFor)
	assert.Equal(t, 48*time.Hour, cfg.Watchlist.StaleFor)
	assert.Equal(t, "source-first", cfg.Watchlist.RatingPolicy)
	assert.Equal(t, 12*time.Hour, cfg.Logos.NegativeTTL)
	assert.Equal(t, "secret", cfg.TMDB.APIKey)
	// untouched keys keep defaults
	assert.Equal(t, 7*24*time.Hour, cfg.Logos.PositiveTTL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	cfg := Default()
	cfg.DataDir = " "
	cfg.Watchlist.FreshFor = 0
	cfg.Logos.NegativeTTL = -time.Second
	cfg.Watchlist.RatingPolicy = "loudest"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "data_dir is required")
	assert.Contains(t, msg, "watchlist.fresh_for must be positive")
	assert.Contains(t, msg, "logos.negative_ttl must be positive")
	assert.Contains(t, msg, "rating_policy")
}

func TestLoadInvalidFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  home_fresh: 0s\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.home_fresh")
}
