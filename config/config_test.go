package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMintConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mint.yml")
	require.NoError(t, os.WriteFile(path, []byte("config:\n  name: testmint\n  max_order: 16\n"), 0o644))

	cfg, err := LoadMintConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "testmint", cfg.Name)
	assert.Equal(t, 16, cfg.MaxOrder)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultUnit, cfg.Unit)
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, filepath.Join(DefaultDataDir, "seed.txt"), cfg.SeedPath)
	assert.Equal(t, DefaultBackend, cfg.Lightning.Backend)
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.txt")

	require.NoError(t, os.WriteFile(path, []byte("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff\n"), 0o600))
	seed, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Len(t, seed, 32)

	require.NoError(t, os.WriteFile(path, []byte("zz"), 0o600))
	_, err = LoadSeed(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("0011"), 0o600))
	_, err = LoadSeed(path)
	require.Error(t, err)
}

func TestLoadTuningSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.ini")
	tuning := "[quotes]\nexpiry_seconds = 1200\nmax_secret_length = 256\n\n" +
		"[ratelimit]\nip_max_requests = 25\nglobal_max_requests = 500\nwindow_ms = 1000\n\n" +
		"[abuse]\nmax_requests_per_minute = 300\nauto_blacklist_per_minute = 1500\n"
	require.NoError(t, os.WriteFile(path, []byte(tuning), 0o644))

	q, err := LoadQuoteTuning(path)
	require.NoError(t, err)
	assert.Equal(t, 1200, q.ExpirySeconds)
	assert.Equal(t, 256, q.MaxSecretLength)

	r, err := LoadRateLimitTuning(path)
	require.NoError(t, err)
	assert.Equal(t, 25, r.IPMaxRequests)
	assert.Equal(t, 500, r.GlobalMaxRequests)

	a, err := LoadAbuseTuning(path)
	require.NoError(t, err)
	assert.Equal(t, 300, a.MaxRequestsPerMinute)
	assert.Equal(t, 1500, a.AutoBlacklistPerMinute)
}
