package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raftbed/raftbed/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(config.BinaryPathEnv, "")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raftbed.yaml")
	content := `binary: /opt/rsqld/rsqld
start_timeout: 45s
poll_interval: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/rsqld/rsqld", cfg.Binary)
	assert.Equal(t, 45*time.Second, cfg.StartTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	// Untouched fields keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.LeaderTimeout)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raftbed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("leader_timeout: soon\n"), 0o644))

	_, err := config.Load(path)
	assert.ErrorContains(t, err, "leader_timeout")
}

func TestBinaryFromEnv(t *testing.T) {
	t.Setenv(config.BinaryPathEnv, "/usr/local/bin/rsqld")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/rsqld", cfg.Binary)
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresBinary(t *testing.T) {
	t.Setenv(config.BinaryPathEnv, "")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Binary = "/opt/rsqld/rsqld"

	opts := cfg.Options(nil)
	assert.Equal(t, cfg.Binary, opts.Binary)
	assert.Equal(t, cfg.StartTimeout, opts.StartTimeout)
	assert.Equal(t, cfg.PollInterval, opts.PollInterval)
}
