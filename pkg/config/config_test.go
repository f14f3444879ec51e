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

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "localhost", cfg.Nexus.Host)
	assert.Equal(t, DefaultMgmtPort, cfg.Nexus.MgmtPort)
	assert.Zero(t, cfg.Nexus.DropProb)
	assert.Equal(t, "udp", cfg.Transport.Kind)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: DEBUG
  format: json
nexus:
  host: rpc-host-1
  mgmt_port: 31851
  drop_prob: 0.1
transport:
  kind: udp
  port: 31900
  ring_size: 64
metrics:
  enabled: true
  listen_addr: ":9200"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "rpc-host-1", cfg.Nexus.Host)
	assert.Equal(t, 31851, cfg.Nexus.MgmtPort)
	assert.InDelta(t, 0.1, cfg.Nexus.DropProb, 1e-9)
	assert.Equal(t, "rpc-host-1:31851", cfg.Nexus.URI())
	assert.Equal(t, 31900, cfg.Transport.Port)
	assert.Equal(t, 64, cfg.Transport.RingSize)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9200", cfg.Metrics.ListenAddr)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ERPC_NEXUS_MGMT_PORT", "40000")
	t.Setenv("ERPC_LOGGING_LEVEL", "ERROR")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 40000, cfg.Nexus.MgmtPort)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Nexus.MgmtPort = 70000
	assert.Error(t, cfg.Validate())

	cfg, _ = Load("")
	cfg.Nexus.DropProb = 1.5
	assert.Error(t, cfg.Validate())

	cfg, _ = Load("")
	cfg.Logging.Level = "LOUD"
	assert.Error(t, cfg.Validate())

	cfg, _ = Load("")
	cfg.Transport.Kind = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg, _ = Load("")
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddr = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
