package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/s01l/internal/ir"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ".s01l/ledger", cfg.Ledger.Path)
	assert.Equal(t, ".s01l/entities.db", cfg.Store.Path)
	assert.Equal(t, "ledger", cfg.Projector.Source)
	assert.Equal(t, time.Second, cfg.Projector.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Projector.RetryBudget)
	assert.Equal(t, "127.0.0.1:8545", cfg.HTTP.Addr)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)

	reg := cfg.Ledger.Registry()
	assert.Equal(t, ir.MustAddress("0x5011"), reg.Address)
	assert.True(t, reg.Deployer.IsZero())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
ledger:
  in_memory: true
  path: ""
  deployer: "0xD0"
  cost: 42
store:
  path: /tmp/e.db
projector:
  poll_interval: 250ms
http:
  addr: ":9000"
tracing:
  enabled: true
  exporter: none
`)
	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.True(t, cfg.Ledger.InMemory)
	assert.Equal(t, uint64(42), cfg.Ledger.Registry().Cost)
	assert.Equal(t, ir.MustAddress("0xd0"), cfg.Ledger.Registry().Deployer)
	assert.Equal(t, "/tmp/e.db", cfg.Store.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Projector.PollInterval)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "store:\n  path: from-file.db\n")
	t.Setenv("S01L_STORE_PATH", "from-env.db")
	t.Setenv("S01L_PROJECTOR_RETRY_BUDGET", "5s")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Store.Path)
	assert.Equal(t, 5*time.Second, cfg.Projector.RetryBudget)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]struct {
		body string
		want string
	}{
		"bad address":      {"ledger:\n  deployer: nope\n", "Deployer"},
		"bad source":       {"projector:\n  source: kafka\n", "Source"},
		"logfile path":     {"projector:\n  source: logfile\n", "LogFile"},
		"bad level":        {"log:\n  level: loud\n", "Level"},
		"zero poll":        {"projector:\n  poll_interval: 0s\n", "PollInterval"},
		"bad exporter":     {"tracing:\n  exporter: zipkin\n", "Exporter"},
		"file w/o path":    {"tracing:\n  exporter: file\n", "FilePath"},
		"bad listen":       {"http:\n  addr: nowhere\n", "Addr"},
		"ledger path gone": {"ledger:\n  path: \"\"\n", "Path"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(viper.New(), writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExplicitMissingFileFails(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read config")
}
