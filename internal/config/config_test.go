package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"CONFIG_FILE", "PORT", "AUTH_MODE", "OPT_ITERATIONS", "OPT_COOLING", "OPT_AFFINITY_NOISE", "OPT_TIME_BUDGET_MS"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, 1000, cfg.Optimizer.Iterations)
	require.Equal(t, 0.95, cfg.Optimizer.Cooling)
	require.True(t, cfg.Optimizer.AffinityNoise)
	require.Equal(t, "dev", cfg.Auth.Mode)

	o := cfg.EngineOptions()
	require.Equal(t, 1000.0, o.Anneal.InitialTemp)
	require.Equal(t, 50.0, o.SpeedKph)
	require.Zero(t, o.TimeBudget)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldroute.yaml")
	body := `
server:
  port: "9090"
  allowOrigins: ["https://ops.example.com"]
database:
  url: ${TEST_DB_URL:-postgres://localhost/dispatch}
optimizer:
  iterations: 250
  cooling: 0.9
  affinityNoise: false
webhooks:
  pollInterval: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TEST_DB_URL", "")
	t.Setenv("OPT_ITERATIONS", "500")
	t.Setenv("OPT_TIME_BUDGET_MS", "150")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, []string{"https://ops.example.com"}, cfg.Server.AllowOrigins)
	require.Equal(t, "postgres://localhost/dispatch", cfg.Database.URL)
	require.Equal(t, 500, cfg.Optimizer.Iterations)
	require.Equal(t, 0.9, cfg.Optimizer.Cooling)
	require.False(t, cfg.Optimizer.AffinityNoise)
	require.Equal(t, 2*time.Second, cfg.Webhooks.PollInterval)
	require.Equal(t, 150*time.Millisecond, cfg.EngineOptions().TimeBudget)
}

func TestExpandEnvPrefersSetValue(t *testing.T) {
	t.Setenv("FIELDROUTE_X", "set")
	require.Equal(t, "a=set b=fallback c=", expandEnv("a=${FIELDROUTE_X:-no} b=${FIELDROUTE_UNSET_Y:-fallback} c=${FIELDROUTE_UNSET_Z}"))
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"cooling out of range", map[string]string{"OPT_COOLING": "1.5"}},
		{"negative iterations", map[string]string{"OPT_ITERATIONS": "-1"}},
		{"unparseable number", map[string]string{"RATE_RPS": "fast"}},
		{"hmac without secret", map[string]string{"AUTH_MODE": "hmac", "AUTH_HMAC_SECRET": ""}},
		{"unknown auth mode", map[string]string{"AUTH_MODE": "saml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
