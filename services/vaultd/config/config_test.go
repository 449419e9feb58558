package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaultd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
genesis: ./genesis.toml
env: dev
auth:
  hmac_secret: short
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8088", cfg.ListenAddress)
	require.Equal(t, 2*time.Minute, cfg.Auth.ClockSkew)
	require.Equal(t, "sqlite", cfg.Journal.Driver)
	require.NotEmpty(t, cfg.Journal.DSN)
	require.Equal(t, float64(120), cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, 20, cfg.RateLimit.Burst)
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
listen: 127.0.0.1:9000
env: prod
data_dir: /var/lib/vaultd
genesis: /etc/vaultd/genesis.toml
auth:
  hmac_secret: 0123456789abcdef0123456789abcdef
  issuer: vault-issuer
  audience: vaultd
  clock_skew: 30s
rate_limit:
  requests_per_minute: 60
  burst: 5
journal:
  driver: Postgres
  dsn: postgres://vault@localhost/vault
logging:
  level: WARN
  file: /var/log/vaultd.log
telemetry:
  endpoint: collector:4318
  traces: true
  sample_ratio: 0.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "postgres", cfg.Journal.Driver)
	require.Equal(t, 30*time.Second, cfg.Auth.ClockSkew)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, 100, cfg.Logging.MaxSizeMB)
	require.True(t, cfg.Telemetry.Traces)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing genesis": `
auth:
  hmac_secret: 0123456789abcdef0123456789abcdef
`,
		"short secret outside dev": `
genesis: g.toml
env: prod
auth:
  hmac_secret: short
`,
		"unknown driver": `
genesis: g.toml
auth:
  hmac_secret: 0123456789abcdef0123456789abcdef
journal:
  driver: mysql
  dsn: x
`,
		"postgres without dsn": `
genesis: g.toml
auth:
  hmac_secret: 0123456789abcdef0123456789abcdef
journal:
  driver: postgres
`,
		"unknown field": `
genesis: g.toml
auth:
  hmac_secret: 0123456789abcdef0123456789abcdef
surprise: true
`,
	}
	for name, contents := range cases {
		_, err := Load(writeConfig(t, contents))
		require.Error(t, err, name)
	}
	_, err := Load("")
	require.Error(t, err)
}
