package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEmitsRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Service: "vaultd", Env: "test"})
	logger.Info("staked", "account", "0xabc", "token", "secret-bearer")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "INFO", entry["severity"])
	require.Equal(t, "staked", entry["message"])
	require.Equal(t, "vaultd", entry["service"])
	require.Equal(t, "test", entry["env"])
	require.Equal(t, "0xabc", entry["account"])
	require.Equal(t, RedactedValue, entry["token"])
	require.Contains(t, entry, "timestamp")
}

func TestNewHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Service: "vaultd", Level: "warn"})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.Contains(t, buf.String(), "kept")
}

func TestSetupWithConfigWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultd.log")
	logger, closer := SetupWithConfig(Config{Service: "vaultd", File: path, MaxSizeMB: 1})
	logger.Info("to disk")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "to disk"))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("authorization", "Bearer abc").Value.String())
	require.Equal(t, "abc", MaskField("account", "abc").Value.String())
	require.Equal(t, "", MaskField("authorization", "").Value.String())
	require.True(t, IsSensitive("DSN"))
	require.True(t, IsAllowlisted("Account"))
}
