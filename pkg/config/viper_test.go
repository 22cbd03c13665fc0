package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileUsesEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")

	v, err := Load(t.TempDir(), "missing")
	require.NoError(t, err)
	require.Equal(t, 9999, v.GetInt("server.port"))
}

func TestLoadReadsYAML(t *testing.T) {
	dir := t.TempDir()
	body := []byte("server:\n  port: 8080\nhub:\n  send_timeout: 2s\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), body, 0o600))

	v, err := Load(dir, "config")
	require.NoError(t, err)
	require.Equal(t, 8080, v.GetInt("server.port"))
	require.Equal(t, "2s", v.GetString("hub.send_timeout"))
}

func TestLoadExplicitFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("log:\n  level: debug\n"), 0o600))
	t.Setenv(EnvConfigFile, file)

	v, err := Load("/nonexistent", "config")
	require.NoError(t, err)
	require.Equal(t, "debug", v.GetString("log.level"))
}

func TestLoadMalformedFileNamesIt(t *testing.T) {
	file := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(file, []byte("server: [\n"), 0o600))
	t.Setenv(EnvConfigFile, file)

	_, err := Load("/nonexistent", "config")
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken.yaml")
}

func TestListEnv(t *testing.T) {
	t.Setenv("CASSANDRA_HOSTS", " c1:9042, ,c2:9042 ,")
	require.Equal(t, []string{"c1:9042", "c2:9042"}, ListEnv("CASSANDRA_HOSTS"))

	t.Setenv("WS_ALLOWED_ORIGINS", "  ")
	require.Nil(t, ListEnv("WS_ALLOWED_ORIGINS"))
	require.Nil(t, ListEnv("WES_CHAT_UNSET_LIST"))
}
