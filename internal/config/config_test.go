package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgconfig "github.com/weiawesome/wes-chat/pkg/config"
)

func TestFromViper_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, StorageSQL, cfg.Storage.Driver)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, RelayLocal, cfg.Relay.Driver)
	assert.Equal(t, 5*time.Second, cfg.Hub.SendTimeout)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 3, cfg.Identity.PasswordMinLength)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.JWT.Secret)
	assert.False(t, cfg.Cache.Enabled)
}

func TestFromViper_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := FromViper(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "chat.yaml")
	yaml := []byte(`
server:
  port: 9000
storage:
  driver: cassandra
cassandra:
  hosts: ["c1:9042"]
hub:
  queue_size: 8
relay:
  driver: redis
jwt:
  secret: file-secret-file-secret-file-secret
`)
	require.NoError(t, os.WriteFile(file, yaml, 0o600))

	t.Setenv(pkgconfig.EnvConfigFile, file)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CASSANDRA_HOSTS", "a:9042, b:9042")
	t.Setenv("HUB_SEND_TIMEOUT", "2s")

	v, err := pkgconfig.Load(dir, "unused")
	require.NoError(t, err)
	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, StorageCassandra, cfg.Storage.Driver)
	assert.Equal(t, []string{"a:9042", "b:9042"}, cfg.Cassandra.Hosts)
	assert.Equal(t, 8, cfg.Hub.QueueSize)
	assert.Equal(t, 2*time.Second, cfg.Hub.SendTimeout)
	assert.Equal(t, "redis", cfg.Relay.Driver)
	assert.Equal(t, "file-secret-file-secret-file-secret", cfg.JWT.Secret)
}

func TestValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	base, err := FromViper(viper.New())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"unknown relay", func(c *Config) { c.Relay.Driver = "nats" }},
		{"cassandra without hosts", func(c *Config) {
			c.Storage.Driver = StorageCassandra
			c.Cassandra.Hosts = nil
		}},
		{"zero hub queue", func(c *Config) { c.Hub.QueueSize = 0 }},
		{"zero send timeout", func(c *Config) { c.Hub.SendTimeout = 0 }},
		{"short token ttl", func(c *Config) { c.JWT.TTL = time.Hour }},
		{"long token ttl", func(c *Config) { c.JWT.TTL = 7 * 24 * time.Hour }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
