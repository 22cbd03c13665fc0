package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvConfigFile names a config file that replaces the search path.
const EnvConfigFile = "CHAT_CONFIG_FILE"

// Load reads the chat server configuration from an optional YAML file and
// the environment. The file is configName.yaml under configPath, ".", or
// "./config", unless CHAT_CONFIG_FILE points elsewhere. Without a file the
// caller's defaults and env vars apply.
func Load(configPath, configName string) (*viper.Viper, error) {
	v := viper.New()

	if file := os.Getenv(EnvConfigFile); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(configPath)
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// hub.send_timeout -> HUB_SEND_TIMEOUT
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", describe(v), err)
	}

	return v, nil
}

func describe(v *viper.Viper) string {
	if f := v.ConfigFileUsed(); f != "" {
		return f
	}
	return "file"
}

// ListEnv reads a comma-separated env var such as
// CASSANDRA_HOSTS="host1:9042, host2:9042". Blank entries are dropped; an
// unset or empty variable yields nil.
func ListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
