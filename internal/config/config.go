package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/wes-chat/pkg/config"
	"github.com/weiawesome/wes-chat/pkg/database"
	"github.com/weiawesome/wes-chat/pkg/log"
	"github.com/weiawesome/wes-chat/pkg/pubsub"
	"github.com/weiawesome/wes-chat/pkg/storage"
)

// Message store backends.
const (
	StorageSQL       = "sql"
	StorageCassandra = "cassandra"
)

// RelayLocal delivers fan-out to this instance's hub only.
const RelayLocal = "local"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Hub        HubConfig        `mapstructure:"hub"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   database.Config  `mapstructure:"database"`
	Cassandra  CassandraConfig  `mapstructure:"cassandra"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Relay      pubsub.Config    `mapstructure:"relay"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Log        log.Config       `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	InstanceID      string        `mapstructure:"instance_id"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type WebSocketConfig struct {
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type HubConfig struct {
	QueueSize   int           `mapstructure:"queue_size"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type DispatcherConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // sql, cassandra
}

type CassandraConfig struct {
	Hosts           []string      `mapstructure:"hosts"`
	Keyspace        string        `mapstructure:"keyspace"`
	Consistency     string        `mapstructure:"consistency"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	Timeout         time.Duration `mapstructure:"timeout"`
	NumConns        int           `mapstructure:"num_conns"`
	MaxPreparedStmt int           `mapstructure:"max_prepared_stmt"`
	CreateSchema    bool          `mapstructure:"create_schema"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Prefix       string        `mapstructure:"prefix"`
	TTL          time.Duration `mapstructure:"ttl"`
	TombstoneTTL time.Duration `mapstructure:"tombstone_ttl"`
}

type JWTConfig struct {
	Secret        string        `mapstructure:"secret"`
	Issuer        string        `mapstructure:"issuer"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type IdentityConfig struct {
	PasswordMinLength int `mapstructure:"password_min_length"`
	BcryptCost        int `mapstructure:"bcrypt_cost"`
}

type AuditConfig struct {
	Archive bool           `mapstructure:"archive"`
	Prefix  string         `mapstructure:"prefix"`
	Storage storage.Config `mapstructure:"storage"`
}

// Load reads ./config/config.yaml (optional) plus environment overrides.
func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper applies defaults and env bindings to v and decodes the result.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// CASSANDRA_HOSTS: comma-separated, e.g. "cassandra:9042" or "host1:9042,host2:9042"
	if hosts := pkgconfig.ListEnv("CASSANDRA_HOSTS"); hosts != nil {
		cfg.Cassandra.Hosts = hosts
	}
	if origins := pkgconfig.ListEnv("WS_ALLOWED_ORIGINS"); origins != nil {
		cfg.WebSocket.AllowedOrigins = origins
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SessionTokenTTL is the fixed lifetime of session tokens. jwt.ttl is kept
// as a key so a deployment that sets it learns the value is not tunable.
const SessionTokenTTL = 24 * time.Hour

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageSQL, StorageCassandra:
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	switch c.Relay.Driver {
	case RelayLocal, "redis", "kafka":
	default:
		return fmt.Errorf("unsupported relay driver: %s", c.Relay.Driver)
	}
	if c.Storage.Driver == StorageCassandra && len(c.Cassandra.Hosts) == 0 {
		return fmt.Errorf("cassandra.hosts is required for the cassandra storage driver")
	}
	if c.Hub.QueueSize <= 0 || c.Dispatcher.QueueSize <= 0 {
		return fmt.Errorf("hub.queue_size and dispatcher.queue_size must be positive")
	}
	if c.Hub.SendTimeout <= 0 {
		return fmt.Errorf("hub.send_timeout must be positive")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required (JWT_SECRET)")
	}
	if c.JWT.TTL != SessionTokenTTL {
		return fmt.Errorf("jwt.ttl must be %s, got %s", SessionTokenTTL, c.JWT.TTL)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.instance_id", "")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.ping_interval", "54s")
	v.SetDefault("websocket.allowed_origins", []string{})

	v.SetDefault("hub.queue_size", 256)
	v.SetDefault("hub.send_timeout", "5s")
	v.SetDefault("dispatcher.queue_size", 1024)

	v.SetDefault("storage.driver", StorageSQL)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "wes_chat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.time_zone", "UTC")
	v.SetDefault("database.file_path", "./data/chat.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("cassandra.keyspace", "wes_chat")
	v.SetDefault("cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("cassandra.connect_timeout", "10s")
	v.SetDefault("cassandra.timeout", "5s")
	v.SetDefault("cassandra.num_conns", 2)
	v.SetDefault("cassandra.max_prepared_stmt", 1000)
	v.SetDefault("cassandra.create_schema", false)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.prefix", "chat:message")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.tombstone_ttl", "30s")

	v.SetDefault("relay.driver", RelayLocal)
	v.SetDefault("relay.redis.address", "localhost:6379")
	v.SetDefault("relay.redis.db", 0)
	v.SetDefault("relay.redis.pool_size", 10)
	v.SetDefault("relay.redis.read_timeout", "3s")
	v.SetDefault("relay.redis.write_timeout", "3s")
	v.SetDefault("relay.kafka.brokers", "localhost:9092")
	v.SetDefault("relay.kafka.group_id", "wes-chat")
	v.SetDefault("relay.kafka.partitions", 1)

	v.SetDefault("jwt.issuer", "wes-chat")
	v.SetDefault("jwt.ttl", SessionTokenTTL.String())
	v.SetDefault("jwt.sweep_interval", "10m")

	v.SetDefault("identity.password_min_length", 3)
	v.SetDefault("identity.bcrypt_cost", 10)

	v.SetDefault("audit.archive", false)
	v.SetDefault("audit.prefix", "audit/messages")
	v.SetDefault("audit.storage.driver", "local")
	v.SetDefault("audit.storage.local.base_path", "./data/audit")
	v.SetDefault("audit.storage.s3.region", "us-east-1")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "chat-server")
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.instance_id", "INSTANCE_ID")
	_ = v.BindEnv("storage.driver", "STORAGE_DRIVER")
	_ = v.BindEnv("database.driver", "DB_DRIVER")
	_ = v.BindEnv("database.host", "DB_HOST")
	_ = v.BindEnv("database.port", "DB_PORT")
	_ = v.BindEnv("database.user", "DB_USER")
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("database.dbname", "DB_NAME")
	_ = v.BindEnv("database.file_path", "DB_FILE_PATH")
	_ = v.BindEnv("cassandra.keyspace", "CASSANDRA_KEYSPACE")
	_ = v.BindEnv("cassandra.username", "CASSANDRA_USERNAME")
	_ = v.BindEnv("cassandra.password", "CASSANDRA_PASSWORD")
	_ = v.BindEnv("redis.address", "REDIS_ADDRESS")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("relay.driver", "RELAY_DRIVER")
	_ = v.BindEnv("relay.redis.address", "RELAY_REDIS_ADDRESS", "REDIS_ADDRESS")
	_ = v.BindEnv("relay.redis.password", "RELAY_REDIS_PASSWORD", "REDIS_PASSWORD")
	_ = v.BindEnv("relay.kafka.brokers", "KAFKA_BROKERS")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("audit.storage.driver", "AUDIT_STORAGE_DRIVER")
	_ = v.BindEnv("audit.storage.s3.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("audit.storage.s3.bucket", "S3_BUCKET")
	_ = v.BindEnv("audit.storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = v.BindEnv("audit.storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
}
