package holdthis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/slog"
	"gopkg.in/yaml.v3"
)

// Config represents the root configuration for a store.
type Config struct {
	// Engine selects and configures the relational engine.
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Turbo drops the uniqueness constraint on key columns. Writes become plain
	// inserts, so repeated keys append rows instead of replacing them.
	Turbo bool `yaml:"turbo" json:"turbo"`

	// Buffer configures the buffered write path.
	Buffer BufferConfig `yaml:"buffer" json:"buffer"`

	// Janitor configures the background purge of expired rows.
	Janitor JanitorConfig `yaml:"janitor" json:"janitor"`

	// Notify selects where flush events are published.
	Notify NotifyConfig `yaml:"notify" json:"notify"`

	// ExposeConnection allows Store.Conn to return the engine connection.
	ExposeConnection bool `yaml:"expose_connection,omitempty" json:"expose_connection,omitempty"`

	// Env overlays HOLDTHIS_* environment variables on top of this configuration.
	Env bool `yaml:"env,omitempty" json:"env,omitempty"`

	// Logger defaults to slog.Default().
	Logger *slog.Logger `yaml:"-" json:"-"`

	// OnFlush is called synchronously for every flush of the buffered writer.
	OnFlush func(event FlushEvent) `yaml:"-" json:"-"`

	// Clock is the time source for TTL stamping and visibility. Defaults to
	// the system clock.
	Clock Clock `yaml:"-" json:"-"`
}

// EngineConfig contains configuration for the relational engine.
type EngineConfig struct {
	// Type is "sqlite" (default) or "mysql".
	Type string `yaml:"type" json:"type"`

	// Location is the SQLite database file, or ":memory:" for a private
	// in-memory database.
	Location string `yaml:"location" json:"location"`

	// EnableWAL turns on write-ahead logging for file-backed SQLite databases.
	// It is ignored for ":memory:".
	EnableWAL bool `yaml:"enable_wal" json:"enable_wal"`

	// MySQL is only used when Type is "mysql".
	MySQL MySQLConfig `yaml:"mysql,omitempty" json:"mysql,omitempty"`
}

// MySQLConfig contains configuration for a MySQL engine.
type MySQLConfig struct {
	// Host is the database host address.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port is the database port number.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// Database is the database name.
	Database string `yaml:"database,omitempty" json:"database,omitempty"`

	// Username is the database username.
	Username string `yaml:"username,omitempty" json:"username,omitempty"`

	// Password is the database password.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int `yaml:"max_idle_conns,omitempty" json:"max_idle_conns,omitempty"`

	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty" json:"conn_max_lifetime,omitempty"`

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle.
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time,omitempty" json:"conn_max_idle_time,omitempty"`

	// ConnectionTimeout is the timeout for establishing database connections.
	ConnectionTimeout time.Duration `yaml:"connection_timeout,omitempty" json:"connection_timeout,omitempty"`

	// Params are extra DSN parameters.
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// BufferConfig contains the triggers of the buffered write path.
type BufferConfig struct {
	// Threshold is the number of pending writes that forces a synchronous flush.
	Threshold int `yaml:"threshold" json:"threshold"`

	// Timeout is the quiet period after the last buffered write that triggers
	// a flush.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// JanitorConfig contains configuration for the background purge.
type JanitorConfig struct {
	// Interval between purges of expired rows. Zero disables the janitor.
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
}

// NotifyConfig selects where flush events are published.
type NotifyConfig struct {
	// Type is "none" (default), "memory", "redis" or "kafka".
	Type string `yaml:"type" json:"type"`

	// BufferSize is the capacity of the in-memory event channel.
	// Only used when Type is "memory".
	BufferSize int `yaml:"buffer_size,omitempty" json:"buffer_size,omitempty"`

	// Redis is only used when Type is "redis".
	Redis RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`

	// Kafka is only used when Type is "kafka".
	Kafka KafkaConfig `yaml:"kafka,omitempty" json:"kafka,omitempty"`
}

// RedisConfig contains configuration for publishing flush events to Redis.
type RedisConfig struct {
	// Addr is the Redis address (e.g., "localhost:6379").
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty"`

	// Password is the authentication password for Redis.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// DB is the Redis database number.
	DB int `yaml:"db,omitempty" json:"db,omitempty"`

	// Channel is the PUBLISH channel.
	Channel string `yaml:"channel,omitempty" json:"channel,omitempty"`
}

// KafkaConfig contains configuration for producing flush events to Kafka.
type KafkaConfig struct {
	// Brokers is a list of Kafka broker addresses (e.g., ["localhost:9092"]).
	Brokers []string `yaml:"brokers,omitempty" json:"brokers,omitempty"`

	// Topic is the Kafka topic name for flush events.
	Topic string `yaml:"topic,omitempty" json:"topic,omitempty"`

	// BatchSize is the batch size for the Kafka producer.
	BatchSize int `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`

	// BatchTimeout is the timeout for batching messages.
	BatchTimeout time.Duration `yaml:"batch_timeout,omitempty" json:"batch_timeout,omitempty"`

	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`

	// RequiredAcks is the number of acknowledgments required (0, 1, or -1 for all).
	RequiredAcks int `yaml:"required_acks,omitempty" json:"required_acks,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults: an in-memory
// SQLite engine with WAL enabled for file-backed locations, upsert mode and
// the default buffering triggers.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Type:      "sqlite",
			Location:  ":memory:",
			EnableWAL: true,
		},
		Buffer: BufferConfig{
			Threshold: 1000,
			Timeout:   500 * time.Millisecond,
		},
		Notify: NotifyConfig{
			Type: "none",
		},
	}
}

// LoadConfig reads a YAML or JSON configuration file on top of DefaultConfig.
// The file format is determined by the file extension (.yaml, .yml, or .json).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
	return config, nil
}

// configProvider hands the configuration to the internal store as YAML.
type configProvider struct {
	config *Config
}

func (cp *configProvider) GetYAML() ([]byte, error) {
	return yaml.Marshal(cp.config)
}
