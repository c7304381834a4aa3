package registry

import (
	"time"
)

// InternalConfig represents the internal configuration structure.
// This is a copy of the public Config type to avoid import cycles.
type InternalConfig struct {
	Engine           InternalEngineConfig  `yaml:"engine" json:"engine"`
	Turbo            bool                  `yaml:"turbo" json:"turbo"`
	Buffer           InternalBufferConfig  `yaml:"buffer" json:"buffer"`
	Janitor          InternalJanitorConfig `yaml:"janitor" json:"janitor"`
	Notify           InternalNotifyConfig  `yaml:"notify" json:"notify"`
	ExposeConnection bool                  `yaml:"expose_connection" json:"expose_connection"`

	// Env overlays the HOLDTHIS_* environment variables after parsing.
	Env bool `yaml:"env" json:"env"`
}

// InternalEngineConfig selects and configures the relational engine.
type InternalEngineConfig struct {
	Type      string              `yaml:"type" json:"type"`
	Location  string              `yaml:"location" json:"location"`
	EnableWAL bool                `yaml:"enable_wal" json:"enable_wal"`
	MySQL     InternalMySQLConfig `yaml:"mysql" json:"mysql"`
}

// InternalMySQLConfig contains MySQL connection settings.
type InternalMySQLConfig struct {
	Host              string            `yaml:"host" json:"host"`
	Port              int               `yaml:"port" json:"port"`
	Database          string            `yaml:"database" json:"database"`
	Username          string            `yaml:"username" json:"username"`
	Password          string            `yaml:"password" json:"password"`
	MaxOpenConns      int               `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns      int               `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime   time.Duration     `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime   time.Duration     `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectionTimeout time.Duration     `yaml:"connection_timeout" json:"connection_timeout"`
	Params            map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// InternalBufferConfig contains the buffered writer triggers.
type InternalBufferConfig struct {
	Threshold int           `yaml:"threshold" json:"threshold"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// InternalJanitorConfig contains the background purge settings.
// A zero interval disables the janitor.
type InternalJanitorConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// InternalNotifyConfig selects where flush events are published.
type InternalNotifyConfig struct {
	Type       string              `yaml:"type" json:"type"`
	BufferSize int                 `yaml:"buffer_size" json:"buffer_size"`
	Redis      InternalRedisConfig `yaml:"redis" json:"redis"`
	Kafka      InternalKafkaConfig `yaml:"kafka" json:"kafka"`
}

// InternalRedisConfig contains Redis publisher settings.
type InternalRedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Channel  string `yaml:"channel" json:"channel"`
}

// InternalKafkaConfig contains Kafka producer settings.
type InternalKafkaConfig struct {
	Brokers      []string      `yaml:"brokers" json:"brokers"`
	Topic        string        `yaml:"topic" json:"topic"`
	BatchSize    int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks" json:"required_acks"`
}
