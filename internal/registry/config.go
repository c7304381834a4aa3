package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "HOLDTHIS_"

// Engine and notification types.
const (
	EngineSQLite = "sqlite"
	EngineMySQL  = "mysql"

	NotifyNone   = "none"
	NotifyMemory = "memory"
	NotifyRedis  = "redis"
	NotifyKafka  = "kafka"
)

// Defaults applied to zero-valued settings.
const (
	DefaultLocation        = ":memory:"
	DefaultBufferThreshold = 1000
	DefaultBufferTimeout   = 500 * time.Millisecond
	DefaultNotifyBuffer    = 1024
	DefaultRedisAddr       = "localhost:6379"
	DefaultRedisChannel    = "holdthis:flushes"
	DefaultKafkaTopic      = "holdthis-flushes"
)

// ConfigValidator validates the engine-specific part of a configuration.
// Each engine type registers one validator.
type ConfigValidator interface {
	// Validate validates the engine section of config.
	Validate(config *InternalConfig) error

	// Type returns the engine type this validator handles.
	Type() string
}

var (
	// validatorRegistry stores all registered config validators.
	validatorRegistry = make(map[string]ConfigValidator)

	// validatorRegistryMutex protects the validator registry from concurrent access.
	validatorRegistryMutex sync.RWMutex
)

// RegisterValidator registers a config validator.
// Panics if validator is nil, type is empty, or type is already registered.
func RegisterValidator(validator ConfigValidator) {
	if validator == nil {
		panic("validator cannot be nil")
	}
	if validator.Type() == "" {
		panic("validator type cannot be empty")
	}

	validatorRegistryMutex.Lock()
	defer validatorRegistryMutex.Unlock()

	if _, exists := validatorRegistry[validator.Type()]; exists {
		panic(fmt.Sprintf("validator for type %q is already registered", validator.Type()))
	}
	validatorRegistry[validator.Type()] = validator
}

// GetValidator retrieves a validator by engine type.
func GetValidator(engineType string) (ConfigValidator, bool) {
	validatorRegistryMutex.RLock()
	defer validatorRegistryMutex.RUnlock()

	validator, exists := validatorRegistry[engineType]
	return validator, exists
}

// ConfigManager handles loading and managing configuration from various sources.
type ConfigManager struct {
	config *InternalConfig
}

// NewConfigManager creates a new configuration manager with default configuration.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config: DefaultInternalConfig(),
	}
}

// DefaultInternalConfig returns a configuration with every default applied.
func DefaultInternalConfig() *InternalConfig {
	config := &InternalConfig{
		Engine: InternalEngineConfig{
			EnableWAL: true,
		},
	}
	applyDefaults(config)
	return config
}

// applyDefaults fills zero-valued settings.
func applyDefaults(config *InternalConfig) {
	if config.Engine.Type == "" {
		config.Engine.Type = EngineSQLite
	}
	if config.Engine.Location == "" {
		config.Engine.Location = DefaultLocation
	}

	mysql := &config.Engine.MySQL
	if mysql.Host == "" {
		mysql.Host = "localhost"
	}
	if mysql.Port == 0 {
		mysql.Port = 3306
	}
	if mysql.MaxOpenConns == 0 {
		mysql.MaxOpenConns = 25
	}
	if mysql.MaxIdleConns == 0 {
		mysql.MaxIdleConns = 5
	}
	if mysql.ConnMaxLifetime == 0 {
		mysql.ConnMaxLifetime = 5 * time.Minute
	}
	if mysql.ConnMaxIdleTime == 0 {
		mysql.ConnMaxIdleTime = 10 * time.Minute
	}
	if mysql.ConnectionTimeout == 0 {
		mysql.ConnectionTimeout = 10 * time.Second
	}

	if config.Buffer.Threshold == 0 {
		config.Buffer.Threshold = DefaultBufferThreshold
	}
	if config.Buffer.Timeout == 0 {
		config.Buffer.Timeout = DefaultBufferTimeout
	}

	notify := &config.Notify
	if notify.Type == "" {
		notify.Type = NotifyNone
	}
	if notify.BufferSize == 0 {
		notify.BufferSize = DefaultNotifyBuffer
	}
	if notify.Redis.Addr == "" {
		notify.Redis.Addr = DefaultRedisAddr
	}
	if notify.Redis.Channel == "" {
		notify.Redis.Channel = DefaultRedisChannel
	}
	if notify.Kafka.Topic == "" {
		notify.Kafka.Topic = DefaultKafkaTopic
	}
	if notify.Kafka.BatchSize == 0 {
		notify.Kafka.BatchSize = 100
	}
	if notify.Kafka.BatchTimeout == 0 {
		notify.Kafka.BatchTimeout = 10 * time.Millisecond
	}
	if notify.Kafka.WriteTimeout == 0 {
		notify.Kafka.WriteTimeout = 10 * time.Second
	}
	if notify.Kafka.RequiredAcks == 0 {
		notify.Kafka.RequiredAcks = -1 // all replicas
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
// The file format is determined by the file extension (.yaml, .yml, or .json).
func (cm *ConfigManager) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		return cm.LoadFromYAML(data)
	case ".json":
		return cm.LoadFromJSON(data)
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
}

// LoadFromYAML loads configuration from YAML data.
func (cm *ConfigManager) LoadFromYAML(data []byte) error {
	config := DefaultInternalConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return cm.load(config)
}

// LoadFromJSON loads configuration from JSON data.
func (cm *ConfigManager) LoadFromJSON(data []byte) error {
	config := DefaultInternalConfig()
	if len(data) > 0 {
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return cm.load(config)
}

// LoadFromEnv loads configuration from environment variables on top of the
// defaults. Variables follow the pattern HOLDTHIS_<SECTION>_<KEY>:
//   - HOLDTHIS_ENGINE_TYPE=sqlite
//   - HOLDTHIS_ENGINE_LOCATION=/var/lib/holdthis/data.db
//   - HOLDTHIS_BUFFER_THRESHOLD=1000
//   - HOLDTHIS_BUFFER_TIMEOUT=500ms
//   - HOLDTHIS_NOTIFY_KAFKA_BROKERS=localhost:9092,localhost:9093
func (cm *ConfigManager) LoadFromEnv() error {
	config := DefaultInternalConfig()
	if err := ApplyEnv(config); err != nil {
		return err
	}
	return cm.load(config)
}

// ApplyEnv overlays the HOLDTHIS_* environment variables that are set onto
// config.
func ApplyEnv(config *InternalConfig) error {
	env := envReader{}

	env.str("ENGINE_TYPE", &config.Engine.Type)
	env.str("ENGINE_LOCATION", &config.Engine.Location)
	env.boolean("ENGINE_ENABLE_WAL", &config.Engine.EnableWAL)
	env.str("MYSQL_HOST", &config.Engine.MySQL.Host)
	env.integer("MYSQL_PORT", &config.Engine.MySQL.Port)
	env.str("MYSQL_DATABASE", &config.Engine.MySQL.Database)
	env.str("MYSQL_USERNAME", &config.Engine.MySQL.Username)
	env.str("MYSQL_PASSWORD", &config.Engine.MySQL.Password)
	env.integer("MYSQL_MAX_OPEN_CONNS", &config.Engine.MySQL.MaxOpenConns)
	env.integer("MYSQL_MAX_IDLE_CONNS", &config.Engine.MySQL.MaxIdleConns)

	env.boolean("TURBO", &config.Turbo)
	env.integer("BUFFER_THRESHOLD", &config.Buffer.Threshold)
	env.duration("BUFFER_TIMEOUT", &config.Buffer.Timeout)
	env.duration("JANITOR_INTERVAL", &config.Janitor.Interval)

	env.str("NOTIFY_TYPE", &config.Notify.Type)
	env.integer("NOTIFY_BUFFER_SIZE", &config.Notify.BufferSize)
	env.str("NOTIFY_REDIS_ADDR", &config.Notify.Redis.Addr)
	env.str("NOTIFY_REDIS_PASSWORD", &config.Notify.Redis.Password)
	env.integer("NOTIFY_REDIS_DB", &config.Notify.Redis.DB)
	env.str("NOTIFY_REDIS_CHANNEL", &config.Notify.Redis.Channel)
	env.list("NOTIFY_KAFKA_BROKERS", &config.Notify.Kafka.Brokers)
	env.str("NOTIFY_KAFKA_TOPIC", &config.Notify.Kafka.Topic)

	env.boolean("EXPOSE_CONNECTION", &config.ExposeConnection)

	return env.err
}

// load applies the environment overlay when requested, then defaults, then
// validates and installs config.
func (cm *ConfigManager) load(config *InternalConfig) error {
	if config.Env {
		if err := ApplyEnv(config); err != nil {
			return err
		}
	}
	applyDefaults(config)
	if err := cm.validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cm.config = config
	return nil
}

// GetConfig returns the current internal configuration.
func (cm *ConfigManager) GetConfig() *InternalConfig {
	return cm.config
}

// validateConfig validates the configuration and returns an error if invalid.
// The engine section is checked by the validator registered for its type.
func (cm *ConfigManager) validateConfig(config *InternalConfig) error {
	validator, exists := GetValidator(config.Engine.Type)
	if !exists {
		return fmt.Errorf("unsupported engine type: %s", config.Engine.Type)
	}
	if err := validator.Validate(config); err != nil {
		return fmt.Errorf("engine validation failed: %w", err)
	}

	if config.Buffer.Threshold < 0 {
		return fmt.Errorf("buffer.threshold must be greater than 0")
	}
	if config.Buffer.Timeout < 0 {
		return fmt.Errorf("buffer.timeout must be greater than 0")
	}
	if config.Janitor.Interval < 0 {
		return fmt.Errorf("janitor.interval must be non-negative")
	}

	switch config.Notify.Type {
	case NotifyNone, NotifyMemory:
	case NotifyRedis:
		if config.Notify.Redis.Channel == "" {
			return fmt.Errorf("notify.redis.channel is required when notify.type is 'redis'")
		}
	case NotifyKafka:
		if len(config.Notify.Kafka.Brokers) == 0 {
			return fmt.Errorf("notify.kafka.brokers is required when notify.type is 'kafka'")
		}
	default:
		return fmt.Errorf("notify.type must be 'none', 'memory', 'redis', or 'kafka'")
	}
	if config.Notify.BufferSize < 0 {
		return fmt.Errorf("notify.buffer_size must be non-negative")
	}

	return nil
}

type envReader struct {
	err error
}

func (e *envReader) lookup(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	val, ok := os.LookupEnv(EnvPrefix + key)
	return val, ok && val != ""
}

func (e *envReader) fail(key, val string, err error) {
	e.err = fmt.Errorf("invalid value %q for %s%s: %w", val, EnvPrefix, key, err)
}

func (e *envReader) str(key string, dst *string) {
	if val, ok := e.lookup(key); ok {
		*dst = val
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if val, ok := e.lookup(key); ok {
		*dst = strings.Split(val, ",")
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if val, ok := e.lookup(key); ok {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			e.fail(key, val, err)
			return
		}
		*dst = parsed
	}
}

func (e *envReader) integer(key string, dst *int) {
	if val, ok := e.lookup(key); ok {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			e.fail(key, val, err)
			return
		}
		*dst = parsed
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if val, ok := e.lookup(key); ok {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			e.fail(key, val, err)
			return
		}
		*dst = parsed
	}
}
