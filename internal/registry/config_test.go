package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultInternalConfig(t *testing.T) {
	cm := NewConfigManager()
	config := cm.GetConfig()

	require.Equal(t, EngineSQLite, config.Engine.Type)
	require.Equal(t, DefaultLocation, config.Engine.Location)
	require.True(t, config.Engine.EnableWAL)
	require.False(t, config.Turbo)
	require.Equal(t, 1000, config.Buffer.Threshold)
	require.Equal(t, 500*time.Millisecond, config.Buffer.Timeout)
	require.Equal(t, NotifyNone, config.Notify.Type)
	require.Zero(t, config.Janitor.Interval)
}

func TestLoadFromYAML(t *testing.T) {
	cm := NewConfigManager()
	err := cm.LoadFromYAML([]byte(`
engine:
  location: /tmp/data.db
  enable_wal: false
turbo: true
buffer:
  threshold: 10
  timeout: 50ms
janitor:
  interval: 1m
notify:
  type: memory
  buffer_size: 8
`))
	require.NoError(t, err)

	config := cm.GetConfig()
	require.Equal(t, "/tmp/data.db", config.Engine.Location)
	require.False(t, config.Engine.EnableWAL)
	require.True(t, config.Turbo)
	require.Equal(t, 10, config.Buffer.Threshold)
	require.Equal(t, 50*time.Millisecond, config.Buffer.Timeout)
	require.Equal(t, time.Minute, config.Janitor.Interval)
	require.Equal(t, NotifyMemory, config.Notify.Type)
	require.Equal(t, 8, config.Notify.BufferSize)
}

func TestLoadFromYAMLAppliesDefaultsToZeroValues(t *testing.T) {
	cm := NewConfigManager()
	err := cm.LoadFromYAML([]byte(`
engine:
  type: ""
  location: ""
buffer:
  threshold: 0
  timeout: 0s
`))
	require.NoError(t, err)

	config := cm.GetConfig()
	require.Equal(t, EngineSQLite, config.Engine.Type)
	require.Equal(t, DefaultLocation, config.Engine.Location)
	require.Equal(t, DefaultBufferThreshold, config.Buffer.Threshold)
	require.Equal(t, DefaultBufferTimeout, config.Buffer.Timeout)
}

func TestLoadFromJSON(t *testing.T) {
	cm := NewConfigManager()
	require.NoError(t, cm.LoadFromJSON([]byte(`{"turbo": true, "buffer": {"threshold": 3}}`)))
	require.True(t, cm.GetConfig().Turbo)
	require.Equal(t, 3, cm.GetConfig().Buffer.Threshold)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "holdthis.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("turbo: true\n"), 0o600))
	cm := NewConfigManager()
	require.NoError(t, cm.LoadFromFile(yamlPath))
	require.True(t, cm.GetConfig().Turbo)

	txtPath := filepath.Join(dir, "holdthis.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("turbo: true\n"), 0o600))
	require.Error(t, cm.LoadFromFile(txtPath))

	require.Error(t, cm.LoadFromFile(filepath.Join(dir, "missing.yaml")))
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown engine", "engine:\n  type: oracle\n"},
		{"mysql without database", "engine:\n  type: mysql\n  mysql:\n    username: root\n"},
		{"mysql without username", "engine:\n  type: mysql\n  mysql:\n    database: kv\n"},
		{"mysql bad port", "engine:\n  type: mysql\n  mysql:\n    port: 70000\n    database: kv\n    username: root\n"},
		{"negative threshold", "buffer:\n  threshold: -1\n"},
		{"negative timeout", "buffer:\n  timeout: -1s\n"},
		{"negative janitor", "janitor:\n  interval: -1s\n"},
		{"unknown notify", "notify:\n  type: carrier-pigeon\n"},
		{"kafka without brokers", "notify:\n  type: kafka\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := NewConfigManager()
			require.Error(t, cm.LoadFromYAML([]byte(tt.yaml)))
			require.Equal(t, EngineSQLite, cm.GetConfig().Engine.Type, "failed load must keep the previous config")
		})
	}
}

func TestMySQLConfig(t *testing.T) {
	cm := NewConfigManager()
	require.NoError(t, cm.LoadFromYAML([]byte(`
engine:
  type: mysql
  mysql:
    host: db
    database: kv
    username: root
`)))

	mysql := cm.GetConfig().Engine.MySQL
	require.Equal(t, "db", mysql.Host)
	require.Equal(t, 3306, mysql.Port)
	require.Equal(t, 25, mysql.MaxOpenConns)
	require.Equal(t, 10*time.Second, mysql.ConnectionTimeout)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HOLDTHIS_ENGINE_LOCATION", "/tmp/env.db")
	t.Setenv("HOLDTHIS_TURBO", "true")
	t.Setenv("HOLDTHIS_BUFFER_THRESHOLD", "42")
	t.Setenv("HOLDTHIS_BUFFER_TIMEOUT", "2s")
	t.Setenv("HOLDTHIS_NOTIFY_TYPE", "kafka")
	t.Setenv("HOLDTHIS_NOTIFY_KAFKA_BROKERS", "k1:9092,k2:9092")

	cm := NewConfigManager()
	require.NoError(t, cm.LoadFromEnv())

	config := cm.GetConfig()
	require.Equal(t, "/tmp/env.db", config.Engine.Location)
	require.True(t, config.Turbo)
	require.Equal(t, 42, config.Buffer.Threshold)
	require.Equal(t, 2*time.Second, config.Buffer.Timeout)
	require.Equal(t, NotifyKafka, config.Notify.Type)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, config.Notify.Kafka.Brokers)
}

func TestLoadFromEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("HOLDTHIS_BUFFER_THRESHOLD", "lots")

	cm := NewConfigManager()
	require.Error(t, cm.LoadFromEnv())
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("HOLDTHIS_BUFFER_THRESHOLD", "7")

	cm := NewConfigManager()
	require.NoError(t, cm.LoadFromYAML([]byte("buffer:\n  threshold: 3\n")))
	require.Equal(t, 3, cm.GetConfig().Buffer.Threshold)

	require.NoError(t, cm.LoadFromYAML([]byte("env: true\nbuffer:\n  threshold: 3\n")))
	require.Equal(t, 7, cm.GetConfig().Buffer.Threshold)
}

func TestRegisterValidatorPanicsOnDuplicate(t *testing.T) {
	require.Panics(t, func() { RegisterValidator(sqliteValidator{}) })
	require.Panics(t, func() { RegisterValidator(nil) })

	validator, ok := GetValidator(EngineMySQL)
	require.True(t, ok)
	require.Equal(t, EngineMySQL, validator.Type())
}
