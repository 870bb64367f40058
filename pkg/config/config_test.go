package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/config"
	"github.com/illmade-knight/go-hostwatch/pkg/historian"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log_level: debug
log_format: console
hostname: edge-01
mqtt:
  broker_url: tls://broker.example:8883
  username: agent
  keep_alive: 30s
measurements:
  qos: 2
  topic_prefix: hosts/$(hostname)
historian:
  enable: true
  backend: postgres
  drain_interval: 250ms
  postgres:
    connection_string: postgres://localhost/hostwatch
  statements:
    load: INSERT INTO load VALUES (@Timestamp)
  routes:
    - topics: ["zigbee2mqtt/+"]
      statement: INSERT INTO raw VALUES (@Topic, @Payload)
  cache:
    backend: redis
    redis:
      addr: cache:6379
      ttl: 10m
sensors:
  load:
    enable: true
    scan_rate: 2s
  tcp_port:
    - alias: db
      hostname: db.internal
      port: 5432
      enable: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hostwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, ":8080", cfg.HTTPPort)
	assert.NotEmpty(t, cfg.Hostname)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.BrokerURL)
	assert.True(t, cfg.MQTT.CleanSession)
	assert.Equal(t, 1, cfg.Measurements.QoS)
	assert.Equal(t, time.Second, cfg.Scheduler.IdleDelay)
	assert.False(t, cfg.Historian.Enable)
	assert.Equal(t, "none", cfg.Historian.Cache.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	// Arrange
	path := writeConfig(t, sampleYAML)

	// Act
	cfg, err := config.Load(path, nil)

	// Assert
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "edge-01", cfg.Hostname)
	assert.Equal(t, "tls://broker.example:8883", cfg.MQTT.BrokerURL)
	assert.Equal(t, 30*time.Second, cfg.MQTT.KeepAlive)
	assert.Equal(t, 10*time.Second, cfg.MQTT.ConnectTimeout, "unset keys keep their defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Historian.DrainInterval)
	assert.Equal(t, "postgres", cfg.Historian.Backend)
	assert.Equal(t, "INSERT INTO load VALUES (@Timestamp)", cfg.Historian.Statements["load"])
	assert.Equal(t, []historian.Route{{
		Topics:    []string{"zigbee2mqtt/+"},
		Statement: "INSERT INTO raw VALUES (@Topic, @Payload)",
	}}, cfg.Historian.Routes)
	assert.Equal(t, "cache:6379", cfg.Historian.Cache.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Historian.Cache.Redis.TTL)
	assert.True(t, cfg.Sensors.Load.Enable)
	assert.Equal(t, 2*time.Second, cfg.Sensors.Load.ScanRate)
	require.Len(t, cfg.Sensors.TCPPort, 1)
	assert.Equal(t, 5432, cfg.Sensors.TCPPort[0].Port)
}

func TestLoad_Precedence(t *testing.T) {
	// Arrange
	path := writeConfig(t, sampleYAML)
	t.Setenv("HOSTWATCH_HOSTNAME", "from-env")
	t.Setenv("HOSTWATCH_MQTT_USERNAME", "env-user")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--log-level", "warn"}))

	// Act
	cfg, err := config.Load("", fs)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel, "flag beats file")
	assert.Equal(t, "from-env", cfg.Hostname, "env beats file")
	assert.Equal(t, "env-user", cfg.MQTT.Username)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"bad log level", func(c *config.Config) { c.LogLevel = "loud" }},
		{"bad log format", func(c *config.Config) { c.LogFormat = "xml" }},
		{"no broker", func(c *config.Config) { c.MQTT.BrokerURL = "" }},
		{"qos out of range", func(c *config.Config) { c.Measurements.QoS = 3 }},
		{"zero idle delay", func(c *config.Config) { c.Scheduler.IdleDelay = 0 }},
		{"unknown backend", func(c *config.Config) { c.Historian.Backend = "mongo" }},
		{"unknown kind", func(c *config.Config) { c.Historian.Statements = map[string]string{"pressure": "x"} }},
		{"bad route filter", func(c *config.Config) {
			c.Historian.Routes = []historian.Route{{Topics: []string{"a/#/b"}, Statement: "x"}}
		}},
		{"unknown cache", func(c *config.Config) { c.Historian.Cache.Backend = "memcached" }},
		{"firestore without project", func(c *config.Config) { c.Historian.Cache.Backend = "firestore" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.Load("", nil)
			require.NoError(t, err)
			cfg.Historian.Enable = true
			require.NoError(t, cfg.Validate())

			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMQTTClientConfig(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleYAML), nil)
	require.NoError(t, err)

	m := cfg.MQTTClientConfig()
	assert.Equal(t, "tls://broker.example:8883", m.BrokerURL)
	assert.Equal(t, "agent", m.Username)
	assert.Equal(t, 30*time.Second, m.KeepAlive)
	assert.Equal(t, byte(2), m.MeasurementQoS)
	assert.Equal(t, "hosts/$(hostname)", m.SensorTopicPrefix)
	assert.Equal(t, "hostwatch-", m.ClientIDPrefix)
}
