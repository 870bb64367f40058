package mqtttransport_test

import (
	"testing"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/mqtttransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMQTTClientConfigWithEnv(t *testing.T) {
	t.Run("Default values are set correctly", func(t *testing.T) {
		cfg := mqtttransport.LoadMQTTClientConfigWithEnv()
		require.NotNil(t, cfg)
		assert.Equal(t, "tcp://localhost:1883", cfg.BrokerURL)
		assert.Equal(t, 60*time.Second, cfg.KeepAlive)
		assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
		assert.Equal(t, time.Second, cfg.ReconnectBackoff)
		assert.Equal(t, "hostwatch-", cfg.ClientIDPrefix)
		assert.Equal(t, byte(1), cfg.MeasurementQoS)
		assert.True(t, cfg.CleanSession)
	})

	t.Run("Values are loaded from environment", func(t *testing.T) {
		t.Setenv("MQTT_BROKER_URL", "tls://broker.example:8883")
		t.Setenv("MQTT_USERNAME", "agent")
		t.Setenv("MQTT_PASSWORD", "secret")
		t.Setenv("MQTT_KEEP_ALIVE_SECONDS", "30")
		t.Setenv("MQTT_CONNECT_TIMEOUT_SECONDS", "5")
		t.Setenv("MQTT_INSECURE_SKIP_VERIFY", "true")
		t.Setenv("MQTT_QOS", "2")

		cfg := mqtttransport.LoadMQTTClientConfigWithEnv()
		require.NotNil(t, cfg)

		assert.Equal(t, "tls://broker.example:8883", cfg.BrokerURL)
		assert.Equal(t, "agent", cfg.Username)
		assert.Equal(t, "secret", cfg.Password)
		assert.Equal(t, 30*time.Second, cfg.KeepAlive)
		assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
		assert.True(t, cfg.InsecureSkipVerify)
		assert.Equal(t, byte(2), cfg.MeasurementQoS)
	})

	t.Run("Invalid values fall back to defaults", func(t *testing.T) {
		t.Setenv("MQTT_KEEP_ALIVE_SECONDS", "not-a-number")
		t.Setenv("MQTT_CONNECT_TIMEOUT_SECONDS", "invalid")
		t.Setenv("MQTT_QOS", "7")

		cfg := mqtttransport.LoadMQTTClientConfigWithEnv()
		require.NotNil(t, cfg)
		assert.Equal(t, 60*time.Second, cfg.KeepAlive, "KeepAlive should default if env var is invalid")
		assert.Equal(t, 10*time.Second, cfg.ConnectTimeout, "ConnectTimeout should default if env var is invalid")
		assert.Equal(t, byte(1), cfg.MeasurementQoS)
	})
}
