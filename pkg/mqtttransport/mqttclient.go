package mqtttransport

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// HostnameToken is replaced by the local host name in outbound topics.
const HostnameToken = "$(hostname)"

// MQTTClientConfig holds all necessary configuration for the Paho MQTT client
// managed by the Supervisor.
type MQTTClientConfig struct {
	// BrokerURL is the full URL of the MQTT broker to connect to.
	// Example: "tls://mqtt.example.com:8883"
	BrokerURL string
	// ClientID is the MQTT client identifier. When empty, ClientIDPrefix plus a
	// random suffix is used.
	ClientID       string
	ClientIDPrefix string
	// CleanSession asks the broker to discard any previous session state.
	CleanSession bool
	// AllowPublicBroker permits connecting without credentials.
	AllowPublicBroker bool
	Username          string
	Password          string
	// KeepAlive is the interval at which the client sends keep-alive pings to the broker.
	KeepAlive time.Duration
	// ConnectTimeout bounds a single connect attempt.
	ConnectTimeout time.Duration
	// ReconnectBackoff is the fixed delay between a failed or lost connection
	// and the next connect attempt.
	ReconnectBackoff time.Duration
	// PublishTimeout bounds waiting for a publish or subscribe acknowledgement.
	PublishTimeout time.Duration
	// MeasurementQoS is used for measurement publications and subscriptions.
	MeasurementQoS byte
	// SensorTopicPrefix is prepended to plain sensor readings. It may contain
	// HostnameToken.
	SensorTopicPrefix string
	// CACertFile is an optional path to a CA certificate file for verifying the broker's certificate.
	CACertFile string
	// ClientCertFile is an optional path to a client certificate file for mTLS authentication.
	ClientCertFile string
	// ClientKeyFile is an optional path to a client key file for mTLS authentication.
	ClientKeyFile string
	// InsecureSkipVerify skips TLS certificate verification.
	InsecureSkipVerify bool
}

// Env constants for setting Mqtt settings
const (
	MqttBrokerURL             = "MQTT_BROKER_URL"
	MqttUsername              = "MQTT_USERNAME"
	MqttPassword              = "MQTT_PASSWORD"
	MqttClientID              = "MQTT_CLIENT_ID"
	MqttSkipVerify            = "MQTT_INSECURE_SKIP_VERIFY"
	MqttKeepAliveSeconds      = "MQTT_KEEP_ALIVE_SECONDS"
	MqttConnectTimeoutSeconds = "MQTT_CONNECT_TIMEOUT_SECONDS"
	MqttQoS                   = "MQTT_QOS"
)

// DefaultMQTTClientConfig returns the configuration used when nothing is set.
func DefaultMQTTClientConfig() *MQTTClientConfig {
	return &MQTTClientConfig{
		BrokerURL:         "tcp://localhost:1883",
		ClientIDPrefix:    "hostwatch-",
		CleanSession:      true,
		KeepAlive:         60 * time.Second,
		ConnectTimeout:    10 * time.Second,
		ReconnectBackoff:  time.Second,
		PublishTimeout:    5 * time.Second,
		MeasurementQoS:    1,
		SensorTopicPrefix: "sensors/" + HostnameToken,
	}
}

// LoadMQTTClientConfigWithEnv starts from DefaultMQTTClientConfig and applies
// the MQTT_* environment variables. Unparseable values are logged and the
// default is kept.
func LoadMQTTClientConfigWithEnv() *MQTTClientConfig {
	cfg := DefaultMQTTClientConfig()
	ApplyEnv(cfg)
	return cfg
}

// ApplyEnv overrides cfg with any MQTT_* environment variables that are set.
func ApplyEnv(cfg *MQTTClientConfig) {
	if v := os.Getenv(MqttBrokerURL); v != "" {
		cfg.BrokerURL = v
	}
	if v := os.Getenv(MqttUsername); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv(MqttPassword); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv(MqttClientID); v != "" {
		cfg.ClientID = v
	}
	if skipVerify := os.Getenv(MqttSkipVerify); skipVerify == "true" {
		cfg.InsecureSkipVerify = true
	}
	if ka := os.Getenv(MqttKeepAliveSeconds); ka != "" {
		s, err := time.ParseDuration(ka + "s")
		if err == nil {
			cfg.KeepAlive = s
		} else {
			log.Warn().Err(err).Msg("mqtttransport: error parsing keepAlive seconds, using default")
		}
	}
	if ct := os.Getenv(MqttConnectTimeoutSeconds); ct != "" {
		s, err := time.ParseDuration(ct + "s")
		if err == nil {
			cfg.ConnectTimeout = s
		} else {
			log.Warn().Err(err).Msg("mqtttransport: error parsing connect timeout seconds, using default")
		}
	}
	if q := os.Getenv(MqttQoS); q != "" {
		n, err := strconv.Atoi(q)
		if err == nil && n >= 0 && n <= 2 {
			cfg.MeasurementQoS = byte(n)
		} else {
			log.Warn().Str("value", q).Msg("mqtttransport: invalid QoS, using default")
		}
	}
}
