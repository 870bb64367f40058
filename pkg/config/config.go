// Package config loads the agent configuration from a YAML file, HOSTWATCH_*
// environment variables and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/historian"
	"github.com/illmade-knight/go-hostwatch/pkg/mqtttransport"
	"github.com/illmade-knight/go-hostwatch/pkg/sensors"
	"github.com/illmade-knight/go-hostwatch/pkg/store"
	"github.com/illmade-knight/go-hostwatch/pkg/topicmatch"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HOSTWATCH_MQTT_BROKER_URL.
const EnvPrefix = "HOSTWATCH"

// Config is the complete agent configuration.
type Config struct {
	LogLevel     string             `mapstructure:"log_level" yaml:"log_level"`
	LogFormat    string             `mapstructure:"log_format" yaml:"log_format"`
	HTTPPort     string             `mapstructure:"http_port" yaml:"http_port"`
	Hostname     string             `mapstructure:"hostname" yaml:"hostname"`
	MQTT         MQTTConfig         `mapstructure:"mqtt" yaml:"mqtt"`
	Measurements MeasurementsConfig `mapstructure:"measurements" yaml:"measurements"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler" yaml:"scheduler"`
	Historian    HistorianConfig    `mapstructure:"historian" yaml:"historian"`
	Sensors      sensors.Config     `mapstructure:"sensors" yaml:"sensors"`
}

// MQTTConfig describes the broker session.
type MQTTConfig struct {
	BrokerURL          string        `mapstructure:"broker_url" yaml:"broker_url"`
	ClientID           string        `mapstructure:"client_id" yaml:"client_id"`
	ClientIDPrefix     string        `mapstructure:"client_id_prefix" yaml:"client_id_prefix"`
	CleanSession       bool          `mapstructure:"clean_session" yaml:"clean_session"`
	AllowPublicBroker  bool          `mapstructure:"allow_public_broker" yaml:"allow_public_broker"`
	Username           string        `mapstructure:"username" yaml:"username"`
	Password           string        `mapstructure:"password" yaml:"password"`
	KeepAlive          time.Duration `mapstructure:"keep_alive" yaml:"keep_alive"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReconnectBackoff   time.Duration `mapstructure:"reconnect_backoff" yaml:"reconnect_backoff"`
	PublishTimeout     time.Duration `mapstructure:"publish_timeout" yaml:"publish_timeout"`
	CACertFile         string        `mapstructure:"ca_cert_file" yaml:"ca_cert_file"`
	ClientCertFile     string        `mapstructure:"client_cert_file" yaml:"client_cert_file"`
	ClientKeyFile      string        `mapstructure:"client_key_file" yaml:"client_key_file"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// MeasurementsConfig tunes outbound measurement publishing.
type MeasurementsConfig struct {
	QoS int `mapstructure:"qos" yaml:"qos"`
	// TopicPrefix is prepended to plain sensor readings; "$(hostname)" is
	// replaced by the host name.
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
}

// SchedulerConfig tunes the scan-rate scheduler.
type SchedulerConfig struct {
	IdleDelay time.Duration `mapstructure:"idle_delay" yaml:"idle_delay"`
}

// HistorianConfig enables persistence of inbound measurements.
type HistorianConfig struct {
	Enable        bool          `mapstructure:"enable" yaml:"enable"`
	DrainInterval time.Duration `mapstructure:"drain_interval" yaml:"drain_interval"`
	// Backend is one of sqlite, postgres or bigquery.
	Backend  string         `mapstructure:"backend" yaml:"backend"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	BigQuery BigQueryConfig `mapstructure:"bigquery" yaml:"bigquery"`
	// Statements maps a measurement kind to its insert statement, or to a
	// table name for bigquery. Kinds without one are not persisted.
	Statements map[string]string `mapstructure:"statements" yaml:"statements"`
	Routes     []historian.Route `mapstructure:"routes" yaml:"routes"`
	Cache      CacheConfig       `mapstructure:"cache" yaml:"cache"`
}

type SQLiteConfig struct {
	Path     string `mapstructure:"path" yaml:"path"`
	PoolSize int    `mapstructure:"pool_size" yaml:"pool_size"`
	// SchemaFile is executed when the database opens. When empty and no
	// statements are configured the built-in schema is used.
	SchemaFile string `mapstructure:"schema_file" yaml:"schema_file"`
}

type PostgresConfig struct {
	ConnectionString string `mapstructure:"connection_string" yaml:"connection_string"`
	MaxConns         int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

type BigQueryConfig struct {
	ProjectID       string `mapstructure:"project_id" yaml:"project_id"`
	DatasetID       string `mapstructure:"dataset_id" yaml:"dataset_id"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
}

// CacheConfig selects the latest-value cache.
type CacheConfig struct {
	// Backend is one of none, memory, redis or firestore.
	Backend   string          `mapstructure:"backend" yaml:"backend"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Firestore FirestoreConfig `mapstructure:"firestore" yaml:"firestore"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr" yaml:"addr"`
	Password  string        `mapstructure:"password" yaml:"password"`
	DB        int           `mapstructure:"db" yaml:"db"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix" yaml:"key_prefix"`
}

type FirestoreConfig struct {
	ProjectID       string `mapstructure:"project_id" yaml:"project_id"`
	Collection      string `mapstructure:"collection" yaml:"collection"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
}

// RegisterFlags defines the command line flags understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the YAML configuration file")
	fs.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	fs.String("log-format", "", "Log format (json or console)")
	fs.String("http-port", "", "Address of the HTTP server, e.g. :8080")
	fs.String("hostname", "", "Host name used in topics and measurements")
}

var flagKeys = map[string]string{
	"log_level":  "log-level",
	"log_format": "log-format",
	"http_port":  "http-port",
	"hostname":   "hostname",
}

func setDefaults(v *viper.Viper) {
	mqtt := mqtttransport.DefaultMQTTClientConfig()
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("http_port", ":8080")
	v.SetDefault("hostname", hostname)

	v.SetDefault("mqtt.broker_url", mqtt.BrokerURL)
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.client_id_prefix", mqtt.ClientIDPrefix)
	v.SetDefault("mqtt.clean_session", mqtt.CleanSession)
	v.SetDefault("mqtt.allow_public_broker", false)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.keep_alive", mqtt.KeepAlive)
	v.SetDefault("mqtt.connect_timeout", mqtt.ConnectTimeout)
	v.SetDefault("mqtt.reconnect_backoff", mqtt.ReconnectBackoff)
	v.SetDefault("mqtt.publish_timeout", mqtt.PublishTimeout)
	v.SetDefault("mqtt.insecure_skip_verify", false)

	v.SetDefault("measurements.qos", int(mqtt.MeasurementQoS))
	v.SetDefault("measurements.topic_prefix", mqtt.SensorTopicPrefix)

	v.SetDefault("scheduler.idle_delay", time.Second)

	v.SetDefault("historian.enable", false)
	v.SetDefault("historian.drain_interval", historian.DefaultDrainInterval)
	v.SetDefault("historian.backend", "sqlite")
	v.SetDefault("historian.sqlite.path", "hostwatch.db")
	v.SetDefault("historian.sqlite.pool_size", 4)
	v.SetDefault("historian.postgres.connection_string", "")
	v.SetDefault("historian.cache.backend", "none")
	v.SetDefault("historian.cache.redis.addr", "localhost:6379")
	v.SetDefault("historian.cache.redis.ttl", time.Duration(0))
	v.SetDefault("historian.cache.firestore.collection", "hostwatch-latest")
}

// Load reads the configuration. path may be empty, in which case
// hostwatch.yaml is looked up in the working directory and /etc/hostwatch;
// a missing file is not an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
		if path == "" {
			if f := flags.Lookup("config"); f != nil {
				path = f.Value.String()
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("hostwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hostwatch/")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("invalid log_format %q: must be json or console", c.LogFormat)
	}
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}
	if c.MQTT.BrokerURL == "" {
		return errors.New("mqtt.broker_url is required")
	}
	if c.Measurements.QoS < 0 || c.Measurements.QoS > 2 {
		return fmt.Errorf("invalid measurements.qos %d", c.Measurements.QoS)
	}
	if c.Scheduler.IdleDelay <= 0 {
		return errors.New("scheduler.idle_delay must be positive")
	}
	if err := c.Sensors.Validate(); err != nil {
		return fmt.Errorf("invalid sensors config: %w", err)
	}
	if c.Historian.Enable {
		if err := c.Historian.validate(); err != nil {
			return fmt.Errorf("invalid historian config: %w", err)
		}
	}
	return nil
}

func (h HistorianConfig) validate() error {
	switch h.Backend {
	case "sqlite":
		if h.SQLite.Path == "" {
			return errors.New("sqlite.path is required")
		}
	case "postgres":
		if h.Postgres.ConnectionString == "" {
			return errors.New("postgres.connection_string is required")
		}
	case "bigquery":
		if h.BigQuery.ProjectID == "" || h.BigQuery.DatasetID == "" {
			return errors.New("bigquery.project_id and bigquery.dataset_id are required")
		}
	default:
		return fmt.Errorf("unknown backend %q", h.Backend)
	}
	if _, err := store.ParseStatements(h.Statements); err != nil {
		return err
	}
	for i, r := range h.Routes {
		if len(r.Topics) == 0 || r.Statement == "" {
			return fmt.Errorf("route %d needs topics and a statement", i)
		}
		for _, t := range r.Topics {
			if !topicmatch.Valid(t) {
				return fmt.Errorf("route %d has invalid topic filter %q", i, t)
			}
		}
	}
	switch h.Cache.Backend {
	case "", "none", "memory":
	case "redis":
		if h.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required")
		}
	case "firestore":
		if h.Cache.Firestore.ProjectID == "" {
			return errors.New("cache.firestore.project_id is required")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", h.Cache.Backend)
	}
	return nil
}

// MQTTClientConfig builds the transport configuration. The MQTT_* variables
// understood by mqtttransport.ApplyEnv still take precedence.
func (c *Config) MQTTClientConfig() *mqtttransport.MQTTClientConfig {
	m := mqtttransport.DefaultMQTTClientConfig()
	m.BrokerURL = c.MQTT.BrokerURL
	m.ClientID = c.MQTT.ClientID
	m.ClientIDPrefix = c.MQTT.ClientIDPrefix
	m.CleanSession = c.MQTT.CleanSession
	m.AllowPublicBroker = c.MQTT.AllowPublicBroker
	m.Username = c.MQTT.Username
	m.Password = c.MQTT.Password
	m.CACertFile = c.MQTT.CACertFile
	m.ClientCertFile = c.MQTT.ClientCertFile
	m.ClientKeyFile = c.MQTT.ClientKeyFile
	m.InsecureSkipVerify = c.MQTT.InsecureSkipVerify
	if c.MQTT.KeepAlive > 0 {
		m.KeepAlive = c.MQTT.KeepAlive
	}
	if c.MQTT.ConnectTimeout > 0 {
		m.ConnectTimeout = c.MQTT.ConnectTimeout
	}
	if c.MQTT.ReconnectBackoff > 0 {
		m.ReconnectBackoff = c.MQTT.ReconnectBackoff
	}
	if c.MQTT.PublishTimeout > 0 {
		m.PublishTimeout = c.MQTT.PublishTimeout
	}
	m.MeasurementQoS = byte(c.Measurements.QoS)
	if c.Measurements.TopicPrefix != "" {
		m.SensorTopicPrefix = c.Measurements.TopicPrefix
	}
	mqtttransport.ApplyEnv(m)
	return m
}
