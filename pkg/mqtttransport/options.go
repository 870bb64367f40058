package mqtttransport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// clientID returns the configured client id or a prefixed random one.
func clientID(cfg *MQTTClientConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return cfg.ClientIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// createMqttOptions assembles the Paho client options. Paho's own reconnect
// logic is disabled; the Supervisor owns reconnection.
func (s *Supervisor) createMqttOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.BrokerURL)
	opts.SetClientID(clientID(s.cfg))
	opts.SetProtocolVersion(4) // MQTT 3.1.1
	opts.SetCleanSession(s.cfg.CleanSession)
	opts.SetUsername(s.cfg.Username)
	opts.SetPassword(s.cfg.Password)
	opts.SetKeepAlive(s.cfg.KeepAlive)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(false)
	opts.SetDefaultPublishHandler(s.handleIncomingMessage)
	opts.SetConnectionLostHandler(s.handleConnectionLost)

	if strings.HasPrefix(strings.ToLower(s.cfg.BrokerURL), "tls://") ||
		strings.HasPrefix(strings.ToLower(s.cfg.BrokerURL), "ssl://") {
		tlsConfig, err := newTLSConfig(s.cfg)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to create TLS config, proceeding without it.")
		} else {
			opts.SetTLSConfig(tlsConfig)
			s.logger.Info().Msg("TLS configured for MQTT client.")
		}
	}
	return opts
}

// newTLSConfig is a helper to create a tls.Config.
func newTLSConfig(cfg *MQTTClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert file %s: %w", cfg.CACertFile, err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA cert from %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = caCertPool
	}
	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
