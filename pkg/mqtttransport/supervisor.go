// Package mqtttransport owns the broker connection of the agent.
//
// The Supervisor runs a small state machine over a Paho client:
//
//	Disconnected --connect--> Connecting --ok--> Connected
//	Connecting --failure--> Disconnected (ConnectingFailed, ReconnectRequest)
//	Connected --loss--> Disconnected (ConnectionLost, ReconnectRequest)
//	any --shutdown--> ShuttingDown (terminal)
//
// Reconnects travel through the event bus as ReconnectRequest, so every
// handler of the failure event has run before the next attempt is scheduled.
package mqtttransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/illmade-knight/go-hostwatch/pkg/eventbus"
	"github.com/illmade-knight/go-hostwatch/pkg/events"
	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/illmade-knight/go-hostwatch/pkg/metrics"
	"github.com/illmade-knight/go-hostwatch/pkg/topicmatch"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// State is the connection state of the Supervisor.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateShuttingDown:
		return "shutting-down"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// subscribeFailure is the SUBACK return code for a rejected filter.
const subscribeFailure = 0x80

// ClientFactory builds the Paho client from the assembled options.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// OutboundMessage is a single publication.
type OutboundMessage struct {
	Topic   string
	QoS     byte
	Retain  bool
	Payload []byte
}

// Supervisor manages the lifecycle of the broker connection.
type Supervisor struct {
	cfg       *MQTTClientConfig
	bus       *eventbus.Bus
	client    mqtt.Client
	newClient ClientFactory
	clock     clockwork.Clock
	metrics   *metrics.Metrics
	hostname  string
	logger    zerolog.Logger

	state atomic.Int32

	mu          sync.Mutex
	lifeCtx     context.Context
	cancel      context.CancelFunc
	backoffs    sync.WaitGroup
	unsubscribe []func()
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClientFactory replaces mqtt.NewClient, typically with a mock.
func WithClientFactory(f ClientFactory) Option {
	return func(s *Supervisor) { s.newClient = f }
}

// WithClock replaces the wall clock used for backoff and timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Supervisor) { s.clock = clock }
}

// WithMetrics records connection and publish metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithHostname sets the value substituted for HostnameToken.
func WithHostname(hostname string) Option {
	return func(s *Supervisor) { s.hostname = hostname }
}

// NewSupervisor creates a Supervisor. It does not connect until Start is called.
func NewSupervisor(cfg *MQTTClientConfig, bus *eventbus.Bus, logger zerolog.Logger, opts ...Option) (*Supervisor, error) {
	if cfg == nil {
		return nil, errors.New("mqtt client config cannot be nil")
	}
	if cfg.BrokerURL == "" {
		return nil, errors.New("MQTT broker URL is required")
	}
	if !cfg.AllowPublicBroker && cfg.Username == "" {
		logger.Warn().Str("broker", cfg.BrokerURL).Msg("No MQTT credentials configured; connecting anonymously.")
	}
	if bus == nil {
		return nil, errors.New("event bus cannot be nil")
	}
	s := &Supervisor{
		cfg:       cfg,
		bus:       bus,
		newClient: mqtt.NewClient,
		clock:     clockwork.NewRealClock(),
		logger:    logger.With().Str("component", "MqttSupervisor").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve hostname: %w", err)
		}
		s.hostname = hostname
	}
	if s.cfg.ReconnectBackoff <= 0 {
		s.cfg.ReconnectBackoff = time.Second
	}
	if s.cfg.ConnectTimeout <= 0 {
		s.cfg.ConnectTimeout = 10 * time.Second
	}
	if s.cfg.PublishTimeout <= 0 {
		s.cfg.PublishTimeout = 5 * time.Second
	}
	s.state.Store(int32(StateDisconnected))
	return s, nil
}

// Start registers the Supervisor's event handlers and requests the first
// connect. Cancelling ctx has the same effect as Shutdown.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.lifeCtx != nil {
		s.mu.Unlock()
		return errors.New("supervisor already started")
	}
	s.lifeCtx, s.cancel = context.WithCancel(ctx)
	s.client = s.newClient(s.createMqttOptions())
	s.unsubscribe = []func(){
		eventbus.Subscribe(s.bus, s.onConnectRequest),
		eventbus.Subscribe(s.bus, s.onReconnectRequest),
		eventbus.Subscribe(s.bus, s.onShutdownRequested),
		eventbus.Subscribe(s.bus, s.onPublishRequest),
		eventbus.Subscribe(s.bus, s.onPublishJSONRequest),
		eventbus.Subscribe(s.bus, s.onSubscribeRequest),
		eventbus.Subscribe(s.bus, s.onOutboundMeasurement),
		eventbus.Subscribe(s.bus, s.onSensorReading),
	}
	lifeCtx := s.lifeCtx
	s.mu.Unlock()

	go func() {
		<-lifeCtx.Done()
		if s.State() != StateShuttingDown {
			s.logger.Info().Msg("Shutdown signal received, stopping supervisor.")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.Shutdown(shutdownCtx)
		}
	}()

	s.logger.Info().Str("broker", s.cfg.BrokerURL).Msg("Attempting to connect to MQTT broker...")
	return s.bus.Publish(lifeCtx, events.ConnectRequest{})
}

// Shutdown moves the Supervisor into its terminal state, cancels pending
// reconnects and disconnects from the broker.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if State(s.state.Swap(int32(StateShuttingDown))) == StateShuttingDown {
		return nil
	}
	s.metrics.SetConnectionState(int(StateShuttingDown))
	s.logger.Info().Msg("Stopping MqttSupervisor...")

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.backoffs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Timed out waiting for pending reconnects.")
	}

	// Disconnect also stops a connect attempt paho is still retrying.
	if s.client != nil {
		s.client.Disconnect(250)
		s.logger.Info().Msg("Paho MQTT client disconnected.")
	}
	for _, u := range unsubscribe {
		u()
	}
	s.logger.Info().Msg("MqttSupervisor stopped.")
	return nil
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// IsConnected reports whether the Supervisor is in StateConnected.
func (s *Supervisor) IsConnected() bool {
	return s.State() == StateConnected
}

// ResolveTopic substitutes HostnameToken in topic.
func (s *Supervisor) ResolveTopic(topic string) string {
	return strings.ReplaceAll(topic, HostnameToken, s.hostname)
}

func (s *Supervisor) setState(from, to State) bool {
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	s.metrics.SetConnectionState(int(to))
	return true
}

func (s *Supervisor) connect(ctx context.Context) {
	if !s.setState(StateDisconnected, StateConnecting) {
		s.logger.Debug().Str("state", s.State().String()).Msg("Ignoring connect request.")
		return
	}

	token := s.client.Connect()
	if err := s.wait(ctx, token, s.cfg.ConnectTimeout); err != nil {
		if !s.setState(StateConnecting, StateDisconnected) {
			return
		}
		s.metrics.ConnectAttempt("failure")
		s.logger.Error().Err(err).Str("broker", s.cfg.BrokerURL).Msg("Failed to connect to MQTT broker.")
		_ = s.bus.Publish(ctx, events.ConnectingFailed{Err: err})
		_ = s.bus.Publish(ctx, events.ReconnectRequest{})
		return
	}

	if !s.setState(StateConnecting, StateConnected) {
		return
	}
	s.metrics.ConnectAttempt("success")

	sessionPresent := false
	if ct, ok := token.(*mqtt.ConnectToken); ok {
		sessionPresent = ct.SessionPresent()
	}
	s.logger.Info().Str("broker", s.cfg.BrokerURL).Bool("session_present", sessionPresent).Msg("Paho client connected to MQTT broker.")
	_ = s.bus.Publish(ctx, events.ConnectionEstablished{SessionPresent: sessionPresent})
}

func (s *Supervisor) handleConnectionLost(_ mqtt.Client, err error) {
	if !s.setState(StateConnected, StateDisconnected) {
		return
	}
	s.logger.Error().Err(err).Msg("Paho client lost MQTT connection.")

	ctx := s.context()
	_ = s.bus.Publish(ctx, events.ConnectionLost{Err: err})
	_ = s.bus.Publish(ctx, events.ReconnectRequest{})
}

func (s *Supervisor) handleIncomingMessage(_ mqtt.Client, msg mqtt.Message) {
	s.logger.Debug().Str("topic", msg.Topic()).Msg("Received MQTT message")
	s.metrics.Received()
	payloadCopy := make([]byte, len(msg.Payload()))
	copy(payloadCopy, msg.Payload())

	_ = s.bus.Publish(s.context(), events.PublishReceived{
		Topic:    msg.Topic(),
		Payload:  payloadCopy,
		QoS:      msg.Qos(),
		Retained: msg.Retained(),
	})
}

// Publish sends msg if connected. While not connected the message is
// silently dropped and nil is returned.
func (s *Supervisor) Publish(ctx context.Context, msg OutboundMessage) error {
	if !s.IsConnected() {
		s.metrics.Dropped("disconnected")
		s.logger.Trace().Str("topic", msg.Topic).Msg("Not connected, dropping message.")
		return nil
	}
	topic := s.ResolveTopic(msg.Topic)
	if topic == "" || topicmatch.HasWildcard(topic) {
		s.metrics.Dropped("invalid_topic")
		return fmt.Errorf("invalid publish topic %q", topic)
	}

	token := s.client.Publish(topic, msg.QoS, msg.Retain, msg.Payload)
	if err := s.wait(ctx, token, s.cfg.PublishTimeout); err != nil {
		s.metrics.Dropped("error")
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	s.metrics.Published()
	return nil
}

// PublishJSON encodes v and publishes it. Errors are logged, never returned.
func (s *Supervisor) PublishJSON(ctx context.Context, topic string, qos byte, retain bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.metrics.Dropped("encoding")
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to encode JSON payload.")
		return
	}
	if err := s.Publish(ctx, OutboundMessage{Topic: topic, QoS: qos, Retain: retain, Payload: payload}); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish JSON payload.")
	}
}

// Subscribe issues a single subscription and logs the broker's result per
// filter. Failed subscriptions are not retried.
func (s *Supervisor) Subscribe(ctx context.Context, filter string, qos byte) error {
	if !topicmatch.Valid(filter) {
		return fmt.Errorf("invalid topic filter %q", filter)
	}
	if !s.IsConnected() {
		s.logger.Warn().Str("filter", filter).Msg("Not connected, subscription not issued.")
		return nil
	}

	token := s.client.Subscribe(filter, qos, s.handleIncomingMessage)
	if err := s.wait(ctx, token, s.cfg.PublishTimeout); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", filter, err)
	}

	st, ok := token.(*mqtt.SubscribeToken)
	if !ok {
		s.logger.Info().Str("filter", filter).Msg("Successfully subscribed to MQTT topic.")
		return nil
	}
	for f, code := range st.Result() {
		if code == subscribeFailure {
			s.logger.Error().Str("filter", f).Uint8("result_code", code).Msg("Broker rejected subscription.")
			continue
		}
		s.logger.Info().Str("filter", f).Uint8("result_code", code).Msg("Successfully subscribed to MQTT topic.")
	}
	return nil
}

// wait blocks until token completes, the timeout elapses or ctx is done.
func (s *Supervisor) wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := s.clock.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.Chan():
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifeCtx == nil {
		return context.Background()
	}
	return s.lifeCtx
}

// --- event handlers ---

func (s *Supervisor) onConnectRequest(ctx context.Context, _ events.ConnectRequest) error {
	s.connect(ctx)
	return nil
}

// onReconnectRequest waits the backoff in the background and then requests a
// connect, unless the Supervisor shuts down first.
func (s *Supervisor) onReconnectRequest(_ context.Context, _ events.ReconnectRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateShuttingDown || s.lifeCtx == nil {
		return nil
	}
	lifeCtx := s.lifeCtx
	s.backoffs.Add(1)
	go func() {
		defer s.backoffs.Done()
		timer := s.clock.NewTimer(s.cfg.ReconnectBackoff)
		defer timer.Stop()
		select {
		case <-lifeCtx.Done():
			return
		case <-timer.Chan():
		}
		if s.State() == StateShuttingDown {
			return
		}
		s.logger.Info().Msg("Reconnecting to MQTT broker...")
		_ = s.bus.Publish(lifeCtx, events.ConnectRequest{})
	}()
	return nil
}

func (s *Supervisor) onShutdownRequested(ctx context.Context, _ events.ShutdownRequested) error {
	return s.Shutdown(ctx)
}

func (s *Supervisor) onPublishRequest(ctx context.Context, e events.PublishRequest) error {
	if err := s.Publish(ctx, OutboundMessage{Topic: e.Topic, QoS: e.QoS, Retain: e.Retain, Payload: e.Payload}); err != nil {
		s.logger.Error().Err(err).Str("topic", e.Topic).Msg("Failed to publish message.")
	}
	return nil
}

func (s *Supervisor) onPublishJSONRequest(ctx context.Context, e events.PublishJSONRequest) error {
	s.PublishJSON(ctx, e.Topic, e.QoS, e.Retain, e.Value)
	return nil
}

func (s *Supervisor) onSubscribeRequest(ctx context.Context, e events.SubscribeRequest) error {
	if err := s.Subscribe(ctx, e.Filter, e.QoS); err != nil {
		s.logger.Error().Err(err).Str("filter", e.Filter).Msg("Failed to subscribe to MQTT topic.")
	}
	return nil
}

func (s *Supervisor) onOutboundMeasurement(ctx context.Context, e events.OutboundMeasurement) error {
	if e.Item == nil {
		return nil
	}
	s.PublishJSON(ctx, measurement.Topic(e.Item.Kind()), s.cfg.MeasurementQoS, false, e.Item)
	return nil
}

func (s *Supervisor) onSensorReading(ctx context.Context, e events.SensorReading) error {
	topic := strings.TrimSuffix(s.cfg.SensorTopicPrefix, "/") + "/" + strings.TrimPrefix(e.Sensor, "/")
	if err := s.Publish(ctx, OutboundMessage{Topic: topic, QoS: s.cfg.MeasurementQoS, Payload: []byte(e.Value)}); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish sensor reading.")
	}
	return nil
}
