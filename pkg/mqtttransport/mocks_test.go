package mqtttransport_test

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/illmade-knight/go-hostwatch/pkg/topicmatch"
)

// --- Mocks for Paho MQTT Client ---
type mockToken struct{ err error }

func (m *mockToken) Wait() bool                       { return true }
func (m *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (m *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (m *mockToken) Error() error { return m.err }

type mockMqttMessage struct {
	topic     string
	payload   []byte
	messageID uint16
}

func (m *mockMqttMessage) Topic() string     { return m.topic }
func (m *mockMqttMessage) Payload() []byte   { return m.payload }
func (m *mockMqttMessage) MessageID() uint16 { return m.messageID }
func (m *mockMqttMessage) Duplicate() bool   { return false }
func (m *mockMqttMessage) Qos() byte         { return 1 }
func (m *mockMqttMessage) Retained() bool    { return false }
func (m *mockMqttMessage) Ack()              {}

type publishCall struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type mockMqttClient struct {
	mu sync.Mutex
	// connectErrs is consumed one entry per Connect; once empty, Connect succeeds.
	connectErrs      []error
	connectCalls     int
	isConnected      bool
	disconnectCalled bool
	published        []publishCall
	subscribed       []string
	messageHandler   mqtt.MessageHandler
	opts             *mqtt.ClientOptions
	// loopback delivers publishes to the subscription handler when a
	// subscribed filter matches, like a broker would.
	loopback bool
}

func (m *mockMqttClient) factory(opts *mqtt.ClientOptions) mqtt.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
	return m
}

func (m *mockMqttClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isConnected
}
func (m *mockMqttClient) IsConnectionOpen() bool { return m.IsConnected() }
func (m *mockMqttClient) Connect() mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	if len(m.connectErrs) > 0 {
		err := m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
		if err != nil {
			return &mockToken{err: err}
		}
	}
	m.isConnected = true
	return &mockToken{}
}
func (m *mockMqttClient) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isConnected = false
	m.disconnectCalled = true
}
func (m *mockMqttClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, topic)
	m.messageHandler = callback
	return &mockToken{}
}
func (m *mockMqttClient) Unsubscribe(topics ...string) mqtt.Token { return &mockToken{} }
func (m *mockMqttClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.mu.Lock()
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	m.published = append(m.published, publishCall{topic: topic, qos: qos, retain: retained, payload: data})

	var deliver mqtt.MessageHandler
	if m.loopback && m.messageHandler != nil {
		for _, filter := range m.subscribed {
			if topicmatch.Matches(filter, topic) {
				deliver = m.messageHandler
				break
			}
		}
	}
	m.mu.Unlock()

	if deliver != nil {
		deliver(m, &mockMqttMessage{topic: topic, payload: append([]byte(nil), data...)})
	}
	return &mockToken{}
}

// Add stubs for unused methods to satisfy the interface
func (m *mockMqttClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return &mockToken{}
}
func (m *mockMqttClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (m *mockMqttClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// dropConnection simulates the broker going away.
func (m *mockMqttClient) dropConnection(err error) {
	m.mu.Lock()
	m.isConnected = false
	handler := m.opts.OnConnectionLost
	m.mu.Unlock()
	handler(m, err)
}

func (m *mockMqttClient) connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalls
}

func (m *mockMqttClient) publishes() []publishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishCall(nil), m.published...)
}

func (m *mockMqttClient) subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribed...)
}

func (m *mockMqttClient) handler() mqtt.MessageHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messageHandler
}

func (m *mockMqttClient) disconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnectCalled
}
