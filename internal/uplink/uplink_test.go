package uplink

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/events"
	"github.com/lkarthik76/ddnd/internal/models"
)

// MockMQTTClient records publishes
type MockMQTTClient struct {
	mu           sync.Mutex
	connected    bool
	publishErr   error
	messages     []MockMessage
	subscribed   []string
	disconnected bool
}

type MockMessage struct {
	Topic    string
	Retained bool
	Payload  []byte
}

func (m *MockMQTTClient) IsConnected() bool      { return m.isConnected() }
func (m *MockMQTTClient) IsConnectionOpen() bool { return m.isConnected() }
func (m *MockMQTTClient) Connect() mqtt.Token    { return &MockToken{} }
func (m *MockMQTTClient) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
	m.connected = false
}
func (m *MockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, MockMessage{Topic: topic, Retained: retained, Payload: payload.([]byte)})
	return &MockToken{err: m.publishErr}
}
func (m *MockMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, topic)
	return &MockToken{}
}
func (m *MockMQTTClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return &MockToken{}
}
func (m *MockMQTTClient) Unsubscribe(topics ...string) mqtt.Token             { return &MockToken{} }
func (m *MockMQTTClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (m *MockMQTTClient) OptionsReader() mqtt.ClientOptionsReader             { return mqtt.ClientOptionsReader{} }

func (m *MockMQTTClient) isConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) Messages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockMessage(nil), m.messages...)
}

type MockToken struct {
	err error
}

func (m *MockToken) Wait() bool                     { return true }
func (m *MockToken) WaitTimeout(time.Duration) bool { return true }
func (m *MockToken) Error() error                   { return m.err }
func (m *MockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

var testIdentity = models.Identity{ShortUserID: "1234567890", DriverID: "D-42"}

var eventTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestPublishEvent(t *testing.T) {
	client := &MockMQTTClient{connected: true}
	u := NewWithClient(client, testIdentity, zap.NewNop())

	event := events.NewEvent(events.EventTypeRiskHigh, events.StatusTriggered, map[string]interface{}{"label": "high"}, eventTime)
	require.NoError(t, u.PublishEvent(event))

	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "drivers/D-42/events", msgs[0].Topic)
	assert.False(t, msgs[0].Retained)

	var got events.Event
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, events.EventTypeRiskHigh, got.EventType)
	assert.Equal(t, "2024-05-01T12:00:00Z", got.Timestamp)
}

func TestPublishEvent_Error(t *testing.T) {
	client := &MockMQTTClient{connected: true, publishErr: errors.New("not authorized")}
	u := NewWithClient(client, testIdentity, zap.NewNop())

	err := u.PublishEvent(events.NewEvent(events.EventTypeRiskHigh, "", nil, eventTime))
	assert.Error(t, err)
}

func TestClearRetained(t *testing.T) {
	client := &MockMQTTClient{connected: true}
	u := NewWithClient(client, testIdentity, zap.NewNop())

	require.NoError(t, u.ClearRetained("drivers/D-42/commands"))

	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Retained)
	assert.Empty(t, msgs[0].Payload)
}

func TestSubscribe(t *testing.T) {
	client := &MockMQTTClient{connected: true}
	u := NewWithClient(client, testIdentity, zap.NewNop())

	require.NoError(t, u.Subscribe("commands", func(mqtt.Client, mqtt.Message) {}))
	assert.Equal(t, []string{"drivers/D-42/commands"}, client.subscribed)
}

func TestNotify_PublishesRetainedRisk(t *testing.T) {
	client := &MockMQTTClient{connected: true}
	u := NewWithClient(client, testIdentity, zap.NewNop())

	assert.True(t, u.ShouldNotify(events.EventTypeRiskChange))
	assert.False(t, u.ShouldNotify(events.EventTypeRiskHigh))

	u.Notify(events.NewEvent(events.EventTypeRiskChange, "", map[string]interface{}{"label": "moderate"}, eventTime))

	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "drivers/D-42/risk", msgs[0].Topic)
	assert.True(t, msgs[0].Retained)
	assert.JSONEq(t, `{"label":"moderate","ts":"2024-05-01T12:00:00Z"}`, string(msgs[0].Payload))
}

func TestNotify_SkipsWhileDisconnected(t *testing.T) {
	client := &MockMQTTClient{}
	u := NewWithClient(client, testIdentity, zap.NewNop())

	u.Notify(events.NewEvent(events.EventTypeRiskChange, "", map[string]interface{}{"label": "high"}, eventTime))
	assert.Empty(t, client.Messages())
	assert.False(t, u.IsConnected())
}

func TestClose_PublishesDisconnectedStatus(t *testing.T) {
	client := &MockMQTTClient{connected: true}
	u := NewWithClient(client, testIdentity, zap.NewNop())

	u.Close()

	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "drivers/D-42/status", msgs[0].Topic)
	assert.True(t, msgs[0].Retained)
	assert.JSONEq(t, statusDisconnected, string(msgs[0].Payload))
	assert.True(t, client.disconnected)
}

func TestBuildOptions(t *testing.T) {
	opts, err := BuildOptions(&models.MQTTConfig{
		BrokerURL: "tcp://broker.example.com:1883",
		KeepAlive: "45s",
	}, testIdentity, nil, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "ddnd-D-42", opts.ClientID)
	assert.Equal(t, "1234567890", opts.Username)
	assert.Equal(t, int64(45), opts.KeepAlive)
	assert.Equal(t, "drivers/D-42/status", opts.WillTopic)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, statusDisconnected, string(opts.WillPayload))
}

func TestBuildOptions_TLSAndErrors(t *testing.T) {
	opts, err := BuildOptions(&models.MQTTConfig{
		BrokerURL: "ssl://broker.example.com:8883",
		KeepAlive: "30s",
		Username:  "svc",
	}, testIdentity, nil, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, opts.TLSConfig)
	assert.Equal(t, "svc", opts.Username)

	_, err = BuildOptions(&models.MQTTConfig{BrokerURL: "tcp://b:1883", KeepAlive: "soon"}, testIdentity, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = BuildOptions(&models.MQTTConfig{BrokerURL: "ssl://b:8883", KeepAlive: "30s", CACert: "/nonexistent/ca.pem"}, testIdentity, nil, zap.NewNop())
	assert.Error(t, err)
}
