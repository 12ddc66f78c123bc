package handlers

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	kind     string
	retained bool
	payload  []byte
}

type MockPublisher struct {
	published []published
	cleared   []string
	err       error
}

func (m *MockPublisher) Publish(kind string, retained bool, payload []byte) error {
	m.published = append(m.published, published{kind: kind, retained: retained, payload: payload})
	return m.err
}

func (m *MockPublisher) ClearRetained(topic string) error {
	m.cleared = append(m.cleared, topic)
	return nil
}

func (m *MockPublisher) ack(t *testing.T) CommandResponse {
	t.Helper()
	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].kind == "acks" {
			var resp CommandResponse
			require.NoError(t, json.Unmarshal(m.published[i].payload, &resp))
			return resp
		}
	}
	t.Fatal("no ack published")
	return CommandResponse{}
}

type MockMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 1 }
func (m *MockMessage) Retained() bool    { return m.retained }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) MessageID() uint16 { return 1 }
func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Ack()              {}

func command(payload string, retained bool) *MockMessage {
	return &MockMessage{topic: "drivers/D-1/commands", payload: []byte(payload), retained: retained}
}

func TestHandleMessage_Ping(t *testing.T) {
	pub := &MockPublisher{}
	h := NewCommandHandler(pub, Actions{}, zap.NewNop())

	h.HandleMessage(nil, command(`{"command":"ping","request_id":"r1"}`, false))

	resp := pub.ack(t)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "r1", resp.RequestID)
	assert.Empty(t, pub.cleared)
}

func TestHandleMessage_RefreshRisk(t *testing.T) {
	pub := &MockPublisher{}
	refreshed := 0
	h := NewCommandHandler(pub, Actions{RefreshRisk: func() { refreshed++ }}, zap.NewNop())

	h.HandleMessage(nil, command(`{"command":"refresh_risk","request_id":"r2"}`, true))

	assert.Equal(t, 1, refreshed)
	assert.Equal(t, "success", pub.ack(t).Status)
	assert.Equal(t, []string{"drivers/D-1/commands"}, pub.cleared)
}

func TestHandleMessage_GetState(t *testing.T) {
	pub := &MockPublisher{}
	h := NewCommandHandler(pub, Actions{
		State: func() interface{} { return map[string]string{"risk": "normal"} },
	}, zap.NewNop())

	h.HandleMessage(nil, command(`{"command":"get_state","request_id":"r3"}`, false))

	require.Len(t, pub.published, 2)
	assert.Equal(t, "state", pub.published[0].kind)
	assert.True(t, pub.published[0].retained)
	assert.JSONEq(t, `{"risk":"normal"}`, string(pub.published[0].payload))
	assert.Equal(t, "success", pub.ack(t).Status)
}

func TestHandleMessage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		errMsg  string
	}{
		{"unknown command", `{"command":"lock","request_id":"r4"}`, "unknown command: lock"},
		{"refresh unavailable", `{"command":"refresh_risk","request_id":"r5"}`, "risk refresh not available"},
		{"state unavailable", `{"command":"get_state","request_id":"r6"}`, "state not available"},
		{"invalid json", `{not json`, "Invalid command format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &MockPublisher{}
			h := NewCommandHandler(pub, Actions{}, zap.NewNop())

			h.HandleMessage(nil, command(tt.payload, true))

			resp := pub.ack(t)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.errMsg, resp.Error)
			assert.Len(t, pub.cleared, 1)
		})
	}
}

func TestHandleMessage_EmptyPayloadIgnored(t *testing.T) {
	pub := &MockPublisher{}
	h := NewCommandHandler(pub, Actions{}, zap.NewNop())

	h.HandleMessage(nil, command("", true))

	assert.Empty(t, pub.published)
	assert.Empty(t, pub.cleared)
}

func TestHandleMessage_PublishFailureIsLogged(t *testing.T) {
	pub := &MockPublisher{err: errors.New("offline")}
	h := NewCommandHandler(pub, Actions{}, zap.NewNop())

	assert.NotPanics(t, func() {
		h.HandleMessage(nil, command(`{"command":"ping","request_id":"r7"}`, false))
	})
	assert.Len(t, pub.published, 1)
}
