package handlers

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// CommandMessage represents an incoming command
type CommandMessage struct {
	Command   string                 `json:"command"`
	Params    map[string]interface{} `json:"params"`
	Timestamp int64                  `json:"timestamp"`
	RequestID string                 `json:"request_id"`
}

// CommandResponse is published on the acks topic for every command
type CommandResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id"`
}

// Publisher is the part of the uplink the handler answers through
type Publisher interface {
	Publish(kind string, retained bool, payload []byte) error
	ClearRetained(topic string) error
}

// Actions are the companion operations reachable by remote commands
type Actions struct {
	RefreshRisk func()
	State       func() interface{}
}

// CommandHandler executes commands received on the driver's commands topic
type CommandHandler struct {
	publisher Publisher
	actions   Actions
	logger    *zap.Logger
}

// NewCommandHandler creates a handler answering through publisher
func NewCommandHandler(publisher Publisher, actions Actions, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{
		publisher: publisher,
		actions:   actions,
		logger:    logger.Named("commands"),
	}
}

// HandleMessage is an mqtt.MessageHandler
func (h *CommandHandler) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	if len(msg.Payload()) == 0 {
		h.logger.Debug("Ignoring empty command payload",
			zap.String("topic", msg.Topic()),
			zap.Bool("retained", msg.Retained()))
		return
	}

	var command CommandMessage
	if err := json.Unmarshal(msg.Payload(), &command); err != nil {
		h.logger.Warn("Failed to parse command", zap.ByteString("payload", msg.Payload()), zap.Error(err))
		h.respond("unknown", "error", "Invalid command format")
		h.clean(msg)
		return
	}

	h.logger.Info("Received command",
		zap.String("command", command.Command),
		zap.String("request_id", command.RequestID))

	err := h.execute(command)
	h.clean(msg)

	if err != nil {
		h.logger.Warn("Command failed", zap.String("command", command.Command), zap.Error(err))
		h.respond(command.RequestID, "error", err.Error())
		return
	}
	h.respond(command.RequestID, "success", "")
}

func (h *CommandHandler) execute(command CommandMessage) error {
	switch command.Command {
	case "ping":
		return nil
	case "get_state":
		return h.publishState()
	case "refresh_risk":
		if h.actions.RefreshRisk == nil {
			return fmt.Errorf("risk refresh not available")
		}
		h.actions.RefreshRisk()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", command.Command)
	}
}

func (h *CommandHandler) publishState() error {
	if h.actions.State == nil {
		return fmt.Errorf("state not available")
	}
	payload, err := json.Marshal(h.actions.State())
	if err != nil {
		return fmt.Errorf("failed to marshal state: %v", err)
	}
	return h.publisher.Publish("state", true, payload)
}

func (h *CommandHandler) respond(requestID, status, errorMsg string) {
	response, err := json.Marshal(CommandResponse{
		Status:    status,
		Error:     errorMsg,
		RequestID: requestID,
	})
	if err != nil {
		h.logger.Warn("Failed to marshal response", zap.Error(err))
		return
	}
	if err := h.publisher.Publish("acks", false, response); err != nil {
		h.logger.Warn("Failed to publish response", zap.Error(err))
	}
}

// clean removes a retained command so it is not replayed on reconnect
func (h *CommandHandler) clean(msg mqtt.Message) {
	if !msg.Retained() {
		return
	}
	if err := h.publisher.ClearRetained(msg.Topic()); err != nil {
		h.logger.Warn("Failed to clean retained command", zap.Error(err))
	}
}
