package uplink

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/events"
	"github.com/lkarthik76/ddnd/internal/models"
	"github.com/lkarthik76/ddnd/internal/utils"
)

const (
	statusConnected    = `{"status": "connected"}`
	statusDisconnected = `{"status": "disconnected"}`
)

// Topic returns the per-driver topic for kind ("status", "risk", "events")
func Topic(identity models.Identity, kind string) string {
	return fmt.Sprintf("drivers/%s/%s", identity.DriverID, kind)
}

// Uplink mirrors risk state and events to an MQTT broker
type Uplink struct {
	client   mqtt.Client
	identity models.Identity
	logger   *zap.Logger
}

// BuildOptions constructs the paho client options. onConnect runs after the
// connected status has been published, on every (re)connect.
func BuildOptions(config *models.MQTTConfig, identity models.Identity, onConnect func(), logger *zap.Logger) (*mqtt.ClientOptions, error) {
	keepAlive, err := time.ParseDuration(config.KeepAlive)
	if err != nil {
		return nil, fmt.Errorf("could not parse keepalive interval: %v", err)
	}

	statusTopic := Topic(identity, "status")
	username := config.Username
	if username == "" {
		username = identity.ShortUserID
	}

	opts := mqtt.NewClientOptions().
		AddBroker(config.BrokerURL).
		SetClientID(fmt.Sprintf("ddnd-%s", identity.DriverID)).
		SetUsername(username).
		SetPassword(config.Password).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetMaxReconnectInterval(models.MQTTPublishTimeout).
		SetConnectTimeout(models.MQTTPublishTimeout).
		SetWriteTimeout(models.MQTTPublishTimeout).
		SetPingTimeout(models.MQTTPublishTimeout).
		SetCleanSession(false).
		SetWill(statusTopic, statusDisconnected, 1, true).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logger.Warn("Connection lost", zap.Error(err))
		}).
		SetReconnectingHandler(func(c mqtt.Client, opts *mqtt.ClientOptions) {
			logger.Info("MQTT auto-reconnect attempting...")
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info("Connected to MQTT broker", zap.String("broker", config.BrokerURL))

			token := c.Publish(statusTopic, 1, true, []byte(statusConnected))
			if !token.WaitTimeout(models.MQTTPublishTimeout) {
				logger.Warn("Failed to publish connection status: timeout")
			} else if token.Error() != nil {
				logger.Warn("Failed to publish connection status", zap.Error(token.Error()))
			}

			if onConnect != nil {
				go onConnect()
			}
		})

	if utils.IsTLSURL(config.BrokerURL) {
		tlsConfig, err := utils.TLSConfig(config.CACert)
		if err != nil {
			return nil, err
		}
		if config.CACert != "" {
			logger.Info("Using CA certificate from file", zap.String("path", config.CACert))
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts, nil
}

// New creates an uplink for the configured broker. The client is not connected yet.
func New(config *models.MQTTConfig, identity models.Identity, onConnect func(), logger *zap.Logger) (*Uplink, error) {
	logger = logger.Named("uplink")
	opts, err := BuildOptions(config, identity, onConnect, logger)
	if err != nil {
		return nil, err
	}
	return NewWithClient(mqtt.NewClient(opts), identity, logger), nil
}

// NewWithClient wraps an existing paho client
func NewWithClient(client mqtt.Client, identity models.Identity, logger *zap.Logger) *Uplink {
	return &Uplink{
		client:   client,
		identity: identity,
		logger:   logger,
	}
}

// Connect starts connecting. If the broker is not reachable in time the
// client keeps retrying in the background and events stay buffered.
func (u *Uplink) Connect() error {
	token := u.client.Connect()
	if !token.WaitTimeout(models.MQTTPublishTimeout) {
		u.logger.Warn("MQTT broker not reachable yet, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection failed: %v", err)
	}
	return nil
}

// Publish sends payload to the driver's kind topic and waits for the broker
func (u *Uplink) Publish(kind string, retained bool, payload []byte) error {
	return u.publish(Topic(u.identity, kind), retained, payload)
}

func (u *Uplink) publish(topic string, retained bool, payload []byte) error {
	token := u.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(models.MQTTPublishTimeout) {
		return fmt.Errorf("failed to publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %v", topic, err)
	}
	return nil
}

// PublishEvent publishes an event to the driver's events topic
func (u *Uplink) PublishEvent(event events.Event) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}

	if err := u.Publish("events", false, eventJSON); err != nil {
		return err
	}

	u.logger.Debug("Published event", zap.String("type", event.EventType))
	return nil
}

// ClearRetained removes the retained message on topic
func (u *Uplink) ClearRetained(topic string) error {
	return u.publish(topic, true, []byte{})
}

// Subscribe routes messages on the driver's kind topic to handler
func (u *Uplink) Subscribe(kind string, handler mqtt.MessageHandler) error {
	topic := Topic(u.identity, kind)
	token := u.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(models.MQTTPublishTimeout) {
		return fmt.Errorf("failed to subscribe to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %v", topic, err)
	}
	u.logger.Info("Subscribed", zap.String("topic", topic))
	return nil
}

// IsConnected uses IsConnectionOpen, since paho's IsConnected is also true
// while reconnecting.
func (u *Uplink) IsConnected() bool {
	return u.client.IsConnectionOpen()
}

// ShouldNotify selects the events that update the retained risk state
func (u *Uplink) ShouldNotify(eventType string) bool {
	return eventType == events.EventTypeRiskChange
}

// Notify publishes the new label as the retained risk state without waiting
func (u *Uplink) Notify(event events.Event) {
	if !u.IsConnected() {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"label": event.Data["label"],
		"ts":    event.Timestamp,
	})
	if err != nil {
		u.logger.Warn("Failed to marshal risk state", zap.Error(err))
		return
	}

	token := u.client.Publish(Topic(u.identity, "risk"), 1, true, payload)
	go func() {
		if !token.WaitTimeout(models.MQTTPublishTimeout) || token.Error() != nil {
			u.logger.Warn("Failed to publish risk state", zap.Error(token.Error()))
		}
	}()
}

// Close publishes the disconnected status and disconnects. The will is only
// sent on unclean disconnects.
func (u *Uplink) Close() {
	if !u.client.IsConnected() {
		return
	}

	token := u.client.Publish(Topic(u.identity, "status"), 1, true, []byte(statusDisconnected))
	if !token.WaitTimeout(500*time.Millisecond) || token.Error() != nil {
		u.logger.Warn("Failed to publish disconnected status on shutdown", zap.Error(token.Error()))
	}
	u.client.Disconnect(500)
	u.logger.Info("MQTT client disconnected")
}
