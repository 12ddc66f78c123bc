package telegram

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/events"
	"github.com/lkarthik76/ddnd/internal/models"
)

const defaultAPIURL = "https://api.telegram.org"

// Notifier sends Telegram messages for risk and driving events
type Notifier struct {
	config    *models.TelegramConfig
	identity  models.Identity
	queue     chan events.Event
	client    *resty.Client
	rateLimit time.Duration
	logger    *zap.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewNotifier creates a notifier for the driver identified by identity
func NewNotifier(config *models.TelegramConfig, identity models.Identity, httpClient *http.Client, logger *zap.Logger) (*Notifier, error) {
	rateLimit, err := time.ParseDuration(config.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid rate_limit: %v", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Notifier{
		config:    config,
		identity:  identity,
		queue:     make(chan events.Event, config.QueueSize),
		client:    resty.NewWithClient(httpClient).SetBaseURL(defaultAPIURL),
		rateLimit: rateLimit,
		logger:    logger.Named("telegram"),
	}, nil
}

// Start begins processing the notification queue
func (n *Notifier) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)
	n.wg.Add(1)
	go n.processQueue(ctx)
	n.logger.Info("Notifier started",
		zap.Duration("rate_limit", n.rateLimit),
		zap.Int("queue_size", n.config.QueueSize))
}

// Stop gracefully shuts down the notifier
func (n *Notifier) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
	n.logger.Info("Notifier stopped")
}

// Notify enqueues an event for sending (non-blocking)
func (n *Notifier) Notify(event events.Event) {
	select {
	case n.queue <- event:
	default:
		n.logger.Warn("Queue full, dropping event", zap.String("type", event.EventType))
	}
}

// ShouldNotify checks whether notifications are enabled for an event type
func (n *Notifier) ShouldNotify(eventType string) bool {
	return n.config.Events[eventType]
}

func (n *Notifier) processQueue(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(n.rateLimit)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-n.queue:
			if err := n.send(ctx, event); err != nil {
				n.logger.Warn("Failed to send", zap.String("type", event.EventType), zap.Error(err))
			}
			// Rate limit: wait for next tick before processing more
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

func (n *Notifier) send(ctx context.Context, event events.Event) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetPathParam("token", n.config.BotToken).
		SetFormData(map[string]string{
			"chat_id":    n.config.ChatID,
			"text":       n.FormatMessage(event),
			"parse_mode": "HTML",
		}).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("HTTP request failed: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("Telegram API returned status %d", resp.StatusCode())
	}

	n.logger.Info("Sent notification", zap.String("type", event.EventType))
	return nil
}

// FormatMessage formats an event into a one-line message
func (n *Notifier) FormatMessage(event events.Event) string {
	driver := n.identity.DriverID
	if driver == "" {
		driver = n.identity.ShortUserID
	}

	str := func(key string) string {
		if v, ok := event.Data[key]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
		return ""
	}

	switch event.EventType {
	case events.EventTypeRiskHigh:
		return fmt.Sprintf("🚨 Driver %s is at high risk", driver)

	case events.EventTypeRiskChange:
		return fmt.Sprintf("🔄 Driver %s risk: %s → %s", driver, str("previous"), str("label"))

	case events.EventTypeDrivingChange:
		if event.Status == events.StatusStarted {
			return fmt.Sprintf("🚗 Driver %s started driving", driver)
		}
		return fmt.Sprintf("🅿️ Driver %s stopped driving", driver)

	case events.EventTypeConnect:
		return fmt.Sprintf("📡 Driver %s companion online", driver)

	case events.EventTypeDisconnect:
		return fmt.Sprintf("📡 Driver %s companion offline", driver)

	default:
		if event.Status != "" {
			return fmt.Sprintf("📢 Driver %s %s: %s", driver, event.EventType, event.Status)
		}
		return fmt.Sprintf("📢 Driver %s %s", driver, event.EventType)
	}
}
