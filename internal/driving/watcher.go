package driving

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/platform"
)

// Watcher feeds motion and location messages from the platform bridge into a gate
type Watcher struct {
	client *redis.Client
	gate   *Gate
	logger *zap.Logger
}

// NewWatcher creates a watcher for gate
func NewWatcher(client *redis.Client, gate *Gate, logger *zap.Logger) *Watcher {
	return &Watcher{
		client: client,
		gate:   gate,
		logger: logger.Named("driving_watcher"),
	}
}

// Run subscribes to the motion and location channels until ctx is done.
// ready, if not nil, is closed once the subscription is confirmed.
func (w *Watcher) Run(ctx context.Context, ready chan<- struct{}) {
	pubsub := w.client.Subscribe(ctx, platform.MotionChannel, platform.LocationChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Failed to subscribe to driving channels", zap.Error(err))
		}
		return
	}
	w.logger.Info("Subscribed to driving channels")
	if ready != nil {
		close(ready)
	}

	interval := w.gate.cfg.StaleAfter / 2
	if interval <= 0 {
		interval = time.Second
	}
	staleness := time.NewTicker(interval)
	defer staleness.Stop()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Driving watcher stopping due to context cancellation")
			return
		case <-staleness.C:
			w.gate.Evaluate()
		case msg, ok := <-messages:
			if !ok {
				return
			}
			w.handle(msg)
		}
	}
}

func (w *Watcher) handle(msg *redis.Message) {
	switch msg.Channel {
	case platform.MotionChannel:
		var update MotionUpdate
		if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
			w.logger.Warn("Invalid motion message", zap.String("payload", msg.Payload), zap.Error(err))
			return
		}
		w.gate.OnMotion(update)
	case platform.LocationChannel:
		var fix LocationFix
		if err := json.Unmarshal([]byte(msg.Payload), &fix); err != nil {
			w.logger.Warn("Invalid location message", zap.String("payload", msg.Payload), zap.Error(err))
			return
		}
		w.gate.OnLocation(fix)
	}
}
