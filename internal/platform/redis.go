package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/models"
	"github.com/lkarthik76/ddnd/internal/utils"
)

// Redis keys and channels shared with the wrist platform bridge
const (
	LiveSessionKey    = "workout:live"
	RuntimeSessionKey = "runtime:session"
	HapticsChannel    = "haptics"
	MotionChannel     = "motion"
	LocationChannel   = "location"

	SessionRunning      = "running"
	SessionInvalidated  = "invalidated"
	SessionExpired      = "expired"
	AuthorizationDenied = "denied"
	HapticNotification  = "notification"
)

// Connect opens and pings a Redis client for the given URL
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %v", err)
	}

	client := redis.NewClient(redisOptions)
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %v", err)
	}
	return client, nil
}

// LiveSession reads cumulative statistics of the running biometric session
// from the bridge hash. Each metric occupies a value field ("hr") and an
// RFC3339 timestamp field ("hr:ts").
type LiveSession struct {
	client *redis.Client
	clock  utils.Clock
	logger *zap.Logger
}

// NewLiveSession creates a live session reader
func NewLiveSession(client *redis.Client, clock utils.Clock, logger *zap.Logger) *LiveSession {
	return &LiveSession{
		client: client,
		clock:  clock,
		logger: logger.Named("live"),
	}
}

// Snapshot reads the session hash once and returns the values present for
// metrics. Metrics without a value are absent from the record.
func (l *LiveSession) Snapshot(ctx context.Context, metrics []models.MetricKey) (models.MergedRecord, error) {
	fields, err := l.client.HGetAll(ctx, LiveSessionKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if fields["authorization"] == AuthorizationDenied {
		return nil, models.ErrAuthorizationDenied
	}
	if fields["state"] != SessionRunning {
		return nil, models.ErrSessionInactive
	}

	now := l.clock.Now()
	record := make(models.MergedRecord, len(metrics))
	for _, metric := range metrics {
		raw, ok := fields[string(metric)]
		if !ok || raw == "" {
			continue
		}
		observedAt := utils.ParseTime(fields[string(metric)+":ts"])
		if observedAt.IsZero() {
			observedAt = now
		}
		record[metric] = models.BiometricSample{
			Metric:     metric,
			Value:      utils.ParseFloat(raw),
			ObservedAt: observedAt,
		}
	}
	return record, nil
}

// RuntimeSession is the platform's grant of background execution. The
// bridge marks it invalidated or expired when the grant ends; until it is
// restarted the upload loop pauses.
type RuntimeSession struct {
	client *redis.Client
}

// NewRuntimeSession creates a runtime session reader
func NewRuntimeSession(client *redis.Client) *RuntimeSession {
	return &RuntimeSession{client: client}
}

// Active reports whether background work may run. A bridge that never wrote
// the key imposes no runtime limit.
func (r *RuntimeSession) Active(ctx context.Context) (bool, error) {
	state, err := r.client.HGet(ctx, RuntimeSessionKey, "state").Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	return state != SessionInvalidated && state != SessionExpired, nil
}

// Haptics asks the wrist platform to play a haptic pattern
type Haptics struct {
	client *redis.Client
	logger *zap.Logger
}

// NewHaptics creates a haptic engine client
func NewHaptics(client *redis.Client, logger *zap.Logger) *Haptics {
	return &Haptics{client: client, logger: logger.Named("haptics")}
}

// Notify plays the notification pattern
func (h *Haptics) Notify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.client.Publish(ctx, HapticsChannel, HapticNotification).Err(); err != nil {
		h.logger.Warn("Failed to publish haptic notification", zap.Error(err))
		return err
	}
	return nil
}
