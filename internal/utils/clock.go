package utils

import (
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/models"
)

// Clock supplies wall-clock time
type Clock interface {
	Now() time.Time
}

// SystemClock is the host clock
type SystemClock struct{}

// Now returns time.Now
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Useful in tests.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock returns a clock frozen at t
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now returns the frozen instant
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the frozen instant forward by d
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// queryFunc matches ntp.Query
type queryFunc func(host string) (*ntp.Response, error)

// NTPClock corrects the host clock by an offset measured against an NTP
// server. The system clock itself is never changed.
type NTPClock struct {
	server string
	query  queryFunc
	logger *zap.Logger

	mu     sync.RWMutex
	offset time.Duration
}

// NewNTPClock creates a clock for the configured server
func NewNTPClock(config *models.NTPConfig, logger *zap.Logger) *NTPClock {
	server := "pool.ntp.org"
	if config != nil && config.Server != "" {
		server = config.Server
	}
	return &NTPClock{
		server: server,
		query:  ntp.Query,
		logger: logger.Named("clock"),
	}
}

// Sync measures the current offset and stores it
func (c *NTPClock) Sync() error {
	resp, err := c.query(c.server)
	if err != nil {
		c.logger.Warn("Failed to query NTP server", zap.String("server", c.server), zap.Error(err))
		return fmt.Errorf("failed to query %s: %v", c.server, err)
	}
	if err := resp.Validate(); err != nil {
		c.logger.Warn("Invalid NTP response", zap.String("server", c.server), zap.Error(err))
		return fmt.Errorf("invalid response from %s: %v", c.server, err)
	}

	c.mu.Lock()
	c.offset = resp.ClockOffset
	c.mu.Unlock()

	c.logger.Info("Clock offset measured",
		zap.String("server", c.server),
		zap.Duration("offset", resp.ClockOffset))
	return nil
}

// Offset returns the last measured offset
func (c *NTPClock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Now returns the host time corrected by the measured offset
func (c *NTPClock) Now() time.Time {
	return time.Now().Add(c.Offset())
}

// NewClock returns an NTP-corrected clock when enabled, the system clock otherwise.
// A failed initial sync leaves the offset at zero.
func NewClock(config *models.NTPConfig, logger *zap.Logger) Clock {
	if config == nil || !config.Enabled {
		logger.Info("NTP clock correction is disabled in configuration")
		return SystemClock{}
	}
	clock := NewNTPClock(config, logger)
	_ = clock.Sync()
	return clock
}
