package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/models"
)

func TestNTPClock_SyncAppliesOffset(t *testing.T) {
	clock := NewNTPClock(&models.NTPConfig{Enabled: true, Server: "ntp.test"}, zap.NewNop())
	var queried string
	clock.query = func(host string) (*ntp.Response, error) {
		queried = host
		now := time.Now()
		return &ntp.Response{
			ClockOffset:   time.Hour,
			Stratum:       2,
			RTT:           10 * time.Millisecond,
			Time:          now,
			ReferenceTime: now.Add(-time.Minute),
		}, nil
	}

	require.NoError(t, clock.Sync())
	assert.Equal(t, "ntp.test", queried)
	assert.Equal(t, time.Hour, clock.Offset())
	assert.WithinDuration(t, time.Now().Add(time.Hour), clock.Now(), 5*time.Second)
}

func TestNTPClock_SyncFailureKeepsOffset(t *testing.T) {
	clock := NewNTPClock(nil, zap.NewNop())
	clock.query = func(string) (*ntp.Response, error) {
		return nil, errors.New("timeout")
	}

	assert.Error(t, clock.Sync())
	assert.Equal(t, time.Duration(0), clock.Offset())
	assert.Equal(t, "pool.ntp.org", clock.server)
}

func TestNewClock_Disabled(t *testing.T) {
	clock := NewClock(&models.NTPConfig{Enabled: false}, zap.NewNop())
	_, ok := clock.(SystemClock)
	assert.True(t, ok)
}

func TestFixedClock_Advance(t *testing.T) {
	start := time.Date(2024, 5, 1, 15, 4, 0, 0, time.UTC)
	clock := NewFixedClock(start)
	clock.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clock.Now())
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, 72.5, ParseFloat("72.5"))
	assert.Equal(t, 0.0, ParseFloat("n/a"))
	assert.True(t, ParseTime("garbage").IsZero())
	assert.Equal(t, 2024, ParseTime("2024-05-01T15:04:00Z").Year())
	assert.True(t, IsTLSURL("ssl://broker:8883"))
	assert.False(t, IsTLSURL("tcp://broker:1883"))
}
