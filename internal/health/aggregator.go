package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lkarthik76/ddnd/internal/models"
	"github.com/lkarthik76/ddnd/internal/utils"
)

// ErrSourcesUnavailable is returned when neither the live session nor the
// recorded store could be read during a cycle.
var ErrSourcesUnavailable = errors.New("no biometric source available")

// LiveSource reads cumulative statistics of the running session as one snapshot
type LiveSource interface {
	Snapshot(ctx context.Context, metrics []models.MetricKey) (models.MergedRecord, error)
}

// HistorySource reads recorded samples
type HistorySource interface {
	Latest(ctx context.Context, metric models.MetricKey, since time.Time) (models.BiometricSample, bool, error)
}

// Aggregator collects one merged record per cycle
type Aggregator struct {
	live    LiveSource
	history HistorySource
	clock   utils.Clock
	window  time.Duration
	logger  *zap.Logger
}

// NewAggregator creates an aggregator. Either source may be nil.
func NewAggregator(live LiveSource, history HistorySource, clock utils.Clock, window time.Duration, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		live:    live,
		history: history,
		clock:   clock,
		window:  window,
		logger:  logger.Named("health"),
	}
}

// Collect snapshots the live session and the recorded store and merges them.
// Live values win for any metric both sources report.
func (a *Aggregator) Collect(ctx context.Context) (models.MergedRecord, error) {
	live, liveErr := a.collectLive(ctx)
	history, historyErr := a.collectHistory(ctx)

	if liveErr != nil && historyErr != nil {
		a.logger.Warn("Skipping cycle, both biometric sources unavailable",
			zap.NamedError("live", liveErr),
			zap.NamedError("history", historyErr))
		return nil, ErrSourcesUnavailable
	}

	return Merge(live, history), nil
}

func (a *Aggregator) collectLive(ctx context.Context) (models.MergedRecord, error) {
	record := make(models.MergedRecord)
	if a.live == nil {
		return record, models.ErrSessionInactive
	}

	snapshot, err := a.live.Snapshot(ctx, models.LiveMetrics)
	if err != nil {
		if errors.Is(err, models.ErrAuthorizationDenied) || errors.Is(err, models.ErrSessionInactive) {
			a.logger.Debug("Live session unavailable", zap.Error(err))
		} else {
			a.logger.Warn("Failed to read live session", zap.Error(err))
		}
		return record, err
	}

	for metric, sample := range snapshot {
		sample.Value = metric.Normalize(sample.Value)
		record[metric] = sample
	}
	return record, nil
}

func (a *Aggregator) collectHistory(ctx context.Context) (models.MergedRecord, error) {
	record := make(models.MergedRecord)
	if a.history == nil {
		return record, models.ErrTransport
	}

	since := a.clock.Now().Add(-a.window)

	var (
		mu       sync.Mutex
		failures int
		lastErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, metric := range models.HistoryMetrics {
		metric := metric
		g.Go(func() error {
			sample, ok, err := a.history.Latest(gctx, metric, since)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Warn("Failed to query recorded samples", zap.String("metric", string(metric)), zap.Error(err))
				failures++
				lastErr = err
				return nil
			}
			if ok {
				sample.Value = metric.Normalize(sample.Value)
				record[metric] = sample
			}
			return nil
		})
	}
	_ = g.Wait()

	if failures == len(models.HistoryMetrics) {
		return record, lastErr
	}
	return record, nil
}

// Merge combines both snapshots. Metrics reported by neither source stay absent.
func Merge(live, history models.MergedRecord) models.MergedRecord {
	merged := make(models.MergedRecord, len(live)+len(history))
	for metric, sample := range history {
		merged[metric] = sample
	}
	for metric, sample := range live {
		merged[metric] = sample
	}
	return merged
}
