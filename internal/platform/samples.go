package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lkarthik76/ddnd/internal/models"
)

const samplesSchema = `
CREATE TABLE IF NOT EXISTS samples (
	metric      TEXT    NOT NULL,
	value       REAL    NOT NULL,
	observed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_metric_observed ON samples (metric, observed_at);
`

// SampleStore is the recorded biometric sample store. observed_at is kept
// as unix milliseconds so ordering is numeric.
type SampleStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSampleStore opens (and creates if needed) the SQLite store at path
func OpenSampleStore(path string, logger *zap.Logger) (*SampleStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample store: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(samplesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sample schema: %v", err)
	}

	return NewSampleStore(db, logger), nil
}

// NewSampleStore wraps an existing database handle
func NewSampleStore(db *sql.DB, logger *zap.Logger) *SampleStore {
	return &SampleStore{db: db, logger: logger.Named("samples")}
}

// Latest returns the most recent sample of metric observed at or after since
func (s *SampleStore) Latest(ctx context.Context, metric models.MetricKey, since time.Time) (models.BiometricSample, bool, error) {
	var (
		value      float64
		observedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, observed_at FROM samples WHERE metric = ? AND observed_at >= ? ORDER BY observed_at DESC LIMIT 1`,
		string(metric), since.UnixMilli(),
	).Scan(&value, &observedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BiometricSample{}, false, nil
	}
	if err != nil {
		return models.BiometricSample{}, false, fmt.Errorf("%w: query %s: %v", models.ErrTransport, metric, err)
	}

	return models.BiometricSample{
		Metric:     metric,
		Value:      value,
		ObservedAt: time.UnixMilli(observedAt).UTC(),
	}, true, nil
}

// Insert records a raw sample
func (s *SampleStore) Insert(ctx context.Context, sample models.BiometricSample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (metric, value, observed_at) VALUES (?, ?, ?)`,
		string(sample.Metric), sample.Value, sample.ObservedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %v", err)
	}
	return nil
}

// Close closes the underlying database
func (s *SampleStore) Close() error {
	return s.db.Close()
}
