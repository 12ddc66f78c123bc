package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lkarthik76/ddnd/internal/models"
	"github.com/lkarthik76/ddnd/internal/utils"
)

// Stats counts delivery outcomes since start
type Stats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// BuildPayload wraps a merged record with identity and send time
func BuildPayload(record models.MergedRecord, identity models.Identity, sentAt time.Time) models.HealthPayload {
	return models.HealthPayload{
		UID:        identity.ShortUserID,
		DID:        identity.DriverID,
		Timestamp:  models.FormatTimestamp(sentAt),
		DeviceType: models.DeviceType,
		HealthData: record,
	}
}

// Sender POSTs health payloads to the collector without waiting for or
// retrying the outcome.
type Sender struct {
	client *resty.Client
	clock  utils.Clock
	logger *zap.Logger
	debug  bool

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	mu   sync.RWMutex
	last *models.HealthPayload
}

// NewSender creates a sender posting to {baseURL}/health with at most
// maxInFlight concurrent requests.
func NewSender(httpClient *http.Client, baseURL string, maxInFlight int, clock utils.Clock, debug bool, logger *zap.Logger) *Sender {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}

	client := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json")

	return &Sender{
		client: client,
		clock:  clock,
		logger: logger.Named("delivery"),
		debug:  debug,
		sem:    semaphore.NewWeighted(int64(maxInFlight)),
	}
}

// Send starts delivery of record in the background. It returns false when
// the in-flight limit is reached and the record was dropped.
func (s *Sender) Send(ctx context.Context, record models.MergedRecord, identity models.Identity) bool {
	if !s.sem.TryAcquire(1) {
		s.dropped.Add(1)
		s.logger.Warn("Too many deliveries in flight, dropping cycle", zap.Int("metrics", len(record)))
		return false
	}

	payload := BuildPayload(record, identity, s.clock.Now())
	if s.debug {
		if pretty, err := json.MarshalIndent(payload, "", "  "); err == nil {
			s.logger.Debug("Health payload", zap.ByteString("body", pretty))
		}
	}

	// In-flight requests outlive cancellation of the caller so Wait can drain them
	reqCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		s.post(reqCtx, payload)
	}()
	return true
}

func (s *Sender) post(ctx context.Context, payload models.HealthPayload) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/health")
	if err != nil {
		s.failed.Add(1)
		s.logger.Error("Health delivery failed", zap.Error(err))
		return
	}
	if resp.IsError() {
		s.failed.Add(1)
		s.logger.Error("Collector rejected health payload",
			zap.Int("status_code", resp.StatusCode()),
			zap.ByteString("body", resp.Body()))
		return
	}

	s.delivered.Add(1)
	s.mu.Lock()
	s.last = &payload
	s.mu.Unlock()

	s.logger.Debug("Health payload delivered",
		zap.Int("status_code", resp.StatusCode()),
		zap.Int("metrics", len(payload.HealthData)))
}

// Wait blocks until every in-flight delivery has finished
func (s *Sender) Wait() {
	s.wg.Wait()
}

// LastDelivered returns the most recent payload the collector accepted
func (s *Sender) LastDelivered() (models.HealthPayload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return models.HealthPayload{}, false
	}
	return *s.last, true
}

// Stats returns the delivery counters
func (s *Sender) Stats() Stats {
	return Stats{
		Delivered: s.delivered.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
	}
}
