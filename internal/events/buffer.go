package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Buffer stores events on disk until the publisher accepts them
type Buffer struct {
	path       string
	maxRetries int
	logger     *zap.Logger

	// Delays between sends; zero in tests
	retryBase time.Duration
	pause     time.Duration

	flushing atomic.Bool

	mu     sync.Mutex
	events []BufferedEvent
}

// NewBuffer creates a buffer persisted at path. An empty path keeps events in memory.
func NewBuffer(path string, maxRetries int, logger *zap.Logger) *Buffer {
	b := &Buffer{
		path:       path,
		maxRetries: maxRetries,
		logger:     logger.Named("event_buffer"),
		retryBase:  time.Second,
		pause:      100 * time.Millisecond,
		events:     make([]BufferedEvent, 0),
	}

	b.loadFromDisk()

	return b
}

// Add appends an event and persists the buffer
func (b *Buffer) Add(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, BufferedEvent{Event: event})
	b.persistToDisk()

	b.logger.Info("Buffered event", zap.String("type", event.EventType), zap.Int("total", len(b.events)))
}

// Flush tries to send every buffered event. Events that fail stay buffered
// with an incremented retry count until maxRetries is reached. Concurrent
// calls return immediately while a flush is running.
func (b *Buffer) Flush(sender func(Event) error) {
	if !b.flushing.CompareAndSwap(false, true) {
		return
	}
	defer b.flushing.Store(false)

	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return
	}
	pending := b.events
	b.events = make([]BufferedEvent, 0)
	b.mu.Unlock()

	b.logger.Info("Flushing buffered events", zap.Int("count", len(pending)))

	var failed []BufferedEvent
	sent, discarded := 0, 0

	for _, buffered := range pending {
		if buffered.Retries >= b.maxRetries {
			b.logger.Warn("Event exceeded max retries, discarding",
				zap.String("type", buffered.Event.EventType),
				zap.Int("max_retries", b.maxRetries))
			discarded++
			continue
		}

		if err := sender(buffered.Event); err != nil {
			buffered.Retries++
			b.logger.Warn("Failed to send buffered event",
				zap.String("type", buffered.Event.EventType),
				zap.Int("retry", buffered.Retries),
				zap.Error(err))
			failed = append(failed, buffered)

			backoff := b.retryBase * time.Duration(1<<uint(buffered.Retries-1))
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			time.Sleep(backoff)
			continue
		}

		sent++
		time.Sleep(b.pause)
	}

	b.logger.Info("Flushed buffered events",
		zap.Int("sent", sent),
		zap.Int("failed", len(failed)),
		zap.Int("discarded", discarded))

	// Events added during the flush go after the ones that failed
	b.mu.Lock()
	b.events = append(failed, b.events...)
	b.persistToDisk()
	b.mu.Unlock()
}

// Count returns the number of buffered events
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// persistToDisk writes the buffer as JSON lines. Must be called with mu held.
func (b *Buffer) persistToDisk() {
	if b.path == "" {
		return
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		b.logger.Error("Failed to create buffer directory", zap.String("dir", dir), zap.Error(err))
		return
	}

	if len(b.events) == 0 {
		os.Remove(b.path)
		return
	}

	f, err := os.Create(b.path)
	if err != nil {
		b.logger.Error("Failed to create buffer file", zap.Error(err))
		return
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, event := range b.events {
		data, err := json.Marshal(event)
		if err != nil {
			b.logger.Error("Failed to marshal event", zap.Error(err))
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		b.logger.Error("Failed to write buffer file", zap.Error(err))
	}
}

// loadFromDisk loads events left over from a previous run
func (b *Buffer) loadFromDisk() {
	if b.path == "" {
		return
	}

	f, err := os.Open(b.path)
	if err != nil {
		if !os.IsNotExist(err) {
			b.logger.Error("Failed to open buffer file", zap.Error(err))
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var buffered BufferedEvent
		if err := json.Unmarshal(line, &buffered); err != nil {
			b.logger.Warn("Failed to parse buffered event", zap.Error(err))
			continue
		}
		b.events = append(b.events, buffered)
	}

	if len(b.events) > 0 {
		b.logger.Info("Loaded buffered events from disk", zap.Int("count", len(b.events)))
	}
}
