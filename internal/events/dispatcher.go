package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Publisher delivers events upstream
type Publisher interface {
	PublishEvent(event Event) error
	IsConnected() bool
}

// Listener receives event notifications. Notify must not block.
type Listener interface {
	Notify(event Event)
	ShouldNotify(eventType string) bool
}

const queueSize = 64

// Dispatcher fans events out to listeners and the upstream publisher,
// buffering to disk whenever the publisher is unavailable. Publishing
// happens on the dispatcher's own goroutine, so Emit never blocks.
type Dispatcher struct {
	buffer *Buffer
	logger *zap.Logger
	queue  chan Event
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	publisher Publisher
	listeners []Listener
}

// NewDispatcher creates a dispatcher backed by buffer
func NewDispatcher(buffer *Buffer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		buffer: buffer,
		logger: logger.Named("events"),
		queue:  make(chan Event, queueSize),
	}
}

// Start begins publishing queued events
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.processQueue(ctx)
}

// Stop ends publishing. Events still queued are moved to the buffer.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

func (d *Dispatcher) processQueue(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case event := <-d.queue:
					d.buffer.Add(event)
				default:
					return
				}
			}
		case event := <-d.queue:
			d.publish(event)
		}
	}
}

// SetPublisher sets the upstream publisher
func (d *Dispatcher) SetPublisher(publisher Publisher) {
	d.mu.Lock()
	d.publisher = publisher
	d.mu.Unlock()
}

// AddListener registers an event listener
func (d *Dispatcher) AddListener(listener Listener) {
	d.mu.Lock()
	d.listeners = append(d.listeners, listener)
	d.mu.Unlock()
}

// Emit notifies listeners and queues the event for publishing
func (d *Dispatcher) Emit(event Event) {
	d.logger.Info("Event",
		zap.String("type", event.EventType),
		zap.String("status", event.Status),
		zap.Any("data", event.Data))

	d.mu.RLock()
	listeners := d.listeners
	publisher := d.publisher
	d.mu.RUnlock()

	for _, l := range listeners {
		if l.ShouldNotify(event.EventType) {
			l.Notify(event)
		}
	}

	if publisher == nil {
		return
	}
	select {
	case d.queue <- event:
	default:
		d.logger.Warn("Publish queue full, buffering event", zap.String("type", event.EventType))
		d.buffer.Add(event)
	}
}

func (d *Dispatcher) publish(event Event) {
	d.mu.RLock()
	publisher := d.publisher
	d.mu.RUnlock()

	if publisher == nil {
		return
	}
	if !publisher.IsConnected() {
		d.logger.Debug("Not connected, buffering event", zap.String("type", event.EventType))
		d.buffer.Add(event)
		return
	}
	if err := publisher.PublishEvent(event); err != nil {
		d.logger.Warn("Failed to publish event, buffering", zap.Error(err))
		d.buffer.Add(event)
		return
	}
	if d.buffer.Count() > 0 {
		go d.FlushBuffered()
	}
}

// FlushBuffered resends buffered events while the publisher is connected
func (d *Dispatcher) FlushBuffered() {
	d.mu.RLock()
	publisher := d.publisher
	d.mu.RUnlock()

	if publisher == nil || !publisher.IsConnected() {
		return
	}
	d.buffer.Flush(publisher.PublishEvent)
}

// Buffered returns the number of events waiting for the publisher
func (d *Dispatcher) Buffered() int {
	return d.buffer.Count()
}
