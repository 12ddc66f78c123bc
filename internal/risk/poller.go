package risk

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/events"
	"github.com/lkarthik76/ddnd/internal/models"
	"github.com/lkarthik76/ddnd/internal/utils"
)

// Fetcher returns the current risk label for an identity
type Fetcher interface {
	Fetch(ctx context.Context, identity models.Identity) (string, error)
}

// Haptic plays the alert pattern
type Haptic interface {
	Notify(ctx context.Context) error
}

// Emitter receives risk events
type Emitter interface {
	Emit(event events.Event)
}

// PollerConfig holds the poller cadences
type PollerConfig struct {
	Interval      time.Duration
	CountdownTick time.Duration
	Emphasis      time.Duration
}

type fetchResult struct {
	label string
	err   error
}

// sideEffect is the haptic and event work following one applied fetch
type sideEffect struct {
	haptic bool
	events []events.Event
}

// Poller periodically fetches the risk label and maintains the risk state.
// The Run loop is the only writer; State returns snapshots.
type Poller struct {
	fetcher  Fetcher
	identity models.Identity
	haptics  Haptic
	emitter  Emitter
	clock    utils.Clock
	cfg      PollerConfig
	logger   *zap.Logger

	trigger chan struct{}
	effects chan sideEffect

	mu    sync.RWMutex
	state models.RiskState
}

// NewPoller creates a poller. haptics and emitter may be nil.
func NewPoller(fetcher Fetcher, identity models.Identity, haptics Haptic, emitter Emitter, clock utils.Clock, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.CountdownTick <= 0 {
		cfg.CountdownTick = time.Second
	}
	return &Poller{
		fetcher:  fetcher,
		identity: identity,
		haptics:  haptics,
		emitter:  emitter,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.Named("risk"),
		trigger:  make(chan struct{}, 1),
		effects:  make(chan sideEffect, 16),
		state:    InitialState(intervalSeconds(cfg.Interval)),
	}
}

func intervalSeconds(d time.Duration) int {
	return int(d / time.Second)
}

// State returns a snapshot of the current risk state
func (p *Poller) State() models.RiskState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Refresh requests an immediate fetch. The periodic schedule restarts from it.
func (p *Poller) Refresh() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run fetches immediately and then on every interval until ctx is done.
// A trigger that fires while a fetch is still outstanding is skipped.
func (p *Poller) Run(ctx context.Context) {
	fetchTicker := time.NewTicker(p.cfg.Interval)
	defer fetchTicker.Stop()
	countdown := time.NewTicker(p.cfg.CountdownTick)
	defer countdown.Stop()

	var (
		emphasisTimer *time.Timer
		emphasisC     <-chan time.Time
	)
	defer func() {
		if emphasisTimer != nil {
			emphasisTimer.Stop()
		}
	}()

	results := make(chan fetchResult, 1)
	fetching := false

	startFetch := func() {
		p.update(func(s models.RiskState) models.RiskState {
			return Resync(s, intervalSeconds(p.cfg.Interval))
		})
		if fetching {
			p.logger.Debug("Previous risk fetch still in flight, skipping")
			return
		}
		fetching = true
		go func() {
			label, err := p.fetcher.Fetch(ctx, p.identity)
			results <- fetchResult{label: label, err: err}
		}()
	}

	go p.runEffects(ctx)

	p.logger.Info("Starting risk poller", zap.Duration("interval", p.cfg.Interval))
	startFetch()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Risk poller stopping")
			return

		case <-fetchTicker.C:
			startFetch()

		case <-p.trigger:
			fetchTicker.Reset(p.cfg.Interval)
			countdown.Reset(p.cfg.CountdownTick)
			startFetch()

		case r := <-results:
			fetching = false
			if p.complete(r) {
				if emphasisTimer != nil {
					emphasisTimer.Stop()
				}
				emphasisTimer = time.NewTimer(p.cfg.Emphasis)
				emphasisC = emphasisTimer.C
			}

		case <-countdown.C:
			p.update(Tick)

		case <-emphasisC:
			emphasisC = nil
			p.update(func(s models.RiskState) models.RiskState {
				s.Emphasis = false
				return s
			})
		}
	}
}

func (p *Poller) update(fn func(models.RiskState) models.RiskState) {
	p.mu.Lock()
	p.state = fn(p.state)
	p.mu.Unlock()
}

// complete applies a fetch result and reports whether an alert was raised.
// Haptics and events are handed to the effects goroutine so a slow
// collaborator never stalls the countdown.
func (p *Poller) complete(r fetchResult) bool {
	now := p.clock.Now()

	p.mu.Lock()
	prev := p.state
	next, alert := Apply(prev, r.label, r.err, now, intervalSeconds(p.cfg.Interval))
	p.state = next
	p.mu.Unlock()

	if r.err != nil {
		p.logger.Warn("Risk fetch failed", zap.Error(r.err))
	} else {
		p.logger.Info("Risk updated", zap.String("label", next.Label))
	}

	var effect sideEffect
	if LabelChanged(prev.Label, next.Label) {
		effect.events = append(effect.events, events.NewEvent(events.EventTypeRiskChange, "", map[string]interface{}{
			"previous": prev.Label,
			"label":    next.Label,
		}, now))
	}
	if alert {
		p.logger.Warn("High risk detected", zap.String("previous", prev.Label))
		effect.haptic = true
		effect.events = append(effect.events, events.NewEvent(events.EventTypeRiskHigh, events.StatusTriggered, map[string]interface{}{
			"label":     next.Label,
			"driver_id": p.identity.DriverID,
		}, now))
	}

	if effect.haptic || len(effect.events) > 0 {
		select {
		case p.effects <- effect:
		default:
			p.logger.Warn("Risk side effects backlogged, dropping", zap.String("label", next.Label))
		}
	}
	return alert
}

// runEffects plays haptics and emits events in fetch order
func (p *Poller) runEffects(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case effect := <-p.effects:
			for _, event := range effect.events {
				if event.EventType == events.EventTypeRiskHigh && effect.haptic && p.haptics != nil {
					if err := p.haptics.Notify(ctx); err != nil {
						p.logger.Warn("Haptic notification failed", zap.Error(err))
					}
				}
				p.emit(event)
			}
		}
	}
}

func (p *Poller) emit(event events.Event) {
	if p.emitter != nil {
		p.emitter.Emit(event)
	}
}
