package driving

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/events"
	"github.com/lkarthik76/ddnd/internal/models"
	"github.com/lkarthik76/ddnd/internal/utils"
)

// Source names a driving signal
type Source string

const (
	SourceMotion   Source = "motion"
	SourceLocation Source = "location"
)

// Policies
const (
	PolicyPrecedence = "precedence"
	PolicyLastWrite  = "last_write"
)

// MotionUpdate is an activity classification from the motion provider
type MotionUpdate struct {
	Automotive bool      `json:"automotive"`
	Stationary bool      `json:"stationary"`
	At         time.Time `json:"ts"`
}

// LocationFix is a position report. A negative speed means the provider
// could not measure it.
type LocationFix struct {
	Lat   float64   `json:"lat"`
	Lng   float64   `json:"lng"`
	Speed float64   `json:"speed"`
	At    time.Time `json:"ts"`
}

// GateConfig holds the arbitration settings
type GateConfig struct {
	Policy         string
	Primary        Source
	StaleAfter     time.Duration
	SpeedThreshold float64
}

type vote struct {
	driving bool
	at      time.Time
	valid   bool
}

// Emitter receives driving events
type Emitter interface {
	Emit(event events.Event)
}

// Gate combines motion and location votes into a single driving decision
type Gate struct {
	cfg     GateConfig
	clock   utils.Clock
	emitter Emitter
	logger  *zap.Logger

	mu      sync.RWMutex
	votes   map[Source]vote
	lastFix *LocationFix
	state   models.DrivingState
}

// NewGate creates a gate. emitter may be nil.
func NewGate(cfg GateConfig, clock utils.Clock, emitter Emitter, logger *zap.Logger) *Gate {
	if cfg.Policy == "" {
		cfg.Policy = PolicyPrecedence
	}
	if cfg.Primary == "" {
		cfg.Primary = SourceMotion
	}
	if cfg.SpeedThreshold <= 0 {
		cfg.SpeedThreshold = models.DrivingSpeedThreshold
	}
	return &Gate{
		cfg:     cfg,
		clock:   clock,
		emitter: emitter,
		logger:  logger.Named("driving"),
		votes:   make(map[Source]vote),
	}
}

// OnMotion records a motion vote: automotive and not stationary
func (g *Gate) OnMotion(m MotionUpdate) {
	g.record(SourceMotion, m.Automotive && !m.Stationary, m.At)
}

// OnLocation records a location vote: speed above the threshold. Under
// last_write an invalid (negative) speed is simply not above the threshold.
// Under precedence such fixes derive their speed from the previous fix, and
// are ignored when that is not possible.
func (g *Gate) OnLocation(fix LocationFix) {
	if fix.At.IsZero() {
		fix.At = g.clock.Now()
	}

	g.mu.Lock()
	prev := g.lastFix
	g.lastFix = &fix
	g.mu.Unlock()

	speed := fix.Speed
	if speed < 0 && g.cfg.Policy == PolicyPrecedence {
		if prev == nil {
			return
		}
		derived, ok := DeriveSpeed(*prev, fix)
		if !ok {
			return
		}
		speed = derived
	}

	g.record(SourceLocation, speed > g.cfg.SpeedThreshold, fix.At)
}

func (g *Gate) record(source Source, driving bool, at time.Time) {
	if at.IsZero() {
		at = g.clock.Now()
	}

	g.mu.Lock()
	g.votes[source] = vote{driving: driving, at: at, valid: true}
	var decided bool
	if g.cfg.Policy == PolicyLastWrite {
		decided = driving
	} else {
		decided = g.decide()
	}
	changed := g.apply(decided, source)
	g.mu.Unlock()

	if changed != nil {
		g.notify(*changed)
	}
}

// Evaluate re-applies the precedence policy so stale votes expire
func (g *Gate) Evaluate() {
	if g.cfg.Policy == PolicyLastWrite {
		return
	}

	g.mu.Lock()
	changed := g.apply(g.decide(), "")
	g.mu.Unlock()

	if changed != nil {
		g.notify(*changed)
	}
}

// decide must be called with mu held
func (g *Gate) decide() bool {
	now := g.clock.Now()

	if v := g.votes[g.cfg.Primary]; g.fresh(v, now) {
		return v.driving
	}
	if v := g.votes[g.other(g.cfg.Primary)]; g.fresh(v, now) {
		return v.driving
	}
	return false
}

func (g *Gate) fresh(v vote, now time.Time) bool {
	return v.valid && now.Sub(v.at) <= g.cfg.StaleAfter
}

func (g *Gate) other(s Source) Source {
	if s == SourceMotion {
		return SourceLocation
	}
	return SourceMotion
}

// apply must be called with mu held. It returns the new state on a transition.
func (g *Gate) apply(driving bool, source Source) *models.DrivingState {
	if driving == g.state.IsDriving && !g.state.UpdatedAt.IsZero() {
		return nil
	}
	first := g.state.UpdatedAt.IsZero()
	g.state = models.DrivingState{
		IsDriving: driving,
		Source:    string(source),
		UpdatedAt: g.clock.Now(),
	}
	if first && !driving {
		return nil
	}
	state := g.state
	return &state
}

func (g *Gate) notify(state models.DrivingState) {
	status := events.StatusStopped
	if state.IsDriving {
		status = events.StatusStarted
	}
	g.logger.Info("Driving state changed",
		zap.Bool("driving", state.IsDriving),
		zap.String("source", state.Source))

	if g.emitter != nil {
		g.emitter.Emit(events.NewEvent(events.EventTypeDrivingChange, status, map[string]interface{}{
			"driving": state.IsDriving,
			"source":  state.Source,
		}, state.UpdatedAt))
	}
}

// State returns the current decision
func (g *Gate) State() models.DrivingState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// IsDriving reports the current decision
func (g *Gate) IsDriving() bool {
	return g.State().IsDriving
}
