package risk

import (
	"strings"
	"time"

	"github.com/lkarthik76/ddnd/internal/models"
)

// InitialState is shown before the first fetch completes
func InitialState(interval int) models.RiskState {
	return models.RiskState{
		Label:                 models.RiskLoading,
		SecondsUntilNextFetch: interval,
	}
}

// Resync restarts the countdown at a fetch trigger
func Resync(s models.RiskState, interval int) models.RiskState {
	s.SecondsUntilNextFetch = interval
	return s
}

// Tick advances the countdown by one second, never below zero
func Tick(s models.RiskState) models.RiskState {
	if s.SecondsUntilNextFetch > 0 {
		s.SecondsUntilNextFetch--
	}
	return s
}

// Apply folds a fetch outcome into the previous state. alert is true when
// the label entered high on this fetch.
func Apply(prev models.RiskState, label string, err error, now time.Time, interval int) (next models.RiskState, alert bool) {
	next = prev
	next.SecondsUntilNextFetch = interval

	if err != nil {
		next.Label = models.RiskUnavailable
		next.LastUpdatedAt = nil
	} else {
		next.Label = label
		updated := now
		next.LastUpdatedAt = &updated
	}

	alert = next.IsHigh() && !prev.IsHigh()
	if alert {
		next.Emphasis = true
	}
	return next, alert
}

// LabelChanged compares labels ignoring case
func LabelChanged(prev, next string) bool {
	return !strings.EqualFold(prev, next)
}
