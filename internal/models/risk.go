package models

import (
	"strings"
	"time"
)

// Risk labels. Remote labels are opaque strings; these are the ones the
// companion produces or colours.
const (
	RiskNormal      = "normal"
	RiskModerate    = "moderate"
	RiskHigh        = "high"
	RiskUnavailable = "unavailable"
	RiskLoading     = "loading"
)

// RiskState is the poller's view of the remote classification
type RiskState struct {
	Label                 string     `json:"label"`
	LastUpdatedAt         *time.Time `json:"last_updated_at,omitempty"`
	SecondsUntilNextFetch int        `json:"seconds_until_next_fetch"`
	Emphasis              bool       `json:"emphasis"`
}

// IsHigh reports whether the label denotes high risk, ignoring case
func (s RiskState) IsHigh() bool {
	return IsHighRisk(s.Label)
}

// IsHighRisk reports whether label equals "high" ignoring case
func IsHighRisk(label string) bool {
	return strings.EqualFold(label, RiskHigh)
}

// DrivingState is the driving gate's published decision
type DrivingState struct {
	IsDriving bool      `json:"is_driving"`
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
