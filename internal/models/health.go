package models

import (
	"encoding/json"
	"time"
)

// MetricKey identifies a biometric quantity by its wire short code
type MetricKey string

const (
	HeartRate            MetricKey = "hr"
	HeartRateVariability MetricKey = "hrv"
	BloodOxygen          MetricKey = "bo"
	RespiratoryRate      MetricKey = "rr"
	StepCount            MetricKey = "sc"
	ActiveEnergy         MetricKey = "ae"
)

// LiveMetrics are the metrics an active biometric session reports
var LiveMetrics = []MetricKey{HeartRate, StepCount, ActiveEnergy}

// HistoryMetrics are the metrics queried from recorded samples
var HistoryMetrics = []MetricKey{HeartRate, HeartRateVariability, BloodOxygen, RespiratoryRate, StepCount, ActiveEnergy}

// MetricNames maps metrics to human-readable names
var MetricNames = map[MetricKey]string{
	HeartRate:            "heartRate",
	HeartRateVariability: "heartRateVariability",
	BloodOxygen:          "bloodOxygen",
	RespiratoryRate:      "respiratoryRate",
	StepCount:            "stepCount",
	ActiveEnergy:         "activeEnergy",
}

// Unit returns the unit a normalized value of the metric is expressed in
func (m MetricKey) Unit() string {
	switch m {
	case BloodOxygen:
		return "%"
	case StepCount:
		return "count"
	case ActiveEnergy:
		return "kcal"
	default:
		return "count/min"
	}
}

// Normalize converts a raw platform value into the metric's reporting unit.
// Blood oxygen arrives as a fraction and is reported as a percentage.
func (m MetricKey) Normalize(raw float64) float64 {
	if m == BloodOxygen {
		return raw * 100
	}
	return raw
}

// Valid reports whether m is a known metric
func (m MetricKey) Valid() bool {
	_, ok := MetricNames[m]
	return ok
}

// BiometricSample is a single observed value of one metric
type BiometricSample struct {
	Metric     MetricKey `json:"-"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// MarshalJSON encodes the sample as the collector's [value, iso8601] pair
func (s BiometricSample) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{s.Value, FormatTimestamp(s.ObservedAt)})
}

// MergedRecord holds at most one sample per metric for a single cycle
type MergedRecord map[MetricKey]BiometricSample

// HealthPayload is the body POSTed to the remote collector
type HealthPayload struct {
	UID        string       `json:"uid"`
	DID        string       `json:"did"`
	Timestamp  string       `json:"ts"`
	DeviceType string       `json:"dt"`
	HealthData MergedRecord `json:"hd"`
}

// FormatTimestamp renders t the way the platform's ISO-8601 formatter does
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
