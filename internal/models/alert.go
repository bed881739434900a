package models

import (
	"fmt"
	"strings"
	"time"
)

// MetricReading is one physiological measurement for a patient.
type MetricReading struct {
	PatientID string    `json:"patientId"`
	Indicator string    `json:"indicatorName"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the fields the decision engine relies on.
func (r MetricReading) Validate() error {
	if strings.TrimSpace(r.PatientID) == "" {
		return fmt.Errorf("patientId is required")
	}
	if strings.TrimSpace(r.Indicator) == "" {
		return fmt.Errorf("indicatorName is required")
	}
	return nil
}

// IndicatorLimits is the accepted [Min, Max] range of an indicator.
type IndicatorLimits struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// AlertKind is the severity of a decision.
type AlertKind string

const (
	AlertKindWarning AlertKind = "warning"
	AlertKindAlert   AlertKind = "alert"
)

// Severity orders kinds; higher is more severe.
func (k AlertKind) Severity() int {
	switch k {
	case AlertKindAlert:
		return 2
	case AlertKindWarning:
		return 1
	default:
		return 0
	}
}

func (k AlertKind) Valid() bool {
	return k == AlertKindAlert || k == AlertKindWarning
}

// LastAlertState is the most recent emission for one patient indicator.
type LastAlertState struct {
	Kind      AlertKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertEvent is produced once per permitted decision.
type AlertEvent struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	Indicator string    `json:"indicator"`
	Kind      AlertKind `json:"alertKind"`
	Reason    string    `json:"reason"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}
