package alerting

import (
	"sort"
	"time"

	"monitoring-service/internal/models"
)

// Gatekeeper applies hysteresis to raw signals.
type Gatekeeper struct {
	AlertTimeout   time.Duration
	WarningTimeout time.Duration
}

func (g Gatekeeper) timeout(kind models.AlertKind) time.Duration {
	if kind == models.AlertKindAlert {
		return g.AlertTimeout
	}
	return g.WarningTimeout
}

// Permit decides whether candidate may be emitted given the prior state.
// An existing alert state suppresses warnings regardless of its age.
func (g Gatekeeper) Permit(prior *models.LastAlertState, candidate models.AlertKind, now time.Time) bool {
	if prior == nil {
		return true
	}
	switch {
	case prior.Kind == candidate:
		return now.Sub(prior.Timestamp) >= g.timeout(candidate)
	case prior.Kind == models.AlertKindWarning && candidate == models.AlertKindAlert:
		return true
	case prior.Kind == models.AlertKindAlert && candidate == models.AlertKindWarning:
		return false
	}
	return true
}

// Filter walks signals most severe first and returns the permitted ones.
// Each permitted signal becomes the prior state for the next, and at most one
// alert is returned per call.
func (g Gatekeeper) Filter(signals []Signal, prior *models.LastAlertState, now time.Time) []Signal {
	ordered := append([]Signal(nil), signals...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Kind.Severity() > ordered[j].Kind.Severity()
	})

	var permitted []Signal
	alerted := false
	for _, s := range ordered {
		if s.Kind == models.AlertKindAlert && alerted {
			continue
		}
		if !g.Permit(prior, s.Kind, now) {
			continue
		}
		permitted = append(permitted, s)
		prior = &models.LastAlertState{Kind: s.Kind, Timestamp: now}
		if s.Kind == models.AlertKindAlert {
			alerted = true
		}
	}
	return permitted
}
