package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitoring-service/internal/models"
)

var defaultThresholds = Thresholds{AlertPercent: 20, WarningPercent: 10, BoundaryPercent: 5}

func ptr(v float64) *float64 { return &v }

func TestEvaluate(t *testing.T) {
	pulse := &models.IndicatorLimits{Min: 60, Max: 100}

	tests := []struct {
		name     string
		value    float64
		previous *float64
		limits   *models.IndicatorLimits
		kind     models.AlertKind
		reason   string
	}{
		{name: "cold start out of range", value: 150, limits: pulse},
		{name: "out of range", value: 150, previous: ptr(140), limits: pulse, kind: models.AlertKindAlert, reason: "outside limits"},
		{name: "out of range and sharp", value: 150, previous: ptr(80), limits: pulse, kind: models.AlertKindAlert, reason: "changed by 87.5%"},
		{name: "sharp change inside limits", value: 70, previous: ptr(95), limits: pulse, kind: models.AlertKindAlert, reason: "changed by 26.3%"},
		{name: "near upper limit", value: 97, previous: ptr(96), limits: pulse, kind: models.AlertKindWarning, reason: "upper limit 100"},
		{name: "near lower limit", value: 62, previous: ptr(63), limits: pulse, kind: models.AlertKindWarning, reason: "lower limit 60"},
		{name: "moderate change", value: 88, previous: ptr(77), limits: pulse, kind: models.AlertKindWarning, reason: "changed by 14.3%"},
		{name: "exactly at alert threshold is a warning", value: 84, previous: ptr(70), limits: pulse, kind: models.AlertKindWarning, reason: "changed by 20.0%"},
		{name: "stable", value: 80, previous: ptr(78), limits: pulse},
		{name: "no limits moderate change", value: 111, previous: ptr(100), kind: models.AlertKindWarning, reason: "changed by 11.0%"},
		{name: "no limits small change", value: 105, previous: ptr(100)},
		{name: "previous zero skips deviation", value: 80, previous: ptr(0), limits: pulse},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.value, tc.previous, tc.limits, defaultThresholds)
			if tc.kind == "" {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tc.kind, got[0].Kind)
			assert.Contains(t, got[0].Reason, tc.reason)
		})
	}
}

func TestEvaluateMergesAlertReasons(t *testing.T) {
	got := Evaluate(150, ptr(80), &models.IndicatorLimits{Min: 60, Max: 100}, defaultThresholds)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Reason, "outside limits")
	assert.Contains(t, got[0].Reason, "changed by")
}

func TestGatekeeperPermit(t *testing.T) {
	gate := Gatekeeper{AlertTimeout: 5 * time.Minute, WarningTimeout: 10 * time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := func(kind models.AlertKind, ago time.Duration) *models.LastAlertState {
		return &models.LastAlertState{Kind: kind, Timestamp: now.Add(-ago)}
	}

	assert.True(t, gate.Permit(nil, models.AlertKindAlert, now))
	assert.True(t, gate.Permit(nil, models.AlertKindWarning, now))

	assert.False(t, gate.Permit(state(models.AlertKindAlert, 2*time.Minute), models.AlertKindAlert, now))
	assert.True(t, gate.Permit(state(models.AlertKindAlert, 5*time.Minute), models.AlertKindAlert, now))
	assert.False(t, gate.Permit(state(models.AlertKindWarning, 9*time.Minute), models.AlertKindWarning, now))
	assert.True(t, gate.Permit(state(models.AlertKindWarning, 10*time.Minute), models.AlertKindWarning, now))

	assert.True(t, gate.Permit(state(models.AlertKindWarning, 0), models.AlertKindAlert, now))
	assert.False(t, gate.Permit(state(models.AlertKindAlert, 0), models.AlertKindWarning, now))
	assert.False(t, gate.Permit(state(models.AlertKindAlert, 23*time.Hour), models.AlertKindWarning, now))
}

func TestGatekeeperFilter(t *testing.T) {
	gate := Gatekeeper{AlertTimeout: 5 * time.Minute, WarningTimeout: 10 * time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	signals := []Signal{
		{Kind: models.AlertKindWarning, Reason: "near"},
		{Kind: models.AlertKindAlert, Reason: "outside"},
		{Kind: models.AlertKindAlert, Reason: "sharp"},
	}
	got := gate.Filter(signals, nil, now)
	require.Len(t, got, 1)
	assert.Equal(t, "outside", got[0].Reason)

	got = gate.Filter([]Signal{{Kind: models.AlertKindWarning, Reason: "near"}}, nil, now)
	assert.Len(t, got, 1)
}
