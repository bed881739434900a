package alerting

import (
	"fmt"
	"math"
	"strings"

	"monitoring-service/internal/models"
)

// Thresholds are the percentages the evaluator compares against.
type Thresholds struct {
	AlertPercent    float64
	WarningPercent  float64
	BoundaryPercent float64
}

// Signal is a raw candidate before hysteresis is applied.
type Signal struct {
	Kind   models.AlertKind
	Reason string
}

// Evaluate returns at most one alert, or failing that at most one warning, for
// value given the previous value and optional limits. A reading without a
// previous value never produces a signal.
func Evaluate(value float64, previous *float64, limits *models.IndicatorLimits, th Thresholds) []Signal {
	if previous == nil {
		return nil
	}

	pct, hasPct := changePercent(value, *previous)

	var alerts []string
	if limits != nil && (value < limits.Min || value > limits.Max) {
		alerts = append(alerts, fmt.Sprintf("value %s outside limits [%s, %s]",
			formatValue(value), formatValue(limits.Min), formatValue(limits.Max)))
	}
	if hasPct && pct > th.AlertPercent {
		alerts = append(alerts, fmt.Sprintf("changed by %.1f%% from %s", pct, formatValue(*previous)))
	}
	if len(alerts) > 0 {
		return []Signal{{Kind: models.AlertKindAlert, Reason: strings.Join(alerts, "; ")}}
	}

	var warnings []string
	if limits != nil {
		if reason, near := nearBoundary(value, *limits, th.BoundaryPercent); near {
			warnings = append(warnings, reason)
		}
	}
	if hasPct && pct > th.WarningPercent && pct <= th.AlertPercent {
		warnings = append(warnings, fmt.Sprintf("changed by %.1f%% from %s", pct, formatValue(*previous)))
	}
	if len(warnings) > 0 {
		return []Signal{{Kind: models.AlertKindWarning, Reason: strings.Join(warnings, "; ")}}
	}
	return nil
}

// changePercent is undefined when previous is zero.
func changePercent(value, previous float64) (float64, bool) {
	if previous == 0 {
		return 0, false
	}
	return math.Abs(value-previous) * 100 / math.Abs(previous), true
}

func nearBoundary(value float64, limits models.IndicatorLimits, pct float64) (string, bool) {
	if pct <= 0 {
		return "", false
	}
	lowEdge := limits.Min + math.Abs(limits.Min)*pct/100
	highEdge := limits.Max - math.Abs(limits.Max)*pct/100
	switch {
	case value <= lowEdge:
		return fmt.Sprintf("value %s within %s%% of lower limit %s",
			formatValue(value), formatValue(pct), formatValue(limits.Min)), true
	case value >= highEdge:
		return fmt.Sprintf("value %s within %s%% of upper limit %s",
			formatValue(value), formatValue(pct), formatValue(limits.Max)), true
	}
	return "", false
}

func formatValue(v float64) string {
	return fmt.Sprintf("%g", v)
}
