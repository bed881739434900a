// Package alerting decides when a metric reading becomes an alert event.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"monitoring-service/internal/clock"
	"monitoring-service/internal/history"
	"monitoring-service/internal/logging"
	"monitoring-service/internal/models"
)

// ErrHistoryUnavailable wraps history store failures that abandon an evaluation.
var ErrHistoryUnavailable = errors.New("metric history unavailable")

// Catalog resolves an indicator name to its limits. ok is false for unknown
// indicators; a nil limits value means only deviation rules apply.
type Catalog interface {
	Lookup(name string) (*models.IndicatorLimits, bool)
}

// EventSink receives permitted alert events.
type EventSink interface {
	Publish(ctx context.Context, event models.AlertEvent) error
}

type Options struct {
	Thresholds     Thresholds
	AlertTimeout   time.Duration
	WarningTimeout time.Duration
	HistoryTTL     time.Duration
}

// Stats counts engine outcomes since start.
type Stats struct {
	Evaluated  uint64 `json:"evaluated"`
	Emitted    uint64 `json:"emitted"`
	Suppressed uint64 `json:"suppressed"`
	Unknown    uint64 `json:"unknownIndicators"`
	Abandoned  uint64 `json:"abandoned"`
}

type Engine struct {
	catalog Catalog
	history history.Store
	sink    EventSink
	clock   clock.Clock
	logger  *logging.Logger
	gate    Gatekeeper
	opts    Options
	locks   *history.KeyedMutex

	evaluated  atomic.Uint64
	emitted    atomic.Uint64
	suppressed atomic.Uint64
	unknown    atomic.Uint64
	abandoned  atomic.Uint64
}

func NewEngine(catalog Catalog, store history.Store, sink EventSink, clk clock.Clock, logger *logging.Logger, opts Options) *Engine {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{
		catalog: catalog,
		history: store,
		sink:    sink,
		clock:   clk,
		logger:  logger,
		gate:    Gatekeeper{AlertTimeout: opts.AlertTimeout, WarningTimeout: opts.WarningTimeout},
		opts:    opts,
		locks:   history.NewKeyedMutex(),
	}
}

// Process evaluates one reading and returns the alert events it emitted.
// Readings for the same patient indicator are evaluated one at a time.
func (e *Engine) Process(ctx context.Context, reading models.MetricReading) ([]models.AlertEvent, error) {
	if err := reading.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reading: %w", err)
	}
	log := e.logger.WithFields(logging.Fields{"patient_id": reading.PatientID, "indicator": reading.Indicator})

	limits, known := e.catalog.Lookup(reading.Indicator)
	if !known {
		e.unknown.Add(1)
		log.Warnf("Unknown indicator, reading not evaluated")
		return nil, nil
	}
	e.evaluated.Add(1)

	key := history.Key{
		PatientID: strings.TrimSpace(reading.PatientID),
		Indicator: strings.ToLower(strings.TrimSpace(reading.Indicator)),
	}
	unlock := e.locks.Lock(key)
	defer unlock()

	prev, hasPrev, err := e.history.LastValue(ctx, key)
	if err != nil {
		return nil, e.abandon(log, err)
	}
	if err := e.history.SetLastValue(ctx, key, reading.Value, e.opts.HistoryTTL); err != nil {
		return nil, e.abandon(log, err)
	}

	var previous *float64
	if hasPrev {
		previous = &prev
	}
	signals := Evaluate(reading.Value, previous, limits, e.opts.Thresholds)
	if len(signals) == 0 {
		return nil, nil
	}

	state, hasState, err := e.history.LastAlert(ctx, key)
	if err != nil {
		return nil, e.abandon(log, err)
	}
	var prior *models.LastAlertState
	if hasState {
		prior = &state
	}

	now := e.clock.Now()
	permitted := e.gate.Filter(signals, prior, now)
	e.suppressed.Add(uint64(len(signals) - len(permitted)))
	if len(permitted) == 0 {
		log.Debugf("Suppressed %d candidate(s) by hysteresis", len(signals))
		return nil, nil
	}

	events := make([]models.AlertEvent, 0, len(permitted))
	for _, s := range permitted {
		event := models.AlertEvent{
			ID:        uuid.NewString(),
			PatientID: key.PatientID,
			Indicator: reading.Indicator,
			Kind:      s.Kind,
			Reason:    s.Reason,
			Value:     reading.Value,
			CreatedAt: now,
		}
		if err := e.sink.Publish(ctx, event); err != nil {
			// Put the previous value back so a redelivered reading is judged
			// against the same baseline and raises the alert again.
			if hasPrev {
				if rerr := e.history.SetLastValue(ctx, key, prev, e.opts.HistoryTTL); rerr != nil {
					log.WithError(rerr).Errorf("Failed to restore previous value after emit failure")
				}
			}
			return events, fmt.Errorf("emit %s: %w", s.Kind, err)
		}
		// Last alert state is written only once the event is out.
		if err := e.history.SetLastAlert(ctx, key, models.LastAlertState{Kind: s.Kind, Timestamp: now}, e.opts.HistoryTTL); err != nil {
			log.WithError(err).Errorf("Failed to record last alert state")
		}
		e.emitted.Add(1)
		events = append(events, event)
		log.WithField("alert_id", event.ID).Infof("Emitted %s: %s", s.Kind, s.Reason)
	}
	return events, nil
}

func (e *Engine) abandon(log *logging.Logger, err error) error {
	e.abandoned.Add(1)
	log.WithError(err).Errorf("Evaluation abandoned, history store failed")
	return fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
}

func (e *Engine) Stats() Stats {
	return Stats{
		Evaluated:  e.evaluated.Load(),
		Emitted:    e.emitted.Load(),
		Suppressed: e.suppressed.Load(),
		Unknown:    e.unknown.Load(),
		Abandoned:  e.abandoned.Load(),
	}
}
