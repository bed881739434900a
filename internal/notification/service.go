// Package notification queues notification requests and delivers them over
// the registered channels, dead-lettering what cannot be delivered.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"monitoring-service/internal/clock"
	"monitoring-service/internal/db"
	"monitoring-service/internal/logging"
	"monitoring-service/internal/models"
	"monitoring-service/internal/permanent"
	"monitoring-service/internal/providers"
	"monitoring-service/internal/queue"
	"monitoring-service/internal/utils"
)

// ErrTemplateNotFound is a permanent delivery error for a request naming a missing template.
var ErrTemplateNotFound = errors.New("template not found")

const storeTimeout = 5 * time.Second

// Store is the part of the record store the service needs.
type Store interface {
	GetTemplate(ctx context.Context, name string) (models.Template, error)
	SaveDeadLetter(ctx context.Context, dl models.DeadLetterMessage) error
	GetDeadLetter(ctx context.Context, id string) (models.DeadLetterMessage, error)
	ListDeadLetters(ctx context.Context, unprocessedOnly bool) ([]models.DeadLetterMessage, error)
	CountUnprocessedDeadLetters(ctx context.Context) (int, error)
	MarkDeadLetterProcessed(ctx context.Context, id string, at time.Time) (models.DeadLetterMessage, error)
}

type Options struct {
	Retry        utils.RetryPolicy
	SendTimeout  time.Duration
	PollInterval time.Duration
	Concurrency  int
	DrainTimeout time.Duration

	AlertRecipient string
	AlertChannel   models.ChannelType
	AlertTemplate  string
}

func (o Options) withDefaults() Options {
	if o.Retry.MaxAttempts < 1 {
		o.Retry.MaxAttempts = 3
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 10 * time.Second
	}
	return o
}

// Stats counts delivery outcomes since start.
type Stats struct {
	Queued       int    `json:"queued"`
	InFlight     int64  `json:"inFlight"`
	Enqueued     uint64 `json:"enqueued"`
	Delivered    uint64 `json:"delivered"`
	DeadLettered uint64 `json:"deadLettered"`
}

// Service owns the priority queue and its processor.
type Service struct {
	queue    *queue.PriorityQueue
	registry *providers.Registry
	store    Store
	clock    clock.Clock
	logger   *logging.Logger
	opts     Options
	slots    *semaphore.Weighted
	inflight sync.WaitGroup

	enqueued     atomic.Uint64
	delivered    atomic.Uint64
	deadLettered atomic.Uint64
	active       atomic.Int64
}

func New(q *queue.PriorityQueue, registry *providers.Registry, store Store, clk clock.Clock, logger *logging.Logger, opts Options) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	opts = opts.withDefaults()
	return &Service{
		queue:    q,
		registry: registry,
		store:    store,
		clock:    clk,
		logger:   logger,
		opts:     opts,
		slots:    semaphore.NewWeighted(int64(opts.Concurrency)),
	}
}

// Enqueue validates req, stamps it and puts it on the queue.
func (s *Service) Enqueue(_ context.Context, req models.NotificationRequest) (models.NotificationRequest, error) {
	if err := req.Validate(); err != nil {
		return models.NotificationRequest{}, permanent.Mark(err)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.clock.Now()
	}
	if req.Source == "" {
		req.Source = models.SourceAPI
	}
	if err := s.queue.Enqueue(req); err != nil {
		return models.NotificationRequest{}, fmt.Errorf("enqueue %s: %w", req.ID, err)
	}
	s.enqueued.Add(1)
	s.requestLog(req).Infof("Notification %s", models.StatusQueued)
	return req, nil
}

// EnqueueEnvelope handles a request read from topic. An envelope that can
// never be delivered is dead-lettered at once; the returned error is non-nil
// only when the request could be neither queued nor dead-lettered.
func (s *Service) EnqueueEnvelope(ctx context.Context, topic string, env models.Envelope) error {
	req, err := env.ToRequest(topic)
	if err == nil {
		_, err = s.Enqueue(ctx, req)
		if err == nil || !permanent.Is(err) {
			return err
		}
	}
	s.logger.WithFields(logging.Fields{"topic": topic, "recipient": env.Recipient}).WithError(err).
		Warnf("Rejecting notification envelope")
	return s.saveDeadLetter(ctx, models.DeadLetterMessage{
		OriginalTopic: topic,
		Channel:       models.ChannelType(env.Type),
		Receiver:      env.Recipient,
		Subject:       env.Subject,
		Body:          env.Body,
		Priority:      env.RequestPriority(),
		ErrorMessage:  err.Error(),
	})
}

// HandleAlertEvent turns an alert event into a request for the on-call recipient.
func (s *Service) HandleAlertEvent(ctx context.Context, topic string, event models.AlertEvent) error {
	priority := models.PriorityHigh
	if event.Kind == models.AlertKindAlert {
		priority = models.PriorityCritical
	}
	req := models.NotificationRequest{
		Recipient: s.opts.AlertRecipient,
		Channel:   s.opts.AlertChannel,
		Priority:  priority,
		Source:    topic,
		Subject:   fmt.Sprintf("[%s] %s for patient %s", strings.ToUpper(string(event.Kind)), event.Indicator, event.PatientID),
		Body: fmt.Sprintf("Patient %s, %s = %g: %s (at %s)",
			event.PatientID, event.Indicator, event.Value, event.Reason, event.CreatedAt.Format(time.RFC3339)),
	}
	if s.opts.AlertTemplate != "" {
		req.TemplateName = s.opts.AlertTemplate
		req.TemplateParameters = map[string]string{
			"patientId": event.PatientID,
			"indicator": event.Indicator,
			"kind":      string(event.Kind),
			"reason":    event.Reason,
			"value":     fmt.Sprintf("%g", event.Value),
			"createdAt": event.CreatedAt.Format(time.RFC3339),
		}
	}
	_, err := s.Enqueue(ctx, req)
	if permanent.Is(err) {
		// Misconfigured routing; redelivery would fail the same way.
		s.logger.WithField("alert_id", event.ID).WithError(err).Errorf("Dropping alert notification")
		return nil
	}
	return err
}

// Run dequeues requests until ctx is done and delivers each on its own
// goroutine. A delivery slot is taken before dequeuing so the most urgent
// request always gets the next free slot. Deliveries still running at
// shutdown get DrainTimeout to finish.
func (s *Service) Run(ctx context.Context) error {
	deliveryCtx, cancelDeliveries := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDeliveries()

	s.logger.Infof("Queue processor started")
	for ctx.Err() == nil {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			break
		}
		req, ok := s.queue.TryDequeue()
		if !ok {
			s.slots.Release(1)
			timer := time.NewTimer(s.opts.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
			continue
		}
		s.inflight.Add(1)
		s.active.Add(1)
		go func() {
			defer s.inflight.Done()
			defer s.active.Add(-1)
			defer s.slots.Release(1)
			s.deliver(deliveryCtx, req)
		}()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.opts.DrainTimeout):
		s.logger.Warnf("Drain timeout elapsed with %d delivery(ies) running", s.active.Load())
		cancelDeliveries()
		<-done
	}
	s.logger.Infof("Queue processor stopped, %d request(s) left in queue", s.queue.Count())
	return nil
}

func (s *Service) deliver(ctx context.Context, req models.NotificationRequest) {
	log := s.requestLog(req)
	log.Infof("Notification %s", models.StatusDispatched)

	rendered := req
	attempts := 0
	sender, err := s.registry.Resolve(req.Channel)
	if err == nil {
		attempts, err = utils.Retry(ctx, log, s.opts.Retry, func(int) error {
			attemptCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
			defer cancel()
			out, err := s.render(attemptCtx, req)
			if err != nil {
				return err
			}
			rendered = out
			return sender.Send(attemptCtx, out)
		})
	}
	if err != nil {
		saveErr := s.saveDeadLetter(ctx, models.DeadLetterMessage{
			RequestID:     req.ID,
			OriginalTopic: req.Source,
			Channel:       req.Channel,
			Receiver:      req.Recipient,
			Subject:       rendered.Subject,
			Body:          rendered.Body,
			Priority:      req.Priority,
			ErrorMessage:  err.Error(),
			Attempts:      attempts,
		})
		if saveErr != nil {
			log.WithError(saveErr).Errorf("Notification lost: could not store dead letter after: %v", err)
		}
		return
	}
	s.delivered.Add(1)
	log.WithField("attempts", attempts).Infof("Notification %s", models.StatusDelivered)
}

// render fills a named template from the request parameters. Unknown
// placeholders are left as they are.
func (s *Service) render(ctx context.Context, req models.NotificationRequest) (models.NotificationRequest, error) {
	if req.TemplateName == "" {
		return req, nil
	}
	tpl, err := s.store.GetTemplate(ctx, req.TemplateName)
	if errors.Is(err, db.ErrNotFound) {
		return req, permanent.Mark(fmt.Errorf("%w: %q", ErrTemplateNotFound, req.TemplateName))
	}
	if err != nil {
		return req, fmt.Errorf("load template %q: %w", req.TemplateName, err)
	}
	replacer := placeholderReplacer(req.TemplateParameters)
	req.Subject = replacer.Replace(tpl.Subject)
	req.Body = replacer.Replace(tpl.Body)
	return req, nil
}

func placeholderReplacer(params map[string]string) *strings.Replacer {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", params[k])
	}
	return strings.NewReplacer(pairs...)
}

func (s *Service) saveDeadLetter(ctx context.Context, dl models.DeadLetterMessage) error {
	dl.ID = uuid.NewString()
	dl.CreatedAt = s.clock.Now()
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := s.store.SaveDeadLetter(saveCtx, dl); err != nil {
		return fmt.Errorf("save dead letter: %w", err)
	}
	s.deadLettered.Add(1)
	s.logger.WithFields(logging.Fields{
		"request_id":     dl.RequestID,
		"dead_letter_id": dl.ID,
		"channel":        dl.Channel,
		"attempts":       dl.Attempts,
	}).Warnf("Notification %s: %s", models.StatusDeadLettered, dl.ErrorMessage)
	return nil
}

func (s *Service) DeadLetters(ctx context.Context) ([]models.DeadLetterMessage, error) {
	return s.store.ListDeadLetters(ctx, false)
}

func (s *Service) UnprocessedDeadLetters(ctx context.Context) ([]models.DeadLetterMessage, error) {
	return s.store.ListDeadLetters(ctx, true)
}

func (s *Service) CountUnprocessedDeadLetters(ctx context.Context) (int, error) {
	return s.store.CountUnprocessedDeadLetters(ctx)
}

// MarkProcessed closes a dead letter. It fails with db.ErrNotFound or
// db.ErrAlreadyProcessed.
func (s *Service) MarkProcessed(ctx context.Context, id string) (models.DeadLetterMessage, error) {
	dl, err := s.store.MarkDeadLetterProcessed(ctx, id, s.clock.Now())
	if err != nil {
		return models.DeadLetterMessage{}, err
	}
	s.logger.WithField("dead_letter_id", id).Infof("Dead letter marked processed")
	return dl, nil
}

// Resend queues a dead letter again as a new request and then marks it
// processed. A dead letter that cannot be queued stays open.
func (s *Service) Resend(ctx context.Context, id string) (models.NotificationRequest, error) {
	dl, err := s.store.GetDeadLetter(ctx, id)
	if err != nil {
		return models.NotificationRequest{}, err
	}
	if dl.IsProcessed {
		return models.NotificationRequest{}, fmt.Errorf("dead letter %s: %w", id, db.ErrAlreadyProcessed)
	}
	req := models.NotificationRequest{
		Recipient: dl.Receiver,
		Channel:   dl.Channel,
		Subject:   dl.Subject,
		Body:      dl.Body,
		Priority:  dl.Priority,
		Source:    dl.OriginalTopic,
	}
	if err := req.Validate(); err != nil {
		return models.NotificationRequest{}, permanent.Mark(fmt.Errorf("dead letter %s cannot be resent: %w", id, err))
	}
	// Queue first: a dead letter only closes once its copy is on the queue.
	queued, err := s.Enqueue(ctx, req)
	if err != nil {
		return models.NotificationRequest{}, err
	}
	if _, err := s.MarkProcessed(ctx, id); err != nil {
		s.logger.WithFields(logging.Fields{"dead_letter_id": id, "request_id": queued.ID}).WithError(err).
			Errorf("Dead letter resent but not marked processed")
	}
	return queued, nil
}

func (s *Service) QueueDepth() int {
	return s.queue.Count()
}

func (s *Service) Stats() Stats {
	return Stats{
		Queued:       s.queue.Count(),
		InFlight:     s.active.Load(),
		Enqueued:     s.enqueued.Load(),
		Delivered:    s.delivered.Load(),
		DeadLettered: s.deadLettered.Load(),
	}
}

func (s *Service) requestLog(req models.NotificationRequest) *logging.Logger {
	return s.logger.WithFields(logging.Fields{
		"request_id": req.ID,
		"channel":    req.Channel,
		"priority":   req.Priority.String(),
	})
}
