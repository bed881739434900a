package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"monitoring-service/internal/logging"
)

const (
	commitTimeout = 5 * time.Second
	// cancelWait bounds how long cancelled handlers get to return before the
	// sources they commit to are closed.
	cancelWait = 2 * time.Second
)

type Options struct {
	MaxConcurrentOperations int
	PollTimeout             time.Duration
	AcquireTimeout          time.Duration
	ShutdownGrace           time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrentOperations < 1 {
		o.MaxConcurrentOperations = 5
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = time.Second
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = 5 * time.Second
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 10 * time.Second
	}
	return o
}

// Stats counts consumer outcomes since start.
type Stats struct {
	Received        uint64 `json:"received"`
	DecodeFailures  uint64 `json:"decodeFailures"`
	Handled         uint64 `json:"handled"`
	HandlerFailures uint64 `json:"handlerFailures"`
	CommitFailures  uint64 `json:"commitFailures"`
	InFlight        int64  `json:"inFlight"`
}

// Consumer runs one poll loop per route and a shared pool of handler slots.
type Consumer struct {
	opts   Options
	routes []Route
	logger *logging.Logger
	slots  *semaphore.Weighted
	tasks  sync.WaitGroup

	received        atomic.Uint64
	decodeFailures  atomic.Uint64
	handled         atomic.Uint64
	handlerFailures atomic.Uint64
	commitFailures  atomic.Uint64
	inFlight        atomic.Int64
}

func NewConsumer(opts Options, logger *logging.Logger, routes ...Route) (*Consumer, error) {
	if len(routes) == 0 {
		return nil, errors.New("stream consumer: at least one route is required")
	}
	for _, r := range routes {
		if r.Topic == "" || r.Source == nil || r.Decode == nil || r.Handle == nil {
			return nil, fmt.Errorf("stream consumer: route %q is incomplete", r.Topic)
		}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	opts = opts.withDefaults()
	return &Consumer{
		opts:   opts,
		routes: routes,
		logger: logger,
		slots:  semaphore.NewWeighted(int64(opts.MaxConcurrentOperations)),
	}, nil
}

// Run polls every route until ctx is done, waits up to the shutdown grace for
// in-flight handlers, then closes the sources.
func (c *Consumer) Run(ctx context.Context) error {
	// Handlers outlive ctx by the grace period.
	handlerCtx, cancelHandlers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelHandlers()

	var loops sync.WaitGroup
	for _, r := range c.routes {
		loops.Add(1)
		go func(r Route) {
			defer loops.Done()
			c.poll(ctx, handlerCtx, r)
		}(r)
	}
	loops.Wait()

	done := make(chan struct{})
	go func() {
		c.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.opts.ShutdownGrace):
		c.logger.Warnf("Shutdown grace elapsed with %d handler(s) still running; they will be redelivered", c.inFlight.Load())
		cancelHandlers()
		select {
		case <-done:
		case <-time.After(cancelWait):
			c.logger.Errorf("%d handler(s) ignored cancellation; closing sources anyway", c.inFlight.Load())
		}
	}

	var errs []error
	for _, r := range c.routes {
		if err := r.Source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", r.Topic, err))
		}
	}
	c.logger.Infof("Stream consumer stopped")
	return errors.Join(errs...)
}

func (c *Consumer) poll(ctx, handlerCtx context.Context, r Route) {
	log := c.logger.WithField("topic", r.Topic)
	log.Infof("Consumer started")
	for {
		if ctx.Err() != nil {
			return
		}
		fetchCtx, cancel := context.WithTimeout(ctx, c.opts.PollTimeout)
		msg, err := r.Source.Fetch(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			log.WithError(err).Errorf("Fetch failed")
			c.sleep(ctx, c.opts.PollTimeout)
			continue
		}
		c.received.Add(1)
		if msg.Topic == "" {
			msg.Topic = r.Topic
		}

		payload, err := r.Decode(msg)
		if err != nil {
			c.decodeFailures.Add(1)
			log.WithFields(logging.Fields{"offset": msg.Offset, "partition": msg.Partition}).WithError(err).
				Errorf("Dropping undecodable message")
			c.commit(log, r, msg)
			continue
		}

		if !c.acquire(ctx, log) {
			return
		}
		c.tasks.Add(1)
		c.inFlight.Add(1)
		go c.handle(handlerCtx, log, r, msg, payload)
	}
}

// acquire waits for a handler slot, warning each time the acquire timeout
// passes. It gives up only when ctx is done.
func (c *Consumer) acquire(ctx context.Context, log *logging.Logger) bool {
	for {
		acquireCtx, cancel := context.WithTimeout(ctx, c.opts.AcquireTimeout)
		err := c.slots.Acquire(acquireCtx, 1)
		cancel()
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		log.Warnf("No free handler slot after %s, waiting again", c.opts.AcquireTimeout)
	}
}

func (c *Consumer) handle(ctx context.Context, log *logging.Logger, r Route, msg Message, payload any) {
	defer c.tasks.Done()
	defer c.inFlight.Add(-1)
	defer c.slots.Release(1)

	if err := c.safeHandle(ctx, r, msg, payload); err != nil {
		c.handlerFailures.Add(1)
		log.WithFields(logging.Fields{"offset": msg.Offset, "partition": msg.Partition}).WithError(err).
			Errorf("Handler failed, message left uncommitted")
		return
	}
	c.handled.Add(1)
	c.commit(log, r, msg)
}

func (c *Consumer) safeHandle(ctx context.Context, r Route, msg Message, payload any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return r.Handle(ctx, msg, payload)
}

func (c *Consumer) commit(log *logging.Logger, r Route, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	if err := r.Source.Commit(ctx, msg); err != nil {
		c.commitFailures.Add(1)
		log.WithField("offset", msg.Offset).WithError(err).Errorf("Commit failed")
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Consumer) Stats() Stats {
	return Stats{
		Received:        c.received.Load(),
		DecodeFailures:  c.decodeFailures.Load(),
		Handled:         c.handled.Load(),
		HandlerFailures: c.handlerFailures.Load(),
		CommitFailures:  c.commitFailures.Load(),
		InFlight:        c.inFlight.Load(),
	}
}
