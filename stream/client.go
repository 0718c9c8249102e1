package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amadeus-ai/nexuskit/errors"
	"github.com/amadeus-ai/nexuskit/metric"
	"github.com/amadeus-ai/nexuskit/pkg/queue"
)

// Client coordinates one producer goroutine and a pool of consumer
// goroutines over a bounded event queue.
type Client struct {
	bus           Bus
	events        *queue.Queue[Event]
	queueCapacity int
	logger        *slog.Logger
	metrics       *metric.Core
	metricsReg    *metric.Registry
	popTimeout    time.Duration

	// Aggregated per-type event counts, logged periodically when enabled.
	summaryInterval time.Duration
	summaryCounts   map[string]int64
	lastSummary     time.Time

	lifecycleMu    sync.Mutex
	started        bool
	stopping       atomic.Bool
	cancel         context.CancelFunc
	cancelProducer context.CancelFunc
	wg             sync.WaitGroup

	errMu       sync.Mutex
	producerErr error
}

// Option configures a Client.
type Option func(*Client)

// WithQueueCapacity sets the bounded queue capacity (default 1000).
func WithQueueCapacity(capacity int) Option {
	return func(c *Client) {
		c.queueCapacity = capacity
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics enables pipeline metrics on the core registry.
func WithMetrics(core *metric.Core) Option {
	return func(c *Client) {
		c.metrics = core
	}
}

// WithQueueMetrics additionally registers per-queue depth and throughput
// metrics on reg.
func WithQueueMetrics(reg *metric.Registry) Option {
	return func(c *Client) {
		c.metricsReg = reg
	}
}

// WithPopTimeout sets the consumer poll interval, which bounds shutdown
// latency (default 200ms).
func WithPopTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.popTimeout = d
	}
}

// WithSummaryLogging enables periodic aggregated per-type event count logs.
func WithSummaryLogging(interval time.Duration) Option {
	return func(c *Client) {
		c.summaryInterval = interval
	}
}

// NewClient creates a stream client for the given bus.
func NewClient(bus Bus, opts ...Option) (*Client, error) {
	c := &Client{
		bus:           bus,
		queueCapacity: 1000,
		logger:        slog.Default(),
		popTimeout:    200 * time.Millisecond,
		summaryCounts: make(map[string]int64),
		lastSummary:   time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}

	var qopts []queue.Option[Event]
	if c.metrics != nil {
		qopts = append(qopts, queue.WithDropCallback(func(Event) {
			c.metrics.EventsDropped.Inc()
		}))
	}
	if c.metricsReg != nil {
		qopts = append(qopts, queue.WithMetrics[Event](c.metricsReg, "nexuskit_event_queue"))
	}

	events, err := queue.New(c.queueCapacity, qopts...)
	if err != nil {
		return nil, errors.Wrap(err, "Client", "NewClient", "create event queue")
	}
	c.events = events
	return c, nil
}

// Subscribe opens a bus subscription and starts one producer plus
// workerCount consumers. The handler is invoked once per delivered event;
// handler errors are logged and never terminate a worker.
func (c *Client) Subscribe(ctx context.Context, filter Filter, handler Handler, workerCount int) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Client", "Subscribe", "check lifecycle")
	}
	if workerCount <= 0 {
		workerCount = 4
	}

	sub, err := c.bus.Subscribe(ctx, filter)
	if err != nil {
		return errors.WrapTransient(err, "Client", "Subscribe", "open subscription")
	}

	runCtx, cancel := context.WithCancel(ctx)
	prodCtx, cancelProducer := context.WithCancel(runCtx)
	c.cancel = cancel
	c.cancelProducer = cancelProducer
	c.started = true

	c.wg.Add(1)
	go c.producer(prodCtx, sub)

	for i := 0; i < workerCount; i++ {
		c.wg.Add(1)
		go c.consumer(runCtx, i, handler)
	}

	c.logger.Info("subscription started",
		"event_types", filter.EventTypes,
		"workers", workerCount,
		"queue_capacity", c.events.Capacity(),
	)
	return nil
}

// Publish sends one event synchronously. Transport errors are logged and
// propagated to the caller; there is no retry at this layer.
func (c *Client) Publish(ctx context.Context, event Event) (Ack, error) {
	ack, err := c.bus.Publish(ctx, event)
	if err != nil {
		c.logger.Error("failed to publish event",
			"type", event.Type,
			"event_id", event.ID,
			"error", err,
		)
		if c.metrics != nil {
			c.metrics.EventsPublished.WithLabelValues(event.Type, "error").Inc()
		}
		return Ack{}, errors.WrapTransient(err, "Client", "Publish", "emit event")
	}

	c.logger.Debug("published event", "type", event.Type, "event_id", event.ID)
	if c.metrics != nil {
		c.metrics.EventsPublished.WithLabelValues(event.Type, "success").Inc()
	}
	return ack, nil
}

// Stop signals all producer and consumer goroutines to exit, then blocks
// until the queue has fully drained. No push succeeds after Stop begins;
// events already buffered are still delivered.
func (c *Client) Stop() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if !c.started || c.stopping.Load() {
		return
	}
	c.stopping.Store(true)

	// Closing the queue first guarantees no push succeeds after this point.
	// Only the producer context is cancelled before the drain: the handler
	// context stays live until Join returns, so buffered events are still
	// processed with a usable context.
	_ = c.events.Close()
	c.cancelProducer()

	c.events.Join()
	c.cancel()
	c.wg.Wait()

	c.logger.Info("stream client stopped",
		"delivered", c.events.Stats().Pops(),
		"dropped", c.events.Stats().Drops(),
	)
}

// Err returns the transport error that terminated the producer, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.producerErr
}

// QueueStats exposes queue statistics for observability.
func (c *Client) QueueStats() queue.StatsSummary {
	return c.events.Stats().Summary()
}

// producer drains the subscription into the queue. A transport failure
// terminates only the producer; consumers keep draining buffered events.
func (c *Client) producer(ctx context.Context, sub Subscription) {
	defer c.wg.Done()
	defer func() {
		if err := sub.Close(); err != nil {
			c.logger.Debug("subscription close", "error", err)
		}
	}()

	for {
		if c.stopping.Load() {
			return
		}

		event, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || c.stopping.Load() {
				return
			}
			c.logger.Error("event subscription failed", "error", err)
			c.errMu.Lock()
			c.producerErr = errors.WrapTransient(err, "Client", "producer", "receive event")
			c.errMu.Unlock()
			return
		}

		if c.metrics != nil {
			c.metrics.EventsReceived.WithLabelValues(event.Type).Inc()
		}
		c.recordSummary(event.Type)

		if !c.events.Push(event) {
			c.logger.Warn("event queue full, dropping event for backpressure",
				"type", event.Type,
				"event_id", event.ID,
			)
		}
	}
}

// consumer pops events and invokes the handler. It exits once stop has been
// signalled and the queue stays empty for one poll interval.
func (c *Client) consumer(ctx context.Context, workerID int, handler Handler) {
	defer c.wg.Done()

	for {
		event, ok := c.events.Pop(c.popTimeout)
		if !ok {
			if c.stopping.Load() {
				return
			}
			continue
		}

		c.handle(ctx, workerID, handler, event)
		c.events.Done()
	}
}

// handle invokes the handler for one event, containing any failure so a bad
// event never stops the pool.
func (c *Client) handle(ctx context.Context, workerID int, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked",
				"worker", workerID,
				"type", event.Type,
				"event_id", event.ID,
				"panic", r,
			)
			if c.metrics != nil {
				c.metrics.EventsProcessed.WithLabelValues(event.Type, "panic").Inc()
			}
		}
	}()

	c.logger.Debug("processing event", "worker", workerID, "type", event.Type, "event_id", event.ID)

	if err := handler(ctx, event); err != nil {
		c.logger.Error("error in event handler",
			"worker", workerID,
			"type", event.Type,
			"event_id", event.ID,
			"error", err,
		)
		if c.metrics != nil {
			c.metrics.EventsProcessed.WithLabelValues(event.Type, "error").Inc()
		}
		return
	}

	if c.metrics != nil {
		c.metrics.EventsProcessed.WithLabelValues(event.Type, "success").Inc()
	}
}

// recordSummary aggregates per-type counts on the producer goroutine and
// logs a summary once per interval when summary logging is enabled.
func (c *Client) recordSummary(eventType string) {
	if c.summaryInterval <= 0 {
		return
	}

	c.summaryCounts[eventType]++
	if time.Since(c.lastSummary) < c.summaryInterval {
		return
	}

	counts := make([]any, 0, len(c.summaryCounts)*2)
	for t, n := range c.summaryCounts {
		counts = append(counts, t, n)
	}
	c.logger.Info("aggregated event summary", counts...)

	c.summaryCounts = make(map[string]int64)
	c.lastSummary = time.Now()
}
