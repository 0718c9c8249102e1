package natsbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/amadeus-ai/nexuskit/errors"
	"github.com/amadeus-ai/nexuskit/metric"
	"github.com/amadeus-ai/nexuskit/stream"
)

// DefaultURL is the fixed fallback address when no environment variable is
// set.
const DefaultURL = "nats://nexus:4222"

// SubjectPrefix is the root of the event subject hierarchy.
const SubjectPrefix = "nexus.events."

// ResolveURL returns the bus address: explicit argument, then
// NEXUS_NATS_URL, then NATS_URL, then the fixed default.
func ResolveURL(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if url := os.Getenv("NEXUS_NATS_URL"); url != "" {
		return url
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		return url
	}
	return DefaultURL
}

// SubjectFor maps an event type to its bus subject.
func SubjectFor(eventType string) string {
	if eventType == "" || eventType == "*" {
		return SubjectPrefix + ">"
	}
	return SubjectPrefix + eventType
}

// Client owns a NATS connection and adapts it to the stream.Bus interface.
type Client struct {
	url     string
	logger  *slog.Logger
	metrics *metric.Core

	// Connection options
	name           string
	timeout        time.Duration
	maxReconnects  int
	reconnectWait  time.Duration
	drainTimeout   time.Duration
	requestTimeout time.Duration

	mu     sync.RWMutex
	conn   *nats.Conn
	closed bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics enables bus connectivity metrics.
func WithMetrics(core *metric.Core) Option {
	return func(c *Client) {
		c.metrics = core
	}
}

// WithName sets the client connection name.
func WithName(name string) Option {
	return func(c *Client) {
		c.name = name
	}
}

// WithTimeout sets the connect timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRequestTimeout sets the publish request/reply timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// WithMaxReconnects sets the reconnection attempt limit (-1 = infinite).
func WithMaxReconnects(n int) Option {
	return func(c *Client) {
		c.maxReconnects = n
	}
}

// NewClient creates a NATS bus client for the given URL. Pass an empty URL
// to resolve the address from the environment.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:            ResolveURL(url),
		logger:         slog.Default(),
		name:           "nexuskit",
		timeout:        5 * time.Second,
		maxReconnects:  -1,
		reconnectWait:  2 * time.Second,
		drainTimeout:   30 * time.Second,
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the resolved bus address.
func (c *Client) URL() string {
	return c.url
}

// Connect establishes the NATS connection.
func (c *Client) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(c.name),
		nats.Timeout(c.timeout),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Warn("bus disconnected", "error", err)
			if c.metrics != nil {
				c.metrics.BusConnected.Set(0)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.logger.Info("bus reconnected")
			if c.metrics != nil {
				c.metrics.BusConnected.Set(1)
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if c.metrics != nil {
				c.metrics.BusConnected.Set(0)
			}
		}),
	}

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			connectDone <- err
			return
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			return errors.WrapTransient(err, "Client", "Connect", "establish connection")
		}
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	c.logger.Info("connected to event bus", "url", c.url)
	if c.metrics != nil {
		c.metrics.BusConnected.Set(1)
	}
	return nil
}

// Close drains and closes the connection.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn == nil {
		return nil
	}

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- c.conn.Drain()
	}()

	var drainErr error
	select {
	case err := <-drainDone:
		drainErr = err
	case <-ctx.Done():
		drainErr = ctx.Err()
	case <-time.After(c.drainTimeout):
		drainErr = errors.ErrConnectionTimeout
	}

	c.conn.Close()
	c.conn = nil

	if drainErr != nil {
		return errors.Wrap(drainErr, "Client", "Close", "drain connection")
	}
	return nil
}

// Connected reports whether the underlying connection is live.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// connection returns the live connection or an error when disconnected.
func (c *Client) connection() (*nats.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return nil, errors.ErrNotConnected
	}
	return c.conn, nil
}

// Subscribe opens one NATS subscription per filtered event type and fans
// them into a single subscription stream.
func (c *Client) Subscribe(_ context.Context, filter stream.Filter) (stream.Subscription, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Subscribe", "check connection")
	}

	types := filter.EventTypes
	if len(types) == 0 {
		types = []string{"*"}
	}

	msgs := make(chan *nats.Msg, 256)
	sub := &subscription{msgs: msgs, logger: c.logger}

	for _, eventType := range types {
		natsSub, err := conn.ChanSubscribe(SubjectFor(eventType), msgs)
		if err != nil {
			_ = sub.Close()
			return nil, errors.WrapTransient(err, "Client", "Subscribe",
				"subscribe to "+SubjectFor(eventType))
		}
		sub.subs = append(sub.subs, natsSub)
	}

	return sub, nil
}

// Publish sends one event as a request and decodes the acknowledgement.
func (c *Client) Publish(ctx context.Context, event stream.Event) (stream.Ack, error) {
	conn, err := c.connection()
	if err != nil {
		return stream.Ack{}, errors.WrapTransient(err, "Client", "Publish", "check connection")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return stream.Ack{}, errors.WrapInvalid(err, "Client", "Publish", "encode event")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	msg, err := conn.RequestWithContext(reqCtx, SubjectFor(event.Type), data)
	if err != nil {
		return stream.Ack{}, errors.WrapTransient(err, "Client", "Publish", "request")
	}

	var ack stream.Ack
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		// A responder that does not speak the ack format still acknowledged
		// receipt; surface a minimal ack rather than failing the publish.
		return stream.Ack{EventID: event.ID}, nil
	}
	return ack, nil
}

// subscription adapts fanned-in NATS messages to the stream.Subscription
// interface.
type subscription struct {
	msgs   chan *nats.Msg
	subs   []*nats.Subscription
	logger *slog.Logger
}

// Next blocks until an event arrives or ctx is done. Messages that fail to
// decode are logged and skipped rather than terminating the stream.
func (s *subscription) Next(ctx context.Context) (stream.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return stream.Event{}, ctx.Err()
		case msg, ok := <-s.msgs:
			if !ok {
				return stream.Event{}, errors.ErrConnectionLost
			}

			var event stream.Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				if s.logger != nil {
					s.logger.Warn("skipping undecodable event", "subject", msg.Subject, "error", err)
				}
				continue
			}
			return event, nil
		}
	}
}

// Close unsubscribes every underlying NATS subscription.
func (s *subscription) Close() error {
	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
