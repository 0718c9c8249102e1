package enrichment

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/amadeus-ai/nexuskit/errors"
	"github.com/amadeus-ai/nexuskit/stream"
)

// HandlerFunc enriches one event. A nil result means the handler produced
// nothing to re-publish.
type HandlerFunc func(ctx context.Context, event stream.Event) (*stream.Event, error)

// Publisher re-publishes enriched events. *stream.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event stream.Event) (stream.Ack, error)
}

type route struct {
	prefix  string
	handler HandlerFunc
}

// Dispatcher maps event-type prefixes to enrichment handlers. The longest
// matching prefix wins.
type Dispatcher struct {
	logger    *slog.Logger
	publisher Publisher

	mu     sync.RWMutex
	routes []route
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher re-publishing through publisher.
func NewDispatcher(publisher Publisher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		logger:    slog.Default(),
		publisher: publisher,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a handler for one event-type prefix.
func (d *Dispatcher) Register(prefix string, handler HandlerFunc) error {
	if prefix == "" || handler == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Dispatcher", "Register", "validate route")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.routes {
		if r.prefix == prefix {
			return errors.WrapInvalid(errors.ErrRouteRegistered, "Dispatcher", "Register", "register "+prefix)
		}
	}
	d.routes = append(d.routes, route{prefix: prefix, handler: handler})
	return nil
}

// Handle routes one event. It satisfies stream.Handler, so a dispatcher can
// back a stream subscription directly. Events without a matching route are
// skipped silently, as are events already carrying the enriched suffix so a
// re-published event cannot loop back through the route that produced it.
func (d *Dispatcher) Handle(ctx context.Context, event stream.Event) error {
	if strings.HasSuffix(event.Type, EnrichedSuffix) {
		d.logger.Debug("skipping already-enriched event", "type", event.Type)
		return nil
	}

	handler, ok := d.match(event.Type)
	if !ok {
		d.logger.Debug("no enrichment route", "type", event.Type)
		return nil
	}

	enriched, err := handler(ctx, event)
	if err != nil {
		return errors.Wrap(err, "Dispatcher", "Handle", "enrich "+event.Type)
	}
	if enriched == nil {
		return nil
	}

	if _, err := d.publisher.Publish(ctx, *enriched); err != nil {
		return errors.WrapTransient(err, "Dispatcher", "Handle", "re-publish enriched event")
	}

	d.logger.Debug("enriched event published",
		"source_type", event.Type,
		"enriched_type", enriched.Type,
	)
	return nil
}

// match finds the handler with the longest prefix matching the event type.
func (d *Dispatcher) match(eventType string) (HandlerFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var best *route
	for i := range d.routes {
		r := &d.routes[i]
		if !strings.HasPrefix(eventType, r.prefix) {
			continue
		}
		if best == nil || len(r.prefix) > len(best.prefix) {
			best = r
		}
	}
	if best == nil {
		return nil, false
	}
	return best.handler, true
}
