package inference

import (
	"context"
	"sync"

	"github.com/amadeus-ai/nexuskit/errors"
)

// StreamFunc receives one chunk of a streaming completion. Returning an
// error aborts the stream.
type StreamFunc func(chunk string) error

// Client is one model adapter.
type Client interface {
	// Infer runs one synchronous completion.
	Infer(ctx context.Context, prompt string) (string, error)

	// InferStream runs one completion, delivering chunks as they arrive.
	InferStream(ctx context.Context, prompt string, fn StreamFunc) error
}

// Registry holds named model adapters. It is populated once at process
// start and read-only afterwards; Register rejects duplicates rather than
// silently replacing an adapter another component may hold.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Client
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Client),
	}
}

// Register adds a named adapter.
func (r *Registry) Register(name string, client Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return errors.WrapInvalid(errors.ErrAdapterRegistered, "Registry", "Register", "register "+name)
	}
	r.adapters[name] = client
	r.order = append(r.order, name)
	return nil
}

// Get returns the named adapter.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.adapters[name]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrAdapterUnknown, "Registry", "Get", "resolve "+name)
	}
	return client, nil
}

// Default returns the first registered adapter.
func (r *Registry) Default() (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return nil, errors.WrapInvalid(errors.ErrAdapterUnknown, "Registry", "Default", "resolve default adapter")
	}
	return r.adapters[r.order[0]], nil
}

// Names returns adapter names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
