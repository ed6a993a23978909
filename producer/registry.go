package producer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/c360/omprogbridge/config"
	"github.com/c360/omprogbridge/errors"
)

// Factory builds a connected producer for one backend.
type Factory func(ctx context.Context, cfg config.ProducerConfig, deps Dependencies) (Producer, error)

// Registration describes one backend.
type Registration struct {
	Name        string
	Description string
	Factory     Factory
}

// Registry maps producer.type values to backend factories.
type Registry struct {
	factories map[string]*Registration
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]*Registration)}
}

// RegisterFactory adds a backend. Registering a name twice is an error.
func (r *Registry) RegisterFactory(name string, registration *Registration) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory name validation")
	}
	if registration == nil || registration.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory function validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.WrapInvalid(fmt.Errorf("factory '%s' is already registered", name),
			"Registry", "RegisterFactory", "duplicate factory check")
	}
	r.factories[name] = registration
	return nil
}

// Names lists the registered backends, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the registration for a backend name.
func (r *Registry) Lookup(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[name]
	return reg, ok
}

// New builds the producer selected by cfg.Type. Publish results of the returned producer
// are counted in the registry's producer_results_total metric.
func (r *Registry) New(ctx context.Context, cfg config.ProducerConfig, deps Dependencies) (Producer, error) {
	reg, ok := r.Lookup(cfg.Type)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown producer type %q (registered: %v)", errors.ErrInvalidConfig, cfg.Type, r.Names()),
			"Registry", "New", "lookup backend")
	}

	deps.Logger = deps.logger().With("producer", reg.Name)

	p, err := reg.Factory(ctx, cfg, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "New", "create "+reg.Name+" producer")
	}
	return Instrument(p, reg.Name, deps.Metrics.CoreMetrics()), nil
}
