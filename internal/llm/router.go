package llm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrNoEngine is returned when neither the requested engine nor the fallback
// is registered.
var ErrNoEngine = errors.New("no engine registered")

// Router resolves an engine name to one of a fixed set of backends, using a
// fallback name for unknown engines.
type Router[T any] struct {
	backends map[string]T
	fallback string
}

// NewRouter creates a Router over backends.
func NewRouter[T any](backends map[string]T, fallback string) *Router[T] {
	return &Router[T]{backends: backends, fallback: fallback}
}

// Route returns the backend registered as engine, or the fallback.
func (r *Router[T]) Route(engine string) (T, error) {
	for _, name := range []string{engine, r.fallback} {
		if b, ok := r.backends[name]; ok {
			return b, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: %q", ErrNoEngine, engine)
}

// Has reports whether engine is registered, ignoring the fallback.
func (r *Router[T]) Has(engine string) bool {
	_, ok := r.backends[engine]
	return ok
}

// Engines lists the registered names in sorted order.
func (r *Router[T]) Engines() []string {
	return slices.Sorted(maps.Keys(r.backends))
}

// EngineRouter routes generation calls.
type EngineRouter struct {
	*Router[Generator]
}

// NewEngineRouter creates an EngineRouter.
func NewEngineRouter(backends map[string]Generator, fallback string) *EngineRouter {
	return &EngineRouter{Router: NewRouter(backends, fallback)}
}

// Bind returns a Generator fixed to one engine, resolved on every call.
func (r *EngineRouter) Bind(engine string) Generator {
	return GeneratorFunc(func(ctx context.Context, req Request) (*Response, error) {
		backend, err := r.Route(engine)
		if err != nil {
			return nil, err
		}
		return backend.Generate(ctx, req)
	})
}
