package engine

import (
	"context"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ardnew/cask/log"
)

// Provider is a native extension. Register is called once per load,
// outside the engine lock, and returns the callables to bind. Every
// exported name must end in "_".
type Provider interface {
	Register(api *API) (Exports, error)
}

// Teardown is implemented by providers that hold resources. Shutdown runs
// after the extension's bindings are removed.
type Teardown interface {
	Shutdown(ctx context.Context) error
}

// Factory creates a provider from the host's extension options.
type Factory func(opts map[string]any) Provider

// Catalog is the set of extensions a host makes available.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: map[string]Factory{}}
}

// Register adds or replaces the factory for name.
func (c *Catalog) Register(name string, f Factory) *Catalog {
	c.mu.Lock()
	c.factories[name] = f
	c.mu.Unlock()

	return c
}

// Names yields the registered extension names in order.
func (c *Catalog) Names() iter.Seq[string] {
	c.mu.RLock()
	names := slices.Sorted(maps.Keys(c.factories))
	c.mu.RUnlock()

	return slices.Values(names)
}

func (c *Catalog) lookup(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.factories[name]

	return f, ok
}

// API is the engine surface available to an extension.
type API struct {
	eng    *Engine
	logger log.Logger
}

// Logger returns a logger tagged with the extension name.
func (a *API) Logger() log.Logger { return a.logger }

// Call invokes a script callable, or the global callable named by a
// string, on the calling goroutine. It is safe to use from goroutines the
// extension owns.
func (a *API) Call(ctx context.Context, fn any, args ...any) (any, error) {
	return a.eng.Call(ctx, fn, args...)
}

// IsDefined reports whether name is bound in any namespace.
func (a *API) IsDefined(name string) bool { return a.eng.IsDefined(name) }

// registration is one loaded extension.
type registration struct {
	name     string
	provider Provider
	names    []string
	inflight atomic.Int64
	closing  atomic.Bool
}

// enter admits a call into the provider unless an unload is in progress.
func (r *registration) enter() error {
	if r.closing.Load() {
		return r.busy()
	}

	r.inflight.Add(1)

	if r.closing.Load() {
		r.inflight.Add(-1)

		return r.busy()
	}

	return nil
}

func (r *registration) leave() { r.inflight.Add(-1) }

// close marks r closing if no call is in flight.
func (r *registration) close() bool {
	r.closing.Store(true)

	if r.inflight.Load() > 0 {
		r.closing.Store(false)

		return false
	}

	return true
}

func (r *registration) busy() *Error {
	return Errorf(CategoryBusy, "extension '%s' is being unloaded", r.name)
}

func checkExports(name string, exports Exports) error {
	for export, fn := range exports {
		switch {
		case !strings.HasSuffix(export, "_") || len(export) < 2:
			return Errorf(CategoryExtensionLoad,
				"extension '%s': export '%s' must end in '_'", name, export)
		case fn == nil:
			return Errorf(CategoryExtensionLoad,
				"extension '%s': export '%s' is nil", name, export)
		}
	}

	return nil
}
