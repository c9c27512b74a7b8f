package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// registry tracks loaded extensions. The loaded map is replaced, never
// mutated, so readers need no lock.
type registry struct {
	pendingMu sync.Mutex
	pending   map[string]struct{}
	loaded    atomic.Pointer[map[string]*registration]
}

func newRegistry() *registry {
	r := &registry{pending: map[string]struct{}{}}
	r.loaded.Store(&map[string]*registration{})

	return r
}

func (r *registry) snapshot() map[string]*registration { return *r.loaded.Load() }

// publish replaces the snapshot. The caller holds the engine write lock.
func (r *registry) publish(fn func(map[string]*registration)) {
	next := maps.Clone(r.snapshot())
	fn(next)
	r.loaded.Store(&next)
}

func (r *registry) claim(name string) bool {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	if _, ok := r.pending[name]; ok {
		return false
	}

	r.pending[name] = struct{}{}

	return true
}

func (r *registry) release(name string) {
	r.pendingMu.Lock()
	delete(r.pending, name)
	r.pendingMu.Unlock()
}

// LoadExtension loads the named extension from the catalog and binds its
// exports in the extension namespace. Loading an extension that is
// already loaded returns false with no error.
func (e *Engine) LoadExtension(ctx context.Context, name string) (bool, error) {
	if err := e.usable(); err != nil {
		return false, err
	}

	if !e.cfg.permit(name) {
		return false, Errorf(CategoryExtensionLoad, "extension '%s' is not permitted", name)
	}

	if e.IsExtensionLoaded(name) {
		return false, nil
	}

	factory, ok := e.cfg.catalog.lookup(name)
	if !ok {
		return false, Errorf(CategoryExtensionLoad, "unknown extension '%s'", name)
	}

	if !e.reg.claim(name) {
		return false, Errorf(CategoryBusy, "extension '%s' is already being loaded", name)
	}
	defer e.reg.release(name)

	if e.IsExtensionLoaded(name) {
		return false, nil
	}

	reg, exports, err := e.register(name, factory)
	if err != nil {
		return false, err
	}

	bound := make(map[string]any, len(exports))
	for export, fn := range exports {
		bound[export] = &Builtin{Name: export, Fn: fn, reg: reg}
		reg.names = append(reg.names, export)
	}

	slices.Sort(reg.names)

	e.symtab.mu.Lock()

	if err := e.symtab.bindOwnedLocked(NamespaceExtension, name, bound); err != nil {
		e.symtab.mu.Unlock()
		_ = e.teardown(ctx, reg)
		e.cfg.logger.WarnContext(ctx, "extension collision",
			slog.String("extension", name), slog.Any("error", err))

		return false, err
	}

	e.reg.publish(func(m map[string]*registration) { m[name] = reg })
	e.symtab.mu.Unlock()

	e.cfg.logger.InfoContext(ctx, "extension loaded",
		slog.String("extension", name), slog.Int("exports", len(reg.names)))

	return true, nil
}

// register instantiates the provider and collects its exports, turning
// panics into load errors.
func (e *Engine) register(name string, factory Factory) (reg *registration, exports Exports, err error) {
	defer func() {
		if r := recover(); r != nil {
			reg, exports = nil, nil
			err = Errorf(CategoryExtensionLoad, "extension '%s': panic during registration: %v", name, r)
		}
	}()

	provider := factory(e.cfg.extOptions)
	if provider == nil {
		return nil, nil, Errorf(CategoryExtensionLoad, "extension '%s': factory returned no provider", name)
	}

	api := &API{
		eng:    e,
		logger: e.cfg.logger.With(slog.String("extension", name)),
	}

	exports, err = provider.Register(api)
	if err != nil {
		var ee *Error
		if errors.As(err, &ee) {
			return nil, nil, ee
		}

		return nil, nil, ErrExtensionLoad.Wrap(fmt.Errorf("extension '%s': %w", name, err))
	}

	if err := checkExports(name, exports); err != nil {
		return nil, nil, err
	}

	return &registration{name: name, provider: provider}, exports, nil
}

// UnloadExtension removes the named extension's bindings and runs its
// teardown. It fails with [ErrBusy] while any of its callables is
// executing. Unloading an extension that is not loaded returns false.
func (e *Engine) UnloadExtension(ctx context.Context, name string) (bool, error) {
	e.symtab.mu.Lock()

	reg, ok := e.reg.snapshot()[name]
	if !ok {
		e.symtab.mu.Unlock()

		return false, nil
	}

	if !reg.close() {
		e.symtab.mu.Unlock()

		return false, Errorf(CategoryBusy, "extension '%s' has calls in flight", name)
	}

	removed := e.symtab.unbindOwnerLocked(name)
	e.reg.publish(func(m map[string]*registration) { delete(m, name) })
	e.symtab.mu.Unlock()

	e.cfg.logger.InfoContext(ctx, "extension unloaded",
		slog.String("extension", name), slog.Int("exports", len(removed)))

	if err := e.teardown(ctx, reg); err != nil {
		return true, err
	}

	return true, nil
}

func (e *Engine) teardown(ctx context.Context, reg *registration) (err error) {
	td, ok := reg.provider.(Teardown)
	if !ok {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = Errorf(CategoryRuntime, "extension '%s': panic during teardown: %v", reg.name, r)
		}

		if err != nil {
			e.cfg.logger.WarnContext(ctx, "extension teardown failed",
				slog.String("extension", reg.name), slog.Any("error", err))
		}
	}()

	if terr := td.Shutdown(ctx); terr != nil {
		return ErrRuntime.Wrap(fmt.Errorf("extension '%s' teardown: %w", reg.name, terr))
	}

	return nil
}

// IsExtensionLoaded reports whether name is loaded.
func (e *Engine) IsExtensionLoaded(name string) bool {
	_, ok := e.reg.snapshot()[name]

	return ok
}

// ListLoadedExtensions returns the loaded extension names in order.
func (e *Engine) ListLoadedExtensions() []string {
	return slices.Sorted(maps.Keys(e.reg.snapshot()))
}

// ScanAvailableExtensions returns the catalog entries the permission
// predicate allows, in order.
func (e *Engine) ScanAvailableExtensions() []string {
	var names []string

	for name := range e.cfg.catalog.Names() {
		if e.cfg.permit(name) {
			names = append(names, name)
		}
	}

	return names
}

// unloadAll removes every extension regardless of calls in flight.
func (e *Engine) unloadAll(ctx context.Context) error {
	e.symtab.mu.Lock()

	regs := e.reg.snapshot()
	for name, reg := range regs {
		reg.closing.Store(true)
		e.symtab.unbindOwnerLocked(name)
	}

	e.reg.publish(func(m map[string]*registration) { clear(m) })
	e.symtab.mu.Unlock()

	var errs []error

	for _, name := range slices.Sorted(maps.Keys(regs)) {
		if err := e.teardown(ctx, regs[name]); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
