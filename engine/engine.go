package engine

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/cask/lang"
	"github.com/ardnew/cask/log"
)

// Engine executes scripts against a shared symbol table. All methods are
// safe for concurrent use; scripts may run on any number of goroutines.
type Engine struct {
	cfg     config
	symtab  *SymbolTable
	sysvars *sysVars
	reg     *registry

	// installed modules, guarded by symtab.mu.
	installed []string

	// constructors by type name, for type() and isinstance().
	types map[string]*Builtin

	stopped atomic.Bool
	closed  atomic.Bool

	runMu sync.Mutex
	runs  map[uint64]context.CancelCauseFunc
	runID uint64

	outMu sync.Mutex
}

// New returns an engine with the core builtins and framework functions
// bound, plus any modules named by [WithModules].
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:     makeConfig(opts...),
		symtab:  newSymbolTable(),
		sysvars: newSysVars(),
		reg:     newRegistry(),
		runs:    map[uint64]context.CancelCauseFunc{},
	}

	e.symtab.mu.Lock()

	err := e.symtab.bindOwnedLocked(NamespaceExtension, ownerBuiltins, e.builtins())
	if err == nil {
		err = e.symtab.bindOwnedLocked(NamespaceSystem, ownerEngine, e.framework())
	}

	e.symtab.mu.Unlock()

	if err != nil {
		return nil, err
	}

	for _, name := range e.cfg.modules {
		ok, err := e.Install(name)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, Errorf(CategoryValue, "unknown module '%s'", name)
		}
	}

	return e, nil
}

const (
	ownerBuiltins = "builtins"
	ownerEngine   = "engine"
)

// thread is the state of one run or host call.
type thread struct {
	eng   *Engine
	ctx   context.Context
	steps int64
	depth int
}

func (e *Engine) usable() error {
	if e.closed.Load() {
		return NewError(CategoryRuntime, "engine is shut down")
	}

	return nil
}

// track derives a context that [Engine.Stop] cancels.
func (e *Engine) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)

	e.runMu.Lock()
	e.runID++
	id := e.runID
	e.runs[id] = cancel
	e.runMu.Unlock()

	return ctx, func() {
		e.runMu.Lock()
		delete(e.runs, id)
		e.runMu.Unlock()
		cancel(nil)
	}
}

// Stop terminates every running script at its next statement boundary and
// cancels contexts passed to native calls. Runs started afterwards
// terminate immediately until [Engine.Resume] is called.
func (e *Engine) Stop() {
	e.stopped.Store(true)

	e.runMu.Lock()
	defer e.runMu.Unlock()

	for _, cancel := range e.runs {
		cancel(NewError(CategoryTermination, "stopped"))
	}
}

// Resume clears the effect of [Engine.Stop].
func (e *Engine) Resume() { e.stopped.Store(false) }

// Stopped reports whether [Engine.Stop] is in effect.
func (e *Engine) Stopped() bool { return e.stopped.Load() }

// Shutdown stops all scripts and unloads every extension. The engine
// cannot be used afterwards.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}

	e.Stop()

	err := e.unloadAll(ctx)

	e.cfg.logger.DebugContext(ctx, "engine shut down")

	return err
}

// Parse parses source with the engine's parse options.
func (e *Engine) Parse(ctx context.Context, name, source string) (*lang.Script, error) {
	s, err := lang.Parse(ctx, name, source, e.cfg.parseOpts...)
	if err != nil {
		return nil, asError(err)
	}

	return s, nil
}

// Run parses and executes source.
func (e *Engine) Run(ctx context.Context, source string) error {
	_, err := e.Eval(ctx, "<string>", source)

	return err
}

// Eval parses and executes source, returning the value of its final
// statement when that statement is an expression.
func (e *Engine) Eval(ctx context.Context, name, source string) (any, error) {
	s, err := e.Parse(ctx, name, source)
	if err != nil {
		return nil, err
	}

	return e.exec(ctx, s)
}

// Exec executes a parsed script.
func (e *Engine) Exec(ctx context.Context, s *lang.Script) error {
	_, err := e.exec(ctx, s)

	return err
}

// LoadScript fetches the named script through the configured loader and
// executes it. The system variable currentScript holds its name while it
// runs.
func (e *Engine) LoadScript(ctx context.Context, name string) error {
	s, err := e.fetch(ctx, name)
	if err != nil {
		return err
	}

	defer e.current(name)()

	return e.Exec(ctx, s)
}

func (e *Engine) fetch(ctx context.Context, name string) (*lang.Script, error) {
	if e.cfg.loader == nil {
		return nil, Errorf(CategoryRuntime, "cannot load '%s': no script loader", name)
	}

	source, err := e.cfg.loader(ctx, name)
	if err != nil {
		return nil, ErrRuntime.Wrap(err).With(slog.String("script", name))
	}

	return e.Parse(ctx, name, source)
}

// current sets currentScript to name and returns a function restoring
// the previous value.
func (e *Engine) current(name string) func() {
	prev, _ := e.GetSysVar(sysvarCurrentScript)
	_ = e.SetSysVar(sysvarCurrentScript, name)

	return func() { _ = e.SetSysVar(sysvarCurrentScript, prev) }
}

func (e *Engine) exec(ctx context.Context, s *lang.Script) (any, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}

	ctx, done := e.track(ctx)
	defer done()

	fr := &frame{th: &thread{eng: e, ctx: ctx}, script: s}
	start := time.Now()

	e.cfg.logger.DebugContext(ctx, "run", slog.String("script", s.Name))

	c := fr.execBlock(s.Module.Body)

	e.cfg.logger.DebugContext(ctx, "run complete",
		slog.String("script", s.Name),
		slog.Int64("steps", fr.th.steps),
		slog.Duration("elapsed", time.Since(start)))

	switch c.kind {
	case ctrlRaise, ctrlTerminate:
		return nil, e.uncaught(ctx, c.err)
	}

	body := s.Module.Body
	if n := len(body); n > 0 {
		if _, ok := body[n-1].(*lang.ExprStmt); ok {
			return fr.last, nil
		}
	}

	return nil, nil
}

// uncaught records err as the result of a run.
func (e *Engine) uncaught(ctx context.Context, err *Error) *Error {
	if err.Pos.IsValid() {
		_ = e.SetSysVar(sysvarErrline, int64(err.Pos.Line))
	}

	if err.Category == CategoryTermination {
		e.cfg.logger.InfoContext(ctx, "script terminated", slog.Any("error", err))
	} else {
		e.cfg.logger.WarnContext(ctx, "script error", slog.Any("error", err))
	}

	return err
}

// Call invokes fn, a script callable or the name of a bound one, with
// args converted by [FromGo]. It may be used from any goroutine,
// including goroutines started by extensions.
func (e *Engine) Call(ctx context.Context, fn any, args ...any) (any, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}

	if name, ok := fn.(string); ok {
		v, found := e.symtab.Resolve(name)
		if !found {
			return nil, e.undefined(name)
		}

		fn = v
	}

	ctx, done := e.track(ctx)
	defer done()

	conv := make([]any, len(args))
	for i, v := range args {
		conv[i] = FromGo(v)
	}

	th := &thread{eng: e, ctx: ctx}

	v, err := th.call(fn, conv, nil)
	if err != nil {
		return nil, asError(err)
	}

	return v, nil
}

// GetVar returns the value bound to name in any namespace.
func (e *Engine) GetVar(name string) (any, bool) {
	return e.symtab.Resolve(name)
}

// SetVar binds a user global, converting v with [FromGo].
func (e *Engine) SetVar(name string, v any) error {
	return e.symtab.Bind(name, FromGo(v))
}

// IsDefined reports whether name is bound. A trailing argument list, as
// in "f(x)", is ignored.
func (e *Engine) IsDefined(name string) bool {
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}

	_, ok := e.symtab.Resolve(strings.TrimSpace(name))

	return ok
}

// Names returns every bound global name in order.
func (e *Engine) Names() []string { return e.symtab.all() }

// ListDefs returns the names of the procedures scripts have defined.
func (e *Engine) ListDefs() []string {
	var names []string

	for name, v := range e.symtab.userValues() {
		if _, ok := v.(*Procedure); ok {
			names = append(names, name)
		}
	}

	slices.Sort(names)

	return names
}

// SetSysVar sets a system variable. The name _sysvars_ is reserved.
func (e *Engine) SetSysVar(name string, v any) error {
	if !e.sysvars.set(name, FromGo(v)) {
		return Errorf(CategoryValue, "invalid system variable name '%s'", name)
	}

	return nil
}

// GetSysVar returns a system variable.
func (e *Engine) GetSysVar(name string) (any, bool) {
	return e.sysvars.get(name)
}

// Logger returns the engine's logger.
func (e *Engine) Logger() log.Logger { return e.cfg.logger }
