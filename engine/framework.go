package engine

import (
	"context"
	"log/slog"
)

// framework returns the system-namespace functions scripts use to talk
// to the engine itself.
func (e *Engine) framework() map[string]any {
	fns := map[string]Func{
		"getSysVar_":       e.getSysVarFn,
		"install_":         e.installFn,
		"listModules_":     e.listModulesFn,
		"loadScript_":      e.loadScriptFn,
		"isDef_":           e.isDefFn,
		"listDefs_":        e.listDefsFn,
		"check_":           e.checkFn,
		"exit_":            exitFn,
		"scanExtensions_":  e.scanExtensionsFn,
		"listExtensions_":  e.listExtensionsFn,
		"isExtLoaded_":     e.isExtLoadedFn,
		"loadExtension_":   e.loadExtensionFn,
		"unloadExtension_": e.unloadExtensionFn,
	}

	out := make(map[string]any, len(fns))
	for name, fn := range fns {
		out[name] = &Builtin{Name: name, Fn: fn}
	}

	return out
}

func (e *Engine) getSysVarFn(_ context.Context, a Args) (any, error) {
	var (
		name string
		def  any
	)

	if err := a.Unpack("getSysVar_", "name", &name, "default?", &def); err != nil {
		return nil, err
	}

	if v, ok := e.sysvars.get(name); ok {
		return v, nil
	}

	return def, nil
}

func (e *Engine) installFn(_ context.Context, a Args) (any, error) {
	var name string
	if err := a.Unpack("install_", "name", &name); err != nil {
		return nil, err
	}

	return e.Install(name)
}

func (e *Engine) listModulesFn(_ context.Context, a Args) (any, error) {
	if err := a.Unpack("listModules_"); err != nil {
		return nil, err
	}

	return stringList(e.ListModules()), nil
}

// loadScriptFn runs another script on the calling thread, so its depth
// counts toward the caller's recursion limit.
func (e *Engine) loadScriptFn(ctx context.Context, a Args) (any, error) {
	var name string
	if err := a.Unpack("loadScript_", "name", &name); err != nil {
		return nil, err
	}

	th := a.th
	if th.depth >= e.cfg.maxDepth {
		return nil, Errorf(CategoryRecursion, "maximum recursion depth exceeded loading '%s'", name)
	}

	s, err := e.fetch(ctx, name)
	if err != nil {
		return nil, err
	}

	th.depth++
	defer func() { th.depth-- }()

	defer e.current(name)()

	e.cfg.logger.DebugContext(ctx, "load script", slog.String("script", name))

	fr := &frame{th: th, script: s}

	switch c := fr.execBlock(s.Module.Body); c.kind {
	case ctrlRaise:
		return nil, c.err
	case ctrlTerminate:
		return nil, &halt{c.err}
	}

	return nil, nil
}

func (e *Engine) isDefFn(_ context.Context, a Args) (any, error) {
	var name string
	if err := a.Unpack("isDef_", "name", &name); err != nil {
		return nil, err
	}

	return e.IsDefined(name), nil
}

func (e *Engine) listDefsFn(_ context.Context, a Args) (any, error) {
	if err := a.Unpack("listDefs_"); err != nil {
		return nil, err
	}

	return stringList(e.ListDefs()), nil
}

// checkFn parses and validates source, returning "OK" or the error text.
func (e *Engine) checkFn(ctx context.Context, a Args) (any, error) {
	var source string
	if err := a.Unpack("check_", "source", &source); err != nil {
		return nil, err
	}

	if _, err := e.Parse(ctx, "<check>", source); err != nil {
		return err.Error(), nil
	}

	return "OK", nil
}

// exitFn ends the script. The status is available to the host through
// [ExitCode].
func exitFn(_ context.Context, a Args) (any, error) {
	var code any
	if err := a.Unpack("exit_", "code?", &code); err != nil {
		return nil, err
	}

	return nil, &Error{Category: CategoryTermination, msg: "exit", args: []any{code}, exit: true}
}

func (e *Engine) scanExtensionsFn(_ context.Context, a Args) (any, error) {
	if err := a.Unpack("scanExtensions_"); err != nil {
		return nil, err
	}

	return stringList(e.ScanAvailableExtensions()), nil
}

func (e *Engine) listExtensionsFn(_ context.Context, a Args) (any, error) {
	if err := a.Unpack("listExtensions_"); err != nil {
		return nil, err
	}

	return stringList(e.ListLoadedExtensions()), nil
}

func (e *Engine) isExtLoadedFn(_ context.Context, a Args) (any, error) {
	var name string
	if err := a.Unpack("isExtLoaded_", "name", &name); err != nil {
		return nil, err
	}

	return e.IsExtensionLoaded(name), nil
}

func (e *Engine) loadExtensionFn(ctx context.Context, a Args) (any, error) {
	var name string
	if err := a.Unpack("loadExtension_", "name", &name); err != nil {
		return nil, err
	}

	return e.LoadExtension(ctx, name)
}

func (e *Engine) unloadExtensionFn(ctx context.Context, a Args) (any, error) {
	var name string
	if err := a.Unpack("unloadExtension_", "name", &name); err != nil {
		return nil, err
	}

	return e.UnloadExtension(ctx, name)
}
