package engine

import (
	"log/slog"
	"maps"
	"slices"
)

// module builds the exports of a curated module, keyed by short name.
// Values are either a [Func] or a constant.
type module func() map[string]any

// modules is the curated set [Engine.Install] accepts.
var modules = map[string]module{
	"math":   mathModule,
	"string": stringModule,
	"time":   timeModule,
	"json":   jsonModule,
	"yaml":   yamlModule,
	"path":   pathModule,
	"expr":   exprModule,
	"random": randomModule,
}

// Modules returns the names of every module [Engine.Install] accepts.
func Modules() []string { return slices.Sorted(maps.Keys(modules)) }

// moduleOwner is the binding owner of an installed module, distinct from
// any extension name.
func moduleOwner(name string) string { return "module " + name }

// Install binds the exports of the named curated module. Each export is
// named "<module>_<func>_". Installing is idempotent and permanent: a
// repeat install is a no-op returning true, and an unknown module returns
// false without error. An export colliding with any existing binding fails the install
// with ExtensionCollisionError and binds nothing.
func (e *Engine) Install(name string) (bool, error) {
	if err := e.usable(); err != nil {
		return false, err
	}

	build, ok := modules[name]
	if !ok {
		return false, nil
	}

	e.symtab.mu.Lock()
	defer e.symtab.mu.Unlock()

	if slices.Contains(e.installed, name) {
		return true, nil
	}

	exports := map[string]any{}

	for short, v := range build() {
		full := name + "_" + short + "_"
		if fn, ok := v.(Func); ok {
			v = &Builtin{Name: full, Fn: fn}
		}

		exports[full] = v
	}

	if err := e.symtab.bindOwnedLocked(NamespaceExtension, moduleOwner(name), exports); err != nil {
		e.cfg.logger.Warn("install failed", slog.String("module", name), slog.Any("error", err))

		return false, err
	}

	e.installed = append(e.installed, name)

	e.cfg.logger.Debug("installed module",
		slog.String("module", name),
		slog.Int("exports", len(exports)))

	return true, nil
}

// ListModules returns the installed modules in order.
func (e *Engine) ListModules() []string {
	e.symtab.mu.RLock()
	defer e.symtab.mu.RUnlock()

	return slices.Sorted(slices.Values(e.installed))
}
