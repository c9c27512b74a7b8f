// Package engine executes cask scripts.
//
// An [Engine] owns one global [SymbolTable] shared by every script it runs.
// Each global name lives in exactly one [Namespace]: user names bound by
// scripts, system names the engine provides (the "_"-suffixed framework
// functions), and extension names exported by loaded extensions and
// installed modules. Binding a name owned by another namespace fails with
// NamespaceCollisionError; nothing is ever shadowed.
//
// # Extensions
//
// Hosts register extension factories in a [Catalog]. [Engine.LoadExtension]
// instantiates a [Provider], calls its Register method outside the engine
// lock, then binds every export atomically or not at all. Each export must
// end in "_". [Engine.UnloadExtension] removes exactly the bindings that
// extension added and fails with BusyError while any of its functions is
// still executing.
//
// # Modules
//
// [Engine.Install] binds one of a fixed set of curated modules (math,
// string, time, json, yaml, path, expr and random) under names of the form
// "<module>_<func>_". Installs are permanent.
//
// # Cancellation
//
// [Engine.Stop] terminates every running script at its next statement
// boundary. Termination cannot be caught by try/except and skips finally
// blocks. [WithCheckpoint] hooks the same boundary.
//
// # Example
//
//	eng, err := engine.New(engine.WithModules("math"))
//	if err != nil {
//		return err
//	}
//	defer eng.Shutdown(ctx)
//
//	v, err := eng.Eval(ctx, "demo", "math_sqrt_(16)\n")
package engine
