package cmd

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"syscall"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/ext"
	"github.com/ardnew/cask/log"
	"github.com/ardnew/cask/pkg"
)

// Host carries the engine configuration shared by every command.
type Host struct {
	BaseDir   []string `default:"."                                                        help:"Directories searched for scripts" name:"basedir" sep:"," short:"b"`
	Allow     []string `help:"Extensions scripts may load (default: all)"                  sep:","`
	Policy    string   `help:"Permission expression over name and allowed"                 placeholder:"EXPR"`
	Flatten   bool     `help:"Bind every assignment in the global scope"`
	Modules   []string `help:"Curated modules installed before any script runs"            sep:","`
	StepLimit int64    `help:"Terminate runs that execute more statements (0: unlimited)"  name:"step-limit"`

	// Extensions holds the extensions section of the configuration file,
	// passed to every extension factory.
	Extensions map[string]any `kong:"-"`

	// Stdout receives command and script output. Nil means os.Stdout.
	Stdout io.Writer `kong:"-"`
}

func (h *Host) stdout() io.Writer {
	if h.Stdout != nil {
		return h.Stdout
	}

	return os.Stdout
}

// Permit compiles the extension permission predicate. Without a policy,
// a name is permitted when Allow is empty or lists it. A policy is an
// expr-lang boolean expression over name (string) and allowed ([]string).
func (h *Host) Permit() (func(name string) bool, error) {
	allowed := slices.Clone(h.Allow)

	if strings.TrimSpace(h.Policy) == "" {
		return func(name string) bool {
			return len(allowed) == 0 || slices.Contains(allowed, name)
		}, nil
	}

	program, err := expr.Compile(h.Policy,
		expr.Env(map[string]any{"name": "", "allowed": []string{}}),
		expr.AsBool())
	if err != nil {
		return nil, ErrPolicy.With(slog.String("policy", h.Policy)).Wrap(err)
	}

	return func(name string) bool {
		return runPolicy(program, name, allowed)
	}, nil
}

func runPolicy(program *vm.Program, name string, allowed []string) bool {
	out, err := expr.Run(program, map[string]any{"name": name, "allowed": allowed})
	if err != nil {
		log.Warn("permission policy failed",
			slog.String("extension", name), slog.Any("error", err))

		return false
	}

	ok, _ := out.(bool)

	return ok
}

// NewEngine returns an engine configured from h. Options in opts are
// applied last.
func (h *Host) NewEngine(ctx context.Context, opts ...engine.Option) (*engine.Engine, error) {
	permit, err := h.Permit()
	if err != nil {
		return nil, err
	}

	base := []engine.Option{
		engine.WithCatalog(ext.Catalog()),
		engine.WithPermission(permit),
		engine.WithExtensionOptions(h.Extensions),
		engine.WithFlatten(h.Flatten),
		engine.WithModules(h.Modules...),
		engine.WithLogger(log.Default()),
		engine.WithScriptLoader(h.LoadScript),
		engine.WithOutput(h.stdout()),
	}

	if h.StepLimit > 0 {
		base = append(base, engine.WithStepLimit(h.StepLimit))
	}

	e, err := engine.New(append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	for name, v := range map[string]any{
		"version":  pkg.Version,
		"platform": runtime.GOOS,
	} {
		if err := e.SetSysVar(name, v); err != nil {
			return nil, err
		}
	}

	log.DebugContext(ctx, "engine ready",
		slog.Any("basedir", h.BaseDir),
		slog.Any("modules", h.Modules),
		slog.Bool("flatten", h.Flatten),
		slog.Int64("step_limit", h.StepLimit),
	)

	return e, nil
}

// scriptPath validates a script name: it must be relative, with no ".."
// element.
func scriptPath(name string) (string, error) {
	trimmed := strings.TrimSpace(name)

	bad := trimmed == "" ||
		strings.HasPrefix(trimmed, "/") ||
		strings.HasPrefix(trimmed, `\`) ||
		slices.Contains(strings.FieldsFunc(trimmed, func(r rune) bool {
			return r == '/' || r == '\\'
		}), "..")

	rel := filepath.Clean(filepath.FromSlash(trimmed))
	if bad || !filepath.IsLocal(rel) {
		return "", ErrScriptPath.With(slog.String("script", name))
	}

	return rel, nil
}

// LoadScript implements [engine.ScriptLoader]. The name is resolved
// against each base directory in turn; the .apy suffix is optional.
func (h *Host) LoadScript(_ context.Context, name string) (string, error) {
	rel, err := scriptPath(name)
	if err != nil {
		return "", err
	}

	candidates := []string{rel}
	if filepath.Ext(rel) != pkg.ScriptExt {
		candidates = append(candidates, rel+pkg.ScriptExt)
	}

	dirs := h.BaseDir
	if len(dirs) == 0 {
		dirs = []string{"."}
	}

	for _, dir := range dirs {
		src, ok, err := readFrom(dir, candidates)
		if err != nil {
			return "", err
		}

		if ok {
			log.Trace("script resolved",
				slog.String("script", name), slog.String("basedir", dir))

			return src, nil
		}
	}

	return "", ErrScriptNotFound.With(
		slog.String("script", name), slog.Any("basedir", dirs))
}

// readFrom reads the first candidate present under dir. Symlinks may not
// leave dir.
func readFrom(dir string, candidates []string) (string, bool, error) {
	root, err := os.OpenRoot(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}
	defer root.Close()

	for _, c := range candidates {
		data, err := root.ReadFile(c)
		if err == nil {
			return string(data), true, nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return "", false, err
		}
	}

	return "", false, nil
}

// stopOnSignal stops e when the process receives SIGINT or SIGTERM. The
// returned function releases the handler.
func stopOnSignal(ctx context.Context, e *engine.Engine) (release func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		select {
		case s := <-sig:
			log.InfoContext(ctx, "stopping script", slog.String("signal", s.String()))
			e.Stop()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sig)
		close(done)
	}
}

// shutdown tears e down, logging any extension teardown failure.
func shutdown(ctx context.Context, e *engine.Engine) {
	if err := e.Shutdown(context.WithoutCancel(ctx)); err != nil {
		log.WarnContext(ctx, "engine shutdown", slog.Any("error", err))
	}
}
