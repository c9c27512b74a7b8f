package engine

import (
	"context"
	"io"
	"os"

	"github.com/ardnew/cask/lang"
	"github.com/ardnew/cask/log"
)

// DefaultMaxCallDepth bounds nested procedure calls.
const DefaultMaxCallDepth = 200

// Checkpoint describes the statement about to execute.
type Checkpoint struct {
	Script string
	Pos    lang.Position
	Steps  int64
}

// CheckpointFunc runs before every statement. A non-nil error terminates
// the script.
type CheckpointFunc func(ctx context.Context, cp Checkpoint) error

// ScriptLoader returns the source of the named script.
type ScriptLoader func(ctx context.Context, name string) (string, error)

type config struct {
	flatten    bool
	out        io.Writer
	errOut     io.Writer
	logger     log.Logger
	permit     func(name string) bool
	catalog    *Catalog
	loader     ScriptLoader
	extOptions map[string]any
	checkpoint CheckpointFunc
	maxDepth   int
	modules    []string
	parseOpts  []lang.Option
}

func makeConfig(opts ...Option) config {
	cfg := config{
		out:      os.Stdout,
		errOut:   os.Stderr,
		permit:   func(string) bool { return true },
		catalog:  NewCatalog(),
		maxDepth: DefaultMaxCallDepth,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	cfg.parseOpts = append([]lang.Option{lang.WithLogger(cfg.logger)}, cfg.parseOpts...)

	return cfg
}

// Option configures an [Engine].
type Option func(*config)

// WithFlatten makes every assignment, including those inside procedures,
// bind in the global scope. Parameters remain local.
func WithFlatten(flatten bool) Option {
	return func(c *config) { c.flatten = flatten }
}

// WithOutput sets the writer print uses.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.out = w
		}
	}
}

// WithErrOutput sets the writer print uses when stderr=True.
func WithErrOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.errOut = w
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger log.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithPermission sets the predicate consulted before loading an extension.
func WithPermission(permit func(name string) bool) Option {
	return func(c *config) {
		if permit != nil {
			c.permit = permit
		}
	}
}

// WithCatalog sets the extensions available for loading.
func WithCatalog(catalog *Catalog) Option {
	return func(c *config) {
		if catalog != nil {
			c.catalog = catalog
		}
	}
}

// WithScriptLoader sets how [Engine.LoadScript] and loadScript_ find
// scripts.
func WithScriptLoader(loader ScriptLoader) Option {
	return func(c *config) { c.loader = loader }
}

// WithExtensionOptions sets the options passed to every extension factory.
func WithExtensionOptions(opts map[string]any) Option {
	return func(c *config) { c.extOptions = opts }
}

// WithCheckpoint adds fn to the functions run before every statement.
func WithCheckpoint(fn CheckpointFunc) Option {
	return func(c *config) {
		if fn == nil {
			return
		}

		prev := c.checkpoint
		if prev == nil {
			c.checkpoint = fn

			return
		}

		c.checkpoint = func(ctx context.Context, cp Checkpoint) error {
			if err := prev(ctx, cp); err != nil {
				return err
			}

			return fn(ctx, cp)
		}
	}
}

// WithStepLimit terminates any single run that executes more than n
// statements.
func WithStepLimit(n int64) Option {
	return WithCheckpoint(func(_ context.Context, cp Checkpoint) error {
		if cp.Steps > n {
			return Errorf(CategoryRuntime, "step limit of %d exceeded", n)
		}

		return nil
	})
}

// WithMaxCallDepth bounds nested procedure calls.
func WithMaxCallDepth(depth int) Option {
	return func(c *config) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// WithModules installs the named curated modules at construction.
func WithModules(names ...string) Option {
	return func(c *config) { c.modules = append(c.modules, names...) }
}

// WithParseOptions passes opts to every parse the engine performs.
func WithParseOptions(opts ...lang.Option) Option {
	return func(c *config) { c.parseOpts = append(c.parseOpts, opts...) }
}
