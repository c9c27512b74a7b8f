package lang

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/ardnew/cask/log"
)

// Script is a parsed and validated program. It is immutable and safe for
// concurrent use.
type Script struct {
	Name   string
	Source string
	Module *Module
}

// DefaultMaxDepth bounds statement and expression nesting.
const DefaultMaxDepth = 100

type config struct {
	logger    log.Logger
	maxDepth  int
	maxSource int
	validate  bool
}

// Option configures [Parse].
type Option func(*config)

// WithLogger sets the logger used to trace parsing.
func WithLogger(logger log.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMaxDepth bounds the nesting depth of statements and expressions.
// A depth of zero disables the limit.
func WithMaxDepth(depth int) Option {
	return func(c *config) { c.maxDepth = max(depth, 0) }
}

// WithMaxSourceLength rejects sources longer than n bytes. Zero disables
// the limit.
func WithMaxSourceLength(n int) Option {
	return func(c *config) { c.maxSource = max(n, 0) }
}

// WithValidation toggles the allow-list check. It is on by default; tools
// that only inspect syntax may turn it off.
func WithValidation(enable bool) Option {
	return func(c *config) { c.validate = enable }
}

// Parse lexes, parses and validates source. Syntax errors are returned as
// [*SyntaxError] and disallowed constructs as [*RestrictionError].
func Parse(ctx context.Context, name, source string, opts ...Option) (*Script, error) {
	cfg := config{maxDepth: DefaultMaxDepth, validate: true}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.maxSource > 0 && len(source) > cfg.maxSource {
		return nil, ErrSourceTooLong.With(
			slog.String("script", name),
			slog.Int("length", len(source)),
			slog.Int("limit", cfg.maxSource),
		)
	}

	toks, err := lex(name, source)
	if err != nil {
		cfg.logger.DebugContext(ctx, "lex failed", slog.Any("error", err))

		return nil, err
	}

	p := &parser{script: name, source: source, toks: toks, maxDepth: cfg.maxDepth}

	mod, err := p.parseModule()
	if err != nil {
		cfg.logger.DebugContext(ctx, "parse failed", slog.Any("error", err))

		return nil, err
	}

	if cfg.validate {
		if err := Validate(mod); err != nil {
			var re *RestrictionError
			if errors.As(err, &re) {
				re.Script = name
			}

			cfg.logger.DebugContext(ctx, "validation failed", slog.Any("error", err))

			return nil, err
		}
	}

	cfg.logger.TraceContext(ctx, "parsed script",
		slog.String("script", name),
		slog.Int("tokens", len(toks)),
		slog.Int("statements", len(mod.Body)))

	return &Script{Name: name, Source: source, Module: mod}, nil
}

// ParseReader reads all of r and parses it as script name.
func ParseReader(ctx context.Context, name string, r io.Reader, opts ...Option) (*Script, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrReadInput.Wrap(err).With(slog.String("script", name))
	}

	return Parse(ctx, name, string(data), opts...)
}
