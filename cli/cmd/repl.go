package cmd

import (
	"context"

	"github.com/ardnew/cask/cli/cmd/repl"
	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/log"
)

// Repl runs an interactive session on a single engine.
type Repl struct {
	History bool `default:"true" help:"Persist input history in the cache directory" negatable:""`
}

// Run executes the repl command.
func (r *Repl) Run(ctx context.Context, h *Host) error {
	var cacheDir string

	if r.History {
		cacheDir = kongContextFrom(ctx).Model.Vars()[CacheIdentifier]
	}

	out := repl.NewOutput()

	e, err := h.NewEngine(ctx, engine.WithOutput(out), engine.WithErrOutput(out))
	if err != nil {
		return err
	}
	defer shutdown(ctx, e)

	return repl.Run(ctx, e, out, cacheDir, log.Default())
}
