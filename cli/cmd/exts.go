package cmd

import (
	"context"
	"fmt"

	"github.com/ardnew/cask/engine"
)

// Exts lists the extensions the permission predicate allows, or the
// curated modules.
type Exts struct {
	Modules bool `help:"List curated modules instead of extensions" short:"m"`
}

// Run executes the exts command.
func (x *Exts) Run(ctx context.Context, h *Host) error {
	names := engine.Modules()

	if !x.Modules {
		e, err := h.NewEngine(ctx)
		if err != nil {
			return err
		}
		defer shutdown(ctx, e)

		names = e.ScanAvailableExtensions()
	}

	out := h.stdout()
	for _, name := range names {
		fmt.Fprintln(out, name)
	}

	return nil
}
