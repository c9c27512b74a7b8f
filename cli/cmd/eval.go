package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/ardnew/cask/engine"
)

// Eval runs source given on the command line and prints the value of a
// trailing expression.
type Eval struct {
	Source []string `arg:"" help:"Source to evaluate; multiple arguments are joined by newlines" name:"source"`
}

// Run executes the eval command.
func (v *Eval) Run(ctx context.Context, h *Host) error {
	e, err := h.NewEngine(ctx)
	if err != nil {
		return err
	}
	defer shutdown(ctx, e)

	defer stopOnSignal(ctx, e)()

	result, err := e.Eval(ctx, "<eval>", strings.Join(v.Source, "\n"))
	if err != nil {
		return err
	}

	if result != nil {
		fmt.Fprintln(h.stdout(), engine.Repr(result))
	}

	return nil
}
