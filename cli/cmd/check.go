package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ardnew/cask/lang"
	"github.com/ardnew/cask/log"
)

// Check parses and validates scripts without running them.
type Check struct {
	Scripts []string `arg:"" help:"Script files to check, or '-' for stdin" name:"script"`
}

// Run executes the check command.
func (c *Check) Run(ctx context.Context, h *Host) error {
	out := h.stdout()

	var failed []error

	for _, path := range c.Scripts {
		err := checkScript(ctx, path)
		if err == nil {
			fmt.Fprintf(out, "%s: ok\n", path)

			continue
		}

		failed = append(failed, err)

		fmt.Fprintf(out, "%s: %v\n", path, err)

		var se *lang.SyntaxError
		if errors.As(err, &se) {
			if snip := se.Snippet(); snip != "" {
				fmt.Fprintln(out, snip)
			}
		}
	}

	if len(failed) > 0 {
		return ErrCheck.
			With(slog.Int("failed", len(failed)), slog.Int("total", len(c.Scripts))).
			Wrap(errors.Join(failed...))
	}

	return nil
}

func checkScript(ctx context.Context, path string) error {
	var (
		src []byte
		err error
	)

	if path == "-" {
		src, err = io.ReadAll(os.Stdin)
	} else {
		src, err = os.ReadFile(path)
	}

	if err != nil {
		return err
	}

	_, err = lang.Parse(ctx, path, string(src), lang.WithLogger(log.Default()))

	return err
}
