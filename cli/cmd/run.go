package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ardnew/cask/log"
)

// Run executes a script in a fresh engine.
type Run struct {
	Script  string   `arg:"" help:"Script to run (the .apy suffix is optional)"            name:"script"`
	Args    []string `arg:"" help:"Arguments exposed to the script as the args system variable" name:"args" optional:"" passthrough:""`
	Init    string   `help:"Script run first in the same engine"                             short:"i"`
	PidFile string   `help:"Write the process ID to this file while the script runs"        name:"pidfile" type:"path"`
}

// Run executes the run command.
func (r *Run) Run(ctx context.Context, h *Host) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	host, name := r.locate(h)

	e, err := host.NewEngine(ctx)
	if err != nil {
		return err
	}
	defer shutdown(ctx, e)

	defer stopOnSignal(ctx, e)()

	if r.PidFile != "" {
		if err := os.WriteFile(r.PidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
			return ErrPidFile.With(slog.String("file", r.PidFile)).Wrap(err)
		}

		defer os.Remove(r.PidFile)
	}

	args := r.Args
	if args == nil {
		args = []string{}
	}

	if err := e.SetSysVar("args", args); err != nil {
		return err
	}

	if err := e.SetSysVar("scriptName", name); err != nil {
		return err
	}

	if r.Init != "" {
		log.DebugContext(ctx, "init script", slog.String("script", r.Init))

		if err := e.LoadScript(ctx, r.Init); err != nil {
			return err
		}
	}

	log.DebugContext(ctx, "run script",
		slog.String("script", name), slog.Any("args", args))

	return e.LoadScript(ctx, name)
}

// locate lets SCRIPT name an existing file anywhere: its directory is
// searched first and the script is loaded by base name.
func (r *Run) locate(h *Host) (*Host, string) {
	info, err := os.Stat(r.Script)
	if err != nil || !info.Mode().IsRegular() {
		return h, r.Script
	}

	host := *h
	host.BaseDir = append([]string{filepath.Dir(r.Script)}, h.BaseDir...)

	return &host, filepath.Base(r.Script)
}
