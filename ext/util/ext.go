// Package util provides the "util" extension: host access that a policy
// must opt into.
//
//	getenv_(name, default=None)    only with option allow_getenv
//	system_(command, capture=False) only with option allow_system
//	sleep_(secs)
//
// system_ runs command with the shell named by option shell (default
// /bin/sh). It returns the exit status, or (status, output) when capture
// is set.
package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/ext/internal/opt"
)

// Name is the extension's catalog name.
const Name = "util"

// Option keys.
const (
	AllowGetenv = "allow_getenv"
	AllowSystem = "allow_system"
	Shell       = "shell"
)

// DefaultShell runs system_ commands when option shell is unset.
const DefaultShell = "/bin/sh"

// Provider implements the util extension.
type Provider struct {
	api    *engine.API
	getenv bool
	system bool
	shell  string
}

// New is the extension's [engine.Factory].
func New(opts map[string]any) engine.Provider {
	return &Provider{
		getenv: opt.Bool(opts, AllowGetenv),
		system: opt.Bool(opts, AllowSystem),
		shell:  opt.String(opts, Shell, DefaultShell),
	}
}

// Register implements [engine.Provider].
func (p *Provider) Register(api *engine.API) (engine.Exports, error) {
	p.api = api

	exports := engine.Exports{"sleep_": sleep}

	if p.getenv {
		exports["getenv_"] = getenv
	}

	if p.system {
		exports["system_"] = p.run
	}

	return exports, nil
}

func getenv(_ context.Context, a engine.Args) (any, error) {
	var (
		name string
		def  any
	)

	if err := a.Unpack("getenv_", "name", &name, "default?", &def); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv(name); ok {
		return v, nil
	}

	return def, nil
}

func (p *Provider) run(ctx context.Context, a engine.Args) (any, error) {
	var (
		command string
		capture bool
	)

	if err := a.Unpack("system_", "command", &command, "capture?", &capture); err != nil {
		return nil, err
	}

	var out bytes.Buffer

	cmd := exec.CommandContext(ctx, p.shell, "-c", command)
	if capture {
		cmd.Stdout, cmd.Stderr = &out, &out
	} else {
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	}

	p.api.Logger().Debug("system command", slog.String("command", command))

	status := 0

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, engine.ErrTerminated.Wrap(context.Cause(ctx))
		}

		var exit *exec.ExitError
		if !errors.As(err, &exit) {
			return nil, engine.ErrRuntime.Wrap(err).With(slog.String("command", command))
		}

		status = exit.ExitCode()
	}

	if capture {
		return engine.NewTuple(int64(status), out.String()), nil
	}

	return status, nil
}

func sleep(ctx context.Context, a engine.Args) (any, error) {
	var d time.Duration
	if err := a.Unpack("sleep_", "secs", &d); err != nil {
		return nil, err
	}

	if d < 0 {
		return nil, engine.NewError(engine.CategoryValue, "sleep length must be non-negative")
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, engine.ErrTerminated.Wrap(context.Cause(ctx))
	}
}
