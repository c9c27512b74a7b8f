// Package tasks provides the "tasks" extension: named background tasks
// that call a script function on their own goroutine.
//
//	tasks_open_(name, handler, data=None, delay=1.0)
//	tasks_start_(name)
//	tasks_stop_(name)
//	tasks_pause_(name, flag)
//	tasks_status_(name)
//	tasks_close_(name)
//	tasks_list_()
//
// The handler is a procedure or the name of one. It receives data, which
// defaults to the task name. A zero delay calls the handler once.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/ext/internal/table"
)

// Name is the extension's catalog name.
const Name = "tasks"

// Provider implements the tasks extension.
type Provider struct {
	api    *engine.API
	tasks  *table.Table[*task]
	ctx    context.Context
	cancel context.CancelFunc
}

// New is the extension's [engine.Factory]. It takes no options.
func New(map[string]any) engine.Provider {
	ctx, cancel := context.WithCancel(context.Background())

	return &Provider{tasks: table.New[*task](), ctx: ctx, cancel: cancel}
}

// Register implements [engine.Provider].
func (p *Provider) Register(api *engine.API) (engine.Exports, error) {
	p.api = api

	return engine.Exports{
		"tasks_open_":   p.open,
		"tasks_start_":  p.start,
		"tasks_stop_":   p.stop,
		"tasks_pause_":  p.pause,
		"tasks_status_": p.status,
		"tasks_close_":  p.close,
		"tasks_list_":   p.list,
	}, nil
}

// Shutdown stops every task and waits for their goroutines to exit.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.cancel()

	var errs []error

	for _, t := range p.tasks.Drain() {
		t.stop()

		if err := t.wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (p *Provider) warn(msg, name string) {
	p.api.Logger().Warn(msg, slog.String("task", name))
}

func (p *Provider) lookup(fname string, a engine.Args, specs ...any) (*task, error) {
	var name string
	if err := a.Unpack(fname, append([]any{"name", &name}, specs...)...); err != nil {
		return nil, err
	}

	t, ok := p.tasks.Get(name)
	if !ok {
		p.warn("task not found", name)
	}

	return t, nil
}

func (p *Provider) open(_ context.Context, a engine.Args) (any, error) {
	var (
		name    string
		handler any
		data    any
		delay   = 1.0
	)

	if err := a.Unpack("tasks_open_",
		"name", &name, "handler", &handler, "data?", &data, "delay?", &delay); err != nil {
		return nil, err
	}

	if !table.ValidName(name) {
		p.warn("invalid task name", name)

		return false, nil
	}

	if fn, ok := handler.(string); ok && !p.api.IsDefined(fn) {
		p.warn("task handler not defined", fn)

		return false, nil
	}

	if data == nil {
		data = name
	}

	d := time.Duration(math.Abs(delay) * float64(time.Second))

	if !p.tasks.Add(name, newTask(name, handler, data, d)) {
		p.warn("task name already used", name)

		return false, nil
	}

	return true, nil
}

func (p *Provider) start(_ context.Context, a engine.Args) (any, error) {
	t, err := p.lookup("tasks_start_", a)
	if t == nil || err != nil {
		return false, err
	}

	return t.start(p.ctx, p.api.Call, p.api.Logger()), nil
}

func (p *Provider) stop(_ context.Context, a engine.Args) (any, error) {
	t, err := p.lookup("tasks_stop_", a)
	if t == nil || err != nil {
		return false, err
	}

	return t.stop(), nil
}

func (p *Provider) pause(_ context.Context, a engine.Args) (any, error) {
	var flag bool

	t, err := p.lookup("tasks_pause_", a, "flag", &flag)
	if t == nil || err != nil {
		return false, err
	}

	t.pause(flag)

	return true, nil
}

func (p *Provider) status(_ context.Context, a engine.Args) (any, error) {
	t, err := p.lookup("tasks_status_", a)
	if t == nil || err != nil {
		return false, err
	}

	return t.running.Load(), nil
}

func (p *Provider) close(_ context.Context, a engine.Args) (any, error) {
	var name string
	if err := a.Unpack("tasks_close_", "name", &name); err != nil {
		return nil, err
	}

	t, ok := p.tasks.Remove(name)
	if !ok {
		p.warn("task not found", name)

		return false, nil
	}

	t.stop()

	return true, nil
}

func (p *Provider) list(_ context.Context, a engine.Args) (any, error) {
	if err := a.Unpack("tasks_list_"); err != nil {
		return nil, err
	}

	return p.tasks.Names(), nil
}
