// Package flag provides the "flag" extension: named events a script and
// its background tasks use to signal each other.
//
//	flag_add_(name)                  flag_del_(name)
//	flag_raise_(name, toggle=False)  flag_lower_(name)
//	flag_israised_(name)
//	flag_wait_(name, timeout=1.0, prelower=False, postlower=False)
//	flag_list_()
//
// Raising a flag releases every waiter; a toggled raise lowers it again
// at once, releasing only those already waiting. Deleting a flag releases
// its waiters. Operations on unknown names log a warning and return False.
package flag

import (
	"context"
	"log/slog"
	"time"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/ext/internal/table"
)

// Name is the extension's catalog name.
const Name = "flag"

const defaultWait = time.Second

// Provider implements the flag extension.
type Provider struct {
	api   *engine.API
	flags *table.Table[*flag]
}

// New is the extension's [engine.Factory]. It takes no options.
func New(map[string]any) engine.Provider {
	return &Provider{flags: table.New[*flag]()}
}

// Register implements [engine.Provider].
func (p *Provider) Register(api *engine.API) (engine.Exports, error) {
	p.api = api

	return engine.Exports{
		"flag_add_":      p.add,
		"flag_del_":      p.del,
		"flag_raise_":    p.raise,
		"flag_lower_":    p.lower,
		"flag_israised_": p.isRaised,
		"flag_wait_":     p.wait,
		"flag_list_":     p.list,
	}, nil
}

// Shutdown releases every waiter and drops all flags.
func (p *Provider) Shutdown(context.Context) error {
	for _, f := range p.flags.Drain() {
		f.raise()
	}

	return nil
}

func (p *Provider) lookup(fname string, a engine.Args, specs ...any) (*flag, error) {
	var name string
	if err := a.Unpack(fname, append([]any{"name", &name}, specs...)...); err != nil {
		return nil, err
	}

	f, ok := p.flags.Get(name)
	if !ok {
		p.api.Logger().Warn("flag not found", slog.String("flag", name))
	}

	return f, nil
}

func (p *Provider) add(_ context.Context, a engine.Args) (any, error) {
	var name string
	if err := a.Unpack("flag_add_", "name", &name); err != nil {
		return nil, err
	}

	if !table.ValidName(name) {
		p.api.Logger().Warn("invalid flag name", slog.String("flag", name))

		return false, nil
	}

	if !p.flags.Add(name, newFlag()) {
		p.api.Logger().Warn("flag name already used", slog.String("flag", name))

		return false, nil
	}

	return true, nil
}

func (p *Provider) del(_ context.Context, a engine.Args) (any, error) {
	var name string
	if err := a.Unpack("flag_del_", "name", &name); err != nil {
		return nil, err
	}

	f, ok := p.flags.Remove(name)
	if !ok {
		p.api.Logger().Warn("flag not found", slog.String("flag", name))

		return false, nil
	}

	f.raise()

	return true, nil
}

func (p *Provider) raise(_ context.Context, a engine.Args) (any, error) {
	var toggle bool

	f, err := p.lookup("flag_raise_", a, "toggle?", &toggle)
	if f == nil || err != nil {
		return false, err
	}

	f.raise()

	if toggle {
		f.lower()
	}

	return true, nil
}

func (p *Provider) lower(_ context.Context, a engine.Args) (any, error) {
	f, err := p.lookup("flag_lower_", a)
	if f == nil || err != nil {
		return false, err
	}

	f.lower()

	return true, nil
}

func (p *Provider) isRaised(_ context.Context, a engine.Args) (any, error) {
	f, err := p.lookup("flag_israised_", a)
	if f == nil || err != nil {
		return false, err
	}

	return f.isRaised(), nil
}

func (p *Provider) wait(ctx context.Context, a engine.Args) (any, error) {
	var (
		timeout             = defaultWait
		prelower, postlower bool
	)

	f, err := p.lookup("flag_wait_", a,
		"timeout?", &timeout, "prelower?", &prelower, "postlower?", &postlower)
	if f == nil || err != nil {
		return false, err
	}

	if prelower {
		f.lower()
	}

	ok, err := f.wait(ctx, timeout)
	if ok && postlower {
		f.lower()
	}

	return ok, err
}

// list returns (name, raised) pairs in name order.
func (p *Provider) list(_ context.Context, a engine.Args) (any, error) {
	if err := a.Unpack("flag_list_"); err != nil {
		return nil, err
	}

	out := engine.NewList()

	for _, name := range p.flags.Names() {
		if f, ok := p.flags.Get(name); ok {
			out.Items = append(out.Items, engine.NewTuple(name, f.isRaised()))
		}
	}

	return out, nil
}
