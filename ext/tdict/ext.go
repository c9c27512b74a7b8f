// Package tdict provides the "tdict" extension: named dicts shared safely
// between a script and its background tasks.
//
//	tdict_open_(name)            tdict_close_(name)
//	tdict_put_(name, key, value) tdict_update_(name, mapping)
//	tdict_get_(name, key, default=None)
//	tdict_pop_(name, key, default=None)
//	tdict_del_(name, key)        tdict_clear_(name)
//	tdict_keys_(name)            tdict_items_(name)
//	tdict_len_(name)             tdict_copy_(name)
//	tdict_list_()
package tdict

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/ext/internal/table"
)

// Name is the extension's catalog name.
const Name = "tdict"

// store is a dict guarded by its own lock.
type store struct {
	mu sync.Mutex
	d  *engine.Dict
}

func (s *store) do(fn func(d *engine.Dict) (any, error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(s.d)
}

// Provider implements the tdict extension.
type Provider struct {
	api    *engine.API
	stores *table.Table[*store]
}

// New is the extension's [engine.Factory]. It takes no options.
func New(map[string]any) engine.Provider {
	return &Provider{stores: table.New[*store]()}
}

// Register implements [engine.Provider].
func (p *Provider) Register(api *engine.API) (engine.Exports, error) {
	p.api = api

	return engine.Exports{
		"tdict_open_":   p.open,
		"tdict_close_":  p.close,
		"tdict_put_":    p.put,
		"tdict_update_": p.update,
		"tdict_get_":    p.get,
		"tdict_pop_":    p.pop,
		"tdict_del_":    p.del,
		"tdict_clear_":  p.clear,
		"tdict_keys_":   p.keys,
		"tdict_items_":  p.items,
		"tdict_len_":    p.len,
		"tdict_copy_":   p.copy,
		"tdict_list_":   p.list,
	}, nil
}

// Shutdown drops every dict.
func (p *Provider) Shutdown(context.Context) error {
	p.stores.Drain()

	return nil
}

func (p *Provider) warn(msg, name string) {
	p.api.Logger().Warn(msg, slog.String("tdict", name))
}

// with unpacks the dict name plus extra specs and runs fn on the named
// dict under its lock. Unknown names log and return missing.
func (p *Provider) with(
	fname string, a engine.Args, missing any, fn func(d *engine.Dict) (any, error), specs ...any,
) (any, error) {
	var name string
	if err := a.Unpack(fname, append([]any{"name", &name}, specs...)...); err != nil {
		return nil, err
	}

	s, ok := p.stores.Get(name)
	if !ok {
		p.warn("dict not found", name)

		return missing, nil
	}

	return s.do(fn)
}

func (p *Provider) open(_ context.Context, a engine.Args) (any, error) {
	var name string
	if err := a.Unpack("tdict_open_", "name", &name); err != nil {
		return nil, err
	}

	if !table.ValidName(name) {
		p.warn("invalid dict name", name)

		return false, nil
	}

	if !p.stores.Add(name, &store{d: engine.NewDict()}) {
		p.warn("dict name already used", name)

		return false, nil
	}

	return true, nil
}

func (p *Provider) close(_ context.Context, a engine.Args) (any, error) {
	var name string
	if err := a.Unpack("tdict_close_", "name", &name); err != nil {
		return nil, err
	}

	if _, ok := p.stores.Remove(name); !ok {
		p.warn("dict not found", name)

		return false, nil
	}

	return true, nil
}

func (p *Provider) put(_ context.Context, a engine.Args) (any, error) {
	var key, value any

	return p.with("tdict_put_", a, false, func(d *engine.Dict) (any, error) {
		if err := d.Set(key, value); err != nil {
			return nil, err
		}

		return true, nil
	}, "key", &key, "value", &value)
}

func (p *Provider) update(_ context.Context, a engine.Args) (any, error) {
	var mapping *engine.Dict

	return p.with("tdict_update_", a, false, func(d *engine.Dict) (any, error) {
		for _, k := range mapping.Keys() {
			v, _, _ := mapping.Get(k)
			if err := d.Set(k, v); err != nil {
				return nil, err
			}
		}

		return true, nil
	}, "mapping", &mapping)
}

func (p *Provider) get(_ context.Context, a engine.Args) (any, error) {
	var key, def any

	return p.with("tdict_get_", a, nil, func(d *engine.Dict) (any, error) {
		v, ok, err := d.Get(key)
		if err != nil || !ok {
			return def, err
		}

		return v, nil
	}, "key", &key, "default?", &def)
}

func (p *Provider) pop(_ context.Context, a engine.Args) (any, error) {
	var key, def any

	return p.with("tdict_pop_", a, nil, func(d *engine.Dict) (any, error) {
		v, ok, err := d.Get(key)
		if err != nil || !ok {
			return def, err
		}

		_, err = d.Delete(key)

		return v, err
	}, "key", &key, "default?", &def)
}

func (p *Provider) del(_ context.Context, a engine.Args) (any, error) {
	var key any

	return p.with("tdict_del_", a, false, func(d *engine.Dict) (any, error) {
		return d.Delete(key)
	}, "key", &key)
}

func (p *Provider) clear(_ context.Context, a engine.Args) (any, error) {
	return p.with("tdict_clear_", a, false, func(d *engine.Dict) (any, error) {
		d.Clear()

		return true, nil
	})
}

func (p *Provider) keys(_ context.Context, a engine.Args) (any, error) {
	return p.with("tdict_keys_", a, nil, func(d *engine.Dict) (any, error) {
		return engine.NewList(d.Keys()...), nil
	})
}

func (p *Provider) items(_ context.Context, a engine.Args) (any, error) {
	return p.with("tdict_items_", a, nil, func(d *engine.Dict) (any, error) {
		return engine.NewList(d.Items()...), nil
	})
}

func (p *Provider) len(_ context.Context, a engine.Args) (any, error) {
	return p.with("tdict_len_", a, 0, func(d *engine.Dict) (any, error) {
		return d.Len(), nil
	})
}

// copy returns a shallow snapshot the script may mutate freely.
func (p *Provider) copy(_ context.Context, a engine.Args) (any, error) {
	return p.with("tdict_copy_", a, nil, func(d *engine.Dict) (any, error) {
		c := engine.NewDict()

		for _, k := range d.Keys() {
			v, _, _ := d.Get(k)
			_ = c.Set(k, v)
		}

		return c, nil
	})
}

func (p *Provider) list(_ context.Context, a engine.Args) (any, error) {
	if err := a.Unpack("tdict_list_"); err != nil {
		return nil, err
	}

	return p.stores.Names(), nil
}
