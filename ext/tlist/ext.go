// Package tlist provides the "tlist" extension: named lists shared safely
// between a script and its background tasks.
//
//	tlist_open_(name, items=None)     tlist_close_(name)
//	tlist_append_(name, value)        tlist_extend_(name, items)
//	tlist_insert_(name, value, index=None)
//	tlist_remove_(name, value)
//	tlist_get_(name, start=None, stop=None, step=None)
//	tlist_pop_(name, index=-1)        tlist_clear_(name)
//	tlist_index_(name, value, start=0, stop=None)
//	tlist_count_(name, value)         tlist_len_(name)
//	tlist_reverse_(name)              tlist_copy_(name)
//	tlist_wait_(name, timeout=10)     tlist_list_()
//
// Operations on unknown names log a warning and return False (None for
// tlist_get_, tlist_pop_ and tlist_copy_, 0 for counts, -1 for
// tlist_index_).
package tlist

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/ext/internal/table"
)

// Name is the extension's catalog name.
const Name = "tlist"

const defaultWait = 10 * time.Second

// Provider implements the tlist extension.
type Provider struct {
	api   *engine.API
	lists *table.Table[*list]
}

// New is the extension's [engine.Factory]. It takes no options.
func New(map[string]any) engine.Provider {
	return &Provider{lists: table.New[*list]()}
}

// Register implements [engine.Provider].
func (p *Provider) Register(api *engine.API) (engine.Exports, error) {
	p.api = api

	return engine.Exports{
		"tlist_open_":    p.open,
		"tlist_close_":   p.close,
		"tlist_append_":  p.append,
		"tlist_extend_":  p.extend,
		"tlist_insert_":  p.insert,
		"tlist_remove_":  p.remove,
		"tlist_get_":     p.get,
		"tlist_pop_":     p.pop,
		"tlist_clear_":   p.clear,
		"tlist_index_":   p.index,
		"tlist_count_":   p.count,
		"tlist_len_":     p.len,
		"tlist_reverse_": p.reverse,
		"tlist_copy_":    p.copy,
		"tlist_wait_":    p.wait,
		"tlist_list_":    p.list,
	}, nil
}

// Shutdown closes every list, releasing blocked callers.
func (p *Provider) Shutdown(context.Context) error {
	for _, l := range p.lists.Drain() {
		l.close()
	}

	return nil
}

func (p *Provider) warn(msg, name string) {
	p.api.Logger().Warn(msg, slog.String("tlist", name))
}

// with unpacks the list name plus extra specs and runs fn on the named
// list under its lock. Unknown names log and return missing.
func (p *Provider) with(
	fname string, a engine.Args, missing any, fn func(items *[]any) (any, error), specs ...any,
) (any, error) {
	var name string
	if err := a.Unpack(fname, append([]any{"name", &name}, specs...)...); err != nil {
		return nil, err
	}

	l, ok := p.lists.Get(name)
	if !ok {
		p.warn("list not found", name)

		return missing, nil
	}

	return l.do(fn)
}

func (p *Provider) open(_ context.Context, a engine.Args) (any, error) {
	var (
		name  string
		items []any
	)

	if err := a.Unpack("tlist_open_", "name", &name, "items?", &items); err != nil {
		return nil, err
	}

	if !table.ValidName(name) {
		p.warn("invalid list name", name)

		return false, nil
	}

	if !p.lists.Add(name, newList(slices.Clone(items))) {
		p.warn("list name already used", name)

		return false, nil
	}

	return true, nil
}

func (p *Provider) close(_ context.Context, a engine.Args) (any, error) {
	var name string
	if err := a.Unpack("tlist_close_", "name", &name); err != nil {
		return nil, err
	}

	l, ok := p.lists.Remove(name)
	if !ok {
		p.warn("list not found", name)

		return false, nil
	}

	l.close()

	return true, nil
}

func (p *Provider) append(_ context.Context, a engine.Args) (any, error) {
	var value any

	return p.with("tlist_append_", a, false, func(items *[]any) (any, error) {
		*items = append(*items, value)

		return true, nil
	}, "value", &value)
}

func (p *Provider) extend(_ context.Context, a engine.Args) (any, error) {
	var more []any

	return p.with("tlist_extend_", a, false, func(items *[]any) (any, error) {
		*items = append(*items, more...)

		return true, nil
	}, "items", &more)
}

func (p *Provider) insert(_ context.Context, a engine.Args) (any, error) {
	var (
		value any
		at    any
	)

	return p.with("tlist_insert_", a, false, func(items *[]any) (any, error) {
		i := len(*items)

		if at != nil {
			n, ok := at.(int64)
			if !ok {
				return nil, engine.Errorf(engine.CategoryType,
					"tlist_insert_() argument 'index' must be int, not %s", engine.TypeName(at))
			}

			i = index(n, len(*items))
		}

		*items = slices.Insert(*items, i, value)

		return true, nil
	}, "value", &value, "index?", &at)
}

// remove deletes the first item equal to value, reporting whether one was
// found.
func (p *Provider) remove(_ context.Context, a engine.Args) (any, error) {
	var value any

	return p.with("tlist_remove_", a, false, func(items *[]any) (any, error) {
		i := slices.IndexFunc(*items, func(v any) bool { return engine.Equal(v, value) })
		if i < 0 {
			return false, nil
		}

		*items = slices.Delete(*items, i, i+1)

		return true, nil
	}, "value", &value)
}

func (p *Provider) get(_ context.Context, a engine.Args) (any, error) {
	var start, stop, step any

	return p.with("tlist_get_", a, nil, func(items *[]any) (any, error) {
		out, err := engine.Slice(*items, start, stop, step)
		if err != nil {
			return nil, err
		}

		return engine.NewList(out...), nil
	}, "start?", &start, "stop?", &stop, "step?", &step)
}

// pop removes and returns the item at index, or None when the list is
// empty or index is out of range.
func (p *Provider) pop(_ context.Context, a engine.Args) (any, error) {
	at := int64(-1)

	return p.with("tlist_pop_", a, nil, func(items *[]any) (any, error) {
		n := int64(len(*items))

		i := at
		if i < 0 {
			i += n
		}

		if i < 0 || i >= n {
			return nil, nil
		}

		v := (*items)[i]
		*items = slices.Delete(*items, int(i), int(i)+1)

		return v, nil
	}, "index?", &at)
}

func (p *Provider) clear(_ context.Context, a engine.Args) (any, error) {
	return p.with("tlist_clear_", a, false, func(items *[]any) (any, error) {
		clear(*items)
		*items = (*items)[:0]

		return true, nil
	})
}

func (p *Provider) index(_ context.Context, a engine.Args) (any, error) {
	var (
		value any
		start int64
		stop  any
	)

	return p.with("tlist_index_", a, -1, func(items *[]any) (any, error) {
		n := len(*items)
		lo, hi := index(start, n), n

		if stop != nil {
			s, ok := stop.(int64)
			if !ok {
				return nil, engine.Errorf(engine.CategoryType,
					"tlist_index_() argument 'stop' must be int, not %s", engine.TypeName(stop))
			}

			hi = index(s, n)
		}

		for i := lo; i < hi; i++ {
			if engine.Equal((*items)[i], value) {
				return i, nil
			}
		}

		return -1, nil
	}, "value", &value, "start?", &start, "stop?", &stop)
}

func (p *Provider) count(_ context.Context, a engine.Args) (any, error) {
	var value any

	return p.with("tlist_count_", a, 0, func(items *[]any) (any, error) {
		n := 0

		for _, v := range *items {
			if engine.Equal(v, value) {
				n++
			}
		}

		return n, nil
	}, "value", &value)
}

func (p *Provider) len(_ context.Context, a engine.Args) (any, error) {
	return p.with("tlist_len_", a, 0, func(items *[]any) (any, error) {
		return len(*items), nil
	})
}

func (p *Provider) reverse(_ context.Context, a engine.Args) (any, error) {
	return p.with("tlist_reverse_", a, false, func(items *[]any) (any, error) {
		slices.Reverse(*items)

		return true, nil
	})
}

// copy returns a shallow snapshot the script may mutate freely.
func (p *Provider) copy(_ context.Context, a engine.Args) (any, error) {
	return p.with("tlist_copy_", a, nil, func(items *[]any) (any, error) {
		return engine.NewList(slices.Clone(*items)...), nil
	})
}

// wait blocks until the named list holds an item or timeout passes.
func (p *Provider) wait(ctx context.Context, a engine.Args) (any, error) {
	var (
		name    string
		timeout = defaultWait
	)

	if err := a.Unpack("tlist_wait_", "name", &name, "timeout?", &timeout); err != nil {
		return nil, err
	}

	l, ok := p.lists.Get(name)
	if !ok {
		p.warn("list not found", name)

		return false, nil
	}

	return l.wait(ctx, timeout)
}

func (p *Provider) list(_ context.Context, a engine.Args) (any, error) {
	if err := a.Unpack("tlist_list_"); err != nil {
		return nil, err
	}

	return p.lists.Names(), nil
}
