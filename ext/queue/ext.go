// Package queue provides the "queue" extension: named queues that scripts
// and their background tasks use to pass values between goroutines.
//
//	queue_open_(name, type='fifo', size=0)
//	queue_close_(name)
//	queue_put_(name, value, block=True, timeout=0)
//	queue_get_(name, block=True, timeout=0)
//	queue_len_(name)
//	queue_isempty_(name)
//	queue_clear_(name)
//	queue_list_()
//
// Operations on unknown names log a warning and return False (None for
// queue_get_, 0 for queue_len_).
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/ext/internal/table"
)

// Name is the extension's catalog name.
const Name = "queue"

// Provider implements the queue extension.
type Provider struct {
	api    *engine.API
	queues *table.Table[*queue]
}

// New is the extension's [engine.Factory]. It takes no options.
func New(map[string]any) engine.Provider {
	return &Provider{queues: table.New[*queue]()}
}

// Register implements [engine.Provider].
func (p *Provider) Register(api *engine.API) (engine.Exports, error) {
	p.api = api

	return engine.Exports{
		"queue_open_":    p.open,
		"queue_close_":   p.close,
		"queue_put_":     p.put,
		"queue_get_":     p.get,
		"queue_len_":     p.len,
		"queue_isempty_": p.isEmpty,
		"queue_clear_":   p.clear,
		"queue_list_":    p.list,
	}, nil
}

// Shutdown closes every queue, releasing blocked callers.
func (p *Provider) Shutdown(context.Context) error {
	for _, q := range p.queues.Drain() {
		q.close()
	}

	return nil
}

func (p *Provider) warn(msg, name string) {
	p.api.Logger().Warn(msg, slog.String("queue", name))
}

func (p *Provider) lookup(name string) (*queue, bool) {
	q, ok := p.queues.Get(name)
	if !ok {
		p.warn("queue not found", name)
	}

	return q, ok
}

func (p *Provider) open(_ context.Context, a engine.Args) (any, error) {
	var (
		name  string
		order = FIFO
		size  int
	)

	if err := a.Unpack("queue_open_", "name", &name, "type?", &order, "size?", &size); err != nil {
		return nil, err
	}

	if order != FIFO && order != LIFO {
		return nil, engine.Errorf(engine.CategoryValue,
			"queue_open_() type must be '%s' or '%s', not '%s'", FIFO, LIFO, order)
	}

	if !table.ValidName(name) {
		p.warn("invalid queue name", name)

		return false, nil
	}

	if !p.queues.Add(name, newQueue(order, size)) {
		p.warn("queue name already used", name)

		return false, nil
	}

	p.api.Logger().Debug("queue opened",
		slog.String("queue", name), slog.String("type", order), slog.Int("size", size))

	return true, nil
}

func (p *Provider) close(_ context.Context, a engine.Args) (any, error) {
	var name string
	if err := a.Unpack("queue_close_", "name", &name); err != nil {
		return nil, err
	}

	q, ok := p.queues.Remove(name)
	if !ok {
		p.warn("queue not found", name)

		return false, nil
	}

	q.close()

	return true, nil
}

func (p *Provider) put(ctx context.Context, a engine.Args) (any, error) {
	var (
		name    string
		value   any
		block   = true
		timeout time.Duration
	)

	if err := a.Unpack("queue_put_",
		"name", &name, "value", &value, "block?", &block, "timeout?", &timeout); err != nil {
		return nil, err
	}

	q, ok := p.lookup(name)
	if !ok {
		return false, nil
	}

	return q.put(ctx, value, block, timeout)
}

func (p *Provider) get(ctx context.Context, a engine.Args) (any, error) {
	var (
		name    string
		block   = true
		timeout time.Duration
	)

	if err := a.Unpack("queue_get_", "name", &name, "block?", &block, "timeout?", &timeout); err != nil {
		return nil, err
	}

	q, ok := p.lookup(name)
	if !ok {
		return nil, nil
	}

	v, _, err := q.get(ctx, block, timeout)

	return v, err
}

func (p *Provider) len(_ context.Context, a engine.Args) (any, error) {
	var name string
	if err := a.Unpack("queue_len_", "name", &name); err != nil {
		return nil, err
	}

	q, ok := p.lookup(name)
	if !ok {
		return 0, nil
	}

	return q.len(), nil
}

func (p *Provider) isEmpty(_ context.Context, a engine.Args) (any, error) {
	var name string
	if err := a.Unpack("queue_isempty_", "name", &name); err != nil {
		return nil, err
	}

	q, ok := p.lookup(name)
	if !ok {
		return false, nil
	}

	return q.len() == 0, nil
}

func (p *Provider) clear(_ context.Context, a engine.Args) (any, error) {
	var name string
	if err := a.Unpack("queue_clear_", "name", &name); err != nil {
		return nil, err
	}

	q, ok := p.lookup(name)
	if !ok {
		return false, nil
	}

	q.clear()

	return true, nil
}

func (p *Provider) list(_ context.Context, a engine.Args) (any, error) {
	if err := a.Unpack("queue_list_"); err != nil {
		return nil, err
	}

	return p.queues.Names(), nil
}
