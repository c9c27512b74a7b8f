// Package sqlite provides the "sqlite" extension: named SQLite connections
// backed by the pure-Go modernc.org/sqlite driver. Database files live
// under the directory named by option sql_root (default: the working
// directory); ":memory:" opens a private in-memory database.
//
//	sql_open_(name, database)
//	sql_close_(name)
//	sql_execute_(name, statement, *params)  -> {'affected': n, 'lastId': id}
//	sql_query_(name, statement, *params)    -> [{column: value, ...}, ...]
//	sql_begin_(name)
//	sql_commit_(name)
//	sql_rollback_(name)
//	sql_list_()
//
// Parameters bind to '?' placeholders. SQL errors raise RuntimeError;
// unknown connection names log a warning and return False or None.
package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/ext/internal/opt"
	"github.com/ardnew/cask/ext/internal/table"
)

// Name is the extension's catalog name.
const Name = "sqlite"

// Root is the option key naming the database directory.
const Root = "sql_root"

// Memory names an in-memory database.
const Memory = ":memory:"

// Provider implements the sqlite extension.
type Provider struct {
	api   *engine.API
	root  string
	conns *table.Table[*conn]
}

// New is the extension's [engine.Factory].
func New(opts map[string]any) engine.Provider {
	return &Provider{root: opt.String(opts, Root, "."), conns: table.New[*conn]()}
}

// Register implements [engine.Provider].
func (p *Provider) Register(api *engine.API) (engine.Exports, error) {
	p.api = api

	return engine.Exports{
		"sql_open_":     p.open,
		"sql_close_":    p.close,
		"sql_execute_":  p.execute,
		"sql_query_":    p.query,
		"sql_begin_":    p.begin,
		"sql_commit_":   p.finisher("sql_commit_", true),
		"sql_rollback_": p.finisher("sql_rollback_", false),
		"sql_list_":     p.list,
	}, nil
}

// Shutdown closes every connection, rolling back open transactions.
func (p *Provider) Shutdown(context.Context) error {
	var errs []error

	for _, c := range p.conns.Drain() {
		errs = append(errs, c.close())
	}

	return errors.Join(errs...)
}

func (p *Provider) warn(msg, name string) {
	p.api.Logger().Warn(msg, slog.String("connection", name))
}

// resolve maps a script database name to a path under the root. Names
// that are absolute or escape the root are refused.
func (p *Provider) resolve(database string) (string, bool) {
	if database == Memory {
		return database, true
	}

	rel := filepath.FromSlash(strings.TrimLeft(database, "/"))
	if !filepath.IsLocal(rel) {
		return "", false
	}

	return filepath.Join(p.root, rel), true
}

func sqlError(fname, statement string, err error) error {
	var ee *engine.Error
	if errors.As(err, &ee) {
		return ee
	}

	return engine.ErrRuntime.Wrap(err).With(
		slog.String("function", fname), slog.String("statement", statement))
}

func (p *Provider) open(ctx context.Context, a engine.Args) (any, error) {
	var name, database string
	if err := a.Unpack("sql_open_", "name", &name, "database", &database); err != nil {
		return nil, err
	}

	if !table.ValidName(name) {
		p.warn("invalid connection name", name)

		return false, nil
	}

	path, ok := p.resolve(database)
	if !ok {
		p.api.Logger().Warn("database path outside root", slog.String("database", database))

		return false, nil
	}

	if _, ok := p.conns.Get(name); ok {
		p.warn("connection name already used", name)

		return false, nil
	}

	c, err := openConn(ctx, path)
	if err != nil {
		p.api.Logger().Warn("open database failed",
			slog.String("database", database), slog.Any("error", err))

		return false, nil
	}

	if !p.conns.Add(name, c) {
		_ = c.close()
		p.warn("connection name already used", name)

		return false, nil
	}

	p.api.Logger().Debug("database opened", slog.String("connection", name), slog.String("path", path))

	return true, nil
}

func (p *Provider) close(_ context.Context, a engine.Args) (any, error) {
	var name string
	if err := a.Unpack("sql_close_", "name", &name); err != nil {
		return nil, err
	}

	c, ok := p.conns.Remove(name)
	if !ok {
		p.warn("connection not found", name)

		return false, nil
	}

	if err := c.close(); err != nil {
		p.api.Logger().Warn("close database failed",
			slog.String("connection", name), slog.Any("error", err))
	}

	return true, nil
}

// statement unpacks (name, statement, *params) and looks up the
// connection; c is nil when the name is unknown.
func (p *Provider) statement(fname string, a engine.Args) (c *conn, stmt string, params []any, err error) {
	if len(a.Positional) < 2 {
		return nil, "", nil, engine.Errorf(engine.CategoryType,
			"%s() requires a connection name and a statement", fname)
	}

	head := engine.Args{Positional: a.Positional[:2], Keywords: a.Keywords}

	var name string
	if err := head.Unpack(fname, "name", &name, "statement", &stmt); err != nil {
		return nil, "", nil, err
	}

	for _, v := range a.Positional[2:] {
		pv, err := toSQL(v)
		if err != nil {
			return nil, "", nil, err
		}

		params = append(params, pv)
	}

	c, ok := p.conns.Get(name)
	if !ok {
		p.warn("connection not found", name)

		return nil, stmt, nil, nil
	}

	return c, stmt, params, nil
}

func (p *Provider) execute(ctx context.Context, a engine.Args) (any, error) {
	c, stmt, params, err := p.statement("sql_execute_", a)
	if c == nil || err != nil {
		return nil, err
	}

	res, err := c.exec(ctx, stmt, params)
	if err != nil {
		return nil, sqlError("sql_execute_", stmt, err)
	}

	return res, nil
}

func (p *Provider) query(ctx context.Context, a engine.Args) (any, error) {
	c, stmt, params, err := p.statement("sql_query_", a)
	if c == nil || err != nil {
		return nil, err
	}

	rows, err := c.query(ctx, stmt, params)
	if err != nil {
		return nil, sqlError("sql_query_", stmt, err)
	}

	return rows, nil
}

func (p *Provider) lookup(fname string, a engine.Args) (*conn, error) {
	var name string
	if err := a.Unpack(fname, "name", &name); err != nil {
		return nil, err
	}

	c, ok := p.conns.Get(name)
	if !ok {
		p.warn("connection not found", name)
	}

	return c, nil
}

func (p *Provider) begin(ctx context.Context, a engine.Args) (any, error) {
	c, err := p.lookup("sql_begin_", a)
	if c == nil || err != nil {
		return false, err
	}

	if err := c.begin(ctx); err != nil {
		return nil, sqlError("sql_begin_", "BEGIN", err)
	}

	return true, nil
}

func (p *Provider) finisher(fname string, commit bool) engine.Func {
	return func(_ context.Context, a engine.Args) (any, error) {
		c, err := p.lookup(fname, a)
		if c == nil || err != nil {
			return false, err
		}

		if err := c.finish(commit); err != nil {
			return nil, sqlError(fname, "", err)
		}

		return true, nil
	}
}

func (p *Provider) list(_ context.Context, a engine.Args) (any, error) {
	if err := a.Unpack("sql_list_"); err != nil {
		return nil, err
	}

	return p.conns.Names(), nil
}
