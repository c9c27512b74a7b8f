package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/ardnew/cask/engine"

	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// conn is one named database connection with at most one open
// transaction.
type conn struct {
	path string

	mu sync.Mutex
	db *sql.DB
	tx *sql.Tx
}

func openConn(ctx context.Context, path string) (*conn, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// a single connection keeps ":memory:" databases and transactions
	// coherent across calls
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &conn{path: path, db: db}, nil
}

func (c *conn) querier() querier {
	if c.tx != nil {
		return c.tx
	}

	return c.db
}

func (c *conn) begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx != nil {
		return engine.NewError(engine.CategoryRuntime, "transaction already open")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	c.tx = tx

	return nil
}

// finish commits or rolls back the open transaction.
func (c *conn) finish(commit bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx == nil {
		return engine.NewError(engine.CategoryRuntime, "no transaction open")
	}

	tx := c.tx
	c.tx = nil

	if commit {
		return tx.Commit()
	}

	return tx.Rollback()
}

func (c *conn) exec(ctx context.Context, query string, args []any) (*engine.Dict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.querier().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()

	d := engine.NewDict()
	_ = d.Set("affected", affected)
	_ = d.Set("lastId", lastID)

	return d, nil
}

// query returns the result rows as dicts keyed by column name in column
// order.
func (c *conn) query(ctx context.Context, query string, args []any) (*engine.List, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.querier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := engine.NewList()

	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))

		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := engine.NewDict()
		for i, col := range columns {
			_ = row.Set(col, fromSQL(values[i]))
		}

		out.Items = append(out.Items, row)
	}

	return out, rows.Err()
}

func (c *conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	if c.tx != nil {
		errs = append(errs, c.tx.Rollback())
		c.tx = nil
	}

	errs = append(errs, c.db.Close())

	return errors.Join(errs...)
}

func fromSQL(v any) any {
	switch v := v.(type) {
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case []byte:
		return string(v)
	}

	return engine.FromGo(v)
}

// toSQL converts a script argument into a driver value.
func toSQL(v any) (any, error) {
	switch v := v.(type) {
	case nil, bool, int64, float64, string:
		return v, nil
	}

	return nil, engine.Errorf(engine.CategoryType,
		"unsupported SQL parameter type: %s", engine.TypeName(v))
}
