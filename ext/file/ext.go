// Package file provides the "file" extension: text file access confined to
// the directory named by option file_root (default: the working
// directory).
//
//	readLines_(path, handler=None, maxlines=0)
//	writeLines_(path, data=None, handler=None, maxlines=0)
//	appendLines_(path, data=None, handler=None, maxlines=0)
//	listFiles_(path='')
//
// Paths are relative to the root; a leading '/' is ignored and paths that
// escape the root are refused. I/O failures log a warning and return None.
package file

import (
	"bufio"
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/ext/internal/opt"
)

// Name is the extension's catalog name.
const Name = "file"

// Root is the option key naming the directory scripts may access.
const Root = "file_root"

// Provider implements the file extension.
type Provider struct {
	api  *engine.API
	dir  string
	root *os.Root
}

// New is the extension's [engine.Factory].
func New(opts map[string]any) engine.Provider {
	return &Provider{dir: opt.String(opts, Root, ".")}
}

// Register opens the root directory and returns the exports.
func (p *Provider) Register(api *engine.API) (engine.Exports, error) {
	root, err := os.OpenRoot(p.dir)
	if err != nil {
		return nil, err
	}

	p.api, p.root = api, root

	api.Logger().Debug("file root opened", slog.String("root", root.Name()))

	return engine.Exports{
		"readLines_":   p.read,
		"writeLines_":  p.writer("writeLines_", os.O_TRUNC),
		"appendLines_": p.writer("appendLines_", os.O_APPEND),
		"listFiles_":   p.list,
	}, nil
}

// Shutdown closes the root directory.
func (p *Provider) Shutdown(context.Context) error {
	if p.root == nil {
		return nil
	}

	return p.root.Close()
}

// clean maps a script path to one relative to the root.
func clean(path string) string {
	return filepath.Clean(strings.TrimLeft(filepath.FromSlash(path), string(filepath.Separator)))
}

func (p *Provider) fail(op, path string, err error) (any, error) {
	p.api.Logger().Warn(op+" failed", slog.String("path", path), slog.Any("error", err))

	return nil, nil
}

func (p *Provider) read(_ context.Context, a engine.Args) (any, error) {
	var (
		path     string
		handler  any
		maxLines int64
	)

	if err := a.Unpack("readLines_",
		"path", &path, "handler?", &handler, "maxlines?", &maxLines); err != nil {
		return nil, err
	}

	f, err := p.root.Open(clean(path))
	if err != nil {
		return p.fail("readLines_", path, err)
	}
	defer f.Close()

	if handler == nil {
		data, err := io.ReadAll(f)
		if err != nil {
			return p.fail("readLines_", path, err)
		}

		return string(data), nil
	}

	var count int64

	scan := bufio.NewScanner(f)
	for scan.Scan() {
		rv, err := a.Call(handler, strings.TrimSpace(scan.Text()))
		if err != nil {
			return nil, err
		}

		count++

		if rv == false || (maxLines > 0 && count >= maxLines) {
			break
		}
	}

	if err := scan.Err(); err != nil {
		return p.fail("readLines_", path, err)
	}

	return count, nil
}

// writer returns the export that writes data, or the lines produced by
// handler until it returns a false value, to path.
func (p *Provider) writer(fname string, mode int) engine.Func {
	return func(_ context.Context, a engine.Args) (any, error) {
		var (
			path     string
			data     any
			handler  any
			maxLines int64
		)

		if err := a.Unpack(fname,
			"path", &path, "data?", &data, "handler?", &handler, "maxlines?", &maxLines); err != nil {
			return nil, err
		}

		f, err := p.root.OpenFile(clean(path), os.O_WRONLY|os.O_CREATE|mode, 0o644)
		if err != nil {
			return p.fail(fname, path, err)
		}
		defer f.Close()

		w := bufio.NewWriter(f)

		var count int64

		if handler == nil {
			count, err = writeData(w, data)
			if err != nil {
				return nil, err
			}
		} else {
			for maxLines <= 0 || count < maxLines {
				line, err := a.Call(handler)
				if err != nil {
					return nil, err
				}

				if !engine.Truthy(line) {
					break
				}

				if _, err := writeData(w, line); err != nil {
					return nil, err
				}

				count++
			}
		}

		if err := w.Flush(); err != nil {
			return p.fail(fname, path, err)
		}

		return count, nil
	}
}

// writeData writes a str verbatim or each element of a list on its own
// line, returning the number of bytes written.
func writeData(w *bufio.Writer, data any) (int64, error) {
	switch v := data.(type) {
	case nil:
		return 0, nil
	case string:
		n, _ := w.WriteString(v)

		return int64(n), nil
	case *engine.List:
		var total int64

		for _, it := range v.Snapshot() {
			n, _ := w.WriteString(engine.Str(it) + "\n")
			total += int64(n)
		}

		return total, nil
	}

	return 0, engine.Errorf(engine.CategoryType,
		"data must be str or list, not %s", engine.TypeName(data))
}

func (p *Provider) list(_ context.Context, a engine.Args) (any, error) {
	path := ""
	if err := a.Unpack("listFiles_", "path?", &path); err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(p.root.FS(), filepath.ToSlash(clean(path)))
	if err != nil {
		return p.fail("listFiles_", path, err)
	}

	names := make([]string, len(entries))
	for i, ent := range entries {
		names[i] = ent.Name()
	}

	return names, nil
}
