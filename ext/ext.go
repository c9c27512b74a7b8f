// Package ext assembles the native extensions shipped with cask. Each
// extension lives in its own package and implements [engine.Provider].
package ext

import (
	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/ext/file"
	"github.com/ardnew/cask/ext/flag"
	"github.com/ardnew/cask/ext/http"
	"github.com/ardnew/cask/ext/queue"
	"github.com/ardnew/cask/ext/sqlite"
	"github.com/ardnew/cask/ext/tasks"
	"github.com/ardnew/cask/ext/tdict"
	"github.com/ardnew/cask/ext/tlist"
	"github.com/ardnew/cask/ext/util"
)

// Catalog returns a catalog holding every bundled extension.
func Catalog() *engine.Catalog {
	return engine.NewCatalog().
		Register(file.Name, file.New).
		Register(flag.Name, flag.New).
		Register(http.Name, http.New).
		Register(queue.Name, queue.New).
		Register(sqlite.Name, sqlite.New).
		Register(tasks.Name, tasks.New).
		Register(tdict.Name, tdict.New).
		Register(tlist.Name, tlist.New).
		Register(util.Name, util.New)
}
