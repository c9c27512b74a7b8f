package engine

import (
	"slices"
	"sync"
)

// sysvarIndex is the system variable listing every system variable name.
const sysvarIndex = "_sysvars_"

// sysvarErrline holds the line of the last uncaught script error.
const sysvarErrline = "errline_"

// sysvarCurrentScript names the script being loaded.
const sysvarCurrentScript = "currentScript"

// sysVars is the host-written, script-read-only variable store. Scripts
// read it through getSysVar_; it is never visible by bare name.
type sysVars struct {
	mu   sync.RWMutex
	vars map[string]any
}

func newSysVars() *sysVars {
	return &sysVars{vars: map[string]any{sysvarIndex: NewTuple()}}
}

func (s *sysVars) set(name string, v any) bool {
	if name == "" || name == sysvarIndex {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.vars[name] = v

	names := make([]string, 0, len(s.vars))
	for k := range s.vars {
		names = append(names, k)
	}

	slices.Sort(names)

	items := make([]any, len(names))
	for i, n := range names {
		items[i] = n
	}

	s.vars[sysvarIndex] = NewTuple(items...)

	return true
}

func (s *sysVars) get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vars[name]

	return v, ok
}
