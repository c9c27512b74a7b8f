package engine

import "sync"

// Scope is a local variable scope. Each call frame gets a fresh Scope
// whose parent is the scope the procedure was defined in, so nested
// procedures see their enclosing locals.
type Scope struct {
	mu     sync.RWMutex
	vars   map[string]any
	parent *Scope
}

func newScope(parent *Scope) *Scope {
	return &Scope{vars: map[string]any{}, parent: parent}
}

// lookup searches s and its ancestors.
func (s *Scope) lookup(name string) (any, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		sc.mu.RLock()
		v, ok := sc.vars[name]
		sc.mu.RUnlock()

		if ok {
			return v, true
		}
	}

	return nil, false
}

func (s *Scope) set(name string, v any) {
	s.mu.Lock()
	s.vars[name] = v
	s.mu.Unlock()
}

// replace rebinds name in s only if it is already bound there.
func (s *Scope) replace(name string, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vars[name]; !ok {
		return false
	}

	s.vars[name] = v

	return true
}

// remove deletes name from s only, reporting whether it was bound there.
func (s *Scope) remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vars[name]; !ok {
		return false
	}

	delete(s.vars, name)

	return true
}
