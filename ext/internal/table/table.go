// Package table holds the named-resource registries shared by the
// extensions: queues, dicts, tasks and database connections are all opened
// by name, looked up by name and closed by name.
package table

import (
	"maps"
	"slices"
	"sync"
)

// ValidName reports whether name is non-empty and contains only ASCII
// letters, digits, '-' and '_'.
func ValidName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_':
		default:
			return false
		}
	}

	return true
}

// Table is a concurrency-safe map of named resources.
type Table[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// New returns an empty table.
func New[T any]() *Table[T] {
	return &Table[T]{items: map[string]T{}}
}

// Add stores v under name unless name is taken.
func (t *Table[T]) Add(name string, v T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[name]; ok {
		return false
	}

	t.items[name] = v

	return true
}

// Get returns the resource stored under name.
func (t *Table[T]) Get(name string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.items[name]

	return v, ok
}

// Remove deletes and returns the resource stored under name.
func (t *Table[T]) Remove(name string) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.items[name]
	if ok {
		delete(t.items, name)
	}

	return v, ok
}

// Names returns the sorted resource names.
func (t *Table[T]) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return slices.Sorted(maps.Keys(t.items))
}

// Len returns the number of resources.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.items)
}

// Drain empties the table and returns what it held, in name order.
func (t *Table[T]) Drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]T, 0, len(t.items))
	for _, name := range slices.Sorted(maps.Keys(t.items)) {
		out = append(out, t.items[name])
	}

	clear(t.items)

	return out
}
