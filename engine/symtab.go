package engine

import (
	"maps"
	"slices"
	"sync"
)

// Namespace tags the origin of a global binding.
type Namespace uint8

const (
	// NamespaceUser holds names bound by scripts or by the host via SetVar.
	NamespaceUser Namespace = iota
	// NamespaceSystem holds the engine's own framework callables.
	NamespaceSystem
	// NamespaceExtension holds names exported by extensions and modules,
	// including the core builtins.
	NamespaceExtension
)

func (n Namespace) String() string {
	switch n {
	case NamespaceUser:
		return "user"
	case NamespaceSystem:
		return "system"
	case NamespaceExtension:
		return "extension"
	default:
		return "unknown"
	}
}

type binding struct {
	value any
	ns    Namespace
	owner string
}

// SymbolTable is the engine-wide global scope. A name is bound in at most
// one namespace; binding a name owned by another namespace fails with a
// NamespaceCollisionError rather than shadowing it.
//
// The table's lock is the engine lock: extension loads, module installs
// and global binds are all serialized through it.
type SymbolTable struct {
	mu    sync.RWMutex
	names map[string]*binding
}

func newSymbolTable() *SymbolTable {
	return &SymbolTable{names: map[string]*binding{}}
}

// Resolve returns the value bound to name in any namespace.
func (t *SymbolTable) Resolve(name string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.names[name]
	if !ok {
		return nil, false
	}

	return b.value, true
}

// reserved returns a collision error if name is owned by a namespace other
// than user.
func (t *SymbolTable) reserved(name string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.reservedLocked(name)
}

func (t *SymbolTable) reservedLocked(name string) error {
	b, ok := t.names[name]
	if !ok || b.ns == NamespaceUser {
		return nil
	}

	return collision(name, b)
}

func collision(name string, b *binding) *Error {
	if b.owner != "" {
		return Errorf(CategoryCollision, "cannot rebind '%s': owned by %s '%s'", name, b.ns, b.owner)
	}

	return Errorf(CategoryCollision, "cannot rebind '%s': owned by %s namespace", name, b.ns)
}

// Bind sets a user-namespace global.
func (t *SymbolTable) Bind(name string, v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.reservedLocked(name); err != nil {
		return err
	}

	t.names[name] = &binding{value: v, ns: NamespaceUser}

	return nil
}

// Unbind removes a user-namespace global, reporting whether it existed.
func (t *SymbolTable) Unbind(name string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.names[name]
	if !ok {
		return false, nil
	}

	if b.ns != NamespaceUser {
		return false, collision(name, b)
	}

	delete(t.names, name)

	return true, nil
}

// bindOwnedLocked binds every export under owner in namespace ns after
// verifying that none of them collides with an existing binding. On
// collision nothing is bound. The caller holds the write lock.
func (t *SymbolTable) bindOwnedLocked(ns Namespace, owner string, exports map[string]any) error {
	for _, name := range slices.Sorted(maps.Keys(exports)) {
		if b, ok := t.names[name]; ok {
			by := b.ns.String() + " binding"
			if b.owner != "" {
				by = "'" + b.owner + "'"
			}

			return Errorf(CategoryExtensionCollision,
				"%s: export '%s' collides with %s", owner, name, by)
		}
	}

	for name, v := range exports {
		t.names[name] = &binding{value: v, ns: ns, owner: owner}
	}

	return nil
}

// unbindOwnerLocked removes every binding owned by owner and returns the
// removed names. The caller holds the write lock.
func (t *SymbolTable) unbindOwnerLocked(owner string) []string {
	var removed []string

	for name, b := range t.names {
		if b.ns != NamespaceUser && b.owner == owner {
			delete(t.names, name)
			removed = append(removed, name)
		}
	}

	slices.Sort(removed)

	return removed
}

// userValues returns the user-namespace bindings.
func (t *SymbolTable) userValues() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := map[string]any{}

	for name, b := range t.names {
		if b.ns == NamespaceUser {
			out[name] = b.value
		}
	}

	return out
}

// all returns every bound name in order.
func (t *SymbolTable) all() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return slices.Sorted(maps.Keys(t.names))
}
