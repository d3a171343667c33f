// Package naming is a small name directory for code that looks beans up by a
// well-known name instead of receiving them. Bindings are narrowly scoped:
// whoever binds a name releases it, and lookups after release fail.
package naming

import (
	"sync"
)

// BeanRegistryPath is the name under which the harness exposes the bean
// registry of the running invocation.
const BeanRegistryPath = "java:comp/BeanManager"

// Directory maps names to values.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]*Binding
}

// Binding is one live registration in a Directory.
type Binding struct {
	dir      *Directory
	path     string
	value    any
	released bool
}

var defaultDirectory = NewDirectory()

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]*Binding)}
}

// Default returns the process-wide directory.
func Default() *Directory {
	return defaultDirectory
}

// Bind registers value under path. At most one binding per path is live.
func (d *Directory) Bind(path string, value any) (*Binding, error) {
	if path == "" {
		return nil, &InvalidBindingError{Path: path, Reason: "empty path"}
	}
	if value == nil {
		return nil, &InvalidBindingError{Path: path, Reason: "nil value"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[path]; ok {
		return nil, &AlreadyBoundError{Path: path}
	}
	b := &Binding{dir: d, path: path, value: value}
	d.entries[path] = b
	return b, nil
}

// Lookup returns the value bound to path.
func (d *Directory) Lookup(path string) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.entries[path]
	if !ok {
		return nil, &NotBoundError{Path: path}
	}
	return b.value, nil
}

// Bound reports whether path has a live binding.
func (d *Directory) Bound(path string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.entries[path]
	return ok
}

// Path returns the bound name.
func (b *Binding) Path() string {
	return b.path
}

// Lookup returns the bound value while the binding is live.
func (b *Binding) Lookup() (any, error) {
	b.dir.mu.RLock()
	defer b.dir.mu.RUnlock()
	if b.released {
		return nil, &NotBoundError{Path: b.path}
	}
	return b.value, nil
}

// Release removes the binding. Releasing twice is a no-op.
func (b *Binding) Release() error {
	b.dir.mu.Lock()
	defer b.dir.mu.Unlock()
	if b.released {
		return nil
	}
	b.released = true
	b.value = nil
	if current, ok := b.dir.entries[b.path]; ok && current == b {
		delete(b.dir.entries, b.path)
	}
	return nil
}

// Released reports whether Release has run.
func (b *Binding) Released() bool {
	b.dir.mu.RLock()
	defer b.dir.mu.RUnlock()
	return b.released
}

// Lookup looks path up in the process-wide directory.
func Lookup(path string) (any, error) {
	return defaultDirectory.Lookup(path)
}
