package digo

import (
	"sync"

	"go.uber.org/zap"
)

// scopeContext is the context backing one normal scope of a container.
type scopeContext struct {
	def       ScopeDefinition
	container *Container
	mu        sync.Mutex
	storage   *Storage
	owned     bool
}

var _ BoundContext = (*scopeContext)(nil)

func (c *scopeContext) Scope() Scope {
	return c.def.Name
}

func (c *scopeContext) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage != nil
}

func (c *scopeContext) Storage() *Storage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage
}

// Activate activates the context over fresh storage that is destroyed on deactivation.
func (c *scopeContext) Activate() error {
	return c.activate(NewStorage(), true)
}

func (c *scopeContext) ActivateWith(storage *Storage) error {
	if storage == nil {
		return c.Activate()
	}
	if storage.Destroyed() {
		return &StorageDestroyedError{}
	}
	return c.activate(storage, false)
}

func (c *scopeContext) activate(storage *Storage, owned bool) error {
	if err := c.container.checkOpen(); err != nil {
		return err
	}
	for _, required := range c.def.Requires {
		rc, ok := c.container.contexts[required]
		if !ok || !rc.IsActive() {
			return &ScopeDependencyError{Scope: string(c.def.Name), Requires: string(required)}
		}
	}

	c.mu.Lock()
	if c.storage != nil {
		c.mu.Unlock()
		return &ContextActiveError{Scope: string(c.def.Name)}
	}
	c.storage = storage
	c.owned = owned
	c.mu.Unlock()

	c.container.logger.Debug("Context activated",
		zap.String("scope", string(c.def.Name)),
		zap.Bool("borrowed", !owned))
	return nil
}

// Deactivate detaches the storage and destroys it if the context owns it.
func (c *scopeContext) Deactivate() error {
	c.mu.Lock()
	if c.storage == nil {
		c.mu.Unlock()
		return &ContextNotActiveError{Scope: string(c.def.Name)}
	}
	storage, owned := c.storage, c.owned
	c.storage = nil
	c.owned = false
	c.mu.Unlock()

	c.container.logger.Debug("Context deactivated",
		zap.String("scope", string(c.def.Name)),
		zap.Int("instances", storage.Len()))
	if owned {
		return storage.Destroy()
	}
	return nil
}

// SameScopes reports whether a and b hold the same scopes, ignoring order.
func SameScopes(a, b []Scope) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[Scope]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
		if seen[s] < 0 {
			return false
		}
	}
	return true
}

// OrderScopes sorts definitions so every scope follows the scopes it requires.
// Ties keep input order. ok is false when Requires forms a cycle.
func OrderScopes(defs []ScopeDefinition) (ordered []ScopeDefinition, ok bool) {
	placed := make(map[Scope]bool, len(defs))
	known := make(map[Scope]bool, len(defs))
	for _, d := range defs {
		known[d.Name] = true
	}
	remaining := append([]ScopeDefinition(nil), defs...)
	for len(remaining) > 0 {
		progressed := false
		for i, d := range remaining {
			ready := true
			for _, r := range d.Requires {
				if known[r] && !placed[r] {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, d)
				placed[d.Name] = true
				remaining = append(remaining[:i], remaining[i+1:]...)
				progressed = true
				break
			}
		}
		if !progressed {
			return nil, false
		}
	}
	return ordered, true
}
