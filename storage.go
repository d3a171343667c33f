package digo

import (
	"reflect"
	"sync"

	"go.uber.org/multierr"
)

type storedInstance struct {
	key   BindingKey
	value reflect.Value
	ctx   *ContainerContext
}

// Storage holds the instances created inside one context activation, or across
// several activations when a BoundContext borrows it.
type Storage struct {
	mu        sync.Mutex
	entries   map[BindingKey]*storedInstance
	order     []*storedInstance
	destroyed bool
}

// NewStorage returns empty storage.
func NewStorage() *Storage {
	return &Storage{entries: make(map[BindingKey]*storedInstance)}
}

// Len returns the number of instances held.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Destroyed reports whether Destroy has run.
func (s *Storage) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// get returns the instance stored under key, creating it on first use.
// The lock is not held while create runs so that create may resolve other
// beans living in the same storage.
func (s *Storage) get(key BindingKey, create func() (reflect.Value, *ContainerContext, error)) (reflect.Value, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return reflect.Value{}, &StorageDestroyedError{}
	}
	if inst, ok := s.entries[key]; ok {
		s.mu.Unlock()
		return inst.value, nil
	}
	s.mu.Unlock()

	v, ctx, err := create()
	if err != nil {
		return reflect.Value{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.entries[key]; ok {
		return inst.value, nil
	}
	inst := &storedInstance{key: key, value: v, ctx: ctx}
	s.entries[key] = inst
	s.order = append(s.order, inst)
	return v, nil
}

// track records an instance for destruction without making it resolvable.
func (s *Storage) track(key BindingKey, v reflect.Value, ctx *ContainerContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, &storedInstance{key: key, value: v, ctx: ctx})
}

// Destroy shuts down every instance in reverse creation order. Every instance
// is attempted; failures are combined.
func (s *Storage) Destroy() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	order := s.order
	s.order = nil
	s.entries = make(map[BindingKey]*storedInstance)
	s.mu.Unlock()

	var err error
	for i := len(order) - 1; i >= 0; i-- {
		inst := order[i]
		lc, ok := inst.value.Interface().(Lifecycle)
		if !ok {
			continue
		}
		if shutdownErr := lc.OnShutdown(inst.ctx); shutdownErr != nil {
			err = multierr.Append(err, &ShutdownError{Type: inst.key.String(), Err: shutdownErr})
		}
	}
	return err
}
