package digo

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// goid returns the current goroutine ID.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	idField := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))[0]
	id, _ := strconv.ParseInt(idField, 10, 64)
	return id
}

// chain is the set of bindings one goroutine is currently constructing.
type chain struct {
	keys  map[string]bool
	order []string
}

// chainTracker detects circular construction. Each goroutine resolving beans
// has its own chain, so concurrent resolutions of the same binding on
// different goroutines are not mistaken for a cycle.
type chainTracker struct {
	mu     sync.Mutex
	chains map[int64]*chain
	pool   sync.Pool
}

// enter pushes key onto the calling goroutine's chain.
func (t *chainTracker) enter(key string) error {
	id := goid()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.chains == nil {
		t.chains = make(map[int64]*chain)
	}
	ch, ok := t.chains[id]
	if !ok {
		ch = t.get()
		t.chains[id] = ch
	}
	if ch.keys[key] {
		return &CircularDependencyError{Type: key, Chain: append(append([]string(nil), ch.order...), key)}
	}
	ch.keys[key] = true
	ch.order = append(ch.order, key)
	return nil
}

// leave pops key. The chain is recycled once the goroutine's outermost
// construction finishes.
func (t *chainTracker) leave(key string) {
	id := goid()
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.chains[id]
	if !ok {
		return
	}
	delete(ch.keys, key)
	if n := len(ch.order); n > 0 && ch.order[n-1] == key {
		ch.order = ch.order[:n-1]
	}
	if len(ch.keys) == 0 {
		delete(t.chains, id)
		ch.order = ch.order[:0]
		t.pool.Put(ch)
	}
}

func (t *chainTracker) get() *chain {
	if ch, ok := t.pool.Get().(*chain); ok {
		return ch
	}
	return &chain{keys: make(map[string]bool, 8), order: make([]string, 0, 8)}
}

// ownedMutex is a mutex the holding goroutine may lock again. Application
// beans are constructed inside dig invocations that resolve their own
// application dependencies through further invocations on the same goroutine.
type ownedMutex struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner int64
	depth int
}

func (m *ownedMutex) Lock() {
	id := goid()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cond == nil {
		m.cond = sync.NewCond(&m.mu)
	}
	for m.depth > 0 && m.owner != id {
		m.cond.Wait()
	}
	m.owner = id
	m.depth++
}

func (m *ownedMutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth--
	if m.depth == 0 {
		m.owner = 0
		m.cond.Broadcast()
	}
}
