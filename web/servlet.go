// Package web emulates the request, session and servlet-context objects a web
// container would hand to beans, and bridges their lifecycle events to the
// request, session and conversation contexts of a digo container.
package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/centraunit/digo"
)

type attributes struct {
	attrMu sync.RWMutex
	values map[string]any
}

func (a *attributes) Attribute(name string) any {
	a.attrMu.RLock()
	defer a.attrMu.RUnlock()
	return a.values[name]
}

func (a *attributes) SetAttribute(name string, value any) {
	a.attrMu.Lock()
	defer a.attrMu.Unlock()
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if value == nil {
		delete(a.values, name)
		return
	}
	a.values[name] = value
}

// ServletContext is the application-wide web context.
type ServletContext struct {
	attributes
	name        string
	mu          sync.Mutex
	initialized bool
}

// NewServletContext returns the servlet context bean.
func NewServletContext() *ServletContext {
	return &ServletContext{name: "digo"}
}

func (s *ServletContext) Name() string {
	return s.name
}

// Initialized reports whether the listener saw the context initialized and not yet destroyed.
func (s *ServletContext) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *ServletContext) setInitialized(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = v
}

// Session is an emulated HTTP session. Its storage backs the session context
// across the requests that carry it.
type Session struct {
	attributes
	id          string
	created     time.Time
	storage     *digo.Storage
	mu          sync.Mutex
	invalidated bool
}

// NewSession returns a fresh session.
func NewSession() *Session {
	return &Session{
		id:      uuid.NewString(),
		created: time.Now(),
		storage: digo.NewStorage(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) CreatedAt() time.Time {
	return s.created
}

// Storage returns the storage of the session context.
func (s *Session) Storage() *digo.Storage {
	return s.storage
}

// Invalidated reports whether the session was destroyed.
func (s *Session) Invalidated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidated
}

func (s *Session) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = true
}

// Request is an emulated HTTP request. Its storage backs the request context
// while the request is open.
type Request struct {
	attributes
	id             string
	servletContext *ServletContext
	storage        *digo.Storage
	mu             sync.Mutex
	session        *Session
}

// NewRequest returns a fresh request. It is registered as a dependent bean so
// that every lookup yields a new request.
func NewRequest(sc *ServletContext) *Request {
	return &Request{
		id:             uuid.NewString(),
		servletContext: sc,
		storage:        digo.NewStorage(),
	}
}

func (r *Request) ID() string {
	return r.id
}

func (r *Request) ServletContext() *ServletContext {
	return r.servletContext
}

// Storage returns the storage of the request context.
func (r *Request) Storage() *digo.Storage {
	return r.storage
}

// Session returns the request's session. With create set, a missing or
// invalidated session is replaced by a new one; otherwise nil is returned.
func (r *Request) Session(create bool) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil && r.session.Invalidated() {
		r.session = nil
	}
	if r.session == nil && create {
		r.session = NewSession()
	}
	return r.session
}

// SetSession attaches an existing session to the request.
func (r *Request) SetSession(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = s
}
