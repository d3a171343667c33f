package digotest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/centraunit/digo"
	"github.com/centraunit/digo/naming"
)

// State is the lifecycle state of one invocation's container.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Errors while initializing or running go straight to StateShuttingDown.
var transitions = map[State][]State{
	StateUninitialized: {StateInitializing},
	StateInitializing:  {StateReady, StateShuttingDown},
	StateReady:         {StateRunning, StateShuttingDown},
	StateRunning:       {StateShuttingDown},
	StateShuttingDown:  {StateTerminated},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Handle owns the container of one test invocation. It must be passed to
// Manager.Shutdown exactly once, whatever happened before.
type Handle struct {
	id        string
	config    TestConfiguration
	logger    *zap.Logger
	container *digo.Container
	lookup    *naming.Binding

	mu         sync.Mutex
	state      State
	activation *Activation

	shutdownOnce sync.Once
	shutdownErr  error
}

func newHandle(cfg TestConfiguration, logger *zap.Logger) *Handle {
	id := uuid.NewString()
	return &Handle{
		id:     id,
		config: cfg,
		logger: logger.With(zap.String("invocation", id), zap.String("test", cfg.Name())),
	}
}

// ID returns the invocation identifier.
func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Config() TestConfiguration {
	return h.config
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Container returns the invocation's container, or nil if building it failed.
func (h *Handle) Container() *digo.Container {
	return h.container
}

// Registry returns the bean registry of the container, or nil.
func (h *Handle) Registry() *digo.Registry {
	if h.container == nil {
		return nil
	}
	return h.container.Registry()
}

// Activation returns the scopes activated for the test body, or nil.
func (h *Handle) Activation() *Activation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activation
}

func (h *Handle) transition(to State) error {
	h.mu.Lock()
	from := h.state
	if !canTransition(from, to) {
		h.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	h.state = to
	h.mu.Unlock()

	h.logger.Debug("Lifecycle transition",
		zap.Stringer("from", from),
		zap.Stringer("state", to))
	return nil
}

// Manager creates and tears down the container of each test invocation.
type Manager struct {
	logger        *zap.Logger
	directory     *naming.Directory
	lookupPath    string
	lookupEnabled bool
	scopes        *ScopeController
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger handed to the manager and every container it builds.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDirectory sets the directory the bean registry is bound in.
func WithDirectory(d *naming.Directory) ManagerOption {
	return func(m *Manager) {
		if d != nil {
			m.directory = d
		}
	}
}

// WithLookupPath sets the name the bean registry is bound under.
func WithLookupPath(path string) ManagerOption {
	return func(m *Manager) {
		m.lookupPath = path
	}
}

// WithoutLookup disables binding the bean registry.
func WithoutLookup() ManagerOption {
	return func(m *Manager) {
		m.lookupEnabled = false
	}
}

// NewManager returns a manager binding each invocation's registry in the
// default directory under naming.BeanRegistryPath.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:        zap.NewNop(),
		directory:     naming.Default(),
		lookupPath:    naming.BeanRegistryPath,
		lookupEnabled: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.scopes = NewScopeController(m.logger)
	return m
}

// Scopes returns the controller used to activate the scopes of each invocation.
func (m *Manager) Scopes() *ScopeController {
	return m.scopes
}

// Initialize builds the container for cfg, binds its registry for lookup and
// injects instance. The returned handle is never nil: on error it must still
// be passed to Shutdown to release whatever was allocated.
func (m *Manager) Initialize(cfg TestConfiguration, instance any) (*Handle, error) {
	h := newHandle(cfg, m.logger)
	if err := h.transition(StateInitializing); err != nil {
		return h, err
	}
	test := cfg.Name()

	producers, err := digo.ProducersOf(instance, cfg.Extensions())
	if err != nil {
		return h, &InitializationError{Test: test, Stage: "producers", Err: err}
	}

	ctx := digo.NewContainerContext(context.Background()).WithValue(digo.InvocationIDKey, h.id)
	container, err := digo.Build(cfg.containerConfig(producers, h.logger, ctx))
	if err != nil {
		return h, &InitializationError{Test: test, Stage: "build", Err: err}
	}
	h.container = container

	if m.lookupEnabled {
		lookup, err := m.directory.Bind(m.lookupPath, container.Registry())
		if err != nil {
			return h, &LookupBindingError{Path: m.lookupPath, Err: err}
		}
		h.lookup = lookup
	}

	if err := container.Inject(instance); err != nil {
		return h, &InitializationError{Test: test, Stage: "inject", Err: err}
	}

	if err := h.transition(StateReady); err != nil {
		return h, err
	}
	h.logger.Info("Invocation ready")
	return h, nil
}

// Start activates the declared scopes and marks the handle running.
func (m *Manager) Start(h *Handle) error {
	if h.State() != StateReady {
		return &InvalidTransitionError{From: h.State(), To: StateRunning}
	}
	act, err := m.scopes.Activate(h.Registry(), h.config.ActivateScopes())
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.activation = act
	h.mu.Unlock()
	return h.transition(StateRunning)
}

// Stop deactivates the scopes Start activated, in reverse order.
func (m *Manager) Stop(h *Handle) error {
	h.mu.Lock()
	act := h.activation
	h.activation = nil
	h.mu.Unlock()
	if act == nil {
		return nil
	}
	return m.scopes.Deactivate(h.Registry(), act)
}

// Shutdown deactivates any scope left active, shuts the container down and
// releases the lookup binding. Only the first call on a handle does any work;
// later calls return the same error.
func (m *Manager) Shutdown(h *Handle) error {
	h.shutdownOnce.Do(func() {
		h.shutdownErr = m.shutdown(h)
	})
	return h.shutdownErr
}

func (m *Manager) shutdown(h *Handle) error {
	if h.State() == StateUninitialized {
		return nil
	}
	if err := h.transition(StateShuttingDown); err != nil {
		return err
	}

	err := m.Stop(h)
	if h.container != nil {
		err = multierr.Append(err, h.container.Shutdown())
	}
	if h.lookup != nil {
		if releaseErr := h.lookup.Release(); releaseErr != nil {
			err = multierr.Append(err, &LookupBindingError{Path: h.lookup.Path(), Err: releaseErr})
		}
	}
	if transitionErr := h.transition(StateTerminated); transitionErr != nil {
		err = multierr.Append(err, transitionErr)
	}

	if err != nil {
		h.logger.Warn("Invocation terminated with errors", zap.Error(err))
		return &TeardownError{Test: h.config.Name(), Err: err}
	}
	h.logger.Info("Invocation terminated")
	return nil
}

// LookupRegistry returns the bean registry currently bound in the manager's
// directory.
func (m *Manager) LookupRegistry() (*digo.Registry, error) {
	v, err := m.directory.Lookup(m.lookupPath)
	if err != nil {
		return nil, &LookupBindingError{Path: m.lookupPath, Err: err}
	}
	reg, ok := v.(*digo.Registry)
	if !ok {
		return nil, &LookupBindingError{Path: m.lookupPath, Err: &digo.TypeMismatchError{
			Expected: "*digo.Registry",
			Got:      typeName(v),
		}}
	}
	return reg, nil
}
