package digotest

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"
	"testing"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/centraunit/digo"
)

// Result collects the outcome of one test invocation. The first failure
// attached is the one reported; teardown errors are kept apart so they never
// replace it.
type Result struct {
	instance any
	method   *Method

	mu          sync.Mutex
	err         error
	teardownErr error
}

// NewResult returns an empty result for running method on instance.
func NewResult(instance any, method *Method) *Result {
	return &Result{instance: instance, method: method}
}

func (r *Result) Instance() any {
	return r.instance
}

func (r *Result) Method() *Method {
	return r.method
}

// Fail attaches err to the result unless a failure is already attached.
func (r *Result) Fail(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// Err returns the attached failure, or nil.
func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Result) Failed() bool {
	return r.Err() != nil
}

// TeardownErr returns the errors raised while tearing the invocation down.
func (r *Result) TeardownErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.teardownErr
}

func (r *Result) addTeardown(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardownErr = multierr.Append(r.teardownErr, err)
}

// Callback runs a test body and reports into the result.
type Callback interface {
	RunTestMethod(result *Result)
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(result *Result)

func (f CallbackFunc) RunTestMethod(result *Result) {
	f(result)
}

// Listener wraps test bodies in a per-invocation container.
type Listener struct {
	manager        *Manager
	logger         *zap.Logger
	failOnTeardown bool
}

// NewListener returns a listener using manager. Teardown errors fail the test.
func NewListener(manager *Manager) *Listener {
	return &Listener{manager: manager, logger: manager.logger, failOnTeardown: true}
}

// NewListenerFromConfig returns a listener configured by cfg.
func NewListenerFromConfig(cfg Config) (*Listener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	l := NewListener(NewManager(append(cfg.ManagerOptions(), WithLogger(logger))...))
	l.failOnTeardown = cfg.FailOnTeardownError
	return l, nil
}

// Manager returns the manager creating the listener's containers.
func (l *Listener) Manager() *Manager {
	return l.manager
}

// Run runs cb for the invocation described by result. Without a method the
// body runs directly. Otherwise the body runs with its container initialized
// and its scopes active; any failure, including a panic, is attached to
// result. Scopes are deactivated and the container shut down on every path,
// including runtime.Goexit. The returned error holds surfaced teardown
// failures, which are also recorded on result.
func (l *Listener) Run(cb Callback, result *Result) (err error) {
	if result.Method() == nil {
		l.logger.Debug("No test method, running body directly")
		l.invoke(cb, result)
		return nil
	}

	cfg, resolveErr := Resolve(reflect.TypeOf(result.Instance()), result.Method())
	if resolveErr != nil {
		result.Fail(resolveErr)
		return nil
	}

	h, initErr := l.manager.Initialize(cfg, result.Instance())
	defer func() {
		teardownErr := l.teardown(h, result)
		result.addTeardown(teardownErr)
		err = teardownErr
	}()
	if initErr != nil {
		result.Fail(initErr)
		return nil
	}
	if startErr := l.manager.Start(h); startErr != nil {
		result.Fail(startErr)
		return nil
	}

	l.invoke(cb, result)
	return nil
}

// teardown deactivates the scopes and shuts the container down. Deactivation
// failures after the test already failed are collected on result instead of
// being surfaced.
func (l *Listener) teardown(h *Handle, result *Result) error {
	var surfaced error
	if stopErr := l.manager.Stop(h); stopErr != nil {
		if result.Failed() {
			result.addTeardown(stopErr)
		} else {
			surfaced = stopErr
		}
	}
	return multierr.Append(surfaced, l.manager.Shutdown(h))
}

func (l *Listener) invoke(cb Callback, result *Result) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("Test body panicked", zap.Any("panic", r))
			result.Fail(&PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	cb.RunTestMethod(result)
}

// Test runs body as method of instance and reports failures to t.
func (l *Listener) Test(t testing.TB, instance any, method *Method, body func()) {
	t.Helper()
	result := NewResult(instance, method)
	defer func() {
		if err := result.Err(); err != nil {
			t.Errorf("%v", err)
		}
		if err := result.TeardownErr(); err != nil {
			if l.failOnTeardown {
				t.Errorf("teardown: %v", err)
			} else {
				t.Logf("teardown: %v", err)
			}
		}
	}()
	_ = l.Run(CallbackFunc(func(*Result) { body() }), result)
}

var (
	defaultListener     *Listener
	defaultListenerErr  error
	defaultListenerOnce sync.Once
)

// DefaultListener returns the listener configured by LoadConfig.
func DefaultListener() (*Listener, error) {
	defaultListenerOnce.Do(func() {
		cfg, err := LoadConfig()
		if err != nil {
			defaultListenerErr = err
			return
		}
		defaultListener, defaultListenerErr = NewListenerFromConfig(cfg)
	})
	return defaultListener, defaultListenerErr
}

// Run runs body as method of instance on the default listener.
func Run(t testing.TB, instance any, method *Method, body func()) {
	t.Helper()
	l, err := DefaultListener()
	if err != nil {
		t.Fatalf("digotest: %v", err)
	}
	l.Test(t, instance, method, body)
}

// LookupRegistry returns the bean registry of the running invocation through
// the lookup binding, for code that cannot have the registry injected.
func LookupRegistry() (*digo.Registry, error) {
	l, err := DefaultListener()
	if err != nil {
		return nil, err
	}
	return l.manager.LookupRegistry()
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
