package mock

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/centraunit/digo"
)

// Recorder collects lifecycle events in the order they happen.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Core interfaces
type Database interface {
	digo.Lifecycle
	Connect() error
	GetContextValue(key any) (any, error)
}

type Cache interface {
	Get(key string) any
}

// Mock implementations
type MockDB struct {
	isConnected  bool
	ctx          *digo.ContainerContext
	rec          *Recorder
	InvocationID string
}

func NewMockDB(rec *Recorder) *MockDB {
	return &MockDB{rec: rec}
}

func (m *MockDB) Connect() error {
	return nil
}

func (m *MockDB) OnBoot(ctx *digo.ContainerContext) error {
	m.isConnected = true
	m.ctx = ctx
	m.InvocationID = ctx.InvocationID()
	m.rec.Record("db.boot")
	return nil
}

func (m *MockDB) GetContextValue(key any) (any, error) {
	if m.ctx == nil {
		return nil, fmt.Errorf("context is nil")
	}
	return m.ctx.Value(key), nil
}

func (m *MockDB) OnShutdown(ctx *digo.ContainerContext) error {
	m.isConnected = false
	m.ctx = nil
	m.rec.Record("db.shutdown")
	return nil
}

func (m *MockDB) IsConnected() bool {
	return m.isConnected
}

// MockCache is a class bean: the container allocates it and fills DB.
type MockCache struct {
	DB Database `digo:"inject"`
}

func (m *MockCache) Get(key string) any {
	return nil
}

// scoped is the lifecycle shared by the scoped fixtures: it records boot and
// shutdown under its scope name.
type scoped struct {
	ID     string
	name   string
	rec    *Recorder
	booted bool
}

func newScoped(name string, rec *Recorder) scoped {
	return scoped{ID: uuid.NewString(), name: name, rec: rec}
}

func (s *scoped) OnBoot(*digo.ContainerContext) error {
	s.booted = true
	s.rec.Record(s.name + ".boot")
	return nil
}

func (s *scoped) OnShutdown(*digo.ContainerContext) error {
	s.rec.Record(s.name + ".shutdown")
	return nil
}

func (s *scoped) Booted() bool {
	return s.booted
}

// RequestCounter lives in the request scope.
type RequestCounter struct {
	scoped
	Count int
}

func NewRequestCounter(rec *Recorder) *RequestCounter {
	return &RequestCounter{scoped: newScoped("request", rec)}
}

func (c *RequestCounter) Increment() int {
	c.Count++
	return c.Count
}

// SessionCart lives in the session scope.
type SessionCart struct {
	scoped
	Items []string
}

func NewSessionCart(rec *Recorder) *SessionCart {
	return &SessionCart{scoped: newScoped("session", rec)}
}

func (c *SessionCart) Add(item string) {
	c.Items = append(c.Items, item)
}

// ConversationLog lives in the conversation scope.
type ConversationLog struct {
	scoped
	Lines []string
}

func NewConversationLog(rec *Recorder) *ConversationLog {
	return &ConversationLog{scoped: newScoped("conversation", rec)}
}

// BrokenRequest is meant for the request scope and fails to shut down.
type BrokenRequest struct {
	scoped
}

func NewBrokenRequest(rec *Recorder) *BrokenRequest {
	return &BrokenRequest{scoped: newScoped("broken", rec)}
}

func (b *BrokenRequest) OnShutdown(ctx *digo.ContainerContext) error {
	_ = b.scoped.OnShutdown(ctx)
	return fmt.Errorf("simulated shutdown failure")
}

// Handler is application scoped and reaches shorter-lived beans through providers.
type Handler struct {
	Requests      digo.Provider[*RequestCounter]  `digo:"inject"`
	Conversations digo.Provider[*ConversationLog] `digo:"inject"`
}

// Handle increments the counter of the current request.
func (h *Handler) Handle() (int, error) {
	counter, err := h.Requests.Get()
	if err != nil {
		return 0, err
	}
	return counter.Increment(), nil
}

// FailingDB fails to boot or to shut down on demand.
type FailingDB struct {
	MockDB
	ShouldFail         bool
	ShouldFailShutdown bool
}

func (f *FailingDB) OnBoot(ctx *digo.ContainerContext) error {
	if f.ShouldFail {
		return fmt.Errorf("simulated boot failure")
	}
	return f.MockDB.OnBoot(ctx)
}

func (f *FailingDB) OnShutdown(ctx *digo.ContainerContext) error {
	if f.ShouldFailShutdown {
		return fmt.Errorf("simulated shutdown failure")
	}
	return f.MockDB.OnShutdown(ctx)
}

// Circular dependency test types
type CircularService1 interface {
	GetService2() CircularService2
}

type CircularService2 interface {
	GetService1() CircularService1
}

type CircularImpl1 struct {
	Svc2 CircularService2 `digo:"inject"`
}

func (i *CircularImpl1) GetService2() CircularService2 { return i.Svc2 }

type CircularImpl2 struct {
	Svc1 CircularService1 `digo:"inject"`
}

func (i *CircularImpl2) GetService1() CircularService1 { return i.Svc1 }

// Deep chains are wired through initializer methods.
type DeepService3 interface {
	GetValue() string
}

type DeepService2 interface {
	GetService3() DeepService3
}

type DeepService1 interface {
	GetService2() DeepService2
}

type DeepImpl3 struct {
	Value string
}

func (d *DeepImpl3) OnBoot(*digo.ContainerContext) error {
	d.Value = "deep"
	return nil
}

func (d *DeepImpl3) OnShutdown(*digo.ContainerContext) error {
	return nil
}

func (d *DeepImpl3) GetValue() string {
	return d.Value
}

type DeepImpl2 struct {
	svc3 DeepService3
}

func (d *DeepImpl2) InjectService3(svc DeepService3) {
	d.svc3 = svc
}

func (d *DeepImpl2) GetService3() DeepService3 {
	return d.svc3
}

type DeepImpl1 struct {
	svc2 DeepService2
}

func (d *DeepImpl1) InjectService2(svc DeepService2) error {
	if svc == nil {
		return fmt.Errorf("service2 is nil")
	}
	d.svc2 = svc
	return nil
}

func (d *DeepImpl1) GetService2() DeepService2 {
	return d.svc2
}

// DeepModule binds the deep chain as dependent class beans.
func DeepModule() []digo.Binding {
	return []digo.Binding{
		digo.Class[DeepImpl1](digo.Typed(digo.TypeOf[DeepService1]())),
		digo.Class[DeepImpl2](digo.Typed(digo.TypeOf[DeepService2]())),
		digo.Class[DeepImpl3](digo.Typed(digo.TypeOf[DeepService3]())),
	}
}

// ScopedBeans binds one bean per built-in normal scope and an application
// scoped Handler. The beans need a *Recorder bound elsewhere.
func ScopedBeans() []digo.Binding {
	return []digo.Binding{
		digo.Provide(NewRequestCounter, digo.InScope(digo.ScopeRequest)),
		digo.Provide(NewSessionCart, digo.InScope(digo.ScopeSession)),
		digo.Provide(NewConversationLog, digo.InScope(digo.ScopeConversation)),
		digo.Class[Handler](digo.InScope(digo.ScopeApplication)),
	}
}

// ScopedModule binds rec along with ScopedBeans.
func ScopedModule(rec *Recorder) []digo.Binding {
	return append([]digo.Binding{digo.Instance(rec)}, ScopedBeans()...)
}
