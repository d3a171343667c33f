package digo

// Package digo provides an injection container with contextual scopes, built for
// per-test lifecycles: one container per invocation, explicit scope activation and
// guaranteed teardown.

// Lifecycle defines the interface for beans that require initialization and cleanup.
type Lifecycle interface {
	// OnBoot is called once the bean has been constructed and injected.
	// It receives the ContainerContext of the owning scope.
	OnBoot(ctx *ContainerContext) error

	// OnShutdown is called when the storage owning the bean is destroyed.
	OnShutdown(ctx *ContainerContext) error
}

// Scope defines the lifetime and sharing behavior of a bean.
type Scope string

// Built-in scopes
const (
	// ScopeDependent creates a new instance for each resolution.
	ScopeDependent Scope = "dependent"
	// ScopeApplication shares one instance for the lifetime of the container.
	ScopeApplication Scope = "application"
	// ScopeRequest shares an instance while a request context is active.
	ScopeRequest Scope = "request"
	// ScopeSession shares an instance while a session context is active.
	ScopeSession Scope = "session"
	// ScopeConversation shares an instance while a conversation context is active.
	// A conversation rides on a request.
	ScopeConversation Scope = "conversation"
)

// ScopeDefinition describes a normal scope backed by an activatable context.
// Requires lists scopes whose contexts must be active before this one activates.
type ScopeDefinition struct {
	Name     Scope
	Requires []Scope
}

// BuiltinScopes returns the definitions of the normal scopes every container knows.
func BuiltinScopes() []ScopeDefinition {
	return []ScopeDefinition{
		{Name: ScopeRequest},
		{Name: ScopeSession},
		{Name: ScopeConversation, Requires: []Scope{ScopeRequest}},
	}
}

// IsPseudo reports whether the scope has no context to activate.
func (s Scope) IsPseudo() bool {
	return s == ScopeDependent || s == ScopeApplication
}

func (s Scope) String() string {
	return string(s)
}

// Context controls the activation of one normal scope.
type Context interface {
	Scope() Scope
	Activate() error
	Deactivate() error
	IsActive() bool
}

// BoundContext is a Context whose storage can outlive a single activation,
// e.g. a session spanning several requests.
type BoundContext interface {
	Context
	// ActivateWith activates the context over storage owned by the caller.
	// Deactivating does not destroy borrowed storage.
	ActivateWith(storage *Storage) error
	// Storage returns the storage of the active context, or nil.
	Storage() *Storage
}
