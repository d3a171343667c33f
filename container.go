package digo

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/dig"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Config describes the container to build.
type Config struct {
	// Bindings are the beans the container knows about.
	Bindings []Binding
	// Extensions rewrite member metadata before type models are finalised.
	Extensions []Extension
	// Scopes defines custom normal scopes in addition to the built-in ones.
	Scopes  []ScopeDefinition
	Logger  *zap.Logger
	Context *ContainerContext
}

type dependency struct {
	key      BindingKey
	provider bool
}

// Container resolves beans, owns the contexts of its normal scopes and injects
// pre-existing instances. A Container lives for one test invocation.
type Container struct {
	bindings   map[BindingKey]*Binding
	order      []*Binding
	scopes     map[Scope]ScopeDefinition
	scopeOrder []Scope
	contexts   map[Scope]*scopeContext
	extensions []Extension
	models     sync.Map

	// app memoises application-scoped instances.
	app      *dig.Container
	appMu    ownedMutex
	managed  *Storage
	ctx      *ContainerContext
	logger   *zap.Logger
	registry *Registry

	mu     sync.RWMutex
	closed bool

	chains chainTracker
}

var (
	registryType = reflect.TypeOf((*Registry)(nil))
	contextType  = reflect.TypeOf((*ContainerContext)(nil))
	digInType    = reflect.TypeOf(dig.In{})
)

// Build validates the configuration and returns a ready container.
// Every injection point of every binding must resolve to exactly one binding.
func Build(cfg Config) (*Container, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = NewContainerContext(context.Background())
	}

	c := &Container{
		bindings:   make(map[BindingKey]*Binding, len(cfg.Bindings)),
		scopes:     make(map[Scope]ScopeDefinition),
		contexts:   make(map[Scope]*scopeContext),
		extensions: append([]Extension(nil), cfg.Extensions...),
		app:        dig.New(),
		managed:    NewStorage(),
		ctx:        ctx,
		logger:     logger,
	}
	c.registry = &Registry{c: c}

	if err := c.defineScopes(cfg.Scopes); err != nil {
		return nil, err
	}
	for _, b := range cfg.Bindings {
		if err := c.register(b); err != nil {
			return nil, err
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	for _, b := range c.order {
		if b.scope != ScopeApplication {
			continue
		}
		if err := c.provideApplication(b); err != nil {
			return nil, err
		}
	}

	logger.Debug("Container built",
		zap.Int("bindings", len(c.order)),
		zap.Int("scopes", len(c.scopeOrder)),
		zap.Int("extensions", len(c.extensions)))
	return c, nil
}

// Registry returns the bean registry of the container.
func (c *Container) Registry() *Registry {
	return c.registry
}

// Inject populates the injection points of instance, a non-nil pointer to a
// struct the container did not create.
func (c *Container) Inject(instance any) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	v := reflect.ValueOf(instance)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return &InjectionError{
			Target: fmt.Sprintf("%T", instance),
			Err:    fmt.Errorf("target must be a non-nil pointer to a struct"),
		}
	}
	return c.injectValue(v, typeString(v.Type()))
}

// Shutdown deactivates every active context, then destroys application-scoped
// and dependent instances in reverse creation order. It is safe to call more
// than once; only the first call does any work.
func (c *Container) Shutdown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var err error
	for i := len(c.scopeOrder) - 1; i >= 0; i-- {
		sc := c.contexts[c.scopeOrder[i]]
		if sc.IsActive() {
			err = multierr.Append(err, sc.Deactivate())
		}
	}
	err = multierr.Append(err, c.managed.Destroy())

	if err != nil {
		c.logger.Warn("Container shut down with errors", zap.Error(err))
	} else {
		c.logger.Debug("Container shut down")
	}
	return err
}

func (c *Container) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return &ContainerClosedError{}
	}
	return nil
}

func (c *Container) defineScopes(custom []ScopeDefinition) error {
	defs := BuiltinScopes()
	for _, d := range custom {
		if d.Name == "" {
			return &ScopeDefinitionError{Reason: "scope name is empty"}
		}
		if d.Name.IsPseudo() {
			return &ScopeDefinitionError{Scope: string(d.Name), Reason: "name is reserved"}
		}
		replaced := false
		for _, existing := range defs {
			if existing.Name != d.Name {
				continue
			}
			if !SameScopes(existing.Requires, d.Requires) {
				return &ScopeDefinitionError{Scope: string(d.Name), Reason: "conflicting definitions"}
			}
			replaced = true
		}
		if !replaced {
			defs = append(defs, d)
		}
	}

	known := make(map[Scope]bool, len(defs))
	for _, d := range defs {
		known[d.Name] = true
	}
	for _, d := range defs {
		for _, r := range d.Requires {
			if r == d.Name {
				return &ScopeDefinitionError{Scope: string(d.Name), Reason: "scope requires itself"}
			}
			if !known[r] {
				return &ScopeDefinitionError{Scope: string(d.Name), Reason: fmt.Sprintf("requires unknown scope %s", r)}
			}
		}
	}

	ordered, ok := OrderScopes(defs)
	if !ok {
		return &ScopeDefinitionError{Reason: "scope requirements form a cycle"}
	}
	for _, d := range ordered {
		c.scopes[d.Name] = d
		c.scopeOrder = append(c.scopeOrder, d.Name)
		c.contexts[d.Name] = &scopeContext{def: d, container: c}
	}
	return nil
}

func (c *Container) register(b Binding) error {
	if err := b.validate(); err != nil {
		return err
	}
	if !b.scope.IsPseudo() {
		if _, ok := c.scopes[b.scope]; !ok {
			return &InvalidScopeError{Type: typeString(b.typ), Scope: string(b.scope), Reason: "unknown scope"}
		}
	}

	key := b.Key()
	if isBuiltin(key) {
		return &AmbiguousResolutionError{
			Type:       typeString(key.Type),
			Candidates: []string{"built-in", b.String()},
		}
	}
	if existing, ok := c.bindings[key]; ok {
		if existing.Equal(b) {
			return nil
		}
		return &AmbiguousResolutionError{
			Type:       typeString(key.Type),
			Name:       key.Name,
			Candidates: []string{existing.String(), b.String()},
		}
	}

	stored := b
	c.bindings[key] = &stored
	c.order = append(c.order, &stored)
	return nil
}

func (c *Container) validate() error {
	for _, b := range c.order {
		for _, dep := range c.dependencies(b) {
			if err := c.checkDependency(dep, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Container) dependencies(b *Binding) []dependency {
	switch b.kind {
	case kindConstructor:
		return paramDependencies(b.fn.Type(), "", nil)
	case kindClass:
		var deps []dependency
		for _, member := range c.model(b.class).Injectables() {
			name := member.Markers.Get(MarkerNamed)
			if member.Kind == FieldMember {
				deps = append(deps, dependencyOf(member.Type, name))
			} else {
				for _, p := range member.Params {
					deps = append(deps, dependencyOf(p, name))
				}
			}
		}
		return deps
	}
	return nil
}

func paramDependencies(ft reflect.Type, name string, deps []dependency) []dependency {
	for i := 0; i < ft.NumIn(); i++ {
		deps = append(deps, dependencyOf(ft.In(i), name))
	}
	return deps
}

func dependencyOf(t reflect.Type, name string) dependency {
	if elem, ok := providerElem(t); ok {
		return dependency{key: BindingKey{Type: elem, Name: name}, provider: true}
	}
	return dependency{key: BindingKey{Type: t, Name: name}}
}

// checkDependency rejects unsatisfied injection points and normal-scoped beans
// injected directly into beans that outlive them.
func (c *Container) checkDependency(dep dependency, consumer *Binding) error {
	if isBuiltin(dep.key) {
		return nil
	}
	target, ok := c.bindings[dep.key]
	if !ok {
		return &UnsatisfiedDependencyError{
			Type:      typeString(dep.key.Type),
			Name:      dep.key.Name,
			Dependent: consumer.String(),
		}
	}
	if dep.provider || target.scope.IsPseudo() || consumer.scope == ScopeDependent || consumer.scope == target.scope {
		return nil
	}
	return &InvalidScopeError{
		Type:   typeString(dep.key.Type),
		Scope:  string(target.scope),
		Reason: fmt.Sprintf("injected directly into %s; inject a Provider instead", consumer),
	}
}

// provideApplication hands the binding to dig, which keeps the single instance.
// The constructor given to dig takes no parameters: dependencies are resolved by
// the container so that providers, names and scopes apply uniformly.
func (c *Container) provideApplication(b *Binding) error {
	ft := reflect.FuncOf(nil, []reflect.Type{b.typ, errorType}, false)
	ctor := reflect.MakeFunc(ft, func([]reflect.Value) []reflect.Value {
		v, bctx, err := c.create(b)
		if err != nil {
			return []reflect.Value{reflect.Zero(b.typ), reflect.ValueOf(&err).Elem()}
		}
		if b.kind != kindInstance {
			c.managed.track(b.Key(), v, bctx)
		}
		return []reflect.Value{v, reflect.Zero(errorType)}
	})

	var opts []dig.ProvideOption
	if b.name != "" {
		opts = append(opts, dig.Name(b.name))
	}
	if err := c.app.Provide(ctor.Interface(), opts...); err != nil {
		return &InvalidBindingError{Source: b.String(), Reason: err.Error()}
	}
	return nil
}

func (c *Container) fromApplication(b *Binding) (reflect.Value, error) {
	key := b.Key()
	param := key.Type
	if key.Name != "" {
		param = reflect.StructOf([]reflect.StructField{
			{Name: "In", Type: digInType, Anonymous: true},
			{Name: "Value", Type: key.Type, Tag: reflect.StructTag(`name:"` + key.Name + `"`)},
		})
	}

	var out reflect.Value
	fn := reflect.MakeFunc(reflect.FuncOf([]reflect.Type{param}, nil, false), func(args []reflect.Value) []reflect.Value {
		out = args[0]
		if key.Name != "" {
			out = out.Field(1)
		}
		return nil
	})
	c.appMu.Lock()
	err := c.app.Invoke(fn.Interface())
	c.appMu.Unlock()
	if err != nil {
		if root := dig.RootCause(err); root != nil && root != err {
			return reflect.Value{}, root
		}
		return reflect.Value{}, &InitializationError{Type: key.String(), Err: err}
	}
	return out, nil
}

func (c *Container) resolve(key BindingKey, consumer string) (reflect.Value, error) {
	if err := c.checkOpen(); err != nil {
		return reflect.Value{}, err
	}
	if key.Name == "" {
		switch key.Type {
		case registryType:
			return reflect.ValueOf(c.registry), nil
		case contextType:
			return reflect.ValueOf(c.ctx), nil
		}
	}
	b, ok := c.bindings[key]
	if !ok {
		return reflect.Value{}, &UnsatisfiedDependencyError{
			Type:      typeString(key.Type),
			Name:      key.Name,
			Dependent: consumer,
		}
	}
	return c.instance(b)
}

func (c *Container) instance(b *Binding) (reflect.Value, error) {
	switch b.scope {
	case ScopeApplication:
		return c.fromApplication(b)
	case ScopeDependent:
		v, bctx, err := c.create(b)
		if err != nil {
			return reflect.Value{}, err
		}
		c.managed.track(b.Key(), v, bctx)
		return v, nil
	}

	storage := c.contexts[b.scope].Storage()
	if storage == nil {
		return reflect.Value{}, &ContextNotActiveError{Scope: string(b.scope)}
	}
	return storage.get(b.Key(), func() (reflect.Value, *ContainerContext, error) {
		return c.create(b)
	})
}

// create constructs one instance of b, injects it and runs OnBoot.
func (c *Container) create(b *Binding) (v reflect.Value, bctx *ContainerContext, err error) {
	key := b.Key().String()
	if err := c.chains.enter(key); err != nil {
		return reflect.Value{}, nil, err
	}
	defer c.chains.leave(key)
	defer func() {
		if r := recover(); r != nil {
			v, bctx = reflect.Value{}, nil
			err = &InitializationError{Type: key, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	bctx = c.ctx.WithValue(ScopeKey, b.scope)
	switch b.kind {
	case kindInstance:
		return convert(b.value, b.typ), bctx, nil
	case kindConstructor:
		args, argErr := c.arguments(b.fn.Type(), "", b.String())
		if argErr != nil {
			return reflect.Value{}, nil, &InitializationError{Type: key, Err: argErr}
		}
		out := b.fn.Call(args)
		if len(out) == 2 && !out[1].IsNil() {
			return reflect.Value{}, nil, &InitializationError{Type: key, Err: out[1].Interface().(error)}
		}
		v = out[0]
	case kindClass:
		v = reflect.New(b.class)
		if injectErr := c.injectValue(v, b.String()); injectErr != nil {
			return reflect.Value{}, nil, &InitializationError{Type: key, Err: injectErr}
		}
	}

	if isNil(v) {
		return reflect.Value{}, nil, &InitializationError{Type: key, Err: &NilServiceError{Type: key}}
	}
	if lc, ok := v.Interface().(Lifecycle); ok {
		if bootErr := lc.OnBoot(bctx); bootErr != nil {
			return reflect.Value{}, nil, &InitializationError{Type: key, Err: bootErr}
		}
	}

	c.logger.Debug("Bean created",
		zap.String("binding", key),
		zap.String("scope", string(b.scope)))
	return convert(v, b.typ), bctx, nil
}

func (c *Container) arguments(ft reflect.Type, name, consumer string) ([]reflect.Value, error) {
	args := make([]reflect.Value, ft.NumIn())
	for i := range args {
		v, err := c.dependency(ft.In(i), name, consumer)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (c *Container) dependency(t reflect.Type, name, consumer string) (reflect.Value, error) {
	if _, ok := providerElem(t); ok {
		p := reflect.New(t)
		p.Interface().(providerBinder).bind(c.registry, name)
		return p.Elem(), nil
	}
	return c.resolve(BindingKey{Type: t, Name: name}, consumer)
}

func (c *Container) injectValue(v reflect.Value, consumer string) error {
	for _, member := range c.model(v.Type().Elem()).Injectables() {
		name := member.Markers.Get(MarkerNamed)
		switch member.Kind {
		case FieldMember:
			field := v.Elem().Field(member.Index)
			if !field.CanSet() {
				return &InjectionError{Target: consumer, Member: member.Name, Err: fmt.Errorf("field is not exported")}
			}
			dep, err := c.dependency(member.Type, name, consumer)
			if err != nil {
				return &InjectionError{Target: consumer, Member: member.Name, Err: err}
			}
			field.Set(dep)
		case MethodMember:
			method := v.Method(member.Index)
			args, err := c.arguments(method.Type(), name, consumer)
			if err != nil {
				return &InjectionError{Target: consumer, Member: member.Name, Err: err}
			}
			out := method.Call(args)
			if n := len(out); n > 0 && out[n-1].Type() == errorType && !out[n-1].IsNil() {
				return &InjectionError{Target: consumer, Member: member.Name, Err: out[n-1].Interface().(error)}
			}
		}
	}
	return nil
}

// model returns the extension-rewritten model of t, cached per container.
func (c *Container) model(t reflect.Type) *TypeModel {
	if cached, ok := c.models.Load(t); ok {
		return cached.(*TypeModel)
	}
	m, _ := c.models.LoadOrStore(t, ModelOf(t).Rewrite(c.extensions))
	return m.(*TypeModel)
}

// ProducersOf returns the bindings declared by the producer members of
// instance, after the extensions rewrote its members. Producer fields are read
// once, when ProducersOf runs.
func ProducersOf(instance any, extensions []Extension) ([]Binding, error) {
	v := reflect.ValueOf(instance)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, &InjectionError{
			Target: fmt.Sprintf("%T", instance),
			Err:    fmt.Errorf("target must be a non-nil pointer to a struct"),
		}
	}

	var out []Binding
	for _, m := range ModelOf(v.Type().Elem()).Rewrite(extensions).Producers() {
		var opts []BindingOption
		if n := m.Markers.Get(MarkerNamed); n != "" {
			opts = append(opts, Named(n))
		}
		var b Binding
		switch m.Kind {
		case FieldMember:
			field := v.Elem().Field(m.Index)
			if !field.CanInterface() {
				return nil, &InvalidBindingError{Source: m.String(), Reason: "producer field is not exported"}
			}
			b = Instance(field.Interface(), append(opts, Typed(m.Type))...)
		case MethodMember:
			if s := m.Markers.Get(MarkerScope); s != "" {
				opts = append(opts, InScope(Scope(s)))
			}
			if m.Markers.Has(MarkerTyped) && m.Type != nil {
				opts = append(opts, Typed(m.Type))
			}
			b = Provide(v.Method(m.Index).Interface(), opts...)
		}
		b.origin = m.String()
		out = append(out, b)
	}
	return out, nil
}

func isBuiltin(key BindingKey) bool {
	return key.Name == "" && (key.Type == registryType || key.Type == contextType)
}

func convert(v reflect.Value, t reflect.Type) reflect.Value {
	if v.Type() == t {
		return v
	}
	out := reflect.New(t).Elem()
	out.Set(v)
	return out
}

