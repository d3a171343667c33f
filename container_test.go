package digo_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/centraunit/digo"
	"github.com/centraunit/digo/mock"
)

type ContainerTestSuite struct {
	suite.Suite
	rec *mock.Recorder
}

func (s *ContainerTestSuite) SetupTest() {
	s.rec = mock.NewRecorder()
}

func (s *ContainerTestSuite) build(bindings ...digo.Binding) *digo.Container {
	c, err := digo.Build(digo.Config{Bindings: bindings})
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = c.Shutdown() })
	return c
}

func (s *ContainerTestSuite) coreModule(opts ...digo.BindingOption) []digo.Binding {
	return []digo.Binding{
		digo.Instance(s.rec),
		digo.Provide(mock.NewMockDB, append(opts, digo.Typed(digo.TypeOf[mock.Database]()))...),
		digo.Class[mock.MockCache](digo.Typed(digo.TypeOf[mock.Cache]())),
	}
}

func (s *ContainerTestSuite) TestBasicInitialization() {
	c := s.build(s.coreModule()...)

	db, err := digo.Get[mock.Database](c.Registry())
	s.NoError(err)
	s.NotNil(db)
	s.True(db.(*mock.MockDB).IsConnected(), "Database should be connected")

	cache, err := digo.Get[mock.Cache](c.Registry())
	s.NoError(err)
	s.NotNil(cache.(*mock.MockCache).DB)
}

func (s *ContainerTestSuite) TestDependentCreatesNewInstances() {
	c := s.build(s.coreModule()...)

	first, err := digo.Get[mock.Database](c.Registry())
	s.Require().NoError(err)
	second, err := digo.Get[mock.Database](c.Registry())
	s.Require().NoError(err)
	s.NotSame(first, second)

	s.NoError(c.Shutdown())
	s.Equal([]string{"db.boot", "db.boot", "db.shutdown", "db.shutdown"}, s.rec.Events())
	s.False(first.(*mock.MockDB).IsConnected())
}

func (s *ContainerTestSuite) TestApplicationScopeSharesInstance() {
	c := s.build(s.coreModule(digo.InScope(digo.ScopeApplication))...)

	first, err := digo.Get[mock.Database](c.Registry())
	s.Require().NoError(err)
	second, err := digo.Get[mock.Database](c.Registry())
	s.Require().NoError(err)
	s.Same(first, second)

	s.NoError(c.Shutdown())
	s.Equal([]string{"db.boot", "db.shutdown"}, s.rec.Events())
}

func (s *ContainerTestSuite) TestConcurrentResolution() {
	s.Run("ApplicationScope", func() {
		rec := mock.NewRecorder()
		c := s.build(
			digo.Instance(rec),
			digo.Provide(mock.NewMockDB, digo.InScope(digo.ScopeApplication), digo.Typed(digo.TypeOf[mock.Database]())),
			digo.Class[mock.MockCache](digo.InScope(digo.ScopeApplication), digo.Typed(digo.TypeOf[mock.Cache]())),
		)

		const workers = 8
		caches := make([]mock.Cache, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				caches[i], errs[i] = digo.Get[mock.Cache](c.Registry())
			}(i)
		}
		wg.Wait()

		for i := 0; i < workers; i++ {
			s.NoError(errs[i])
			s.Same(caches[0], caches[i])
		}
		s.Equal([]string{"db.boot"}, rec.Events())
	})

	s.Run("DependentScope", func() {
		c := s.build(s.coreModule()...)

		const workers = 8
		errs := make(chan error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := digo.Get[mock.Cache](c.Registry())
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			s.NoError(err, "parallel constructions are not mistaken for cycles")
		}
	})
}

func (s *ContainerTestSuite) TestNamedBindings() {
	dbType := digo.TypeOf[mock.Database]()
	c := s.build(
		digo.Instance(s.rec),
		digo.Provide(mock.NewMockDB, digo.Named("primary"), digo.InScope(digo.ScopeApplication), digo.Typed(dbType)),
		digo.Provide(mock.NewMockDB, digo.Named("replica"), digo.InScope(digo.ScopeApplication), digo.Typed(dbType)),
	)
	reg := c.Registry()

	primary, err := digo.Get[mock.Database](reg, "primary")
	s.Require().NoError(err)
	replica, err := digo.Get[mock.Database](reg, "replica")
	s.Require().NoError(err)
	s.NotSame(primary, replica)

	byName, err := reg.Lookup("primary")
	s.NoError(err)
	s.Same(primary, byName)

	_, err = digo.Get[mock.Database](reg)
	var unsatisfied *digo.UnsatisfiedDependencyError
	s.True(errors.As(err, &unsatisfied))

	_, err = reg.Lookup("missing")
	s.True(errors.As(err, &unsatisfied))
}

func (s *ContainerTestSuite) TestDeepDependencyResolution() {
	s.Run("DeepResolution", func() {
		c := s.build(mock.DeepModule()...)

		svc1, err := digo.Get[mock.DeepService1](c.Registry())
		s.NoError(err)
		s.NotNil(svc1)
		s.NotNil(svc1.GetService2())
		s.NotNil(svc1.GetService2().GetService3())
		s.Equal("deep", svc1.GetService2().GetService3().GetValue())
	})

	s.Run("PartialResolutionFailure", func() {
		_, err := digo.Build(digo.Config{Bindings: mock.DeepModule()[:2]})
		var unsatisfied *digo.UnsatisfiedDependencyError
		s.True(errors.As(err, &unsatisfied))
		s.Equal("mock.DeepService3", unsatisfied.Type)
	})
}

func (s *ContainerTestSuite) TestCircularDependency() {
	c := s.build(
		digo.Class[mock.CircularImpl1](digo.Typed(digo.TypeOf[mock.CircularService1]())),
		digo.Class[mock.CircularImpl2](digo.Typed(digo.TypeOf[mock.CircularService2]())),
	)

	_, err := digo.Get[mock.CircularService1](c.Registry())
	var circular *digo.CircularDependencyError
	s.True(errors.As(err, &circular))
	s.Equal("mock.CircularService1", circular.Type)
	s.Equal([]string{"mock.CircularService1", "mock.CircularService2", "mock.CircularService1"}, circular.Chain)

	// the chain is reset after a failure
	_, err = digo.Get[mock.CircularService2](c.Registry())
	s.True(errors.As(err, &circular))
	s.Equal("mock.CircularService2", circular.Type)
}

func (s *ContainerTestSuite) TestNormalScopeRequiresActiveContext() {
	c := s.build(mock.ScopedModule(s.rec)...)
	reg := c.Registry()

	_, err := digo.Get[*mock.RequestCounter](reg)
	var notActive *digo.ContextNotActiveError
	s.True(errors.As(err, &notActive))
	s.Equal("request", notActive.Scope)

	ctx, err := reg.Context(digo.ScopeRequest)
	s.Require().NoError(err)
	s.Require().NoError(ctx.Activate())

	first, err := digo.Get[*mock.RequestCounter](reg)
	s.Require().NoError(err)
	second, err := digo.Get[*mock.RequestCounter](reg)
	s.Require().NoError(err)
	s.Same(first, second)
	s.Equal([]digo.Scope{digo.ScopeRequest}, reg.ActiveScopes())

	s.NoError(ctx.Deactivate())
	s.Equal([]string{"request.boot", "request.shutdown"}, s.rec.Events())

	s.Require().NoError(ctx.Activate())
	third, err := digo.Get[*mock.RequestCounter](reg)
	s.Require().NoError(err)
	s.NotSame(first, third)
}

type eagerHandler struct {
	Counter *mock.RequestCounter `digo:"inject"`
}

func (s *ContainerTestSuite) TestShorterScopeInjectedDirectly() {
	bindings := append(mock.ScopedModule(s.rec), digo.Class[eagerHandler](digo.InScope(digo.ScopeApplication)))
	_, err := digo.Build(digo.Config{Bindings: bindings})
	var invalid *digo.InvalidScopeError
	s.True(errors.As(err, &invalid))
	s.Equal("request", invalid.Scope)
}

func (s *ContainerTestSuite) TestProviderIsLazy() {
	c := s.build(mock.ScopedModule(s.rec)...)
	reg := c.Registry()

	handler, err := digo.Get[*mock.Handler](reg)
	s.Require().NoError(err)
	s.Empty(s.rec.Events())

	_, err = handler.Handle()
	var notActive *digo.ContextNotActiveError
	s.True(errors.As(err, &notActive))

	ctx, err := reg.Context(digo.ScopeRequest)
	s.Require().NoError(err)
	s.Require().NoError(ctx.Activate())

	n, err := handler.Handle()
	s.NoError(err)
	s.Equal(1, n)
	n, err = handler.Handle()
	s.NoError(err)
	s.Equal(2, n)

	s.Require().NoError(ctx.Deactivate())
	s.Require().NoError(ctx.Activate())
	n, err = handler.Handle()
	s.NoError(err)
	s.Equal(1, n)
}

func (s *ContainerTestSuite) TestUnboundProvider() {
	var p digo.Provider[*mock.MockDB]
	_, err := p.Get()
	var unbound *digo.UnboundProviderError
	s.True(errors.As(err, &unbound))
}

func (s *ContainerTestSuite) TestShutdown() {
	c := s.build(mock.ScopedModule(s.rec)...)
	reg := c.Registry()

	for _, scope := range []digo.Scope{digo.ScopeRequest, digo.ScopeConversation} {
		ctx, err := reg.Context(scope)
		s.Require().NoError(err)
		s.Require().NoError(ctx.Activate())
	}
	_, err := digo.Get[*mock.RequestCounter](reg)
	s.Require().NoError(err)
	_, err = digo.Get[*mock.ConversationLog](reg)
	s.Require().NoError(err)

	s.NoError(c.Shutdown())
	s.Equal([]string{
		"request.boot", "conversation.boot",
		"conversation.shutdown", "request.shutdown",
	}, s.rec.Events())

	s.False(reg.IsOpen())
	s.Empty(reg.ActiveScopes())
	_, err = digo.Get[*mock.Handler](reg)
	var closed *digo.ContainerClosedError
	s.True(errors.As(err, &closed))
	_, err = reg.Context(digo.ScopeRequest)
	s.True(errors.As(err, &closed))

	s.NoError(c.Shutdown(), "second shutdown is a no-op")
	s.Len(s.rec.Events(), 4)
}

func (s *ContainerTestSuite) TestContextActivation() {
	c := s.build(mock.ScopedModule(s.rec)...)
	reg := c.Registry()

	s.Run("ConversationRequiresRequest", func() {
		ctx, err := reg.Context(digo.ScopeConversation)
		s.Require().NoError(err)
		err = ctx.Activate()
		var dep *digo.ScopeDependencyError
		s.True(errors.As(err, &dep))
		s.Equal("request", dep.Requires)
		s.False(ctx.IsActive())
	})

	s.Run("ActivateTwice", func() {
		ctx, err := reg.Context(digo.ScopeSession)
		s.Require().NoError(err)
		s.Require().NoError(ctx.Activate())
		var active *digo.ContextActiveError
		s.True(errors.As(ctx.Activate(), &active))
		s.NoError(ctx.Deactivate())

		var notActive *digo.ContextNotActiveError
		s.True(errors.As(ctx.Deactivate(), &notActive))
	})

	s.Run("PseudoScopesHaveNoContext", func() {
		_, err := reg.Context(digo.ScopeApplication)
		var invalid *digo.InvalidScopeError
		s.True(errors.As(err, &invalid))
		_, err = reg.Context("unknown")
		s.True(errors.As(err, &invalid))
	})
}

func (s *ContainerTestSuite) TestBorrowedStorage() {
	c := s.build(mock.ScopedModule(s.rec)...)
	reg := c.Registry()

	session, err := reg.BoundContext(digo.ScopeSession)
	s.Require().NoError(err)
	storage := digo.NewStorage()

	s.Require().NoError(session.ActivateWith(storage))
	s.Same(storage, session.Storage())
	cart, err := digo.Get[*mock.SessionCart](reg)
	s.Require().NoError(err)
	cart.Add("book")
	s.Require().NoError(session.Deactivate())

	s.False(storage.Destroyed())
	s.Equal(1, storage.Len())
	s.Nil(session.Storage())

	s.Require().NoError(session.ActivateWith(storage))
	again, err := digo.Get[*mock.SessionCart](reg)
	s.Require().NoError(err)
	s.Same(cart, again)
	s.Equal([]string{"book"}, again.Items)
	s.Require().NoError(session.Deactivate())

	s.NoError(storage.Destroy())
	s.Equal([]string{"session.boot", "session.shutdown"}, s.rec.Events())

	var destroyed *digo.StorageDestroyedError
	s.True(errors.As(session.ActivateWith(storage), &destroyed))
}

func (s *ContainerTestSuite) TestLifecycleFailures() {
	s.Run("BootFailure", func() {
		c := s.build(digo.Provide(func() *mock.FailingDB { return &mock.FailingDB{ShouldFail: true} }))
		_, err := digo.Get[*mock.FailingDB](c.Registry())
		var initErr *digo.InitializationError
		s.True(errors.As(err, &initErr))
		s.Contains(err.Error(), "simulated boot failure")
	})

	s.Run("ShutdownFailure", func() {
		c := s.build(
			digo.Instance(s.rec),
			digo.Provide(func(rec *mock.Recorder) *mock.FailingDB {
				return &mock.FailingDB{MockDB: *mock.NewMockDB(rec), ShouldFailShutdown: true}
			}, digo.InScope(digo.ScopeApplication)),
		)
		_, err := digo.Get[*mock.FailingDB](c.Registry())
		s.Require().NoError(err)

		err = c.Shutdown()
		var shutdownErr *digo.ShutdownError
		s.True(errors.As(err, &shutdownErr))
		s.Contains(err.Error(), "simulated shutdown failure")
	})

	s.Run("ConstructorPanics", func() {
		c := s.build(digo.Provide(func() *mock.MockDB { panic("boom") }))
		_, err := digo.Get[*mock.MockDB](c.Registry())
		var initErr *digo.InitializationError
		s.True(errors.As(err, &initErr))
		s.Contains(err.Error(), "boom")
	})

	s.Run("ApplicationConstructorPanics", func() {
		c := s.build(digo.Provide(func() *mock.MockDB { panic("boom") }, digo.InScope(digo.ScopeApplication)))
		_, err := digo.Get[*mock.MockDB](c.Registry())
		var initErr *digo.InitializationError
		s.True(errors.As(err, &initErr))
		s.Contains(err.Error(), "boom")
	})
}

func (s *ContainerTestSuite) TestBindingValidation() {
	s.Run("DuplicateIdenticalBinding", func() {
		c := s.build(append(s.coreModule(), s.coreModule()...)...)
		s.Len(c.Registry().Bindings(), 3)
	})

	s.Run("RepeatedUncomparableInstance", func() {
		limits := digo.Instance(map[string]int{"requests": 10})
		c := s.build(limits, limits, digo.Instance(map[string]int{"requests": 10}))
		s.Len(c.Registry().Bindings(), 1)

		_, err := digo.Build(digo.Config{Bindings: []digo.Binding{
			limits,
			digo.Instance(map[string]int{"requests": 20}),
		}})
		var ambiguous *digo.AmbiguousResolutionError
		s.True(errors.As(err, &ambiguous))
	})

	s.Run("ConflictingBinding", func() {
		_, err := digo.Build(digo.Config{Bindings: []digo.Binding{
			digo.Provide(mock.NewMockDB),
			digo.Provide(func() *mock.MockDB { return &mock.MockDB{} }),
		}})
		var ambiguous *digo.AmbiguousResolutionError
		s.True(errors.As(err, &ambiguous))
	})

	s.Run("NilInstance", func() {
		var db *mock.MockDB
		_, err := digo.Build(digo.Config{Bindings: []digo.Binding{digo.Instance(db)}})
		var invalid *digo.InvalidBindingError
		s.True(errors.As(err, &invalid))
	})

	s.Run("NotAConstructor", func() {
		_, err := digo.Build(digo.Config{Bindings: []digo.Binding{digo.Provide("db")}})
		var invalid *digo.InvalidBindingError
		s.True(errors.As(err, &invalid))
	})

	s.Run("UnknownScope", func() {
		_, err := digo.Build(digo.Config{Bindings: []digo.Binding{
			digo.Provide(mock.NewRecorder, digo.InScope("batch")),
		}})
		var invalid *digo.InvalidScopeError
		s.True(errors.As(err, &invalid))
	})

	s.Run("BuiltinTypesAreReserved", func() {
		_, err := digo.Build(digo.Config{Bindings: []digo.Binding{
			digo.Provide(func() *digo.Registry { return nil }),
		}})
		var ambiguous *digo.AmbiguousResolutionError
		s.True(errors.As(err, &ambiguous))
	})
}

func (s *ContainerTestSuite) TestSameScopes() {
	s.True(digo.SameScopes(nil, []digo.Scope{}))
	s.True(digo.SameScopes(
		[]digo.Scope{digo.ScopeRequest, digo.ScopeSession},
		[]digo.Scope{digo.ScopeSession, digo.ScopeRequest},
	))
	s.False(digo.SameScopes(
		[]digo.Scope{digo.ScopeRequest, digo.ScopeRequest},
		[]digo.Scope{digo.ScopeRequest, digo.ScopeSession},
	))
	s.False(digo.SameScopes([]digo.Scope{digo.ScopeRequest}, nil))
}

func (s *ContainerTestSuite) TestCustomScopes() {
	s.Run("Defined", func() {
		c, err := digo.Build(digo.Config{
			Scopes:   []digo.ScopeDefinition{{Name: "batch", Requires: []digo.Scope{digo.ScopeSession}}},
			Bindings: []digo.Binding{digo.Provide(mock.NewRecorder, digo.InScope("batch"))},
		})
		s.Require().NoError(err)
		defer c.Shutdown()
		reg := c.Registry()

		def, ok := reg.ScopeDefinition("batch")
		s.True(ok)
		s.Equal([]digo.Scope{digo.ScopeSession}, def.Requires)

		batch, err := reg.Context("batch")
		s.Require().NoError(err)
		var dep *digo.ScopeDependencyError
		s.True(errors.As(batch.Activate(), &dep))

		session, err := reg.Context(digo.ScopeSession)
		s.Require().NoError(err)
		s.Require().NoError(session.Activate())
		s.Require().NoError(batch.Activate())
		_, err = digo.Get[*mock.Recorder](reg)
		s.NoError(err)
	})

	s.Run("Cycle", func() {
		_, err := digo.Build(digo.Config{Scopes: []digo.ScopeDefinition{
			{Name: "a", Requires: []digo.Scope{"b"}},
			{Name: "b", Requires: []digo.Scope{"a"}},
		}})
		var defErr *digo.ScopeDefinitionError
		s.True(errors.As(err, &defErr))
	})

	s.Run("ReservedName", func() {
		_, err := digo.Build(digo.Config{Scopes: []digo.ScopeDefinition{{Name: digo.ScopeApplication}}})
		var defErr *digo.ScopeDefinitionError
		s.True(errors.As(err, &defErr))
	})
}

func (s *ContainerTestSuite) TestBuiltins() {
	ctx := digo.NewContainerContext(context.Background()).WithValue(digo.InvocationIDKey, "inv-1")
	c, err := digo.Build(digo.Config{Bindings: s.coreModule(), Context: ctx})
	s.Require().NoError(err)
	defer c.Shutdown()

	reg, err := digo.Get[*digo.Registry](c.Registry())
	s.NoError(err)
	s.Same(c.Registry(), reg)

	got, err := digo.Get[*digo.ContainerContext](reg)
	s.NoError(err)
	s.Same(ctx, got)

	db, err := digo.Get[mock.Database](reg)
	s.Require().NoError(err)
	s.Equal("inv-1", db.(*mock.MockDB).InvocationID)
	scope, err := db.GetContextValue(digo.ScopeKey)
	s.NoError(err)
	s.Equal(digo.ScopeDependent, scope)
}

type injectTarget struct {
	DB    mock.Database `digo:"inject"`
	cache mock.Cache
	Plain string
}

func (t *injectTarget) InjectCache(c mock.Cache) {
	t.cache = c
}

type hiddenTarget struct {
	db mock.Database `digo:"inject"`
}

func (s *ContainerTestSuite) TestInject() {
	c := s.build(s.coreModule()...)

	s.Run("FieldsAndInitializers", func() {
		target := &injectTarget{Plain: "kept"}
		s.Require().NoError(c.Inject(target))
		s.NotNil(target.DB)
		s.NotNil(target.cache)
		s.Equal("kept", target.Plain)
	})

	s.Run("InvalidTargets", func() {
		var injectErr *digo.InjectionError
		s.True(errors.As(c.Inject(nil), &injectErr))
		s.True(errors.As(c.Inject(injectTarget{}), &injectErr))
		s.True(errors.As(c.Inject(&hiddenTarget{}), &injectErr))
		s.Equal("db", injectErr.Member)
	})
}

func TestContainerSuite(t *testing.T) {
	suite.Run(t, new(ContainerTestSuite))
}
