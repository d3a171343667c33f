package digotest_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/centraunit/digo"
	"github.com/centraunit/digo/digotest"
	"github.com/centraunit/digo/mock"
	"github.com/centraunit/digo/web"
)

// conversationTest activates the request scope for every method; methods add
// the conversation scope on top.
type conversationTest struct {
	Rec           *mock.Recorder                       `digo:"produces"`
	Handler       *mock.Handler                        `digo:"inject"`
	Conversations digo.Provider[*mock.ConversationLog] `digo:"inject"`
	Registry      *digo.Registry                       `digo:"inject"`
}

func (conversationTest) DigoDeclarations() digotest.Declarations {
	return digotest.Declarations{
		Classes:        mock.ScopedBeans(),
		ActivateScopes: []digo.Scope{digo.ScopeRequest},
	}
}

// webTest drives the request and session scopes through the web emulation.
type webTest struct {
	Rec        *mock.Recorder                   `digo:"produces"`
	Controller *web.ContextController           `digo:"inject"`
	Carts      digo.Provider[*mock.SessionCart] `digo:"inject"`
	Registry   *digo.Registry                   `digo:"inject"`
}

func (webTest) DigoDeclarations() digotest.Declarations {
	return digotest.Declarations{
		Classes: append(web.Module(), mock.ScopedBeans()...),
	}
}

type RunTestSuite struct {
	suite.Suite
}

func (s *RunTestSuite) TestConversationMethod() {
	test := &conversationTest{Rec: mock.NewRecorder()}
	method := digotest.NewMethod("TestConversationMethod", digotest.Declarations{
		ActivateScopes: []digo.Scope{digo.ScopeConversation},
	})

	ran := false
	digotest.Run(s.T(), test, method, func() {
		ran = true
		s.Equal([]digo.Scope{digo.ScopeRequest, digo.ScopeConversation}, test.Registry.ActiveScopes())

		n, err := test.Handler.Handle()
		s.NoError(err)
		s.Equal(1, n)
		log, err := test.Conversations.Get()
		s.Require().NoError(err)
		log.Lines = append(log.Lines, "hello")

		looked, err := digotest.LookupRegistry()
		s.NoError(err)
		s.Same(test.Registry, looked)
	})

	s.True(ran)
	s.Equal([]string{
		"request.boot",
		"conversation.boot",
		"conversation.shutdown",
		"request.shutdown",
	}, test.Rec.Events())
	s.False(test.Registry.IsOpen())

	_, err := digotest.LookupRegistry()
	s.Error(err, "the lookup binding is released after shutdown")
}

func (s *RunTestSuite) TestFreshContainerPerMethod() {
	var first, second *digo.Registry
	test := &conversationTest{Rec: mock.NewRecorder()}
	digotest.Run(s.T(), test, digotest.NewMethod("First"), func() {
		first = test.Registry
		n, err := test.Handler.Handle()
		s.NoError(err)
		s.Equal(1, n)
	})

	test = &conversationTest{Rec: mock.NewRecorder()}
	digotest.Run(s.T(), test, digotest.NewMethod("Second"), func() {
		second = test.Registry
		n, err := test.Handler.Handle()
		s.NoError(err)
		s.Equal(1, n, "request beans do not leak between methods")
	})

	s.NotSame(first, second)
}

func (s *RunTestSuite) TestWebEmulation() {
	test := &webTest{Rec: mock.NewRecorder()}
	digotest.Run(s.T(), test, digotest.NewMethod("TestWebEmulation"), func() {
		s.Empty(test.Registry.ActiveScopes())

		req, err := test.Controller.OpenRequest()
		s.Require().NoError(err)
		s.Equal([]digo.Scope{digo.ScopeRequest, digo.ScopeConversation}, test.Registry.ActiveScopes())

		counter, err := digo.Get[*mock.RequestCounter](test.Registry)
		s.Require().NoError(err)
		s.Equal(1, counter.Increment())

		s.NotNil(req.Session(true))
		cart, err := test.Carts.Get()
		s.Require().NoError(err)
		cart.Add("book")

		s.NoError(test.Controller.CloseRequest())
		s.Empty(test.Registry.ActiveScopes())
		s.NotNil(test.Controller.Session(), "the session outlives the request")

		_, err = test.Controller.OpenRequest()
		s.Require().NoError(err)
		again, err := test.Carts.Get()
		s.Require().NoError(err)
		s.Same(cart, again)
		s.NoError(test.Controller.CloseRequest())
	})

	s.Equal([]string{
		"request.boot",
		"session.boot",
		"request.shutdown",
		"session.shutdown",
	}, test.Rec.Events())
}

func TestRunSuite(t *testing.T) {
	suite.Run(t, new(RunTestSuite))
}
