package web

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/centraunit/digo"
)

// RequestState is the request and session a ContextController is tracking.
type RequestState struct {
	Request *LifecycleAwareRequest
	Session *Session
}

// ContextController opens and closes emulated requests and sessions from test
// code. Inject it into a test to drive request, session and conversation
// scoped beans mid-test. At most one request is open at a time.
type ContextController struct {
	registry       *digo.Registry
	listener       *Listener
	servletContext *ServletContext
	requests       digo.Provider[*Request]
	logger         *zap.Logger

	mu    sync.Mutex
	state RequestState
}

var _ digo.Lifecycle = (*ContextController)(nil)

// NewContextController returns the controller bean.
func NewContextController(reg *digo.Registry, listener *Listener, sc *ServletContext, requests digo.Provider[*Request]) *ContextController {
	return &ContextController{
		registry:       reg,
		listener:       listener,
		servletContext: sc,
		requests:       requests,
		logger:         reg.Logger().Named("web"),
	}
}

func (c *ContextController) OnBoot(*digo.ContainerContext) error {
	c.listener.ContextInitialized(c.servletContext)
	return nil
}

// OnShutdown destroys the storage of a request or session still open when the
// container shuts down. Their contexts are already inactive by then.
func (c *ContextController) OnShutdown(*digo.ContainerContext) error {
	c.mu.Lock()
	state := c.state
	c.state = RequestState{}
	c.mu.Unlock()

	var err error
	if state.Request != nil {
		err = multierr.Append(err, state.Request.Storage().Destroy())
		if sess := state.Request.Request.Session(false); sess != nil {
			state.Session = sess
		}
	}
	if state.Session != nil {
		err = multierr.Append(err, state.Session.Storage().Destroy())
		state.Session.invalidate()
	}
	c.listener.ContextDestroyed(c.servletContext)
	return err
}

// OpenRequest opens a new request, reattaching the session of the previous
// request if it was not closed, and activates the conversation context.
func (c *ContextController) OpenRequest() (*LifecycleAwareRequest, error) {
	if !c.registry.IsOpen() {
		return nil, &digo.ContainerClosedError{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Request != nil {
		return nil, &AlreadyOpenError{RequestID: c.state.Request.ID()}
	}

	req, err := c.requests.Get()
	if err != nil {
		return nil, err
	}
	if c.state.Session != nil {
		req.SetSession(c.state.Session)
	}
	wrapped := &LifecycleAwareRequest{Request: req, listener: c.listener}
	if err := c.listener.RequestInitialized(req); err != nil {
		return nil, err
	}

	conversation, err := c.registry.Context(digo.ScopeConversation)
	if err != nil {
		return nil, multierr.Append(err, c.listener.RequestDestroyed(req))
	}
	if !conversation.IsActive() {
		if err := conversation.Activate(); err != nil {
			return nil, multierr.Append(err, c.listener.RequestDestroyed(req))
		}
	}

	c.state.Request = wrapped
	c.logger.Debug("Request opened", zap.String("request", req.ID()))
	return wrapped, nil
}

// CurrentRequest returns the open request.
func (c *ContextController) CurrentRequest() (*LifecycleAwareRequest, error) {
	if !c.registry.IsOpen() {
		return nil, &digo.ContainerClosedError{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Request == nil {
		return nil, &NotOpenError{}
	}
	return c.state.Request, nil
}

// CloseRequest closes the open request, if any, and remembers its session for
// the next request.
func (c *ContextController) CloseRequest() error {
	if !c.registry.IsOpen() {
		return &digo.ContainerClosedError{}
	}
	c.mu.Lock()
	req := c.state.Request
	if req == nil {
		c.mu.Unlock()
		return nil
	}
	c.state.Request = nil
	c.state.Session = req.Request.Session(false)
	c.mu.Unlock()

	// Scoped beans shut down here and may call back into the controller.
	err := c.listener.RequestDestroyed(req.Request)
	c.logger.Debug("Request closed", zap.String("request", req.ID()))
	return err
}

// CloseSession destroys the session of the open request, or the remembered
// session when no request is open.
func (c *ContextController) CloseSession() error {
	if !c.registry.IsOpen() {
		return &digo.ContainerClosedError{}
	}
	c.mu.Lock()
	if c.state.Request != nil {
		c.state.Session = c.state.Request.Request.Session(false)
	}
	sess := c.state.Session
	c.state.Session = nil
	c.mu.Unlock()

	if sess == nil {
		return nil
	}
	return c.listener.SessionDestroyed(sess)
}

// Session returns the remembered session, or nil.
func (c *ContextController) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Session
}

// State returns a snapshot of the tracked request and session.
func (c *ContextController) State() RequestState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
