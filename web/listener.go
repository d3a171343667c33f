package web

import (
	"errors"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/centraunit/digo"
)

// Listener receives servlet-style lifecycle events and drives the request,
// session and conversation contexts of the container accordingly.
type Listener struct {
	registry *digo.Registry
	logger   *zap.Logger
}

// NewListener returns the listener bean.
func NewListener(reg *digo.Registry) *Listener {
	return &Listener{
		registry: reg,
		logger:   reg.Logger().Named("web"),
	}
}

func (l *Listener) ContextInitialized(sc *ServletContext) {
	sc.setInitialized(true)
	l.logger.Debug("Servlet context initialized", zap.String("name", sc.Name()))
}

func (l *Listener) ContextDestroyed(sc *ServletContext) {
	sc.setInitialized(false)
	l.logger.Debug("Servlet context destroyed", zap.String("name", sc.Name()))
}

// RequestInitialized activates the request context over the request's storage
// and, if the request carries a session, the session context over the session's.
func (l *Listener) RequestInitialized(req *Request) error {
	requestCtx, err := l.registry.BoundContext(digo.ScopeRequest)
	if err != nil {
		return err
	}
	if err := requestCtx.ActivateWith(req.Storage()); err != nil {
		return err
	}
	if sess := req.Session(false); sess != nil {
		if err := l.activateSession(sess); err != nil {
			return multierr.Append(err, requestCtx.Deactivate())
		}
	}
	l.logger.Debug("Request initialized", zap.String("request", req.ID()))
	return nil
}

// RequestDestroyed deactivates the conversation, session and request contexts,
// in that order, and destroys the request's storage. The session storage
// survives for later requests.
func (l *Listener) RequestDestroyed(req *Request) error {
	var err error
	for _, scope := range []digo.Scope{digo.ScopeConversation, digo.ScopeSession, digo.ScopeRequest} {
		ctx, ctxErr := l.registry.Context(scope)
		if ctxErr != nil {
			err = multierr.Append(err, ctxErr)
			continue
		}
		if ctx.IsActive() {
			err = multierr.Append(err, ctx.Deactivate())
		}
	}
	err = multierr.Append(err, req.Storage().Destroy())
	l.logger.Debug("Request destroyed", zap.String("request", req.ID()), zap.Error(err))
	return err
}

// SessionCreated activates the session context for a session created while a
// request is open.
func (l *Listener) SessionCreated(sess *Session) error {
	requestCtx, err := l.registry.Context(digo.ScopeRequest)
	if err != nil {
		return err
	}
	if !requestCtx.IsActive() {
		return nil
	}
	l.logger.Debug("Session created", zap.String("session", sess.ID()))
	return l.activateSession(sess)
}

// SessionDestroyed destroys the session's storage, deactivating the session
// context first if it is backed by that storage.
func (l *Listener) SessionDestroyed(sess *Session) error {
	var err error
	sessionCtx, ctxErr := l.registry.BoundContext(digo.ScopeSession)
	if ctxErr == nil && sessionCtx.IsActive() && sessionCtx.Storage() == sess.Storage() {
		err = multierr.Append(err, sessionCtx.Deactivate())
	}
	err = multierr.Append(err, sess.Storage().Destroy())
	sess.invalidate()
	l.logger.Debug("Session destroyed", zap.String("session", sess.ID()), zap.Error(err))
	return err
}

func (l *Listener) activateSession(sess *Session) error {
	sessionCtx, err := l.registry.BoundContext(digo.ScopeSession)
	if err != nil {
		return err
	}
	err = sessionCtx.ActivateWith(sess.Storage())
	var active *digo.ContextActiveError
	if errors.As(err, &active) && sessionCtx.Storage() == sess.Storage() {
		return nil
	}
	return err
}
