package web

// LifecycleAwareRequest wraps a request opened by a ContextController so that
// a session created through it is reported to the listener, activating the
// session context mid-request.
type LifecycleAwareRequest struct {
	*Request
	listener *Listener
}

// Session returns the request's session, creating one if asked to. A newly
// created session activates the session context.
func (r *LifecycleAwareRequest) Session(create bool) *Session {
	existing := r.Request.Session(false)
	sess := r.Request.Session(create)
	if existing == nil && sess != nil {
		if err := r.listener.SessionCreated(sess); err != nil {
			r.listener.logger.Warn("Session context activation failed")
		}
	}
	return sess
}
