package web

import "github.com/centraunit/digo"

// Module returns the bindings backing the web emulation: the servlet context,
// the listener and the controller are application scoped, requests are
// dependent so that every lookup yields a fresh one.
func Module() []digo.Binding {
	return []digo.Binding{
		digo.Provide(NewServletContext, digo.InScope(digo.ScopeApplication)),
		digo.Provide(NewListener, digo.InScope(digo.ScopeApplication)),
		digo.Provide(NewRequest),
		digo.Provide(NewContextController, digo.InScope(digo.ScopeApplication)),
	}
}
