package digotest

import (
	"errors"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/centraunit/digo"
)

// Activation records the scopes activated for one invocation, in order.
type Activation struct {
	scopes []digo.Scope
}

// Scopes returns the activated scopes in activation order.
func (a *Activation) Scopes() []digo.Scope {
	if a == nil {
		return nil
	}
	return append([]digo.Scope(nil), a.scopes...)
}

// ScopeController activates the scopes of a test invocation and deactivates
// them in exactly the reverse order.
type ScopeController struct {
	logger *zap.Logger
}

// NewScopeController returns a controller logging to logger, or nowhere if nil.
func NewScopeController(logger *zap.Logger) *ScopeController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScopeController{logger: logger}
}

// Order sorts scopes so every scope follows the scopes it requires, keeping
// declaration order otherwise.
func (s *ScopeController) Order(reg *digo.Registry, scopes []digo.Scope) ([]digo.Scope, error) {
	defs := make([]digo.ScopeDefinition, 0, len(scopes))
	seen := make(map[digo.Scope]bool, len(scopes))
	for _, scope := range scopes {
		if seen[scope] {
			continue
		}
		seen[scope] = true
		d, ok := reg.ScopeDefinition(scope)
		if !ok {
			return nil, &ActivationError{Scope: string(scope), Err: &digo.InvalidScopeError{
				Type: "context", Scope: string(scope), Reason: "unknown scope",
			}}
		}
		defs = append(defs, d)
	}
	ordered, ok := digo.OrderScopes(defs)
	if !ok {
		return nil, &ActivationError{Err: errors.New("scope requirements form a cycle")}
	}
	out := make([]digo.Scope, len(ordered))
	for i, d := range ordered {
		out[i] = d.Name
	}
	return out, nil
}

// Activate activates scopes in dependency order. If one fails, the scopes
// already activated are deactivated in reverse and an ActivationError is
// returned.
func (s *ScopeController) Activate(reg *digo.Registry, scopes []digo.Scope) (*Activation, error) {
	ordered, err := s.Order(reg, scopes)
	if err != nil {
		return nil, err
	}

	act := &Activation{}
	for _, scope := range ordered {
		ctx, err := reg.Context(scope)
		if err == nil {
			err = ctx.Activate()
		}
		if err != nil {
			s.logger.Warn("Scope activation failed",
				zap.String("scope", scope.String()),
				zap.Error(err))
			return nil, &ActivationError{
				Scope:  scope.String(),
				Err:    err,
				Unwind: s.Deactivate(reg, act),
			}
		}
		act.scopes = append(act.scopes, scope)
		s.logger.Debug("Scope activated", zap.String("scope", scope.String()))
	}
	return act, nil
}

// Deactivate deactivates the scopes of act in reverse activation order. Every
// scope is attempted; failures are combined. Scopes already inactive are
// skipped.
func (s *ScopeController) Deactivate(reg *digo.Registry, act *Activation) error {
	if act == nil {
		return nil
	}
	var err error
	for i := len(act.scopes) - 1; i >= 0; i-- {
		scope := act.scopes[i]
		ctx, ctxErr := reg.Context(scope)
		if ctxErr != nil {
			err = multierr.Append(err, &DeactivationError{Scope: scope.String(), Err: ctxErr})
			continue
		}
		if !ctx.IsActive() {
			s.logger.Debug("Scope already inactive", zap.String("scope", scope.String()))
			continue
		}
		if deactErr := ctx.Deactivate(); deactErr != nil {
			s.logger.Warn("Scope deactivation failed",
				zap.String("scope", scope.String()),
				zap.Error(deactErr))
			err = multierr.Append(err, &DeactivationError{Scope: scope.String(), Err: deactErr})
			continue
		}
		s.logger.Debug("Scope deactivated", zap.String("scope", scope.String()))
	}
	return err
}
