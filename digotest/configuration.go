package digotest

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/centraunit/digo"
)

// TestConfiguration is what one test invocation registers, applies and
// activates. It is derived by Resolve and never changes afterwards.
type TestConfiguration struct {
	testType   reflect.Type
	method     *Method
	classes    []digo.Binding
	extensions []digo.Extension
	scopes     []digo.ScopeDefinition
	activate   []digo.Scope
}

var classDeclarerType = reflect.TypeOf((*ClassDeclarer)(nil)).Elem()

// Resolve merges the class declarations of testType with those of method.
// The merge is an additive union in class-then-method order; repeated
// declarations collapse, conflicting ones are rejected. Scopes to activate are
// returned so that every scope follows the scopes it requires.
func Resolve(testType reflect.Type, method *Method) (TestConfiguration, error) {
	if testType == nil {
		return TestConfiguration{}, &ResolutionError{Test: "<nil>", Reason: "test type is nil"}
	}
	if testType.Kind() == reflect.Pointer {
		testType = testType.Elem()
	}
	cfg := TestConfiguration{testType: testType, method: method}
	test := cfg.Name()

	decl := classDeclarations(testType)
	if method != nil {
		decl = merge(decl, method.Declarations)
	}

	if err := cfg.addClasses(test, decl.Classes); err != nil {
		return TestConfiguration{}, err
	}
	cfg.addExtensions(decl.Extensions)
	if err := cfg.addScopes(test, decl.Scopes); err != nil {
		return TestConfiguration{}, err
	}
	if err := cfg.addActivations(test, decl.ActivateScopes); err != nil {
		return TestConfiguration{}, err
	}
	return cfg, nil
}

func classDeclarations(t reflect.Type) Declarations {
	pt := reflect.PointerTo(t)
	if !pt.Implements(classDeclarerType) {
		return Declarations{}
	}
	return reflect.New(t).Interface().(ClassDeclarer).DigoDeclarations()
}

func (c *TestConfiguration) addClasses(test string, classes []digo.Binding) error {
	seen := make(map[digo.BindingKey]int, len(classes))
	for _, b := range classes {
		if i, ok := seen[b.Key()]; ok {
			if c.classes[i].Equal(b) {
				continue
			}
			return &ResolutionError{
				Test:   test,
				Reason: fmt.Sprintf("conflicting classes %s and %s", c.classes[i], b),
			}
		}
		seen[b.Key()] = len(c.classes)
		c.classes = append(c.classes, b)
	}
	return nil
}

// addExtensions keeps the first extension of each name. Unnamed extensions
// are always kept.
func (c *TestConfiguration) addExtensions(extensions []digo.Extension) {
	seen := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		if ext.Name != "" {
			if seen[ext.Name] {
				continue
			}
			seen[ext.Name] = true
		}
		c.extensions = append(c.extensions, ext)
	}
}

func (c *TestConfiguration) addScopes(test string, defs []digo.ScopeDefinition) error {
	known := make(map[digo.Scope]digo.ScopeDefinition)
	for _, d := range digo.BuiltinScopes() {
		known[d.Name] = d
	}
	for _, d := range defs {
		if d.Name == "" || d.Name.IsPseudo() {
			return &ResolutionError{Test: test, Reason: fmt.Sprintf("cannot define scope %q", d.Name)}
		}
		if existing, ok := known[d.Name]; ok {
			if !digo.SameScopes(existing.Requires, d.Requires) {
				return &ResolutionError{Test: test, Reason: fmt.Sprintf("conflicting definitions of scope %s", d.Name)}
			}
			continue
		}
		known[d.Name] = d
		c.scopes = append(c.scopes, d)
	}

	all := append(digo.BuiltinScopes(), c.scopes...)
	for _, d := range all {
		for _, r := range d.Requires {
			if _, ok := known[r]; !ok {
				return &ResolutionError{Test: test, Reason: fmt.Sprintf("scope %s requires unknown scope %s", d.Name, r)}
			}
		}
	}
	if _, ok := digo.OrderScopes(all); !ok {
		return &ResolutionError{Test: test, Reason: "scope requirements form a cycle"}
	}
	return nil
}

func (c *TestConfiguration) addActivations(test string, scopes []digo.Scope) error {
	defs := make(map[digo.Scope]digo.ScopeDefinition)
	for _, d := range append(digo.BuiltinScopes(), c.scopes...) {
		defs[d.Name] = d
	}

	requested := make(map[digo.Scope]bool, len(scopes))
	var ordered []digo.ScopeDefinition
	for _, s := range scopes {
		if requested[s] {
			continue
		}
		if s.IsPseudo() {
			return &ResolutionError{Test: test, Reason: fmt.Sprintf("scope %s has no context to activate", s)}
		}
		d, ok := defs[s]
		if !ok {
			return &ResolutionError{Test: test, Reason: fmt.Sprintf("unknown scope %s", s)}
		}
		requested[s] = true
		ordered = append(ordered, d)
	}
	for _, d := range ordered {
		for _, r := range d.Requires {
			if !requested[r] {
				return &ResolutionError{
					Test:   test,
					Reason: fmt.Sprintf("scope %s requires %s, which is not activated", d.Name, r),
				}
			}
		}
	}

	sorted, ok := digo.OrderScopes(ordered)
	if !ok {
		return &ResolutionError{Test: test, Reason: "activated scopes form a cycle"}
	}
	for _, d := range sorted {
		c.activate = append(c.activate, d.Name)
	}
	return nil
}

// Name identifies the test: its type and, if any, its method.
func (c TestConfiguration) Name() string {
	if c.testType == nil {
		return "<nil>"
	}
	if c.method == nil {
		return c.testType.String()
	}
	return c.testType.String() + "." + c.method.Name
}

func (c TestConfiguration) TestType() reflect.Type {
	return c.testType
}

func (c TestConfiguration) Method() *Method {
	return c.method
}

// Classes returns the bindings to register, deduplicated, in declaration order.
func (c TestConfiguration) Classes() []digo.Binding {
	return append([]digo.Binding(nil), c.classes...)
}

func (c TestConfiguration) Extensions() []digo.Extension {
	return append([]digo.Extension(nil), c.extensions...)
}

// Scopes returns the custom scope definitions.
func (c TestConfiguration) Scopes() []digo.ScopeDefinition {
	return append([]digo.ScopeDefinition(nil), c.scopes...)
}

// ActivateScopes returns the scopes to activate, in activation order.
func (c TestConfiguration) ActivateScopes() []digo.Scope {
	return append([]digo.Scope(nil), c.activate...)
}

func (c TestConfiguration) containerConfig(extra []digo.Binding, logger *zap.Logger, ctx *digo.ContainerContext) digo.Config {
	return digo.Config{
		Bindings:   append(c.Classes(), extra...),
		Extensions: c.Extensions(),
		Scopes:     c.Scopes(),
		Logger:     logger,
		Context:    ctx,
	}
}
