package digo

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Marker names understood by the container.
const (
	MarkerInject   = "inject"
	MarkerNamed    = "named"
	MarkerProduces = "produces"
	MarkerScope    = "scope"
	MarkerTyped    = "typed"
	MarkerResource = "resource"
)

// initializerPrefix marks exported methods the container calls after field
// injection: Inject itself, or Inject followed by an upper-case word as in
// InjectService.
const initializerPrefix = "Inject"

// Markers is the metadata attached to a member, keyed by marker name.
// Markers are treated as immutable: With and Without return copies.
type Markers map[string]string

// ParseMarkers parses "inject,named=primary" into markers.
func ParseMarkers(s string) Markers {
	out := Markers{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func markersFromTag(tag reflect.StructTag) Markers {
	out := Markers{}
	if v, ok := tag.Lookup("digo"); ok {
		for k, x := range ParseMarkers(v) {
			out[k] = x
		}
	}
	if v, ok := tag.Lookup("resource"); ok {
		out[MarkerResource] = v
	}
	return out
}

func (m Markers) Has(name string) bool {
	_, ok := m[name]
	return ok
}

func (m Markers) Get(name string) string {
	return m[name]
}

// With returns a copy of m with name set to value.
func (m Markers) With(name, value string) Markers {
	out := make(Markers, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[name] = value
	return out
}

// Without returns a copy of m without name.
func (m Markers) Without(name string) Markers {
	out := make(Markers, len(m))
	for k, v := range m {
		if k != name {
			out[k] = v
		}
	}
	return out
}

func (m Markers) String() string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		if v == "" {
			parts = append(parts, k)
		} else {
			parts = append(parts, k+"="+v)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// MemberKind tells fields and methods apart.
type MemberKind int

const (
	FieldMember MemberKind = iota
	MethodMember
)

// Member is the metadata of one field or method of a modelled struct type.
type Member struct {
	Owner reflect.Type
	Kind  MemberKind
	Name  string
	// Index is the field index in Owner, or the method index in *Owner.
	Index int
	// Type is the field type, or the first result of a method (nil if none).
	Type reflect.Type
	// Params are the method parameters, receiver excluded.
	Params  []reflect.Type
	Markers Markers
}

func (m Member) String() string {
	return m.Owner.Name() + "." + m.Name
}

// Injectable reports whether the container populates the member.
func (m Member) Injectable() bool {
	return m.Markers.Has(MarkerInject)
}

// Producer reports whether the member produces a bean.
func (m Member) Producer() bool {
	return m.Markers.Has(MarkerProduces)
}

// MethodMarker lets a type attach markers to its methods, which cannot carry
// struct tags. Keys are method names, values use struct tag syntax, e.g.
// `resource:"name=dataSource"`. It is called on the zero value of the type.
type MethodMarker interface {
	MethodMarkers() map[string]string
}

// TypeModel is the member metadata of a struct type.
type TypeModel struct {
	Type    reflect.Type
	Members []Member
}

var (
	rawModels        sync.Map
	methodMarkerType = reflect.TypeOf((*MethodMarker)(nil)).Elem()
)

// ModelOf returns the member metadata of struct type t, before any extension
// runs. Models are derived once per type and cached.
func ModelOf(t reflect.Type) *TypeModel {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := rawModels.Load(t); ok {
		return cached.(*TypeModel)
	}
	model, _ := rawModels.LoadOrStore(t, buildModel(t))
	return model.(*TypeModel)
}

func buildModel(t reflect.Type) *TypeModel {
	model := &TypeModel{Type: t}
	if t.Kind() != reflect.Struct {
		return model
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		markers := markersFromTag(f.Tag)
		if len(markers) == 0 {
			continue
		}
		model.Members = append(model.Members, Member{
			Owner:   t,
			Kind:    FieldMember,
			Name:    f.Name,
			Index:   i,
			Type:    f.Type,
			Markers: markers,
		})
	}

	pt := reflect.PointerTo(t)
	declared := map[string]string{}
	if pt.Implements(methodMarkerType) {
		declared = reflect.New(t).Interface().(MethodMarker).MethodMarkers()
	}
	for i := 0; i < pt.NumMethod(); i++ {
		meth := pt.Method(i)
		markers := Markers{}
		if raw, ok := declared[meth.Name]; ok {
			markers = markersFromTag(reflect.StructTag(raw))
		}
		if isInitializer(meth.Name) {
			markers = markers.With(MarkerInject, "")
		}
		if len(markers) == 0 {
			continue
		}
		// meth.Type includes the receiver as its first parameter.
		params := make([]reflect.Type, 0, meth.Type.NumIn()-1)
		for p := 1; p < meth.Type.NumIn(); p++ {
			params = append(params, meth.Type.In(p))
		}
		var result reflect.Type
		if meth.Type.NumOut() > 0 {
			result = meth.Type.Out(0)
		}
		model.Members = append(model.Members, Member{
			Owner:   t,
			Kind:    MethodMember,
			Name:    meth.Name,
			Index:   i,
			Type:    result,
			Params:  params,
			Markers: markers,
		})
	}
	return model
}

func isInitializer(name string) bool {
	rest, ok := strings.CutPrefix(name, initializerPrefix)
	if !ok {
		return false
	}
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return unicode.IsUpper(r)
}

// Rewrite returns a new model with every member passed through the extensions in order.
func (m *TypeModel) Rewrite(extensions []Extension) *TypeModel {
	out := &TypeModel{Type: m.Type, Members: make([]Member, len(m.Members))}
	for i, member := range m.Members {
		out.Members[i] = applyExtensions(member, extensions)
	}
	return out
}

// Injectables returns the members the container populates, fields first.
func (m *TypeModel) Injectables() []Member {
	var fields, methods []Member
	for _, member := range m.Members {
		if !member.Injectable() {
			continue
		}
		if member.Kind == FieldMember {
			fields = append(fields, member)
		} else {
			methods = append(methods, member)
		}
	}
	return append(fields, methods...)
}

// Producers returns the producer members.
func (m *TypeModel) Producers() []Member {
	var out []Member
	for _, member := range m.Members {
		if member.Producer() {
			out = append(out, member)
		}
	}
	return out
}
