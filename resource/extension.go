// Package resource turns resource-annotated members into named injection
// points, so beans written against name-based resource injection work in a
// digo container.
//
// A field tagged
//
//	DataSource *sql.DB `resource:"name=primary"`
//
// is injected like `digo:"inject,named=primary"`. Without a name the member
// name is used, decapitalized: "DataSource" becomes "dataSource", and a
// SetDataSource method becomes "dataSource" as well.
package resource

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/centraunit/digo"
)

// ExtensionName identifies the extension in a test configuration.
const ExtensionName = "resource"

// Extension returns the pre-processing step.
func Extension() digo.Extension {
	return digo.Extension{Name: ExtensionName, Rewrite: Rewrite}
}

// Eligible reports whether the step rewrites m: the member carries a resource
// marker and no inject marker.
func Eligible(m digo.Member) bool {
	return !m.Markers.Has(digo.MarkerInject) && m.Markers.Has(digo.MarkerResource)
}

// Rewrite returns m with its resource marker replaced by injection markers.
// Producers keep producing and are restricted to the member type.
func Rewrite(m digo.Member) digo.Member {
	if !Eligible(m) {
		return m
	}

	attrs := digo.ParseMarkers(m.Markers.Get(digo.MarkerResource))
	producer := m.Producer()

	markers := m.Markers.Without(digo.MarkerResource)
	if !producer {
		markers = markers.With(digo.MarkerInject, "")
	}

	name := attrs.Get("name")
	if name == "" {
		name = defaultName(m)
	}
	markers = markers.With(digo.MarkerNamed, name)

	if producer {
		markers = markers.With(digo.MarkerTyped, "")
	}

	m.Markers = markers
	return m
}

func defaultName(m digo.Member) string {
	if m.Kind == digo.FieldMember {
		return decapitalize(m.Name)
	}
	return PropertyName(m.Name)
}

// PropertyName derives the property a getter or setter method stands for:
// SetDataSource, GetDataSource and IsDataSource all give "dataSource".
// Other method names are decapitalized as they are.
func PropertyName(method string) string {
	for _, prefix := range []string{"Set", "Get", "Is"} {
		if rest, ok := strings.CutPrefix(method, prefix); ok && rest != "" {
			if r, _ := utf8.DecodeRuneInString(rest); unicode.IsUpper(r) {
				return decapitalize(rest)
			}
		}
	}
	return decapitalize(method)
}

// decapitalize lowers the first letter unless the first two letters are both
// upper case, so "URL" stays "URL".
func decapitalize(s string) string {
	if s == "" {
		return s
	}
	first, size := utf8.DecodeRuneInString(s)
	if size < len(s) {
		second, _ := utf8.DecodeRuneInString(s[size:])
		if unicode.IsUpper(first) && unicode.IsUpper(second) {
			return s
		}
	}
	return string(unicode.ToLower(first)) + s[size:]
}
