package digo

// Extension is a pre-processing step run while the container builds its type
// models. Rewrite receives every member of every modelled type, one at a time,
// and returns the member to use instead. It must not keep state between calls.
type Extension struct {
	Name    string
	Rewrite func(Member) Member
}

func applyExtensions(m Member, extensions []Extension) Member {
	for _, ext := range extensions {
		if ext.Rewrite == nil {
			continue
		}
		m = ext.Rewrite(m)
	}
	return m
}
