package trace

import "strings"

// APIID is the stable handle of a registered call site. Zero means unset.
type APIID int32

// MethodDescriptor describes an instrumented call site.
type MethodDescriptor struct {
	Type       string
	Method     string
	Parameters []string
	Line       int
}

// FullName returns Type.Method(p1, p2), the identity used by the cache.
func (d MethodDescriptor) FullName() string {
	var b strings.Builder
	if d.Type != "" {
		b.WriteString(d.Type)
		b.WriteByte('.')
	}
	b.WriteString(d.Method)
	b.WriteByte('(')
	b.WriteString(strings.Join(d.Parameters, ", "))
	b.WriteByte(')')
	return b.String()
}
