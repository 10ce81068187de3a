package twitter

import (
	"net/url"
	"sort"
	"strings"
)

// Params is an immutable ordered set of query parameters.
// With and Without return modified copies; the receiver never changes,
// so one Params value can be shared between queries safely.
type Params struct {
	keys   []string
	values map[string]string
}

// NewParams builds Params from alternating name, value arguments.
// A trailing name without a value is ignored.
func NewParams(pairs ...string) Params {
	p := Params{}
	for i := 0; i+1 < len(pairs); i += 2 {
		p = p.With(pairs[i], pairs[i+1])
	}
	return p
}

// ParamsFromMap builds Params from a map, ordering names alphabetically
func ParamsFromMap(m map[string]string) Params {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	p := Params{}
	for _, name := range names {
		p = p.With(name, m[name])
	}
	return p
}

// With returns a copy of p with name set to value.
// An existing name keeps its position.
func (p Params) With(name, value string) Params {
	out := p.clone()
	if _, ok := out.values[name]; !ok {
		out.keys = append(out.keys, name)
	}
	out.values[name] = value
	return out
}

// Without returns a copy of p with name removed
func (p Params) Without(name string) Params {
	if _, ok := p.values[name]; !ok {
		return p
	}
	out := Params{
		keys:   make([]string, 0, len(p.keys)),
		values: make(map[string]string, len(p.values)),
	}
	for _, k := range p.keys {
		if k == name {
			continue
		}
		out.keys = append(out.keys, k)
		out.values[k] = p.values[k]
	}
	return out
}

// Merge returns a copy of p overlaid with every parameter of other
func (p Params) Merge(other Params) Params {
	out := p
	for _, k := range other.keys {
		out = out.With(k, other.values[k])
	}
	return out
}

// Get returns the value for name
func (p Params) Get(name string) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Has reports whether name is set
func (p Params) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Len returns the number of parameters
func (p Params) Len() int { return len(p.keys) }

// Names returns the parameter names in insertion order
func (p Params) Names() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Map returns a copy of the parameters as a plain map
func (p Params) Map() map[string]string {
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Encode renders the parameters as a URL query string in insertion order
func (p Params) Encode() string {
	var sb strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.values[k]))
	}
	return sb.String()
}

func (p Params) clone() Params {
	out := Params{
		keys:   make([]string, len(p.keys), len(p.keys)+1),
		values: make(map[string]string, len(p.values)+1),
	}
	copy(out.keys, p.keys)
	for k, v := range p.values {
		out.values[k] = v
	}
	return out
}
