package querycache

import (
	"sort"
	"strings"
)

// Key identifies a cached query: a logical resource name plus its filter
// parameters. Two keys are equal iff every component is equal, independent
// of the order parameters were supplied in.
type Key struct {
	Resource string
	Params   map[string]string
}

// NewKey builds a key. The params map is copied.
func NewKey(resource string, params map[string]string) Key {
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return Key{Resource: resource, Params: copied}
}

// ID returns the canonical form of the key: the resource followed by the
// parameters in sorted order. Structural equality reduces to ID equality.
func (k Key) ID() string {
	if len(k.Params) == 0 {
		return k.Resource
	}

	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(k.Resource)
	for i, name := range names {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(k.Params[name])
	}
	return b.String()
}

// Equal reports structural key equality.
func (k Key) Equal(other Key) bool {
	return k.ID() == other.ID()
}

// ByResource returns a key predicate matching any of the given resources,
// for use with Invalidate.
func ByResource(resources ...string) func(Key) bool {
	return func(k Key) bool {
		for _, r := range resources {
			if k.Resource == r {
				return true
			}
		}
		return false
	}
}
