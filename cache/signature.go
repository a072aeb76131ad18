package cache

import (
	"net/url"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// Signature is the canonical identity of a bulk fetch: which collection, which
// backend action, which scope (branch), the page-size ceiling and any
// server-side filters actually sent. It is a comparable value, so two
// signatures built from the same parameters are == regardless of the order
// the filters were supplied in, and it can be used directly as a map key.
type Signature struct {
	Collection string
	Action     string
	Scope      string
	Limit      int

	// filters holds the canonical (sorted, escaped) encoding of the
	// server-side filters. Kept unexported so it can only be produced
	// through NewSignature.
	filters string
}

// NewSignature builds a normalized signature. Collection, action and filter
// names are trimmed and lower-cased, empty filter values are dropped.
func NewSignature(collection, action, scope string, limit int, filters map[string]string) Signature {
	return Signature{
		Collection: normalizeName(collection),
		Action:     normalizeName(action),
		Scope:      strings.TrimSpace(scope),
		Limit:      limit,
		filters:    encodeFilters(filters),
	}
}

// Filters returns a copy of the server-side filters carried by the signature.
func (s Signature) Filters() map[string]string {
	out := map[string]string{}
	if s.filters == "" {
		return out
	}
	values, err := url.ParseQuery(s.filters)
	if err != nil {
		return out
	}
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// Key renders the signature as the string key used by the backing store.
// Every key starts with the collection prefix so a whole collection can be
// dropped with a prefix scan.
func (s Signature) Key() string {
	parts := []string{s.Collection, s.Action, s.Scope, strconv.Itoa(s.Limit)}
	if s.filters != "" {
		parts = append(parts, s.filters)
	}
	return strings.Join(parts, KeySeparator)
}

// String implements fmt.Stringer.
func (s Signature) String() string {
	return s.Key()
}

// IsZero reports whether the signature was never initialized.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// WithAction returns the sibling signature that differs only by backend action,
// e.g. the "fetch_cancelled" list for the same collection and scope.
func (s Signature) WithAction(action string) Signature {
	s.Action = normalizeName(action)
	return s
}

// SameScope reports whether other targets the same collection and scope.
func (s Signature) SameScope(other Signature) bool {
	return s.Collection == other.Collection && s.Scope == other.Scope
}

// CollectionPrefix returns the key prefix shared by every signature of collection.
func CollectionPrefix(collection string) string {
	return normalizeName(collection) + KeySeparator
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// encodeFilters produces a deterministic encoding: url.Values.Encode sorts by
// key and escapes separators, so "a=1&b=2" can never collide with a value
// that contains "&b=2".
func encodeFilters(filters map[string]string) string {
	if len(filters) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range filters {
		name := normalizeName(k)
		value := strings.TrimSpace(v)
		if name == "" || value == "" {
			continue
		}
		values.Set(name, value)
	}
	return values.Encode()
}
