// Package encoder maps categorical values to the integer codes the
// classifiers were trained with.
package encoder

import (
	"fmt"
	"sort"
)

// Sentinel is returned for values not seen when the encoders were fitted.
const Sentinel = -1

// Logical category names.
const (
	CategoryProductType = "product_type"
	CategoryEmailDomain = "email_domain"
	CategoryDeviceInfo  = "device_info"
)

// Registry holds fitted label encoders, one per category.
// It is built once and never mutated, so it is safe for concurrent use.
type Registry struct {
	codes map[string]map[string]int
}

// NewRegistry builds a registry from the fitted class lists. The code of
// a value is its index in the class list, as with a label encoder.
func NewRegistry(classes map[string][]string) (*Registry, error) {
	codes := make(map[string]map[string]int, len(classes))
	for category, values := range classes {
		m := make(map[string]int, len(values))
		for i, v := range values {
			if _, dup := m[v]; dup {
				return nil, fmt.Errorf("category %s: duplicate class %q", category, v)
			}
			m[v] = i
		}
		codes[category] = m
	}
	return &Registry{codes: codes}, nil
}

// Encode returns the trained code for value, or Sentinel when the value
// (or the whole category) is unknown. It never fails.
func (r *Registry) Encode(category, value string) int {
	if r == nil {
		return Sentinel
	}
	code, ok := r.codes[category][value]
	if !ok {
		return Sentinel
	}
	return code
}

// Known reports whether value was observed for category at training time.
func (r *Registry) Known(category, value string) bool {
	return r.Encode(category, value) != Sentinel
}

// Categories returns the loaded category names in sorted order.
func (r *Registry) Categories() []string {
	out := make([]string, 0, len(r.codes))
	for c := range r.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of classes fitted for category.
func (r *Registry) Size(category string) int {
	return len(r.codes[category])
}
