package capability

import (
	"sort"
	"sync"
)

// Registry is the set of capabilities a backend declares. It is written while
// backends are registered and only read once measurement starts.
type Registry struct {
	mu      sync.RWMutex
	backend string
	caps    map[Key]Capability
}

// NewRegistry returns a registry for backend pre-populated with caps.
func NewRegistry(backend string, caps ...Capability) *Registry {
	r := &Registry{
		backend: backend,
		caps:    make(map[Key]Capability, len(caps)),
	}
	for _, c := range caps {
		r.Register(c)
	}
	return r
}

// Backend returns the name of the backend this registry describes.
func (r *Registry) Backend() string {
	return r.backend
}

// Register adds c to the set. Registering the same capability twice is a no-op.
func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[KeyOf(c)] = c
}

// Has reports whether k is declared.
func (r *Registry) Has(k Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.caps[k]
	return ok
}

// Supports reports whether c is declared.
func (r *Registry) Supports(c Capability) bool {
	return r.Has(KeyOf(c))
}

// Len returns the number of distinct capabilities declared.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}

// Capabilities returns a copy of the declared set ordered by category, then name.
func (r *Registry) Capabilities() []Capability {
	r.mu.RLock()
	out := make([]Capability, 0, len(r.caps))
	for _, c := range r.caps {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Category() != out[j].Category() {
			return out[i].Category() < out[j].Category()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// RequirementSet is the ordered list of capabilities a benchmark needs.
// The zero value is an empty set, which is always runnable.
type RequirementSet struct {
	items []Capability
}

// Requires builds a RequirementSet in the given order.
func Requires(caps ...Capability) RequirementSet {
	var rs RequirementSet
	for _, c := range caps {
		rs.Declare(c)
	}
	return rs
}

// Declare appends c to the requirement sequence. A capability already
// declared keeps its first position.
func (rs *RequirementSet) Declare(c Capability) {
	k := KeyOf(c)
	for _, have := range rs.items {
		if KeyOf(have) == k {
			return
		}
	}
	rs.items = append(rs.items, c)
}

// Items returns a copy of the requirements in declaration order.
func (rs RequirementSet) Items() []Capability {
	out := make([]Capability, len(rs.items))
	copy(out, rs.items)
	return out
}

func (rs RequirementSet) Len() int {
	return len(rs.items)
}
