package syncx

import "sync"

// Registry is a keyed set of live members, such as connected clients.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	members map[K]V
}

// NewRegistry creates an empty registry.
func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{members: make(map[K]V)}
}

// Add registers v under k, replacing any previous member.
func (r *Registry[K, V]) Add(k K, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[k] = v
}

// Remove drops k and reports whether it was present.
func (r *Registry[K, V]) Remove(k K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.members[k]
	delete(r.members, k)
	return v, ok
}

// Len returns the number of members.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Each calls fn for every member under the read lock. fn must not call
// back into the registry.
func (r *Registry[K, V]) Each(fn func(K, V)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, v := range r.members {
		fn(k, v)
	}
}
