package state

import "sync"

// registry is one id-keyed entity table guarded by its own lock. Bulk reads
// return values in first-arrival order.
type registry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	keys  []string
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{items: make(map[string]T)}
}

// put overwrites the value stored under id.
func (r *registry[T]) put(id string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		r.keys = append(r.keys, id)
	}
	r.items[id] = v
}

// putIfAbsent stores v unless id is already present. It reports whether v was
// stored.
func (r *registry[T]) putIfAbsent(id string, v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; ok {
		return false
	}
	r.keys = append(r.keys, id)
	r.items[id] = v
	return true
}

func (r *registry[T]) get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	return v, ok
}

func (r *registry[T]) all() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]T, 0, len(r.keys))
	for _, k := range r.keys {
		res = append(res, r.items[k])
	}
	return res
}

func (r *registry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
