package capi

import "sync"

// Handle identifies a live object across the flat boundary. Zero is never
// allocated; constructors return it as their failure sentinel.
type Handle uint64

// arena owns every object handed across the boundary. Handles come from a
// monotonic counter rather than a free list, so a handle that was deleted
// can never silently alias an object created later.
type arena struct {
	mu      sync.RWMutex
	objects map[Handle]any
	last    Handle
}

func newArena() *arena {
	return &arena{objects: make(map[Handle]any)}
}

func (a *arena) insert(v any) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last++
	a.objects[a.last] = v
	return a.last
}

func (a *arena) get(h Handle) (any, bool) {
	if h == 0 {
		return nil, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.objects[h]
	return v, ok
}

func (a *arena) remove(h Handle) (any, bool) {
	if h == 0 {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.objects[h]
	if ok {
		delete(a.objects, h)
	}
	return v, ok
}

// grab fetches a handle's object when it holds the expected dynamic type.
func grab[T any](a *arena, h Handle) (T, bool) {
	v, ok := a.get(h)
	if ok {
		if t, ok := v.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// deleteAs removes h when it holds a T. A live handle of another type is
// left in place so a mistyped delete cannot destroy an unrelated object.
func deleteAs[T any](a *arena, h Handle) (T, bool) {
	var zero T
	if h == 0 {
		return zero, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.objects[h]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	delete(a.objects, h)
	return t, true
}
