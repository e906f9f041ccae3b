package share

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Registry keeps track of shares and queues so they can be listed.
type Registry struct {
	lock  sync.RWMutex
	items []Item
	names map[string]Item
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]Item)}
}

// Add registers items. A name registered twice replaces the previous item.
func (r *Registry) Add(items ...Item) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, item := range items {
		if _, exist := r.names[item.Name()]; exist {
			for n, existing := range r.items {
				if existing.Name() == item.Name() {
					r.items[n] = item
				}
			}
		} else {
			r.items = append(r.items, item)
		}
		r.names[item.Name()] = item
	}
}

// Lookup finds an item by name.
func (r *Registry) Lookup(name string) Item {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.names[name]
}

// Items returns registered items in registration order.
func (r *Registry) Items() []Item {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]Item(nil), r.items...)
}

// Names returns sorted names of registered items.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteAll writes one line per item.
func (r *Registry) WriteAll(w io.Writer) error {
	for _, item := range r.Items() {
		if _, err := fmt.Fprintln(w, item.String()); err != nil {
			return err
		}
	}
	return nil
}

// RegisterShare creates a share and registers it.
func RegisterShare[T any](r *Registry, name string, initial T) *Share[T] {
	s := NewShareWith(name, initial)
	r.Add(s)
	return s
}

// RegisterQueue creates a queue and registers it.
func RegisterQueue[T any](r *Registry, name string, size int, overwrite bool) *Queue[T] {
	q := NewQueue[T](name, size, overwrite)
	r.Add(q)
	return q
}

// RegisterFlag creates a flag and registers it.
func RegisterFlag(r *Registry, name string) *Queue[bool] {
	q := NewFlag(name)
	r.Add(q)
	return q
}
