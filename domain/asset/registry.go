package asset

import (
	"sort"
	"sync"
)

// Registry holds the descriptors of every accepted asset, the reference
// asset included. Updates come from the owner path only.
type Registry struct {
	mu        sync.RWMutex
	reference ID
	assets    map[ID]Descriptor
}

func NewRegistry(reference Descriptor, others ...Descriptor) (*Registry, error) {
	r := &Registry{
		reference: reference.ID,
		assets:    make(map[ID]Descriptor, len(others)+1),
	}
	if err := r.Put(reference); err != nil {
		return nil, err
	}
	for _, d := range others {
		if err := r.Put(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Reference() ID {
	return r.reference
}

func (r *Registry) Lookup(id ID) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.assets[id]
	return d, ok
}

// Put inserts or replaces a descriptor.
func (r *Registry) Put(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.assets[d.ID] = d
	r.mu.Unlock()
	return nil
}

// All returns the descriptors sorted by id.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.assets))
	for _, d := range r.assets {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
