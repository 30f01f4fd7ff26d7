package chart

import (
	"fmt"
	"sort"
)

// Entry is one registered series.
type Entry struct {
	Key    SeriesKey
	Kind   SeriesKind
	Handle Handle
	// Data is the last computed data, kept while the series is hidden so it
	// can be shown again without recomputing.
	Data    SeriesData
	Visible bool
	// Generation of the input the data was computed from.
	Generation uint64
}

// RegistryView is the read-only side of a Registry that BuildPlan consumes.
type RegistryView interface {
	Lookup(k SeriesKey) (Entry, bool)
	Keys() []SeriesKey
}

// Registry maps series identities to surface handles. It is owned by a
// Compositor; create, update and remove are its only mutations.
type Registry struct {
	entries map[SeriesKey]*Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[SeriesKey]*Entry)}
}

// Lookup returns a copy of the entry for k.
func (r *Registry) Lookup(k SeriesKey) (Entry, bool) {
	e, ok := r.entries[k]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Keys returns the registered keys in a stable order.
func (r *Registry) Keys() []SeriesKey {
	keys := make([]SeriesKey, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Len returns the number of registered series.
func (r *Registry) Len() int { return len(r.entries) }

func (r *Registry) create(e Entry) error {
	if _, ok := r.entries[e.Key]; ok {
		return fmt.Errorf("registry: %s already registered", e.Key)
	}
	r.entries[e.Key] = &e
	return nil
}

func (r *Registry) update(k SeriesKey, data SeriesData, visible bool, gen uint64) error {
	e, ok := r.entries[k]
	if !ok {
		return fmt.Errorf("registry: %s not registered", k)
	}
	e.Data = data
	e.Visible = visible
	e.Generation = gen
	return nil
}

func (r *Registry) remove(k SeriesKey) (Entry, bool) {
	e, ok := r.entries[k]
	if !ok {
		return Entry{}, false
	}
	delete(r.entries, k)
	return *e, true
}
