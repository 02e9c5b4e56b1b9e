package extract

import "github.com/ajitpratap0/shepherd/pkg/jsonapi"

// Resolver indexes sideloaded resources by (type, id) for one run. The first
// version of a resource wins: later pages may carry a copy that changed after
// the page boundary was computed, and the earlier copy is the one consistent
// with the records already emitted.
type Resolver struct {
	entries map[jsonapi.Key]jsonapi.Resource
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{entries: make(map[jsonapi.Key]jsonapi.Resource)}
}

// Merge adds resources that are not yet known and returns how many were new.
// Resources without an assigned id cannot be referenced and are skipped.
func (r *Resolver) Merge(resources []jsonapi.Resource) int {
	added := 0
	for _, res := range resources {
		key := res.Key()
		if !key.Assigned() {
			continue
		}
		if _, ok := r.entries[key]; ok {
			continue
		}
		r.entries[key] = res
		added++
	}
	return added
}

// Resolve looks up a resource. A miss is not an error; callers treat the
// relationship as absent.
func (r *Resolver) Resolve(key jsonapi.Key) (jsonapi.Resource, bool) {
	if !key.Assigned() {
		return jsonapi.Resource{}, false
	}
	res, ok := r.entries[key]
	return res, ok
}

// ResolveFirst resolves the first reference of a to-one relationship.
func (r *Resolver) ResolveFirst(from jsonapi.Resource, relationship string) (jsonapi.Resource, bool) {
	key, ok := from.RelatedOne(relationship)
	if !ok {
		return jsonapi.Resource{}, false
	}
	return r.Resolve(key)
}

// ResolveAll resolves every reference of a relationship in order, skipping misses.
func (r *Resolver) ResolveAll(from jsonapi.Resource, relationship string) []jsonapi.Resource {
	keys := from.Related(relationship)
	out := make([]jsonapi.Resource, 0, len(keys))
	for _, key := range keys {
		if res, ok := r.Resolve(key); ok {
			out = append(out, res)
		}
	}
	return out
}

// Len returns the number of indexed resources.
func (r *Resolver) Len() int {
	return len(r.entries)
}
