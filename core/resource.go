package core

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Resource is one instance of a ResourceType. It starts out new, with no
// primary key, and becomes persisted after its first successful save.
// A Resource is owned by the caller; the repository only reads and updates
// it for the duration of a save, find or delete.
type Resource struct {
	mu     sync.RWMutex
	rt     *ResourceType
	repo   *Repository
	values map[string]any
	dirty  map[string]struct{}
	isNew  bool
}

// New creates an unsaved instance with the declared default values
func (rt *ResourceType) New() *Resource {
	r := &Resource{
		rt:     rt,
		values: make(map[string]any, len(rt.properties)),
		dirty:  make(map[string]struct{}),
		isNew:  true,
	}
	for _, p := range rt.properties {
		if p.DefaultVal != nil {
			r.values[p.Name] = p.DefaultVal
			r.dirty[p.Name] = struct{}{}
		}
	}
	return r
}

// Type returns the resource type of the instance
func (r *Resource) Type() *ResourceType {
	return r.rt
}

// IsNew reports whether the instance has never been persisted
func (r *Resource) IsNew() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isNew
}

// IsDirty reports whether any property changed since the last save or fetch
func (r *Resource) IsDirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirty) > 0
}

// DirtyProperties returns the names of changed properties, sorted
func (r *Resource) DirtyProperties() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.dirty))
	for name := range r.dirty {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set assigns a property value. The value is converted to the property's
// semantic type; nil clears the value.
func (r *Resource) Set(name string, value any) error {
	p, err := r.rt.lookup(name)
	if err != nil {
		return err
	}

	if value != nil && (p.Transform == nil || p.Transform.ToColumn == nil) {
		v, err := coerce(p.Type, value)
		if err != nil {
			return NewError(CodeInvalid, fmt.Sprintf("set %s.%s", r.rt.name, name), err)
		}
		value = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = value
	r.dirty[name] = struct{}{}
	return nil
}

// MustSet is like Set but panics on error
func (r *Resource) MustSet(name string, value any) *Resource {
	if err := r.Set(name, value); err != nil {
		panic(err)
	}
	return r
}

// Get returns a property value and whether it is set
func (r *Resource) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[name]
	return v, ok && v != nil
}

// Value returns a property value, or nil when unset or unknown
func (r *Resource) Value(name string) any {
	v, _ := r.Get(name)
	return v
}

// String returns a string property, or "" when unset or of another type
func (r *Resource) String(name string) string {
	s, _ := r.Value(name).(string)
	return s
}

// Int64 returns an int64 property, or 0 when unset or of another type
func (r *Resource) Int64(name string) int64 {
	i, _ := r.Value(name).(int64)
	return i
}

// Values returns a copy of all set property values
func (r *Resource) Values() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// PrimaryKey returns the primary key value and whether one is assigned
func (r *Resource) PrimaryKey() (any, bool) {
	return r.Get(r.rt.primaryKey)
}

// Save persists the instance through the repository it is bound to
func (r *Resource) Save(ctx context.Context) error {
	if r.repo == nil {
		return Errorf(CodeInvalid, "resource %s is not bound to a repository", r.rt.name)
	}
	return r.repo.Save(ctx, r)
}

// Delete removes the instance through the repository it is bound to
func (r *Resource) Delete(ctx context.Context) error {
	if r.repo == nil {
		return Errorf(CodeInvalid, "resource %s is not bound to a repository", r.rt.name)
	}
	return r.repo.Delete(ctx, r)
}

// snapshot copies the state needed to build a statement, so a save can be
// prepared without holding the lock while the adapter runs it
func (r *Resource) snapshot() (values map[string]any, dirty map[string]struct{}, isNew bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	values = make(map[string]any, len(r.values))
	for k, v := range r.values {
		values[k] = v
	}
	dirty = make(map[string]struct{}, len(r.dirty))
	for k := range r.dirty {
		dirty[k] = struct{}{}
	}
	return values, dirty, r.isNew
}

// markSaved records a successful save. Properties changed after the
// snapshot was taken stay dirty.
func (r *Resource) markSaved(pk any, saved map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pk != nil {
		r.values[r.rt.primaryKey] = pk
	}
	for name, v := range saved {
		if cur, ok := r.values[name]; ok && sameValue(cur, v) {
			delete(r.dirty, name)
		}
	}
	delete(r.dirty, r.rt.primaryKey)
	r.isNew = false
}

// markDeleted makes the instance new again; a backend-generated key is dropped
func (r *Resource) markDeleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rt.autoIncrement() {
		delete(r.values, r.rt.primaryKey)
	}
	for name, v := range r.values {
		if v != nil {
			r.dirty[name] = struct{}{}
		}
	}
	r.isNew = true
}

// loaded builds a persisted instance from a fetched row
func (rt *ResourceType) loaded(repo *Repository, values map[string]any) *Resource {
	return &Resource{
		rt:     rt,
		repo:   repo,
		values: values,
		dirty:  make(map[string]struct{}),
		isNew:  false,
	}
}

func sameValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
