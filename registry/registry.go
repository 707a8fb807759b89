// Package registry implements the object registry
// C8): tracking which indirect objects were loaded from the input,
// which were created in memory since, and computing the change set a
// save needs to write.
package registry

import (
	"github.com/shaneholloman/libpdf-sub001/model"
)

// Registry owns the three maps the object graph is built from: loaded
// objects (from the input file), new objects (allocated since load),
// and the reverse index that lets inserting code recover the Ref a
// freshly created object was assigned.
type Registry struct {
	loaded     map[model.Ref]model.Object
	newObjects map[model.Ref]model.Object
	reverse    map[model.Object]model.Ref

	nextObjectNumber uint32
	warnings         []string
}

func New() *Registry {
	return &Registry{
		loaded:           make(map[model.Ref]model.Object),
		newObjects:       make(map[model.Ref]model.Object),
		reverse:          make(map[model.Object]model.Ref),
		nextObjectNumber: 1,
	}
}

// LoadObject records obj as materialised from the input under ref,
// without marking it new. Used by the document loader as it resolves
// objects from the xref table; it also tracks the highest object
// number seen so Register never collides with an on-disk object.
// The dirty flags that building obj left set are cleared, so a freshly
// loaded object does not count as modified.
func (r *Registry) LoadObject(ref model.Ref, obj model.Object) {
	r.loaded[ref] = obj
	clearDirtyRecursive(obj, make(map[model.Object]bool))
	if ref.ObjectNumber >= r.nextObjectNumber {
		r.nextObjectNumber = ref.ObjectNumber + 1
	}
}

// Register assigns the next free object number to obj and records it
// as a new object, returning the assigned Ref.
func (r *Registry) Register(obj model.Object) model.Ref {
	if ref, ok := r.reverse[obj]; ok {
		return ref
	}
	ref := model.RefOf(r.nextObjectNumber, 0)
	r.nextObjectNumber++
	r.newObjects[ref] = obj
	r.reverse[obj] = ref
	return ref
}

// Resolve returns the object bound to ref, checking new objects before
// loaded ones (a ref can only appear in one or the other).
func (r *Registry) Resolve(ref model.Ref) (model.Object, bool) {
	if obj, ok := r.newObjects[ref]; ok {
		return obj, true
	}
	obj, ok := r.loaded[ref]
	return obj, ok
}

// RefOf returns the Ref a new object was registered under, if any.
func (r *Registry) RefOf(obj model.Object) (model.Ref, bool) {
	ref, ok := r.reverse[obj]
	return ref, ok
}

func (r *Registry) MaxObjectNumber() uint32 {
	if r.nextObjectNumber == 0 {
		return 0
	}
	return r.nextObjectNumber - 1
}

func (r *Registry) AddWarning(msg string) {
	r.warnings = append(r.warnings, msg)
}

func (r *Registry) Warnings() []string { return r.warnings }

func (r *Registry) LoadedRefs() []model.Ref {
	out := make([]model.Ref, 0, len(r.loaded))
	for ref := range r.loaded {
		out = append(out, ref)
	}
	return out
}

func (r *Registry) NewRefs() []model.Ref {
	out := make([]model.Ref, 0, len(r.newObjects))
	for ref := range r.newObjects {
		out = append(out, ref)
	}
	return out
}

// ChangeSet is the result of a change-collection walk.
type ChangeSet struct {
	Modified        map[model.Ref]bool
	Created         map[model.Ref]bool
	MaxObjectNumber uint32
}

// CollectChanges walks every loaded indirect object, recursively
// inspecting nested Dicts/Arrays/Stream-dicts but stopping at Ref
// boundaries, and marks an object modified iff itself or any contained
// container has its dirty flag set. Every new object counts as
// created.
func (r *Registry) CollectChanges() ChangeSet {
	cs := ChangeSet{
		Modified:        make(map[model.Ref]bool),
		Created:         make(map[model.Ref]bool),
		MaxObjectNumber: r.MaxObjectNumber(),
	}
	for ref, obj := range r.loaded {
		if isDirty(obj) {
			cs.Modified[ref] = true
		}
	}
	for ref := range r.newObjects {
		cs.Created[ref] = true
	}
	return cs
}

// isDirty recursively inspects a container's dirty flag and, for
// arrays/dicts, its direct (non-Ref) children, without crossing into
// objects reachable only through a Ref - an indirect object's own
// dirtiness is tracked under its own entry.
func isDirty(obj model.Object) bool {
	switch v := obj.(type) {
	case *model.Dict:
		if v.Dirty() {
			return true
		}
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			if _, isRef := val.(model.Ref); isRef {
				continue
			}
			if isDirty(val) {
				return true
			}
		}
		return false
	case *model.Array:
		if v.Dirty() {
			return true
		}
		for _, item := range v.Items() {
			if _, isRef := item.(model.Ref); isRef {
				continue
			}
			if isDirty(item) {
				return true
			}
		}
		return false
	case *model.Stream:
		return v.Dirty() || (v.Dict != nil && isDirty(v.Dict))
	default:
		return false
	}
}

// Commit clears every dirty flag and promotes every new object to
// loaded, called after a successful save.
func (r *Registry) Commit() {
	clearDirty := func(obj model.Object) {
		clearDirtyRecursive(obj, make(map[model.Object]bool))
	}
	for _, obj := range r.loaded {
		clearDirty(obj)
	}
	for ref, obj := range r.newObjects {
		clearDirty(obj)
		r.loaded[ref] = obj
	}
	r.newObjects = make(map[model.Ref]model.Object)
}

func clearDirtyRecursive(obj model.Object, seen map[model.Object]bool) {
	if seen[obj] {
		return
	}
	seen[obj] = true
	switch v := obj.(type) {
	case *model.Dict:
		v.SetDirty(false)
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			if _, isRef := val.(model.Ref); isRef {
				continue
			}
			clearDirtyRecursive(val, seen)
		}
	case *model.Array:
		v.SetDirty(false)
		for _, item := range v.Items() {
			if _, isRef := item.(model.Ref); isRef {
				continue
			}
			clearDirtyRecursive(item, seen)
		}
	case *model.Stream:
		v.SetDirty(false)
		if v.Dict != nil {
			clearDirtyRecursive(v.Dict, seen)
		}
	}
}
