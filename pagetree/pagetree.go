// Package pagetree implements the page tree walker
// C9): an eager, cycle-safe traversal from /Pages that produces a flat
// ordered vector of leaf page refs.
package pagetree

import "github.com/shaneholloman/libpdf-sub001/model"

// Resolver fetches the object behind a Ref, the same contract
// docreader.Reader.GetObject exposes, kept abstract here so this
// package has no dependency on docreader.
type Resolver func(ref model.Ref) (model.Object, error)

// Tree is the flattened result of walking /Pages once at document
// open. Page access afterwards is O(1); Build must be
// called again if pages are inserted or removed before save.
type Tree struct {
	Leaves   []model.Ref
	Warnings []string
}

// Build walks the page tree starting at rootRef (the catalog's
// /Pages entry), distinguishing intermediate /Pages nodes from leaf
// /Page nodes, skipping anything malformed rather than failing the
// whole load.
func Build(rootRef model.Ref, resolve Resolver) *Tree {
	t := &Tree{}
	visited := make(map[model.Ref]bool)
	t.walk(rootRef, resolve, visited)
	return t
}

func (t *Tree) walk(ref model.Ref, resolve Resolver, visited map[model.Ref]bool) {
	if visited[ref] {
		t.Warnings = append(t.Warnings, "cycle detected in page tree at "+ref.String())
		return
	}
	visited[ref] = true

	obj, err := resolve(ref)
	if err != nil {
		t.Warnings = append(t.Warnings, "could not resolve page tree node "+ref.String()+": "+err.Error())
		return
	}
	dict, ok := obj.(*model.Dict)
	if !ok {
		t.Warnings = append(t.Warnings, "page tree node "+ref.String()+" is not a dict, skipped")
		return
	}

	ty, _ := dict.Get("Type")
	name, _ := ty.(model.Name)

	switch name {
	case "Page":
		t.Leaves = append(t.Leaves, ref)
	case "Pages":
		kidsObj, ok := dict.Get("Kids")
		if !ok {
			return
		}
		kids, ok := kidsObj.(*model.Array)
		if !ok {
			return
		}
		for _, item := range kids.Items() {
			kidRef, ok := item.(model.Ref)
			if !ok {
				continue
			}
			t.walk(kidRef, resolve, visited)
		}
	default:
		// Missing/unknown /Type: descend into the node if it nonetheless
		// has a /Kids array; otherwise skip it with a warning.
		if kidsObj, ok := dict.Get("Kids"); ok {
			if kids, ok := kidsObj.(*model.Array); ok {
				for _, item := range kids.Items() {
					if kidRef, ok := item.(model.Ref); ok {
						t.walk(kidRef, resolve, visited)
					}
				}
				return
			}
		}
		t.Warnings = append(t.Warnings, "page tree node "+ref.String()+" has missing/unknown /Type, skipped")
	}
}

func (t *Tree) Len() int { return len(t.Leaves) }

func (t *Tree) At(i int) (model.Ref, bool) {
	if i < 0 || i >= len(t.Leaves) {
		return model.Ref{}, false
	}
	return t.Leaves[i], true
}
