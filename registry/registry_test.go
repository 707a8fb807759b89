package registry

import (
	"testing"

	"github.com/shaneholloman/libpdf-sub001/model"
)

func TestRegisterAssignsSequentialRefs(t *testing.T) {
	r := New()
	d1 := model.NewDict()
	d2 := model.NewDict()
	ref1 := r.Register(d1)
	ref2 := r.Register(d2)
	if ref1.ObjectNumber == ref2.ObjectNumber {
		t.Fatal("expected distinct object numbers")
	}
	if got, ok := r.RefOf(d1); !ok || got != ref1 {
		t.Fatalf("RefOf mismatch: %v %v", got, ok)
	}
}

func TestRegisterIsIdempotentForSameObject(t *testing.T) {
	r := New()
	d := model.NewDict()
	ref1 := r.Register(d)
	ref2 := r.Register(d)
	if ref1 != ref2 {
		t.Fatalf("expected same ref, got %v and %v", ref1, ref2)
	}
}

func TestLoadObjectAdvancesNextObjectNumber(t *testing.T) {
	r := New()
	r.LoadObject(model.RefOf(9, 0), model.NewDict())
	newRef := r.Register(model.NewDict())
	if newRef.ObjectNumber <= 9 {
		t.Fatalf("expected a fresh object number above 9, got %d", newRef.ObjectNumber)
	}
}

func TestCollectChangesEmptyOnFreshLoad(t *testing.T) {
	r := New()
	r.LoadObject(model.RefOf(1, 0), model.NewDict())
	cs := r.CollectChanges()
	if len(cs.Modified) != 0 {
		t.Fatalf("expected empty modified set, got %v", cs.Modified)
	}
}

func TestCollectChangesDetectsNestedDirty(t *testing.T) {
	r := New()
	inner := model.NewArray(model.Number(1))
	outer := model.NewDict()
	outer.Set("Kids", inner)
	ref := model.RefOf(3, 0)
	r.LoadObject(ref, outer)

	cs := r.CollectChanges()
	if len(cs.Modified) != 0 {
		t.Fatal("expected no modifications yet")
	}

	inner.Append(model.Number(2))
	cs = r.CollectChanges()
	if !cs.Modified[ref] {
		t.Fatal("expected nested array mutation to mark the parent indirect object modified")
	}
}

func TestCollectChangesStopsAtRefBoundary(t *testing.T) {
	r := New()
	childRef := model.RefOf(5, 0)
	parent := model.NewDict()
	parent.Set("Child", childRef)
	parentRef := model.RefOf(4, 0)
	r.LoadObject(parentRef, parent)

	child := model.NewDict()
	r.LoadObject(childRef, child)
	child.Set("X", model.Number(1)) // dirties the child only

	cs := r.CollectChanges()
	if cs.Modified[parentRef] {
		t.Fatal("parent should not be marked modified through a Ref boundary")
	}
	if !cs.Modified[childRef] {
		t.Fatal("child itself should be marked modified")
	}
}

func TestCommitClearsDirtyAndPromotesNewObjects(t *testing.T) {
	r := New()
	d := model.NewDict()
	d.Set("A", model.Number(1))
	ref := r.Register(d)

	r.Commit()

	if d.Dirty() {
		t.Fatal("expected dirty flag cleared after commit")
	}
	if _, ok := r.Resolve(ref); !ok {
		t.Fatal("expected promoted object to resolve as loaded")
	}
	cs := r.CollectChanges()
	if cs.Created[ref] {
		t.Fatal("expected no longer created after commit")
	}
}
