package pagetree

import (
	"errors"
	"testing"

	"github.com/shaneholloman/libpdf-sub001/model"
)

func TestBuildFlattensNestedPages(t *testing.T) {
	objs := map[model.Ref]model.Object{}

	leaf1 := model.RefOf(10, 0)
	leaf2 := model.RefOf(11, 0)
	sub := model.RefOf(5, 0)
	root := model.RefOf(2, 0)

	page1 := model.NewDict()
	page1.Set("Type", model.NameOf("Page"))
	objs[leaf1] = page1

	page2 := model.NewDict()
	page2.Set("Type", model.NameOf("Page"))
	objs[leaf2] = page2

	subPages := model.NewDict()
	subPages.Set("Type", model.NameOf("Pages"))
	subPages.Set("Kids", model.NewArray(leaf2))
	objs[sub] = subPages

	rootPages := model.NewDict()
	rootPages.Set("Type", model.NameOf("Pages"))
	rootPages.Set("Kids", model.NewArray(leaf1, sub))
	objs[root] = rootPages

	resolve := func(ref model.Ref) (model.Object, error) {
		if o, ok := objs[ref]; ok {
			return o, nil
		}
		return nil, errors.New("not found")
	}

	tree := Build(root, resolve)
	if tree.Len() != 2 {
		t.Fatalf("expected 2 leaves, got %d: %v", tree.Len(), tree.Leaves)
	}
	first, _ := tree.At(0)
	second, _ := tree.At(1)
	if first != leaf1 || second != leaf2 {
		t.Fatalf("unexpected order: %v %v", first, second)
	}
}

func TestBuildBreaksCycles(t *testing.T) {
	a := model.RefOf(1, 0)
	b := model.RefOf(2, 0)
	objs := map[model.Ref]model.Object{}

	da := model.NewDict()
	da.Set("Type", model.NameOf("Pages"))
	da.Set("Kids", model.NewArray(b))
	objs[a] = da

	db := model.NewDict()
	db.Set("Type", model.NameOf("Pages"))
	db.Set("Kids", model.NewArray(a))
	objs[b] = db

	resolve := func(ref model.Ref) (model.Object, error) { return objs[ref], nil }

	tree := Build(a, resolve)
	if tree.Len() != 0 {
		t.Fatalf("expected no leaves in a pure cycle, got %d", tree.Len())
	}
	if len(tree.Warnings) == 0 {
		t.Fatal("expected a cycle warning")
	}
}

func TestBuildSkipsMalformedNodes(t *testing.T) {
	root := model.RefOf(1, 0)
	bad := model.RefOf(2, 0)
	good := model.RefOf(3, 0)
	objs := map[model.Ref]model.Object{}

	rootDict := model.NewDict()
	rootDict.Set("Type", model.NameOf("Pages"))
	rootDict.Set("Kids", model.NewArray(bad, good))
	objs[root] = rootDict

	objs[bad] = model.NewLiteralString([]byte("not a dict"))

	goodPage := model.NewDict()
	goodPage.Set("Type", model.NameOf("Page"))
	objs[good] = goodPage

	resolve := func(ref model.Ref) (model.Object, error) { return objs[ref], nil }

	tree := Build(root, resolve)
	if tree.Len() != 1 {
		t.Fatalf("expected 1 leaf, got %d", tree.Len())
	}
	if len(tree.Warnings) == 0 {
		t.Fatal("expected a warning for the malformed node")
	}
}
