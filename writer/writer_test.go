package writer

import (
	"bytes"
	"testing"

	"github.com/shaneholloman/libpdf-sub001/docreader"
	"github.com/shaneholloman/libpdf-sub001/model"
	"github.com/shaneholloman/libpdf-sub001/registry"
	"github.com/shaneholloman/libpdf-sub001/xref"
)

func buildSimpleCatalog(reg *registry.Registry) model.Ref {
	pagesDict := model.NewDict()
	pagesDict.Set("Type", model.NameOf("Pages"))
	pagesDict.Set("Kids", model.NewArray())
	pagesDict.Set("Count", model.Number(0))
	pagesRef := reg.Register(pagesDict)

	catalog := model.NewDict()
	catalog.Set("Type", model.NameOf("Catalog"))
	catalog.Set("Pages", pagesRef)
	return reg.Register(catalog)
}

func TestFullSaveProducesParseableDocument(t *testing.T) {
	reg := registry.New()
	rootRef := buildSimpleCatalog(reg)

	res, err := Save(Input{
		Registry: reg,
		RootRef:  rootRef,
		Version:  "1.7",
	}, Options{})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !bytes.HasPrefix(res.Bytes, []byte("%PDF-1.7\n")) {
		t.Fatalf("expected PDF header, got %q", res.Bytes[:20])
	}
	if !bytes.Contains(res.Bytes, []byte("%%EOF")) {
		t.Fatal("expected trailing %%EOF marker")
	}

	rd, err := docreader.Open(res.Bytes, false)
	if err != nil {
		t.Fatalf("re-opening saved document: %v", err)
	}
	got, err := rd.GetObject(rootRef)
	if err != nil {
		t.Fatalf("GetObject(root): %v", err)
	}
	dict, ok := got.(*model.Dict)
	if !ok {
		t.Fatalf("expected a dict at root, got %T", got)
	}
	if ty, _ := dict.Get("Type"); ty != model.NameOf("Catalog") {
		t.Fatalf("expected /Type /Catalog, got %v", ty)
	}
}

func TestFullSaveWithXRefStream(t *testing.T) {
	reg := registry.New()
	rootRef := buildSimpleCatalog(reg)

	useStream := true
	res, err := Save(Input{
		Registry: reg,
		RootRef:  rootRef,
		Version:  "1.7",
	}, Options{UseXRefStream: &useStream})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !bytes.Contains(res.Bytes, []byte("/Type /XRef")) {
		t.Fatalf("expected an xref stream object, got:\n%s", res.Bytes)
	}

	rd, err := docreader.Open(res.Bytes, false)
	if err != nil {
		t.Fatalf("re-opening saved document: %v", err)
	}
	if _, err := rd.GetObject(rootRef); err != nil {
		t.Fatalf("GetObject(root): %v", err)
	}
}

func TestIncrementalSavePreservesOriginalBytePrefix(t *testing.T) {
	reg := registry.New()
	rootRef := buildSimpleCatalog(reg)

	full, err := Save(Input{Registry: reg, RootRef: rootRef, Version: "1.7"}, Options{})
	if err != nil {
		t.Fatalf("initial full save: %v", err)
	}

	rd, err := docreader.Open(full.Bytes, false)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}

	reg2 := registry.New()
	for num, entry := range rd.XRef.Entries {
		ref := model.RefOf(num, entry.Generation)
		obj, err := rd.GetObject(ref)
		if err != nil {
			t.Fatalf("GetObject(%d): %v", num, err)
		}
		reg2.LoadObject(ref, obj)
	}

	catalogObj, _ := reg2.Resolve(rootRef)
	catalog := catalogObj.(*model.Dict)
	catalog.Set("ModifiedMarker", model.True)

	inc, err := Save(Input{
		Registry: reg2,
		RootRef:  rootRef,
		Version:  "1.7",
		Original: full.Bytes,
		XRef:     rd.XRef,
	}, Options{Incremental: true})
	if err != nil {
		t.Fatalf("incremental save: %v", err)
	}

	if !bytes.HasPrefix(inc.Bytes, full.Bytes) {
		t.Fatal("expected incremental save to preserve the full original byte prefix")
	}
	if len(inc.Bytes) <= len(full.Bytes) {
		t.Fatal("expected incremental save to append bytes")
	}

	rd2, err := docreader.Open(inc.Bytes, false)
	if err != nil {
		t.Fatalf("reopening incremental save: %v", err)
	}
	got, err := rd2.GetObject(rootRef)
	if err != nil {
		t.Fatalf("GetObject(root) after incremental save: %v", err)
	}
	dict := got.(*model.Dict)
	if v, _ := dict.Get("ModifiedMarker"); v != model.True {
		t.Fatal("expected the incrementally-saved modification to round-trip")
	}
}

func TestIncrementalSaveFallsBackToFullOnBruteForceRecovery(t *testing.T) {
	reg := registry.New()
	rootRef := buildSimpleCatalog(reg)

	brokenTable := &xref.Table{RecoveredViaBruteForce: true}
	res, err := Save(Input{
		Registry: reg,
		RootRef:  rootRef,
		Version:  "1.7",
		Original: []byte("garbage, no xref here"),
		XRef:     brokenTable,
	}, Options{Incremental: true})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a fallback warning")
	}
	if bytes.Contains(res.Bytes, []byte("garbage, no xref here")) {
		t.Fatal("expected a full save, not an append to the garbage original")
	}
}
