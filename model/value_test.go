package model

import "testing"

func TestNameInterningSurvivesClear(t *testing.T) {
	a := NameOf("Foo")
	b := NameOf("Foo")
	if a != b {
		t.Fatalf("NameOf not idempotent: %v != %v", a, b)
	}

	permanent := NameOf("Type")
	ClearNameCache()

	if got := NameOf("Type"); got != permanent {
		t.Fatalf("permanent name did not survive ClearNameCache: got %v", got)
	}
}

func TestRefEquality(t *testing.T) {
	r1 := RefOf(3, 0)
	r2 := RefOf(3, 0)
	if r1 != r2 {
		t.Fatalf("Ref{3,0} instances should compare equal, got %v and %v", r1, r2)
	}
	if r1 == RefOf(4, 0) {
		t.Fatalf("distinct object numbers must not compare equal")
	}
}

func TestDictInsertionOrderPreserved(t *testing.T) {
	d := NewDict()
	d.Set("Type", NameOf("Catalog"))
	d.Set("Pages", Ref{ObjectNumber: 2})
	d.Set("Lang", NewLiteralString([]byte("en")))

	want := []Name{"Type", "Pages", "Lang"}
	got := d.Keys()
	if len(got) != len(want) {
		t.Fatalf("key count mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key order mismatch at %d: got %v want %v", i, got, want)
		}
	}

	// Replacing a key keeps its position.
	d.Set("Pages", Ref{ObjectNumber: 5})
	got = d.Keys()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key order changed after replace: got %v want %v", got, want)
		}
	}
}

func TestDictDeleteOnNullSet(t *testing.T) {
	d := NewDict()
	d.Set("Foo", NewBool(true))
	d.Set("Foo", nil)
	if _, ok := d.Get("Foo"); ok {
		t.Fatalf("setting a key to nil should delete it")
	}
	if d.Len() != 0 {
		t.Fatalf("expected empty dict, got %d entries", d.Len())
	}
}

func TestDirtyFlagsOnContainers(t *testing.T) {
	a := NewArray()
	if a.Dirty() {
		t.Fatalf("freshly created array should not be dirty")
	}
	a.Append(NewBool(true))
	if !a.Dirty() {
		t.Fatalf("array should be dirty after Append")
	}

	d := NewDict()
	if d.Dirty() {
		t.Fatalf("freshly created dict should not be dirty")
	}
	d.Set("K", NewBool(false))
	if !d.Dirty() {
		t.Fatalf("dict should be dirty after Set")
	}
}

func TestStreamDirtyFollowsDictAndPayload(t *testing.T) {
	d := NewDict()
	s := NewStream(d, []byte("raw"))
	if s.Dirty() {
		t.Fatalf("freshly created stream should not be dirty")
	}

	d.Set("Length", Number(3))
	if !s.Dirty() {
		t.Fatalf("stream should reflect dirty dict")
	}

	s.SetDirty(false)
	d.SetDirty(false)
	s.SetRawData([]byte("new raw"))
	if !s.Dirty() {
		t.Fatalf("stream should be dirty after payload mutation")
	}
}

func TestStreamDecodedDataCached(t *testing.T) {
	calls := 0
	d := NewDict()
	s := &Stream{
		Dict: d,
		Raw:  []byte("abc"),
		Decode: func(filters []Name, params []*Dict, raw []byte) ([]byte, error) {
			calls++
			return append([]byte(nil), raw...), nil
		},
	}
	if _, err := s.GetDecodedData(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetDecodedData(); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected decode to run once, ran %d times", calls)
	}
}

func TestNumberIsInteger(t *testing.T) {
	if !Number(3).IsInteger() {
		t.Fatalf("3 should be an integer")
	}
	if Number(3.5).IsInteger() {
		t.Fatalf("3.5 should not be an integer")
	}
}
