package lex

import (
	"testing"

	"github.com/shaneholloman/libpdf-sub001/model"
)

func parseOne(t *testing.T, src string) model.Object {
	t.Helper()
	p := NewParser(NewScanner([]byte(src)))
	obj, err := p.ParseObject()
	if err != nil {
		t.Fatalf("ParseObject(%q): %v", src, err)
	}
	return obj
}

func TestParseNumbers(t *testing.T) {
	if n := parseOne(t, "123").(model.Number); n != 123 {
		t.Fatalf("got %v", n)
	}
	if n := parseOne(t, "-12.5").(model.Number); n != -12.5 {
		t.Fatalf("got %v", n)
	}
	if n := parseOne(t, "+4").(model.Number); n != 4 {
		t.Fatalf("got %v", n)
	}
	if n := parseOne(t, ".5").(model.Number); n != 0.5 {
		t.Fatalf("got %v", n)
	}
}

func TestParseNameWithEscape(t *testing.T) {
	n := parseOne(t, "/A#20B").(model.Name)
	if n.String() != "A B" {
		t.Fatalf("got %q", n.String())
	}
}

func TestParseLiteralStringEscapes(t *testing.T) {
	s := parseOne(t, `(line1\nline2\050paren\051)`).(*model.String)
	if string(s.Bytes) != "line1\nline2(paren)" {
		t.Fatalf("got %q", s.Bytes)
	}
}

func TestParseLiteralStringNestedParens(t *testing.T) {
	s := parseOne(t, `(a(b)c)`).(*model.String)
	if string(s.Bytes) != "a(b)c" {
		t.Fatalf("got %q", s.Bytes)
	}
}

func TestParseHexStringOddDigits(t *testing.T) {
	s := parseOne(t, "<4A6>").(*model.String)
	want := []byte{0x4A, 0x60}
	if string(s.Bytes) != string(want) {
		t.Fatalf("got % x want % x", s.Bytes, want)
	}
}

func TestParseArray(t *testing.T) {
	a := parseOne(t, "[1 2 /Foo (bar)]").(*model.Array)
	if a.Len() != 4 {
		t.Fatalf("got len %d", a.Len())
	}
	if a.At(0).(model.Number) != 1 {
		t.Fatalf("element 0 wrong")
	}
	if a.At(2).(model.Name).String() != "Foo" {
		t.Fatalf("element 2 wrong")
	}
}

func TestParseDict(t *testing.T) {
	d := parseOne(t, "<< /Type /Catalog /Count 3 >>").(*model.Dict)
	ty, ok := d.Get("Type")
	if !ok || ty.(model.Name).String() != "Catalog" {
		t.Fatalf("Type wrong: %v %v", ty, ok)
	}
	cnt, _ := d.Get("Count")
	if cnt.(model.Number) != 3 {
		t.Fatalf("Count wrong: %v", cnt)
	}
}

func TestParseReferenceDisambiguation(t *testing.T) {
	r := parseOne(t, "12 0 R").(model.Ref)
	if r.ObjectNumber != 12 || r.Generation != 0 {
		t.Fatalf("got %+v", r)
	}
}

func TestParseTwoAdjacentNumbersIsNotARef(t *testing.T) {
	p := NewParser(NewScanner([]byte("12 34")))
	first, err := p.ParseObject()
	if err != nil {
		t.Fatal(err)
	}
	if first.(model.Number) != 12 {
		t.Fatalf("got %v", first)
	}
	second, err := p.ParseObject()
	if err != nil {
		t.Fatal(err)
	}
	if second.(model.Number) != 34 {
		t.Fatalf("got %v", second)
	}
}

func TestParseBooleansAndNull(t *testing.T) {
	if parseOne(t, "true").(model.Bool) != model.True {
		t.Fatal("expected true")
	}
	if parseOne(t, "false").(model.Bool) != model.False {
		t.Fatal("expected false")
	}
	if _, ok := parseOne(t, "null").(model.Null); !ok {
		t.Fatal("expected Null")
	}
}

func TestParseIndirectObjectWithStream(t *testing.T) {
	src := "7 0 obj\n<< /Length 11 >>\nstream\nhello world\nendstream\nendobj\n"
	p := NewParser(NewScanner([]byte(src)))
	io, err := p.ParseIndirectObject(nil)
	if err != nil {
		t.Fatal(err)
	}
	if io.Ref.ObjectNumber != 7 {
		t.Fatalf("got ref %+v", io.Ref)
	}
	strm, ok := io.Value.(*model.Stream)
	if !ok {
		t.Fatalf("expected *model.Stream, got %T", io.Value)
	}
	if string(strm.Raw) != "hello world" {
		t.Fatalf("got raw %q", strm.Raw)
	}
}

func TestParseIndirectObjectStreamIndirectLength(t *testing.T) {
	src := "7 0 obj\n<< /Length 8 0 R >>\nstream\nhello world\nendstream\nendobj\n"
	p := NewParser(NewScanner([]byte(src)))
	resolve := func(r model.Ref) (int64, bool) { return 0, false } // force fallback scan
	io, err := p.ParseIndirectObject(resolve)
	if err != nil {
		t.Fatal(err)
	}
	strm := io.Value.(*model.Stream)
	if string(strm.Raw) != "hello world" {
		t.Fatalf("got raw %q", strm.Raw)
	}
}

func TestParseIndirectObjectPlainValue(t *testing.T) {
	src := "3 0 obj\n(just a string)\nendobj\n"
	p := NewParser(NewScanner([]byte(src)))
	io, err := p.ParseIndirectObject(nil)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := io.Value.(*model.String)
	if !ok || string(s.Bytes) != "just a string" {
		t.Fatalf("got %#v", io.Value)
	}
}

func TestLenientDictRecoversFromMalformedKey(t *testing.T) {
	p := NewParser(NewScanner([]byte("<< /A 1 2 /B 2 >>")))
	p.Lenient = true
	d, err := p.ParseObject()
	if err != nil {
		t.Fatal(err)
	}
	dict := d.(*model.Dict)
	if v, _ := dict.Get("B"); v.(model.Number) != 2 {
		t.Fatalf("expected recovery to reach /B, got %v", dict.Keys())
	}
}

func TestStrictSyntaxErrorOnUnterminatedString(t *testing.T) {
	p := NewParser(NewScanner([]byte("(unterminated")))
	_, err := p.ParseObject()
	if err == nil {
		t.Fatal("expected an error")
	}
	var se *SyntaxError
	if !asSyntaxError(err, &se) {
		t.Fatalf("expected *SyntaxError, got %T", err)
	}
}

func asSyntaxError(err error, target **SyntaxError) bool {
	if se, ok := err.(*SyntaxError); ok {
		*target = se
		return true
	}
	return false
}
