package xref

import (
	"strings"
	"testing"

	"github.com/shaneholloman/libpdf-sub001/model"
)

func buildMinimalPDF() []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.7\n")
	obj1 := b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	obj2 := b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
	xrefOff := b.Len()
	b.WriteString("xref\n0 3\n")
	b.WriteString("0000000000 65535 f \n")
	b.WriteString(padEntry(obj1))
	b.WriteString(padEntry(obj2))
	b.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	b.WriteString("startxref\n")
	b.WriteString(itoa(xrefOff))
	b.WriteString("\n%%EOF")
	return []byte(b.String())
}

func padEntry(off int) string {
	s := itoa(off)
	for len(s) < 10 {
		s = "0" + s
	}
	return s + " 00000 n \n"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestLoadXRefTable(t *testing.T) {
	buf := buildMinimalPDF()
	tbl, err := Load(buf, true)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.RecoveredViaBruteForce {
		t.Fatal("should not need recovery")
	}
	if tbl.UsedXRefStream {
		t.Fatal("expected table form, not stream form")
	}
	root, ok := tbl.Trailer.Get("Root")
	if !ok || root.(model.Ref).ObjectNumber != 1 {
		t.Fatalf("got root %v", root)
	}
	e, ok := tbl.Entries[1]
	if !ok || e.Type != EntryInUse {
		t.Fatalf("missing object 1 entry: %+v", e)
	}
	e2 := tbl.Entries[2]
	if e2.Type != EntryInUse {
		t.Fatalf("missing object 2 entry: %+v", e2)
	}
	free := tbl.Entries[0]
	if free.Type != EntryFree {
		t.Fatalf("expected object 0 free, got %+v", free)
	}
}

func TestBruteForceRecoveryOnGarbageXref(t *testing.T) {
	buf := buildMinimalPDF()
	s := string(buf)
	idx := strings.Index(s, "xref\n0 3")
	end := strings.Index(s, "trailer")
	garbled := s[:idx] + "xref\nGARBAGE\n" + s[end:]

	tbl, err := Load([]byte(garbled), true)
	if err != nil {
		t.Fatal(err)
	}
	if !tbl.RecoveredViaBruteForce {
		t.Fatal("expected brute-force recovery flag")
	}
	if len(tbl.Warnings) == 0 {
		t.Fatal("expected a warning")
	}
	root, ok := tbl.Trailer.Get("Root")
	if !ok || root.(model.Ref).ObjectNumber != 1 {
		t.Fatalf("recovered root wrong: %v", root)
	}
}

func TestLoadStrictFailsOnMissingStartxref(t *testing.T) {
	_, err := Load([]byte("%PDF-1.7\nnothing useful here"), false)
	if err == nil {
		t.Fatal("expected an error in strict mode")
	}
}
