// Package xref implements the cross-reference parser
// C5): locating startxref, parsing xref tables and xref streams,
// walking the /Prev chain with first-definition-wins merge semantics,
// and brute-force recovery when the xref section itself is unusable.
package xref

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/shaneholloman/libpdf-sub001/filter"
	"github.com/shaneholloman/libpdf-sub001/lex"
	"github.com/shaneholloman/libpdf-sub001/model"
)

// EntryType distinguishes the three xref entry kinds a PDF xref stream
// (and, conceptually, an xref table) can describe.
type EntryType uint8

const (
	EntryFree EntryType = iota
	EntryInUse
	EntryCompressed
)

// Entry is one resolved cross-reference slot.
type Entry struct {
	Type EntryType

	// EntryInUse: Offset is the byte offset of "N G obj".
	Offset int64

	// EntryCompressed: the entry lives inside an object stream.
	StreamObjectNumber uint32
	IndexInStream       int

	Generation uint16
}

// Table is the fully-resolved cross-reference index for a document,
// after walking the entire /Prev chain (or after brute-force recovery).
type Table struct {
	Entries map[uint32]Entry
	Trailer *model.Dict

	// UsedXRefStream records whether the most recent (first-walked)
	// xref section was a stream, so the writer can match the original
	// form by default.
	UsedXRefStream bool

	RecoveredViaBruteForce bool
	Warnings               []string

	// StartXRefOffset is the byte offset the "startxref" keyword pointed
	// at, recorded so an incremental save can chain its own xref section
	// back to this one via /Prev. Zero when recovered via brute force.
	StartXRefOffset int64
}

// XRefError reports that the xref section at a given location could
// not be parsed.
type XRefError struct {
	Msg string
}

func (e *XRefError) Error() string { return "xref: " + e.Msg }

const startxrefScanWindow = 32 * 1024

// Load locates startxref, walks the xref chain (including hybrid
// /XRefStm sections), and falls back to brute-force recovery in
// lenient mode if the chain cannot be walked at all.
func Load(buf []byte, lenient bool) (*Table, error) {
	t := &Table{Entries: make(map[uint32]Entry)}

	start, err := locateStartxref(buf)
	if err != nil {
		if !lenient {
			return nil, err
		}
		return bruteForceRecover(buf, t, err.Error())
	}
	t.StartXRefOffset = start

	visited := make(map[int64]bool)
	queue := []int64{start}
	var firstTrailer *model.Dict

	for len(queue) > 0 {
		off := queue[0]
		queue = queue[1:]
		if off < 0 || off >= int64(len(buf)) || visited[off] {
			continue
		}
		visited[off] = true

		section, err := parseSectionAt(buf, off, lenient)
		if err != nil {
			if lenient {
				t.Warnings = append(t.Warnings, fmt.Sprintf("xref section at %d: %v", off, err))
				continue
			}
			return nil, err
		}

		if firstTrailer == nil {
			firstTrailer = section.trailer
			t.UsedXRefStream = section.isStream
		}
		mergeFirstWins(t, section.entries)

		var next []int64
		if hybrid, ok := section.trailer.Get("XRefStm"); ok {
			if n, ok := hybrid.(model.Number); ok {
				next = append(next, int64(n))
			}
		}
		if prev, ok := section.trailer.Get("Prev"); ok {
			if n, ok := prev.(model.Number); ok {
				next = append(next, int64(n))
			}
		}
		queue = append(next, queue...)
	}

	if firstTrailer == nil {
		if !lenient {
			return nil, &XRefError{Msg: "no xref section could be parsed"}
		}
		return bruteForceRecover(buf, t, "no xref section could be parsed")
	}

	t.Trailer = firstTrailer
	if _, ok := t.Trailer.Get("Root"); !ok {
		if !lenient {
			return nil, &XRefError{Msg: "trailer missing /Root"}
		}
		return bruteForceRecover(buf, t, "trailer missing /Root")
	}
	return t, nil
}

// locateStartxref scans backward from the end of buf for the keyword
// "startxref" followed by an integer offset. The scan
// window widens once if the keyword isn't found nearby, since some
// producers pad heavily after %%EOF.
func locateStartxref(buf []byte) (int64, error) {
	for _, window := range []int{startxrefScanWindow, len(buf)} {
		from := len(buf) - window
		if from < 0 {
			from = 0
		}
		tail := buf[from:]
		idx := bytes.LastIndex(tail, []byte("startxref"))
		if idx < 0 {
			if window >= len(buf) {
				break
			}
			continue
		}
		s := lex.NewScanner(tail)
		s.MoveTo(idx + len("startxref"))
		p := lex.NewParser(s)
		p.Lenient = true
		obj, err := p.ParseObject()
		if err != nil {
			return 0, &XRefError{Msg: "startxref keyword without a valid offset"}
		}
		n, ok := obj.(model.Number)
		if !ok {
			return 0, &XRefError{Msg: "startxref keyword without a valid offset"}
		}
		return int64(n), nil
	}
	return 0, &XRefError{Msg: "startxref not found"}
}

type section struct {
	entries  map[uint32]Entry
	trailer  *model.Dict
	isStream bool
}

func parseSectionAt(buf []byte, off int64, lenient bool) (*section, error) {
	s := lex.NewScanner(buf)
	s.MoveTo(int(off))
	save := s.Position()

	tk, err := peekKeyword(s)
	if err == nil && tk == "xref" {
		return parseXRefTable(s, lenient)
	}
	s.MoveTo(save)
	return parseXRefStream(s, lenient)
}

// peekKeyword reads the next bare keyword without consuming whitespace
// tracking beyond what the tokenizer already does, restoring position
// on failure.
func peekKeyword(s *lex.Scanner) (string, error) {
	save := s.Position()
	tok := lex.NewTokenizer(s)
	tk, err := tok.Next()
	if err != nil || tk.Kind != lex.TokenKeyword {
		s.MoveTo(save)
		return "", errors.New("not a keyword")
	}
	return string(tk.Str), nil
}

// parseXRefTable parses "xref" "startObj count" lines, one or more
// subsections, followed by "trailer" and a dict.
func parseXRefTable(s *lex.Scanner, lenient bool) (*section, error) {
	tok := lex.NewTokenizer(s)
	kw, err := tok.Next() // consumes "xref"
	if err != nil || string(kw.Str) != "xref" {
		return nil, &XRefError{Msg: "expected 'xref' keyword"}
	}

	entries := make(map[uint32]Entry)
	for {
		save := s.Position()
		startTok, err := tok.Next()
		if err != nil {
			return nil, &XRefError{Msg: "malformed xref subsection header"}
		}
		if startTok.Kind == lex.TokenKeyword && string(startTok.Str) == "trailer" {
			break
		}
		if startTok.Kind != lex.TokenInteger {
			s.MoveTo(save)
			break
		}
		countTok, err := tok.Next()
		if err != nil || countTok.Kind != lex.TokenInteger {
			return nil, &XRefError{Msg: "malformed xref subsection header"}
		}
		startObj := uint32(startTok.Int)
		count := int(countTok.Int)

		for i := 0; i < count; i++ {
			entry, err := parseXRefTableLine(s)
			if err != nil {
				if lenient {
					continue
				}
				return nil, err
			}
			entries[startObj+uint32(i)] = entry
		}
	}

	p := lex.NewParser(s)
	p.Lenient = lenient
	trailerObj, err := p.ParseObject()
	if err != nil {
		return nil, &XRefError{Msg: "malformed trailer"}
	}
	trailer, ok := trailerObj.(*model.Dict)
	if !ok {
		return nil, &XRefError{Msg: "trailer is not a dict"}
	}
	return &section{entries: entries, trailer: trailer, isStream: false}, nil
}

// xrefLineRe matches a 20-byte (or near enough) xref table entry:
// OOOOOOOOOO GGGGG n|f, tolerating the LF/CRLF variance real producers
// emit in place of the exact two-byte terminator the format calls for.
var xrefLineRe = regexp.MustCompile(`^(\d{10}) (\d{5}) ([nf])`)

func parseXRefTableLine(s *lex.Scanner) (Entry, error) {
	s.SkipWhitespace()
	start := s.Position()
	end := start + 20
	if end > s.Len() {
		end = s.Len()
	}
	raw := s.Raw()[start:end]
	m := xrefLineRe.FindSubmatch(raw)
	if m == nil {
		return Entry{}, &XRefError{Msg: "malformed xref table entry"}
	}
	s.MoveTo(start + len(m[0]) + trailingLineWidth(raw, len(m[0])))

	var offset int64
	fmt.Sscanf(string(m[1]), "%d", &offset)
	var gen uint64
	fmt.Sscanf(string(m[2]), "%d", &gen)

	if string(m[3]) == "f" {
		return Entry{Type: EntryFree, Generation: uint16(gen)}, nil
	}
	return Entry{Type: EntryInUse, Offset: offset, Generation: uint16(gen)}, nil
}

func trailingLineWidth(raw []byte, consumed int) int {
	rest := raw[consumed:]
	n := 0
	for n < len(rest) && n < 2 && (rest[n] == '\r' || rest[n] == '\n' || rest[n] == ' ') {
		n++
	}
	return n
}

// parseXRefStream parses an indirect stream object whose dict declares
// /Type /XRef.
func parseXRefStream(s *lex.Scanner, lenient bool) (*section, error) {
	p := lex.NewParser(s)
	p.Lenient = lenient
	io, err := p.ParseIndirectObject(func(r model.Ref) (int64, bool) { return 0, false })
	if err != nil {
		return nil, &XRefError{Msg: "malformed xref stream object"}
	}
	strm, ok := io.Value.(*model.Stream)
	if !ok {
		return nil, &XRefError{Msg: "xref stream object is not a stream"}
	}
	if ty, _ := strm.Dict.Get("Type"); ty != model.NameOf("XRef") {
		return nil, &XRefError{Msg: "stream object is not /Type /XRef"}
	}

	dec := filter.Decoder{Lenient: lenient}
	strm.Decode = func(names []model.Name, params []*model.Dict, raw []byte) ([]byte, error) {
		ps := make([]filter.Params, len(names))
		for i, d := range params {
			ps[i] = filter.ParamsFromDict(d)
		}
		return dec.DecodeChain(names, ps, raw)
	}
	data, err := strm.GetDecodedData()
	if err != nil {
		return nil, &XRefError{Msg: "could not decode xref stream: " + err.Error()}
	}

	w, err := readWArray(strm.Dict)
	if err != nil {
		return nil, err
	}
	size := int64(0)
	if n, ok := strm.Dict.Get("Size"); ok {
		if num, ok := n.(model.Number); ok {
			size = int64(num)
		}
	}
	index := readIndexArray(strm.Dict, size)

	entries := make(map[uint32]Entry)
	pos := 0
	rowWidth := w[0] + w[1] + w[2]
	for _, span := range index {
		for i := 0; i < span.count; i++ {
			if pos+rowWidth > len(data) {
				if lenient {
					break
				}
				return nil, &XRefError{Msg: "xref stream truncated"}
			}
			row := data[pos : pos+rowWidth]
			pos += rowWidth
			entries[uint32(span.first+i)] = decodeXRefStreamRow(row, w)
		}
	}

	return &section{entries: entries, trailer: strm.Dict, isStream: true}, nil
}

type wWidths [3]int

func readWArray(d *model.Dict) (wWidths, error) {
	v, ok := d.Get("W")
	if !ok {
		return wWidths{}, &XRefError{Msg: "xref stream missing /W"}
	}
	arr, ok := v.(*model.Array)
	if !ok || arr.Len() != 3 {
		return wWidths{}, &XRefError{Msg: "xref stream /W must have 3 entries"}
	}
	var w wWidths
	for i := 0; i < 3; i++ {
		n, ok := arr.At(i).(model.Number)
		if !ok {
			return wWidths{}, &XRefError{Msg: "xref stream /W entries must be integers"}
		}
		w[i] = int(n)
	}
	return w, nil
}

type indexSpan struct{ first, count int }

func readIndexArray(d *model.Dict, size int64) []indexSpan {
	v, ok := d.Get("Index")
	if !ok {
		return []indexSpan{{first: 0, count: int(size)}}
	}
	arr, ok := v.(*model.Array)
	if !ok {
		return []indexSpan{{first: 0, count: int(size)}}
	}
	var spans []indexSpan
	for i := 0; i+1 < arr.Len(); i += 2 {
		first, ok1 := arr.At(i).(model.Number)
		count, ok2 := arr.At(i + 1).(model.Number)
		if !ok1 || !ok2 {
			continue
		}
		spans = append(spans, indexSpan{first: int(first), count: int(count)})
	}
	if spans == nil {
		spans = []indexSpan{{first: 0, count: int(size)}}
	}
	return spans
}

func decodeXRefStreamRow(row []byte, w wWidths) Entry {
	readField := func(data []byte, def int64) int64 {
		if len(data) == 0 {
			return def
		}
		var v int64
		for _, b := range data {
			v = v<<8 | int64(b)
		}
		return v
	}
	off := 0
	typeField := readField(row[off:off+w[0]], 1)
	off += w[0]
	f2 := readField(row[off:off+w[1]], 0)
	off += w[1]
	f3 := readField(row[off:off+w[2]], 0)

	switch typeField {
	case 0:
		return Entry{Type: EntryFree, Generation: uint16(f3)}
	case 2:
		return Entry{Type: EntryCompressed, StreamObjectNumber: uint32(f2), IndexInStream: int(f3)}
	default:
		return Entry{Type: EntryInUse, Offset: f2, Generation: uint16(f3)}
	}
}

// mergeFirstWins applies first-definition-wins semantics: the most
// recently processed (i.e. newest, since we walk newest-to-oldest)
// section's entries take precedence for any object number already
// present.
func mergeFirstWins(t *Table, entries map[uint32]Entry) {
	for num, e := range entries {
		if _, exists := t.Entries[num]; !exists {
			t.Entries[num] = e
		}
	}
}

// objRe matches a "N G obj" header anywhere in the buffer, the seed
// pattern for brute-force recovery.
var objRe = regexp.MustCompile(`(\d+)[ \t\r\n]+(\d+)[ \t\r\n]+obj\b`)

// bruteForceRecover scans the whole input for "N G obj" occurrences,
// builds a synthetic xref from the last occurrence of each object
// number (later definitions in the byte stream win, mirroring how a
// genuine incremental update would supersede earlier ones), and
// locates the catalog to synthesise a minimal trailer.
func bruteForceRecover(buf []byte, t *Table, reason string) (*Table, error) {
	t.RecoveredViaBruteForce = true
	t.StartXRefOffset = 0
	t.Warnings = append(t.Warnings, "brute-force recovery: "+reason)
	t.Entries = make(map[uint32]Entry)

	locs := objRe.FindAllSubmatchIndex(buf, -1)
	if len(locs) == 0 {
		return nil, &XRefError{Msg: "brute-force recovery found no objects"}
	}

	maxObj := uint32(0)
	for _, loc := range locs {
		numStr := buf[loc[2]:loc[3]]
		genStr := buf[loc[4]:loc[5]]
		var num uint32
		var gen uint16
		fmt.Sscanf(string(numStr), "%d", &num)
		fmt.Sscanf(string(genStr), "%d", &gen)
		t.Entries[num] = Entry{Type: EntryInUse, Offset: int64(loc[0]), Generation: gen}
		if num > maxObj {
			maxObj = num
		}
	}

	rootRef, ok := findCatalog(buf, t.Entries)
	if !ok {
		return nil, &XRefError{Msg: "brute-force recovery could not locate a /Type /Catalog object"}
	}

	trailer := model.NewDict()
	trailer.Set("Root", rootRef)
	trailer.Set("Size", model.Number(maxObj+1))
	t.Trailer = trailer
	return t, nil
}

func findCatalog(buf []byte, entries map[uint32]Entry) (model.Ref, bool) {
	nums := make([]uint32, 0, len(entries))
	for n := range entries {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })

	for _, num := range nums {
		e := entries[num]
		if e.Type != EntryInUse {
			continue
		}
		s := lex.NewScanner(buf)
		s.MoveTo(int(e.Offset))
		p := lex.NewParser(s)
		p.Lenient = true
		io, err := p.ParseIndirectObject(nil)
		if err != nil {
			continue
		}
		dict, ok := io.Value.(*model.Dict)
		if !ok {
			if strm, ok := io.Value.(*model.Stream); ok {
				dict = strm.Dict
			} else {
				continue
			}
		}
		if ty, ok := dict.Get("Type"); ok && ty == model.NameOf("Catalog") {
			return model.RefOf(num, e.Generation), true
		}
	}
	return model.Ref{}, false
}
