// Package docreader implements the document parser
// C6): header detection, orchestration of the scanner, lexer and
// cross-reference parser, and lazy, cached object resolution including
// object-stream unpacking and /Length indirection.
package docreader

import (
	"bytes"
	"fmt"

	"github.com/shaneholloman/libpdf-sub001/filter"
	"github.com/shaneholloman/libpdf-sub001/lex"
	"github.com/shaneholloman/libpdf-sub001/model"
	"github.com/shaneholloman/libpdf-sub001/xref"
)

const headerScanWindow = 1024

// defaultVersion is used when the header is missing or unparsable in
// lenient mode.
const defaultVersion = "1.7"

// Decrypt is supplied by the caller (package security) to decrypt a
// freshly-parsed String's bytes or a Stream's raw payload, keyed by
// the object's Ref. A nil Decrypt means "no security handler active".
type Decrypt func(ref model.Ref, obj model.Object) (model.Object, error)

// Reader provides lazy, cached access to every indirect object in a
// document, on top of a resolved cross-reference Table.
type Reader struct {
	buf     []byte
	XRef    *xref.Table
	Version string
	Lenient bool

	decoder filter.Decoder
	cache   map[model.Ref]model.Object
	objStms map[uint32]*objStmContents

	Decrypt  Decrypt
	Warnings []string
}

type objStmContents struct {
	objects map[int]model.Object
	err     error
}

// Open parses the header and the cross-reference chain, returning a
// Reader ready to serve get_object calls. It never materialises the
// whole object graph eagerly.
func Open(buf []byte, lenient bool) (*Reader, error) {
	r := &Reader{
		buf:     buf,
		Lenient: lenient,
		decoder: filter.Decoder{Lenient: lenient},
		cache:   make(map[model.Ref]model.Object),
		objStms: make(map[uint32]*objStmContents),
	}
	r.Version = detectVersion(buf, lenient, &r.Warnings)

	tbl, err := xref.Load(buf, lenient)
	if err != nil {
		return nil, err
	}
	r.XRef = tbl
	r.Warnings = append(r.Warnings, tbl.Warnings...)
	return r, nil
}

// detectVersion scans the first headerScanWindow bytes for "%PDF-X.Y",
// tolerating garbage before it.
func detectVersion(buf []byte, lenient bool, warnings *[]string) string {
	window := buf
	if len(window) > headerScanWindow {
		window = window[:headerScanWindow]
	}
	idx := bytes.Index(window, []byte("%PDF-"))
	if idx < 0 {
		*warnings = append(*warnings, "no %PDF- header found in first 1KiB, assuming version "+defaultVersion)
		return defaultVersion
	}
	if idx > 0 {
		*warnings = append(*warnings, fmt.Sprintf("garbage before %%PDF- header (%d bytes)", idx))
	}
	rest := window[idx+len("%PDF-"):]
	end := 0
	for end < len(rest) && (isDigit(rest[end]) || rest[end] == '.') {
		end++
	}
	v := string(rest[:end])
	if !validVersion(v) {
		if !lenient {
			return defaultVersion
		}
		*warnings = append(*warnings, "unparsable PDF version, assuming "+defaultVersion)
		return defaultVersion
	}
	return v
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func validVersion(v string) bool {
	if len(v) < 3 {
		return false
	}
	dot := -1
	for i, c := range v {
		if c == '.' {
			dot = i
			break
		}
	}
	return dot > 0 && dot < len(v)-1
}

// GetObject resolves ref to its value, following the cache → xref →
// decrypt pipeline. A free or unresolvable entry yields
// model.Null{} rather than an error, matching PDF's own leniency
// toward dangling references.
func (r *Reader) GetObject(ref model.Ref) (model.Object, error) {
	if v, ok := r.cache[ref]; ok {
		return v, nil
	}

	entry, ok := r.XRef.Entries[ref.ObjectNumber]
	if !ok || entry.Type == xref.EntryFree {
		r.cache[ref] = model.Null{}
		return model.Null{}, nil
	}

	var val model.Object
	var err error
	switch entry.Type {
	case xref.EntryInUse:
		val, err = r.parseAt(ref, entry.Offset)
	case xref.EntryCompressed:
		val, err = r.fromObjectStream(entry.StreamObjectNumber, entry.IndexInStream)
	}
	if err != nil {
		if r.Lenient {
			r.Warnings = append(r.Warnings, fmt.Sprintf("object %s: %v", ref, err))
			r.cache[ref] = model.Null{}
			return model.Null{}, nil
		}
		return nil, err
	}

	if r.Decrypt != nil && entry.Type == xref.EntryInUse {
		val, err = r.Decrypt(ref, val)
		if err != nil {
			return nil, err
		}
	}

	if strm, ok := val.(*model.Stream); ok {
		strm.Decode = r.decodeStream
	}

	r.cache[ref] = val
	return val, nil
}

func (r *Reader) decodeStream(names []model.Name, params []*model.Dict, raw []byte) ([]byte, error) {
	ps := make([]filter.Params, len(names))
	for i, d := range params {
		ps[i] = filter.ParamsFromDict(d)
	}
	out, err := r.decoder.DecodeChain(names, ps, raw)
	if err != nil {
		var trunc *filter.TruncatedError
		if r.Lenient && errorsAsTrunc(err, &trunc) {
			r.Warnings = append(r.Warnings, trunc.Error())
			return trunc.Partial, nil
		}
		return nil, err
	}
	return out, nil
}

func errorsAsTrunc(err error, target **filter.TruncatedError) bool {
	for err != nil {
		if t, ok := err.(*filter.TruncatedError); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (r *Reader) parseAt(ref model.Ref, offset int64) (model.Object, error) {
	s := lex.NewScanner(r.buf)
	s.MoveTo(int(offset))
	p := lex.NewParser(s)
	p.Lenient = r.Lenient

	io, err := p.ParseIndirectObject(r.resolveLength)
	if err != nil {
		return nil, err
	}
	if io.Ref != ref {
		// A stale offset pointing at the wrong object is tolerated in
		// lenient mode: trust the object actually found there.
		if !r.Lenient {
			return nil, fmt.Errorf("xref offset %d points at object %s, expected %s", offset, io.Ref, ref)
		}
	}
	return io.Value, nil
}

// resolveLength implements the one-level synchronous lookahead for an
// indirect /Length: it only succeeds if the
// referenced object is itself a plain, uncompressed integer.
func (r *Reader) resolveLength(ref model.Ref) (int64, bool) {
	entry, ok := r.XRef.Entries[ref.ObjectNumber]
	if !ok || entry.Type != xref.EntryInUse {
		return 0, false
	}
	s := lex.NewScanner(r.buf)
	s.MoveTo(int(entry.Offset))
	p := lex.NewParser(s)
	p.Lenient = true
	io, err := p.ParseIndirectObject(nil)
	if err != nil {
		return 0, false
	}
	n, ok := io.Value.(model.Number)
	if !ok {
		return 0, false
	}
	return int64(n), true
}

// fromObjectStream loads and decodes the host object stream (caching
// its full contents) and returns the index-th embedded object.
func (r *Reader) fromObjectStream(streamObjNum uint32, index int) (model.Object, error) {
	stm, ok := r.objStms[streamObjNum]
	if !ok {
		stm = r.loadObjectStream(streamObjNum)
		r.objStms[streamObjNum] = stm
	}
	if stm.err != nil {
		return nil, stm.err
	}
	obj, ok := stm.objects[index]
	if !ok {
		return nil, fmt.Errorf("object stream %d has no entry at index %d", streamObjNum, index)
	}
	return obj, nil
}

func (r *Reader) loadObjectStream(streamObjNum uint32) *objStmContents {
	hostRef := model.RefOf(streamObjNum, 0)
	hostEntry, ok := r.XRef.Entries[streamObjNum]
	if !ok || hostEntry.Type != xref.EntryInUse {
		return &objStmContents{err: fmt.Errorf("object stream %d not found", streamObjNum)}
	}
	val, err := r.parseAt(hostRef, hostEntry.Offset)
	if err != nil {
		return &objStmContents{err: err}
	}
	if r.Decrypt != nil {
		val, err = r.Decrypt(hostRef, val)
		if err != nil {
			return &objStmContents{err: err}
		}
	}
	strm, ok := val.(*model.Stream)
	if !ok {
		return &objStmContents{err: fmt.Errorf("object %d is not a stream", streamObjNum)}
	}
	strm.Decode = r.decodeStream
	data, err := strm.GetDecodedData()
	if err != nil {
		return &objStmContents{err: err}
	}

	n64, _ := strm.Dict.GetOr("N").(model.Number)
	first64, _ := strm.Dict.GetOr("First").(model.Number)
	n := int(n64)
	first := int(first64)

	header := lex.NewScanner(data[:clampLen(first, len(data))])
	p := lex.NewParser(header)
	p.Lenient = true

	type pair struct{ num, offset int }
	pairs := make([]pair, 0, n)
	for i := 0; i < n; i++ {
		numObj, err1 := p.ParseObject()
		offObj, err2 := p.ParseObject()
		if err1 != nil || err2 != nil {
			break
		}
		num, ok1 := numObj.(model.Number)
		off, ok2 := offObj.(model.Number)
		if !ok1 || !ok2 {
			break
		}
		pairs = append(pairs, pair{num: int(num), offset: int(off)})
	}

	objects := make(map[int]model.Object, len(pairs))
	for i, pr := range pairs {
		start := first + pr.offset
		if start < 0 || start >= len(data) {
			continue
		}
		bs := lex.NewScanner(data)
		bs.MoveTo(start)
		bp := lex.NewParser(bs)
		bp.Lenient = true
		obj, err := bp.ParseObject()
		if err != nil {
			continue
		}
		objects[i] = obj
		_ = pr.num
	}
	return &objStmContents{objects: objects}
}

func clampLen(a, b int) int {
	if a < b {
		return a
	}
	return b
}
