// Package writer implements the document save strategies: a full save
// that rewrites every reachable object from scratch, and an
// incremental save that appends only new and modified objects after
// the original file's bytes, following the Go idiom the rest of this
// module uses of passing byte buffers around rather than writing
// incrementally to an io.Writer.
package writer

import (
	"bytes"
	"fmt"

	"github.com/shaneholloman/libpdf-sub001/filter"
	"github.com/shaneholloman/libpdf-sub001/model"
	"github.com/shaneholloman/libpdf-sub001/registry"
	"github.com/shaneholloman/libpdf-sub001/serial"
	"github.com/shaneholloman/libpdf-sub001/xref"
)

// binaryMarker is the four-high-bit-set byte comment producers put
// right after the header line to signal binary content in the body,
// the same convention the teacher's own writer emits.
var binaryMarker = []byte{0xE2, 0xE3, 0xCF, 0xD3}

// EncryptEntry is the /Encrypt dictionary to add to the trailer, kept
// separate from the reachable object graph since its own strings must
// never themselves be encrypted.
type EncryptEntry struct {
	Ref  model.Ref
	Dict *model.Dict
}

// Options selects a save strategy and an xref representation.
type Options struct {
	Incremental bool

	// UseXRefStream overrides the xref form. Nil means "match the
	// original document's form", defaulting to a classic table for a
	// from-scratch document with no original to match.
	UseXRefStream *bool
}

// Input gathers everything a save needs: the object graph, the
// document's identifying refs, and (for an incremental save) the
// original bytes and their resolved xref table.
type Input struct {
	Registry *registry.Registry
	RootRef  model.Ref
	InfoRef  model.Ref
	HasInfo  bool
	Version  string
	ID       [2][]byte

	Encrypt    *EncryptEntry
	Crypt      serial.Crypt // nil when the saved document has no active encryption

	Original []byte
	XRef     *xref.Table // nil for a from-scratch document
}

// Result is a completed save.
type Result struct {
	Bytes    []byte
	Warnings []string
}

// Save dispatches to a full or incremental save per opts, falling back
// to a full save (with a warning) whenever an incremental save was
// requested but the original xref can't be chained to safely: no
// original bytes, or a table recovered by brute force.
func Save(in Input, opts Options) (*Result, error) {
	var warnings []string

	incremental := opts.Incremental
	if incremental {
		if in.Original == nil || in.XRef == nil {
			incremental = false
			warnings = append(warnings, "incremental save requested on a document with no original bytes; falling back to a full save")
		} else if in.XRef.RecoveredViaBruteForce {
			incremental = false
			warnings = append(warnings, "incremental save requested on a document recovered via brute-force xref recovery; falling back to a full save")
		}
	}

	useStream := decideXRefForm(in, opts)

	var res *Result
	var err error
	if incremental {
		res, err = incrementalSave(in, useStream)
	} else {
		res, err = fullSave(in, useStream)
	}
	if err != nil {
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	return res, nil
}

func decideXRefForm(in Input, opts Options) bool {
	if opts.UseXRefStream != nil {
		return *opts.UseXRefStream
	}
	if in.XRef != nil {
		return in.XRef.UsedXRefStream
	}
	return false
}

// reachable walks every object transitively reachable from seeds,
// resolving Refs through reg, and returns them in first-visit (BFS)
// order alongside a visited set used to skip Refs already seen.
func reachable(reg *registry.Registry, seeds []model.Ref) []model.Ref {
	visited := make(map[model.Ref]bool)
	var order []model.Ref
	queue := append([]model.Ref(nil), seeds...)
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if visited[ref] {
			continue
		}
		visited[ref] = true
		order = append(order, ref)
		obj, ok := reg.Resolve(ref)
		if !ok {
			continue
		}
		queue = append(queue, refsIn(obj)...)
	}
	return order
}

func refsIn(obj model.Object) []model.Ref {
	var out []model.Ref
	var walk func(model.Object)
	walk = func(o model.Object) {
		switch v := o.(type) {
		case model.Ref:
			out = append(out, v)
		case *model.Array:
			for _, item := range v.Items() {
				walk(item)
			}
		case *model.Dict:
			for _, k := range v.Keys() {
				val, _ := v.Get(k)
				walk(val)
			}
		case *model.Stream:
			walk(v.Dict)
		}
	}
	walk(obj)
	return out
}

// objectOffset pairs a Ref with the byte offset its "N G obj" begins
// at in the body being assembled.
type objectOffset struct {
	ref    model.Ref
	offset int
}

func writeObjects(body *bytes.Buffer, baseOffset int, reg *registry.Registry, refs []model.Ref, crypt serial.Crypt) ([]objectOffset, error) {
	s := &serial.Serializer{Crypt: crypt}
	offsets := make([]objectOffset, 0, len(refs))
	for _, ref := range refs {
		obj, ok := reg.Resolve(ref)
		if !ok {
			continue
		}
		offsets = append(offsets, objectOffset{ref: ref, offset: baseOffset + body.Len()})
		if err := s.WriteIndirectObject(body, ref, obj); err != nil {
			return nil, fmt.Errorf("writer: object %s: %w", ref, err)
		}
	}
	return offsets, nil
}

func fullSave(in Input, useXRefStream bool) (*Result, error) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-" + in.Version + "\n%")
	buf.Write(binaryMarker)
	buf.WriteByte('\n')

	seeds := []model.Ref{in.RootRef}
	if in.HasInfo {
		seeds = append(seeds, in.InfoRef)
	}
	refs := reachable(in.Registry, seeds)

	// The /Encrypt dictionary's own strings are never encrypted, so it
	// is written with a plain (non-encrypting) serialiser and excluded
	// from the reachability walk's crypt-bearing pass.
	offsets, err := writeObjects(&buf, buf.Len(), in.Registry, refs, in.Crypt)
	if err != nil {
		return nil, err
	}

	var encryptRef model.Ref
	hasEncrypt := in.Encrypt != nil
	if hasEncrypt {
		encryptRef = in.Encrypt.Ref
		plain := &serial.Serializer{}
		off := objectOffset{ref: encryptRef, offset: buf.Len()}
		if err := plain.WriteIndirectObject(&buf, encryptRef, in.Encrypt.Dict); err != nil {
			return nil, fmt.Errorf("writer: encrypt dict: %w", err)
		}
		offsets = append(offsets, off)
	}

	maxObj := in.RootRef.ObjectNumber
	for _, o := range offsets {
		if o.ref.ObjectNumber > maxObj {
			maxObj = o.ref.ObjectNumber
		}
	}

	trailer := model.NewDict()
	trailer.Set("Size", model.Number(maxObj+1))
	trailer.Set("Root", in.RootRef)
	if in.HasInfo {
		trailer.Set("Info", in.InfoRef)
	}
	if hasEncrypt {
		trailer.Set("Encrypt", encryptRef)
	}
	if in.ID[0] != nil {
		trailer.Set("ID", model.NewArray(model.NewHexString(in.ID[0]), model.NewHexString(in.ID[1])))
	}

	freeHead := &objectOffset{ref: model.RefOf(0, 65535), offset: -1}
	startXRef := buf.Len()
	if useXRefStream {
		if err := writeXRefStream(&buf, offsets, freeHead, trailer, maxObj); err != nil {
			return nil, err
		}
	} else {
		if err := writeXRefTable(&buf, offsets, freeHead, trailer); err != nil {
			return nil, err
		}
	}
	buf.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF", startXRef))

	return &Result{Bytes: buf.Bytes()}, nil
}

func incrementalSave(in Input, useXRefStream bool) (*Result, error) {
	var buf bytes.Buffer
	buf.Write(in.Original)
	if len(in.Original) > 0 && in.Original[len(in.Original)-1] != '\n' {
		buf.WriteByte('\n')
	}

	changes := in.Registry.CollectChanges()
	var refs []model.Ref
	for ref := range changes.Modified {
		refs = append(refs, ref)
	}
	for ref := range changes.Created {
		refs = append(refs, ref)
	}

	base := buf.Len()
	offsets, err := writeObjects(&buf, base, in.Registry, refs, in.Crypt)
	if err != nil {
		return nil, err
	}

	var encryptRef model.Ref
	hasEncrypt := in.Encrypt != nil
	if hasEncrypt {
		encryptRef = in.Encrypt.Ref
	}

	trailer := model.NewDict()
	trailer.Set("Size", model.Number(changes.MaxObjectNumber+1))
	trailer.Set("Root", in.RootRef)
	if in.HasInfo {
		trailer.Set("Info", in.InfoRef)
	}
	if hasEncrypt {
		trailer.Set("Encrypt", encryptRef)
	}
	if in.ID[0] != nil {
		trailer.Set("ID", model.NewArray(model.NewHexString(in.ID[0]), model.NewHexString(in.ID[1])))
	}
	trailer.Set("Prev", model.Number(in.XRef.StartXRefOffset))

	startXRef := buf.Len()
	if useXRefStream {
		if err := writeXRefStream(&buf, offsets, nil, trailer, changes.MaxObjectNumber); err != nil {
			return nil, err
		}
	} else {
		if err := writeXRefTable(&buf, offsets, nil, trailer); err != nil {
			return nil, err
		}
	}
	buf.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF", startXRef))

	return &Result{Bytes: buf.Bytes()}, nil
}

// writeXRefTable emits a classic "xref" section covering exactly the
// offsets given, as contiguous subsections, followed by "trailer" and
// the trailer dict. leadingFree, if non-nil, is entry 0 of a fresh
// section (the free-list head a full save starts its table with;
// incremental sections pass nil and omit it).
func writeXRefTable(buf *bytes.Buffer, offsets []objectOffset, leadingFree *objectOffset, trailer *model.Dict) error {
	type row struct {
		num    uint32
		offset int
		free   bool
	}
	var rows []row
	if leadingFree != nil {
		rows = append(rows, row{num: 0, free: true})
	}
	for _, o := range offsets {
		rows = append(rows, row{num: o.ref.ObjectNumber, offset: o.offset})
	}

	buf.WriteString("xref\n")
	// Each row is its own single-entry subsection: simplest to generate
	// correctly for a sparse object-number set, at the cost of a few
	// extra subsection headers versus coalescing contiguous runs.
	for _, r := range rows {
		fmt.Fprintf(buf, "%d 1\n", r.num)
		if r.free {
			buf.WriteString("0000000000 65535 f \n")
		} else {
			fmt.Fprintf(buf, "%010d 00000 n \n", r.offset)
		}
	}
	buf.WriteString("trailer\n")
	s := &serial.Serializer{}
	if err := s.WriteObject(buf, trailer, model.Ref{}); err != nil {
		return fmt.Errorf("writer: trailer: %w", err)
	}
	buf.WriteString("\n")
	return nil
}

// writeXRefStream emits a compressed /Type /XRef stream object
// covering the same rows writeXRefTable would, as the final indirect
// object in the body (it has no object number reservation of its own
// beyond the next free one).
func writeXRefStream(buf *bytes.Buffer, offsets []objectOffset, leadingFree *objectOffset, trailer *model.Dict, maxObj uint32) error {
	xrefObjNum := maxObj + 1
	xrefRef := model.RefOf(xrefObjNum, 0)

	type row struct {
		num    uint32
		offset int
		free   bool
	}
	var rows []row
	if leadingFree != nil {
		rows = append(rows, row{num: 0, free: true})
	}
	for _, o := range offsets {
		rows = append(rows, row{num: o.ref.ObjectNumber, offset: o.offset})
	}
	rows = append(rows, row{num: xrefObjNum, offset: buf.Len()})

	var data bytes.Buffer
	indexArr := model.NewArray()
	for _, r := range rows {
		var typeField byte
		var f2 uint32
		var f3 uint16
		if r.free {
			typeField, f2, f3 = 0, 0, 65535
		} else {
			typeField, f2 = 1, uint32(r.offset)
		}
		data.WriteByte(typeField)
		data.WriteByte(byte(f2 >> 24))
		data.WriteByte(byte(f2 >> 16))
		data.WriteByte(byte(f2 >> 8))
		data.WriteByte(byte(f2))
		data.WriteByte(byte(f3 >> 8))
		data.WriteByte(byte(f3))
		indexArr.Append(model.Number(r.num))
		indexArr.Append(model.Number(1))
	}

	dec := filter.Decoder{}
	encoded, err := dec.Encode(filter.Flate, filter.Params{}, data.Bytes())
	if err != nil {
		return fmt.Errorf("writer: encoding xref stream: %w", err)
	}

	dict := trailer.Clone()
	dict.Set("Type", model.NameOf("XRef"))
	dict.Set("Size", model.Number(xrefObjNum+1))
	dict.Set("W", model.NewArray(model.Number(1), model.Number(4), model.Number(2)))
	dict.Set("Index", indexArr)
	dict.Set("Filter", filter.Flate)
	strm := model.NewStream(dict, encoded)

	s := &serial.Serializer{}
	return s.WriteIndirectObject(buf, xrefRef, strm)
}
