// Package model implements the in-memory PDF object graph: the eight
// typed values the format is built from (null, bool, number, name,
// string, array, dict, stream) plus the indirect reference that ties
// them together.
//
// Containers (Array, Dict, Stream) are represented as pointers so that
// mutation is visible to every holder and so the object registry can use
// pointer identity to recover the Ref a freshly created object was
// assigned (see package registry).
package model

import "fmt"

// Kind identifies the dynamic type of an Object.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindName
	KindString
	KindArray
	KindDict
	KindStream
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindNumber:
		return "Number"
	case KindName:
		return "Name"
	case KindString:
		return "String"
	case KindArray:
		return "Array"
	case KindDict:
		return "Dict"
	case KindStream:
		return "Stream"
	case KindRef:
		return "Ref"
	default:
		return "Unknown"
	}
}

// Object is the common interface implemented by every PDF value variant.
type Object interface {
	Kind() Kind
}

// Null is the singleton null value.
type Null struct{}

func (Null) Kind() Kind { return KindNull }

// Bool is a PDF boolean. true/false are interned as package-level
// singletons (NewBool below).
type Bool bool

func (Bool) Kind() Kind { return KindBool }

var (
	True  = Bool(true)
	False = Bool(false)
)

// NewBool returns one of the two cached Bool singletons.
func NewBool(v bool) Bool {
	if v {
		return True
	}
	return False
}

// Number represents both PDF integers and reals; the distinction is a
// serialisation concern handled by package serial, not a storage one.
type Number float64

func (Number) Kind() Kind { return KindNumber }

// IsInteger reports whether n has no fractional part, so the serialiser
// can choose the integer form.
func (n Number) IsInteger() bool {
	return n == Number(int64(n))
}

// StringFormat records whether a String was read (or should be written)
// as a literal "(...)" or hex "<...>" string. It never changes the
// meaning of the bytes, only how they round-trip syntactically.
type StringFormat uint8

const (
	StringLiteral StringFormat = iota
	StringHex
)

// String is a PDF string object. Bytes holds the raw, decrypted payload;
// Format is only a serialisation hint.
type String struct {
	Bytes  []byte
	Format StringFormat
}

func (*String) Kind() Kind { return KindString }

// NewLiteralString builds a literal-form string from raw bytes.
func NewLiteralString(b []byte) *String {
	return &String{Bytes: append([]byte(nil), b...), Format: StringLiteral}
}

// NewHexString builds a hex-form string from raw bytes.
func NewHexString(b []byte) *String {
	return &String{Bytes: append([]byte(nil), b...), Format: StringHex}
}

// Ref is the two-integer identifier naming an indirect object.
type Ref struct {
	ObjectNumber uint32
	Generation   uint16
}

func (Ref) Kind() Kind { return KindRef }

func (r Ref) String() string {
	return fmt.Sprintf("%d %d R", r.ObjectNumber, r.Generation)
}

// Array is an ordered, mutable sequence of values.
type Array struct {
	items []Object
	dirty bool
}

func (*Array) Kind() Kind { return KindArray }

// NewArray builds an Array from the given items (copied).
func NewArray(items ...Object) *Array {
	a := &Array{items: append([]Object(nil), items...)}
	return a
}

func (a *Array) Len() int { return len(a.items) }

func (a *Array) At(i int) Object {
	if i < 0 || i >= len(a.items) {
		return Null{}
	}
	return a.items[i]
}

func (a *Array) Set(i int, v Object) {
	if i < 0 || i >= len(a.items) {
		return
	}
	a.items[i] = v
	a.dirty = true
}

func (a *Array) Append(v Object) {
	a.items = append(a.items, v)
	a.dirty = true
}

func (a *Array) Items() []Object { return a.items }

func (a *Array) Dirty() bool    { return a.dirty }
func (a *Array) SetDirty(d bool) { a.dirty = d }

func (a *Array) Clone() *Array {
	out := &Array{items: append([]Object(nil), a.items...), dirty: a.dirty}
	return out
}

// Dict is a mutable, insertion-ordered mapping from Name to Object.
type Dict struct {
	order []Name
	vals  map[Name]Object
	dirty bool
}

func (*Dict) Kind() Kind { return KindDict }

// NewDict returns an empty dict.
func NewDict() *Dict {
	return &Dict{vals: make(map[Name]Object)}
}

func (d *Dict) Get(key Name) (Object, bool) {
	v, ok := d.vals[key]
	return v, ok
}

// GetOr returns the value for key, or Null{} if absent.
func (d *Dict) GetOr(key Name) Object {
	if v, ok := d.vals[key]; ok {
		return v
	}
	return Null{}
}

// Set inserts or replaces key, preserving the original insertion
// position on replace. Setting a key to nil deletes it, matching the
// PDF rule that a null-valued dict entry is equivalent to an absent
// one.
func (d *Dict) Set(key Name, v Object) {
	if d.vals == nil {
		d.vals = make(map[Name]Object)
	}
	if v == nil {
		if _, ok := d.vals[key]; ok {
			delete(d.vals, key)
			for i, k := range d.order {
				if k == key {
					d.order = append(d.order[:i], d.order[i+1:]...)
					break
				}
			}
			d.dirty = true
		}
		return
	}
	if _, ok := d.vals[key]; !ok {
		d.order = append(d.order, key)
	}
	d.vals[key] = v
	d.dirty = true
}

// Delete removes key if present.
func (d *Dict) Delete(key Name) { d.Set(key, nil) }

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []Name { return d.order }

func (d *Dict) Len() int { return len(d.order) }

func (d *Dict) Dirty() bool     { return d.dirty }
func (d *Dict) SetDirty(b bool) { d.dirty = b }

func (d *Dict) Clone() *Dict {
	out := NewDict()
	for _, k := range d.order {
		out.Set(k, d.vals[k])
	}
	out.dirty = d.dirty
	return out
}

// Stream is a Dict plus an opaque byte payload. The payload is stored as
// read/written (i.e. still filtered); GetDecodedData runs the filter
// pipeline and caches the result.
type Stream struct {
	Dict    *Dict
	Raw     []byte
	decoded []byte
	hasDec  bool
	dirty   bool

	// Decode is supplied by the owning document so the stream can decode
	// itself without importing package filter (which would create an
	// import cycle back into model). It is nil for streams created
	// in-memory that have no filters.
	Decode func(filters []Name, params []*Dict, raw []byte) ([]byte, error)
}

func (*Stream) Kind() Kind { return KindStream }

// NewStream builds a stream object from an already-filtered payload.
func NewStream(dict *Dict, raw []byte) *Stream {
	return &Stream{Dict: dict, Raw: raw}
}

// GetDecodedData returns the decoded stream payload, computing and
// caching it on first call.
func (s *Stream) GetDecodedData() ([]byte, error) {
	if s.hasDec {
		return s.decoded, nil
	}
	if s.Decode == nil {
		s.decoded, s.hasDec = s.Raw, true
		return s.decoded, nil
	}
	names, params := s.filterSpec()
	dec, err := s.Decode(names, params, s.Raw)
	if err != nil {
		return nil, err
	}
	s.decoded, s.hasDec = dec, true
	return dec, nil
}

func (s *Stream) filterSpec() ([]Name, []*Dict) {
	f, _ := s.Dict.Get("Filter")
	var names []Name
	switch v := f.(type) {
	case Name:
		names = []Name{v}
	case *Array:
		for _, it := range v.Items() {
			if n, ok := it.(Name); ok {
				names = append(names, n)
			}
		}
	}
	dp, _ := s.Dict.Get("DecodeParms")
	params := make([]*Dict, len(names))
	switch v := dp.(type) {
	case *Dict:
		if len(params) > 0 {
			params[0] = v
		}
	case *Array:
		for i, it := range v.Items() {
			if i >= len(params) {
				break
			}
			if d, ok := it.(*Dict); ok {
				params[i] = d
			}
		}
	}
	return names, params
}

// SetRawData replaces the filtered payload and invalidates the decoded
// cache, marking the stream dirty.
func (s *Stream) SetRawData(raw []byte) {
	s.Raw = raw
	s.hasDec = false
	s.dirty = true
}

func (s *Stream) Dirty() bool     { return s.dirty || (s.Dict != nil && s.Dict.Dirty()) }
func (s *Stream) SetDirty(b bool) { s.dirty = b }

func (s *Stream) Clone() *Stream {
	return &Stream{Dict: s.Dict.Clone(), Raw: append([]byte(nil), s.Raw...), Decode: s.Decode}
}
