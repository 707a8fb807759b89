// Package filter implements the PDF stream filter pipeline
// component C3): decoding and encoding of FlateDecode (with PNG/TIFF
// predictors), ASCIIHexDecode, ASCII85Decode, LZWDecode, and
// RunLengthDecode, plus pass-through handling for the image-only
// filters (DCTDecode, JBIG2Decode, JPXDecode, CCITTFaxDecode) which this
// core never decodes itself.
package filter

import (
	"errors"
	"fmt"

	"github.com/shaneholloman/libpdf-sub001/model"
)

// Names of the filters this package understands, mirroring model's own
// filter-name constants (kept separate so this package has no import
// dependency back on a "known filters" table living in model).
const (
	ASCIIHex  = model.Name("ASCIIHexDecode")
	ASCII85   = model.Name("ASCII85Decode")
	LZW       = model.Name("LZWDecode")
	Flate     = model.Name("FlateDecode")
	RunLength = model.Name("RunLengthDecode")
	DCT       = model.Name("DCTDecode")
	JBIG2     = model.Name("JBIG2Decode")
	JPX       = model.Name("JPXDecode")
	CCITTFax  = model.Name("CCITTFaxDecode")
)

// passThrough is the set of filters whose encoded bytes we never
// transform: the data is meant to be handed to an external image
// decoder by a layer above the core.
var passThrough = map[model.Name]bool{
	DCT: true, JBIG2: true, JPX: true, CCITTFax: true,
}

// FilterError reports an unknown filter name or a decode failure that
// could not be recovered from even in lenient mode.
type FilterError struct {
	Filter model.Name
	Err    error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %s: %s", e.Filter, e.Err)
}

func (e *FilterError) Unwrap() error { return e.Err }

// TruncatedError is returned alongside the partial bytes that could be
// recovered from a truncated, otherwise-valid encoded stream (by Flate
// and LZW only in lenient mode, by RunLength in either mode). Callers are expected to keep Partial and record the
// error as a warning rather than fail the whole document.
type TruncatedError struct {
	Filter  model.Name
	Partial []byte
	Err     error
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("filter %s: truncated input: %s", e.Filter, e.Err)
}

func (e *TruncatedError) Unwrap() error { return e.Err }

// Params carries the subset of /DecodeParms entries relevant to decoding
// (the teacher's reader/parser/filters/flateDecode.go does the same
// projection from a generic dict into typed ints).
type Params struct {
	Predictor        int
	Colors           int
	BitsPerComponent int
	Columns          int
	EarlyChange      int // LZW only, default 1
}

// ParamsFromDict extracts known keys from a /DecodeParms dict, applying
// the standard predictor defaults for any missing entry.
func ParamsFromDict(d *model.Dict) Params {
	p := Params{Colors: 1, BitsPerComponent: 8, Columns: 1, EarlyChange: 1}
	if d == nil {
		return p
	}
	geti := func(key model.Name, dst *int) {
		if v, ok := d.Get(key); ok {
			if n, ok := v.(Number); ok {
				*dst = int(n)
			}
		}
	}
	geti("Predictor", &p.Predictor)
	geti("Colors", &p.Colors)
	geti("BitsPerComponent", &p.BitsPerComponent)
	geti("Columns", &p.Columns)
	geti("EarlyChange", &p.EarlyChange)
	return p
}

// Number is a local alias so ParamsFromDict does not need to import
// model's Number type under its own name (avoids a stutter at call
// sites elsewhere in the package).
type Number = model.Number

// Lenient controls whether Decode recovers from truncated Flate input by
// returning the partial result (wrapped in *TruncatedError) instead of
// failing outright. The document parser sets this according to the
// caller's configuration.
type Decoder struct {
	Lenient bool
}

// Decode runs a single named filter over data. An unknown filter name
// always returns *FilterError; pass-through filters return data
// unchanged.
func (d Decoder) Decode(name model.Name, params Params, data []byte) ([]byte, error) {
	switch name {
	case ASCIIHex:
		return decodeASCIIHex(data)
	case ASCII85:
		return decodeASCII85(data)
	case LZW:
		return d.decodeLZW(params, data)
	case Flate:
		return d.decodeFlate(params, data)
	case RunLength:
		return decodeRunLength(data)
	default:
		if passThrough[name] {
			return data, nil
		}
		return nil, &FilterError{Filter: name, Err: errors.New("unknown filter")}
	}
}

// Encode is the inverse of Decode.
func (d Decoder) Encode(name model.Name, params Params, data []byte) ([]byte, error) {
	switch name {
	case ASCIIHex:
		return encodeASCIIHex(data), nil
	case ASCII85:
		return encodeASCII85(data), nil
	case LZW:
		return encodeLZW(params, data)
	case Flate:
		return encodeFlate(params, data)
	case RunLength:
		return encodeRunLength(data), nil
	default:
		if passThrough[name] {
			return data, nil
		}
		return nil, &FilterError{Filter: name, Err: errors.New("unknown filter")}
	}
}

// DecodeChain applies each filter in names, in order, threading the
// output of one into the input of the next - exactly the order the
// array appears in /Filter. params[i] may be the zero
// value when a filter needs no parameters.
func (d Decoder) DecodeChain(names []model.Name, params []Params, data []byte) ([]byte, error) {
	out := data
	for i, name := range names {
		var p Params
		if i < len(params) {
			p = params[i]
		}
		var err error
		out, err = d.Decode(name, p, out)
		if err != nil {
			var trunc *TruncatedError
			if errors.As(err, &trunc) {
				return trunc.Partial, err
			}
			return nil, err
		}
	}
	return out, nil
}

// EncodeChain applies the filters in reverse order, the way a document
// writer re-encodes a payload that declares several filters.
func (d Decoder) EncodeChain(names []model.Name, params []Params, data []byte) ([]byte, error) {
	out := data
	for i := len(names) - 1; i >= 0; i-- {
		var p Params
		if i < len(params) {
			p = params[i]
		}
		var err error
		out, err = d.Encode(names[i], p, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
