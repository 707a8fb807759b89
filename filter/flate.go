package filter

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
)

// decodeFlate inflates data and, if requested, reverses the PNG (10-15)
// or TIFF (2) predictor applied before compression. The post-processing
// logic is ported from the predictor math used throughout the PDF
// ecosystem (PNG "Up"/"Average"/"Paeth" row filters, TIFF horizontal
// differencing).
func (dec Decoder) decodeFlate(p Params, data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		if dec.Lenient && errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &TruncatedError{Filter: Flate, Err: err}
		}
		return nil, &FilterError{Filter: Flate, Err: err}
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		if dec.Lenient {
			return raw, &TruncatedError{Filter: Flate, Partial: raw, Err: err}
		}
		return nil, &FilterError{Filter: Flate, Err: err}
	}

	if p.Predictor == 0 || p.Predictor == 1 {
		return raw, nil
	}

	out, err := applyPredictor(raw, p)
	if err != nil {
		return nil, &FilterError{Filter: Flate, Err: err}
	}
	return out, nil
}

func encodeFlate(p Params, data []byte) ([]byte, error) {
	if p.Predictor > 1 {
		var err error
		data, err = unapplyPredictor(data, p)
		if err != nil {
			return nil, &FilterError{Filter: Flate, Err: err}
		}
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func bytesPerPixel(p Params) int {
	return (p.BitsPerComponent*p.Colors + 7) / 8
}

func rowSize(p Params) int {
	return (p.BitsPerComponent*p.Colors*p.Columns + 7) / 8
}

// applyPredictor reverses a predictor applied by an encoder: TIFF
// predictor 2 undoes horizontal differencing in place; PNG predictors
// (10-15) strip the per-row filter-type byte that prefixes each scanline.
func applyPredictor(raw []byte, p Params) ([]byte, error) {
	bpp := bytesPerPixel(p)
	rs := rowSize(p)

	if p.Predictor == 2 {
		if rs == 0 || len(raw)%rs != 0 {
			return nil, errors.New("TIFF predictor: row size does not divide decoded length")
		}
		out := append([]byte(nil), raw...)
		for off := 0; off < len(out); off += rs {
			row := out[off : off+rs]
			undoHorizontalDiff(row, p.Colors, bpp)
		}
		return out, nil
	}

	// PNG predictors: each row is prefixed with a filter-type byte.
	stride := rs + 1
	if stride <= 1 {
		return nil, errors.New("PNG predictor: invalid row size")
	}
	if len(raw)%stride != 0 {
		return nil, errors.New("PNG predictor: decoded length is not a multiple of the row stride")
	}

	prev := make([]byte, rs)
	var out []byte
	for off := 0; off < len(raw); off += stride {
		ft := raw[off]
		cur := append([]byte(nil), raw[off+1:off+stride]...)
		if err := undoPNGRowFilter(ft, cur, prev, bpp); err != nil {
			return nil, err
		}
		out = append(out, cur...)
		prev = cur
	}
	return out, nil
}

// unapplyPredictor re-applies the (always trivial) predictor form we
// write: this core only ever writes predictor-free Flate streams, so
// the only supported "undo" of applyPredictor on encode is the
// identity - a non-1/0 Predictor in write-side Params is a caller bug.
func unapplyPredictor(data []byte, p Params) ([]byte, error) {
	if p.Predictor > 1 {
		return nil, errors.New("encoding with a PNG/TIFF predictor is not supported")
	}
	return data, nil
}

func undoHorizontalDiff(row []byte, colors, bpp int) {
	_ = bpp
	for i := colors; i < len(row); i++ {
		row[i] += row[i-colors]
	}
}

func undoPNGRowFilter(filterType byte, cur, prev []byte, bpp int) error {
	switch filterType {
	case 0: // None
	case 1: // Sub
		for i := bpp; i < len(cur); i++ {
			cur[i] += cur[i-bpp]
		}
	case 2: // Up
		for i := range cur {
			cur[i] += prev[i]
		}
	case 3: // Average
		for i := 0; i < bpp; i++ {
			cur[i] += prev[i] / 2
		}
		for i := bpp; i < len(cur); i++ {
			cur[i] += byte((int(cur[i-bpp]) + int(prev[i])) / 2)
		}
	case 4: // Paeth
		paethRow(cur, prev, bpp)
	default:
		return errors.New("unknown PNG predictor row filter type")
	}
	return nil
}

func paethRow(cur, prev []byte, bpp int) {
	for i := 0; i < bpp; i++ {
		var a, c int32
		for j := i; j < len(cur); j += bpp {
			b := int32(prev[j])
			pred := paethPredictor(a, b, c)
			cur[j] += byte(pred)
			c = b
			a = int32(cur[j])
		}
	}
}

func paethPredictor(a, b, c int32) int32 {
	p := a + b - c
	pa, pb, pc := abs32(p-a), abs32(p-b), abs32(p-c)
	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func abs32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}
