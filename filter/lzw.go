package filter

import (
	"bytes"
	"io"

	"github.com/hhrutter/lzw"
)

// decodeLZW implements LZWDecode. PDF's LZW variant defaults to
// "early change" behaviour (codes grow one entry sooner than the
// classic GIF/TIFF scheme), which stdlib's compress/lzw does not model;
// hhrutter/lzw does, and is what the teacher depends on for exactly
// this reason.
func (dec Decoder) decodeLZW(p Params, data []byte) ([]byte, error) {
	early := p.EarlyChange
	if early == 0 {
		early = 1
	}
	r := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8, early == 1)
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		if dec.Lenient && len(raw) > 0 {
			return raw, &TruncatedError{Filter: LZW, Partial: raw, Err: err}
		}
		return nil, &FilterError{Filter: LZW, Err: err}
	}

	if p.Predictor <= 1 {
		return raw, nil
	}
	out, err := applyPredictor(raw, p)
	if err != nil {
		return nil, &FilterError{Filter: LZW, Err: err}
	}
	return out, nil
}

func encodeLZW(p Params, data []byte) ([]byte, error) {
	if p.Predictor > 1 {
		var err error
		data, err = unapplyPredictor(data, p)
		if err != nil {
			return nil, &FilterError{Filter: LZW, Err: err}
		}
	}
	early := p.EarlyChange
	if early == 0 {
		early = 1
	}
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8, early == 1)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
