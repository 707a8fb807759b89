package filter

import "errors"

const runLengthEOD = 0x80

// decodeRunLength implements RunLengthDecode:
// a length byte < 128 means "copy the next length+1 bytes verbatim", a
// length byte > 128 means "repeat the next byte 257-length times", and
// 128 is the end-of-data marker.
func decodeRunLength(data []byte) ([]byte, error) {
	var out []byte
	i := 0
	for i < len(data) {
		b := data[i]
		i++
		switch {
		case b == runLengthEOD:
			return out, nil
		case b < runLengthEOD:
			n := int(b) + 1
			if i+n > len(data) {
				return out, &TruncatedError{Filter: RunLength, Partial: out, Err: errors.New("unexpected end of data")}
			}
			out = append(out, data[i:i+n]...)
			i += n
		default:
			if i >= len(data) {
				return out, &TruncatedError{Filter: RunLength, Partial: out, Err: errors.New("unexpected end of data")}
			}
			n := 257 - int(b)
			rep := data[i]
			i++
			for j := 0; j < n; j++ {
				out = append(out, rep)
			}
		}
	}
	return out, &TruncatedError{Filter: RunLength, Partial: out, Err: errors.New("missing EOD marker")}
}

// encodeRunLength produces a (naive, non-optimal) valid RunLengthDecode
// stream: every run is emitted as a literal copy-run, which is always
// correct even if it never uses the repeat form.
func encodeRunLength(data []byte) []byte {
	var out []byte
	for i := 0; i < len(data); i += 128 {
		end := i + 128
		if end > len(data) {
			end = len(data)
		}
		chunk := data[i:end]
		out = append(out, byte(len(chunk)-1))
		out = append(out, chunk...)
	}
	out = append(out, runLengthEOD)
	return out
}
