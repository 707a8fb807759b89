package filter

import (
	"bytes"
	"encoding/ascii85"
	"errors"
)

// decodeASCIIHex implements ASCIIHexDecode: pairs of hex digits map to
// bytes, whitespace is ignored, a trailing lone digit is padded with a
// trailing zero, and '>' ends the stream.
func decodeASCIIHex(data []byte) ([]byte, error) {
	var digits []byte
	for _, b := range data {
		switch {
		case b == '>':
			goto done
		case isHexDigit(b):
			digits = append(digits, b)
		case isWhitespace(b):
			// ignored
		default:
			return nil, &FilterError{Filter: ASCIIHex, Err: errors.New("invalid character in hex string")}
		}
	}
done:
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		hi := hexVal(digits[2*i])
		lo := hexVal(digits[2*i+1])
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func encodeASCIIHex(data []byte) []byte {
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, 0, len(data)*2+1)
	for _, b := range data {
		out = append(out, hexDigits[b>>4], hexDigits[b&0xf])
	}
	out = append(out, '>')
	return out
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexVal(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10
	default:
		return b - 'A' + 10
	}
}

func isWhitespace(b byte) bool {
	switch b {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	default:
		return false
	}
}

// decodeASCII85 implements ASCII85Decode using the standard library
// codec, trimming the PDF-specific "~>" end-of-data marker
// (encoding/ascii85 does not know about it).
func decodeASCII85(data []byte) ([]byte, error) {
	data = bytes.TrimSuffix(bytes.TrimSpace(data), []byte("~>"))
	out := make([]byte, len(data))
	n, _, err := ascii85.Decode(out, data, true)
	if err != nil {
		return nil, &FilterError{Filter: ASCII85, Err: err}
	}
	return out[:n], nil
}

func encodeASCII85(data []byte) []byte {
	var buf bytes.Buffer
	w := ascii85.NewEncoder(&buf)
	_, _ = w.Write(data)
	_ = w.Close()
	buf.WriteString("~>")
	return buf.Bytes()
}
