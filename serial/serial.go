// Package serial implements the serialiser:
// canonical textual representations for every value kind, plus the
// indirect-object and stream framing the writer assembles a document
// body out of.
package serial

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/shaneholloman/libpdf-sub001/model"
)

// Crypt is implemented by the active security handler (package
// security) so this package never needs to import it directly - the
// same oblivious-model layering the object model itself follows
// throughout this codebase.
type Crypt interface {
	EncryptString(objNum uint32, gen uint16, data []byte) ([]byte, error)
	EncryptStream(objNum uint32, gen uint16, data []byte) ([]byte, error)
}

// Serializer renders model.Object values to their canonical PDF byte
// form. Crypt is nil when the document has no active security handler.
type Serializer struct {
	Crypt Crypt
}

// WriteObject renders obj, encrypting any String/Stream payload it
// contains using ctx as the owning indirect object's reference. Names
// and numeric keys are never encrypted.
func (s *Serializer) WriteObject(buf *bytes.Buffer, obj model.Object, ctx model.Ref) error {
	switch v := obj.(type) {
	case model.Null:
		buf.WriteString("null")
	case model.Bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case model.Number:
		buf.WriteString(formatNumber(v))
	case model.Name:
		writeName(buf, v)
	case *model.String:
		return s.writeString(buf, v, ctx)
	case model.Ref:
		fmt.Fprintf(buf, "%d %d R", v.ObjectNumber, v.Generation)
	case *model.Array:
		return s.writeArray(buf, v, ctx)
	case *model.Dict:
		return s.writeDict(buf, v, ctx)
	case *model.Stream:
		return s.writeStream(buf, v, ctx)
	default:
		return fmt.Errorf("serial: unknown object kind %T", obj)
	}
	return nil
}

// WriteIndirectObject renders "N G obj\n<value>\nendobj\n".
func (s *Serializer) WriteIndirectObject(buf *bytes.Buffer, ref model.Ref, obj model.Object) error {
	fmt.Fprintf(buf, "%d %d obj\n", ref.ObjectNumber, ref.Generation)
	if err := s.WriteObject(buf, obj, ref); err != nil {
		return err
	}
	buf.WriteString("\nendobj\n")
	return nil
}

// formatNumber renders the shortest decimal that round-trips: integers
// as integers, reals without a trailing ".0" or trailing zeros.
func formatNumber(n model.Number) string {
	if n.IsInteger() {
		return strconv.FormatInt(int64(n), 10)
	}
	s := strconv.FormatFloat(float64(n), 'f', -1, 64)
	return s
}

// writeName escapes any byte outside printable ASCII 33-126, or any
// delimiter, as #XX.
func writeName(buf *bytes.Buffer, n model.Name) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		b := n[i]
		if needsNameEscape(b) {
			fmt.Fprintf(buf, "#%02X", b)
		} else {
			buf.WriteByte(b)
		}
	}
}

func needsNameEscape(b byte) bool {
	if b < 33 || b > 126 {
		return true
	}
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%', '#':
		return true
	default:
		return false
	}
}

func (s *Serializer) writeString(buf *bytes.Buffer, str *model.String, ctx model.Ref) error {
	data := str.Bytes
	if s.Crypt != nil {
		enc, err := s.Crypt.EncryptString(ctx.ObjectNumber, ctx.Generation, data)
		if err != nil {
			return err
		}
		data = enc
	}
	if str.Format == model.StringHex {
		writeHexString(buf, data)
	} else {
		writeLiteralString(buf, data)
	}
	return nil
}

// writeLiteralString escapes only '(' ')' '\\'; every other byte,
// including arbitrary binary, passes through unchanged.
func writeLiteralString(buf *bytes.Buffer, data []byte) {
	buf.WriteByte('(')
	for _, b := range data {
		switch b {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		default:
			buf.WriteByte(b)
		}
	}
	buf.WriteByte(')')
}

func writeHexString(buf *bytes.Buffer, data []byte) {
	const hexDigits = "0123456789ABCDEF"
	buf.WriteByte('<')
	for _, b := range data {
		buf.WriteByte(hexDigits[b>>4])
		buf.WriteByte(hexDigits[b&0xf])
	}
	buf.WriteByte('>')
}

func (s *Serializer) writeArray(buf *bytes.Buffer, a *model.Array, ctx model.Ref) error {
	buf.WriteByte('[')
	for i, item := range a.Items() {
		if i > 0 {
			buf.WriteByte(' ')
		}
		if err := s.WriteObject(buf, item, ctx); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func (s *Serializer) writeDict(buf *bytes.Buffer, d *model.Dict, ctx model.Ref) error {
	buf.WriteString("<<")
	for _, k := range d.Keys() {
		v, _ := d.Get(k)
		writeName(buf, k)
		buf.WriteByte(' ')
		if err := s.WriteObject(buf, v, ctx); err != nil {
			return err
		}
	}
	buf.WriteString(">>")
	return nil
}

// writeStream emits the dict (with /Length overwritten to the actual
// post-encryption byte length), then "stream\n", the payload, then
// "\nendstream".
func (s *Serializer) writeStream(buf *bytes.Buffer, strm *model.Stream, ctx model.Ref) error {
	payload := strm.Raw
	if s.Crypt != nil {
		enc, err := s.Crypt.EncryptStream(ctx.ObjectNumber, ctx.Generation, payload)
		if err != nil {
			return err
		}
		payload = enc
	}

	dict := strm.Dict.Clone()
	dict.Set("Length", model.Number(len(payload)))

	if err := s.writeDict(buf, dict, ctx); err != nil {
		return err
	}
	buf.WriteString("\nstream\n")
	buf.Write(payload)
	buf.WriteString("\nendstream")
	return nil
}
