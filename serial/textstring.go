package serial

import (
	"golang.org/x/text/encoding/unicode"

	"github.com/shaneholloman/libpdf-sub001/model"
)

var textStringEncoder = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()

// NewTextString encodes s as a PDF "text string": UTF-16BE with a
// leading byte-order mark, the form every conforming reader accepts
// for Unicode content in /Title, /Author and the other Info-dict
// fields. The hex form needs no escaping, unlike the literal form.
func NewTextString(s string) *model.String {
	b, err := textStringEncoder.Bytes([]byte(s))
	if err != nil {
		return model.NewLiteralString([]byte(s))
	}
	return model.NewHexString(b)
}
