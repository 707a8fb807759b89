package pdf

import (
	"golang.org/x/text/encoding/unicode"

	"github.com/shaneholloman/libpdf-sub001/model"
	"github.com/shaneholloman/libpdf-sub001/serial"
)

var textStringDecoder = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()

// DecodeTextString decodes a PDF "text string" value: either UTF-16BE
// with a leading byte-order mark, or PDFDocEncoding, which for the
// printable ASCII range this core cares about (Info-dict metadata) is
// byte-identical to Latin-1, so a plain cast covers it.
func DecodeTextString(b []byte) string {
	if isUTF16(b) {
		if out, err := textStringDecoder.Bytes(b); err == nil {
			return string(out)
		}
	}
	return string(b)
}

func isUTF16(b []byte) bool {
	return len(b) >= 2 && ((b[0] == 0xFE && b[1] == 0xFF) || (b[0] == 0xFF && b[1] == 0xFE))
}

func (d *Document) infoDict() (*model.Dict, bool) {
	if !d.hasInfo {
		return nil, false
	}
	obj, err := d.resolve(d.infoRef)
	if err != nil {
		return nil, false
	}
	dict, ok := obj.(*model.Dict)
	return dict, ok
}

func (d *Document) ensureInfoDict() *model.Dict {
	if dict, ok := d.infoDict(); ok {
		return dict
	}
	dict := model.NewDict()
	d.infoRef = d.registry.Register(dict)
	d.hasInfo = true
	return dict
}

func (d *Document) infoString(key model.Name) string {
	dict, ok := d.infoDict()
	if !ok {
		return ""
	}
	v, ok := dict.Get(key)
	if !ok {
		return ""
	}
	s, ok := v.(*model.String)
	if !ok {
		return ""
	}
	return DecodeTextString(s.Bytes)
}

func (d *Document) setInfoString(key model.Name, value string) {
	d.ensureInfoDict().Set(key, serial.NewTextString(value))
}

func (d *Document) GetTitle() string           { return d.infoString("Title") }
func (d *Document) SetTitle(title string)      { d.setInfoString("Title", title) }
func (d *Document) GetAuthor() string          { return d.infoString("Author") }
func (d *Document) SetAuthor(author string)    { d.setInfoString("Author", author) }
func (d *Document) GetSubject() string         { return d.infoString("Subject") }
func (d *Document) SetSubject(subject string)  { d.setInfoString("Subject", subject) }
