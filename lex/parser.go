package lex

import (
	"bytes"
	"errors"

	"github.com/shaneholloman/libpdf-sub001/model"
)

// Parser builds model.Object values out of a Tokenizer's stream,
// handling the grammar the tokenizer itself is blind to: arrays,
// dicts, and the N G R / N G obj lookahead that distinguishes a
// reference or an indirect object header from two adjacent numbers.
type Parser struct {
	tok     *Tokenizer
	Lenient bool
}

func NewParser(s *Scanner) *Parser {
	return &Parser{tok: NewTokenizer(s)}
}

func (p *Parser) Scanner() *Scanner { return p.tok.Scanner() }

// ParseObject reads one complete value at the current position.
func (p *Parser) ParseObject() (model.Object, error) {
	tk, err := p.tok.Next()
	if err != nil {
		if p.Lenient {
			return model.Null{}, nil
		}
		return nil, err
	}
	return p.parseFrom(tk)
}

func (p *Parser) parseFrom(tk Token) (model.Object, error) {
	switch tk.Kind {
	case TokenEOF:
		return nil, errSentinelEOF
	case TokenName:
		return model.NameOf(string(tk.Str)), nil
	case TokenStringLiteral:
		return model.NewLiteralString(tk.Str), nil
	case TokenStringHex:
		return model.NewHexString(tk.Str), nil
	case TokenArrayStart:
		return p.parseArray()
	case TokenDictStart:
		return p.parseDict()
	case TokenInteger:
		return p.parseNumericOrRef(tk)
	case TokenReal:
		return model.Number(tk.Float), nil
	case TokenKeyword:
		return p.parseKeyword(tk)
	default:
		if p.Lenient {
			return model.Null{}, nil
		}
		return nil, &SyntaxError{Pos: tk.Pos, Msg: "unexpected token"}
	}
}

var errSentinelEOF = errors.New("lex: unexpected end of input")

func (p *Parser) parseKeyword(tk Token) (model.Object, error) {
	switch string(tk.Str) {
	case "true":
		return model.True, nil
	case "false":
		return model.False, nil
	case "null":
		return model.Null{}, nil
	default:
		if p.Lenient {
			return model.Null{}, nil
		}
		return nil, &SyntaxError{Pos: tk.Pos, Msg: "unexpected keyword " + string(tk.Str)}
	}
}

// parseNumericOrRef resolves the "N G R" / "two adjacent numbers"
// ambiguity by peeking ahead from a saved scanner position and backing
// out if the lookahead doesn't pan out.
func (p *Parser) parseNumericOrRef(first Token) (model.Object, error) {
	if first.Int < 0 {
		return model.Number(first.Int), nil
	}
	save := p.tok.Scanner().Position()
	second, err := p.tok.Next()
	if err != nil || second.Kind != TokenInteger || second.Int < 0 {
		p.tok.Scanner().MoveTo(save)
		return model.Number(first.Int), nil
	}
	save2 := p.tok.Scanner().Position()
	third, err := p.tok.Next()
	if err != nil || third.Kind != TokenKeyword || string(third.Str) != "R" {
		_ = save2
		p.tok.Scanner().MoveTo(save)
		return model.Number(first.Int), nil
	}
	return model.RefOf(uint32(first.Int), uint16(second.Int)), nil
}

func (p *Parser) parseArray() (*model.Array, error) {
	arr := model.NewArray()
	for {
		tk, err := p.tok.Next()
		if err != nil {
			if p.Lenient {
				return arr, nil
			}
			return nil, err
		}
		if tk.Kind == TokenArrayEnd {
			return arr, nil
		}
		if tk.Kind == TokenEOF {
			if p.Lenient {
				return arr, nil
			}
			return nil, &SyntaxError{Pos: tk.Pos, Msg: "unterminated array"}
		}
		v, err := p.parseFrom(tk)
		if err != nil {
			if p.Lenient {
				continue
			}
			return nil, err
		}
		arr.Append(v)
	}
}

// parseDict reads "<< ... >>". In lenient mode a key with no matching
// value (a truncated dict) is tolerated by stopping at that point
// rather than failing the whole object, matching the teacher's
// documented relaxed-mode fallback for malformed producers.
func (p *Parser) parseDict() (*model.Dict, error) {
	d := model.NewDict()
	for {
		keyTk, err := p.tok.Next()
		if err != nil {
			if p.Lenient {
				return d, nil
			}
			return nil, err
		}
		if keyTk.Kind == TokenDictEnd {
			return d, nil
		}
		if keyTk.Kind == TokenEOF {
			if p.Lenient {
				return d, nil
			}
			return nil, &SyntaxError{Pos: keyTk.Pos, Msg: "unterminated dict"}
		}
		if keyTk.Kind != TokenName {
			if p.Lenient {
				continue
			}
			return nil, &SyntaxError{Pos: keyTk.Pos, Msg: "expected name key in dict"}
		}
		key := model.NameOf(string(keyTk.Str))

		valTk, err := p.tok.Next()
		if err != nil || valTk.Kind == TokenEOF || valTk.Kind == TokenDictEnd {
			if p.Lenient {
				return d, nil
			}
			return nil, &SyntaxError{Pos: keyTk.Pos, Msg: "dict key with no value"}
		}
		v, err := p.parseFrom(valTk)
		if err != nil {
			if p.Lenient {
				continue
			}
			return nil, err
		}
		d.Set(key, v)
	}
}

// IndirectObject is the result of parsing "N G obj ... endobj", still
// carrying the raw stream payload (if any) undecoded.
type IndirectObject struct {
	Ref   model.Ref
	Value model.Object
}

// ParseIndirectObject parses a full "N G obj <value> [stream ... endstream] endobj"
// at the scanner's current position. resolveLength resolves an
// indirect /Length: given a Ref it returns the
// integer length if it can be determined synchronously, and ok=false
// otherwise, triggering the endstream forward-scan fallback.
func (p *Parser) ParseIndirectObject(resolveLength func(model.Ref) (int64, bool)) (*IndirectObject, error) {
	numTk, err := p.tok.Next()
	if err != nil || numTk.Kind != TokenInteger {
		return nil, &SyntaxError{Pos: numTk.Pos, Msg: "expected object number"}
	}
	genTk, err := p.tok.Next()
	if err != nil || genTk.Kind != TokenInteger {
		return nil, &SyntaxError{Pos: genTk.Pos, Msg: "expected generation number"}
	}
	objTk, err := p.tok.Next()
	if err != nil || objTk.Kind != TokenKeyword || string(objTk.Str) != "obj" {
		return nil, &SyntaxError{Pos: objTk.Pos, Msg: "expected 'obj' keyword"}
	}

	ref := model.RefOf(uint32(numTk.Int), uint16(genTk.Int))

	val, err := p.ParseObject()
	if err != nil && !p.Lenient {
		return nil, err
	}

	dict, isDict := val.(*model.Dict)
	if isDict {
		if strm, err := p.maybeParseStream(ref, dict, resolveLength); err != nil {
			if !p.Lenient {
				return nil, err
			}
		} else if strm != nil {
			val = strm
		}
	}

	p.expectEndobj()

	return &IndirectObject{Ref: ref, Value: val}, nil
}

// maybeParseStream consumes "stream <EOL> <payload> endstream" if the
// next keyword is "stream"; it returns (nil, nil) if there is no
// stream keyword at all.
func (p *Parser) maybeParseStream(ref model.Ref, dict *model.Dict, resolveLength func(model.Ref) (int64, bool)) (*model.Stream, error) {
	s := p.tok.Scanner()
	save := s.Position()
	s.skipWhitespaceAndComments()
	if !matchKeyword(s, "stream") {
		s.MoveTo(save)
		return nil, nil
	}

	// Exactly one CR, one LF, or CRLF follows the keyword.
	if s.Peek() == '\r' {
		s.Advance()
		if s.Peek() == '\n' {
			s.Advance()
		}
	} else if s.Peek() == '\n' {
		s.Advance()
	} else if !p.Lenient {
		return nil, &SyntaxError{Pos: s.Position(), Msg: "missing EOL after 'stream' keyword"}
	}

	start := s.Position()
	length, ok := resolveLengthFor(dict, resolveLength)
	var raw []byte
	if ok && length >= 0 && int(start+int(length)) <= s.Len() {
		raw = append([]byte(nil), s.Raw()[start:start+int(length)]...)
		s.MoveTo(start + int(length))
		s.skipWhitespaceAndComments()
		if !matchKeyword(s, "endstream") {
			// The declared length was wrong; fall back to scanning.
			s.MoveTo(start)
			raw, ok = scanForEndstream(s)
			if !ok && !p.Lenient {
				return nil, &SyntaxError{Pos: start, Msg: "missing 'endstream'"}
			}
		}
	} else {
		var found bool
		raw, found = scanForEndstream(s)
		if !found && !p.Lenient {
			return nil, &SyntaxError{Pos: start, Msg: "missing 'endstream'"}
		}
	}

	return model.NewStream(dict, raw), nil
}

func resolveLengthFor(dict *model.Dict, resolveLength func(model.Ref) (int64, bool)) (int64, bool) {
	v, ok := dict.Get("Length")
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case model.Number:
		return int64(n), true
	case model.Ref:
		if resolveLength != nil {
			return resolveLength(n)
		}
		return 0, false
	default:
		return 0, false
	}
}

// scanForEndstream implements the lenient fallback: scan forward for
// the first "endstream" and trim one trailing EOL (CRLF, LF or CR)
// from the payload before it.
func scanForEndstream(s *Scanner) ([]byte, bool) {
	start := s.Position()
	buf := s.Raw()
	idx := bytes.Index(buf[start:], []byte("endstream"))
	if idx < 0 {
		s.MoveTo(s.Len())
		return buf[start:], false
	}
	end := start + idx
	payload := buf[start:end]
	payload = bytes.TrimSuffix(payload, []byte("\r\n"))
	payload = bytes.TrimSuffix(payload, []byte("\n"))
	payload = bytes.TrimSuffix(payload, []byte("\r"))
	s.MoveTo(end + len("endstream"))
	return append([]byte(nil), payload...), true
}

func (p *Parser) expectEndobj() {
	s := p.tok.Scanner()
	save := s.Position()
	s.skipWhitespaceAndComments()
	if !matchKeyword(s, "endobj") {
		s.MoveTo(save)
	}
}

// matchKeyword consumes exactly the bytes of kw if they occur at the
// current position and are not themselves the prefix of a longer
// regular-character run.
func matchKeyword(s *Scanner, kw string) bool {
	for i := 0; i < len(kw); i++ {
		if s.PeekAt(i) != int(kw[i]) {
			return false
		}
	}
	if isRegular(s.PeekAt(len(kw))) {
		return false
	}
	for i := 0; i < len(kw); i++ {
		s.Advance()
	}
	return true
}
