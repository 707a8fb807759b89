// Package lex implements the byte scanner and the
// lexer / low-level parser (component C4): tokenising and parsing
// individual PDF values, and assembling indirect objects and stream
// bodies out of those tokens.
package lex

// EOF is the scanner's end-of-input sentinel, used instead of a
// separate error return so hot-path scanning never allocates.
const EOF = -1

// Scanner is a positioned, read-only view over an in-memory byte
// buffer. All navigation is done through Position, which callers may
// save and restore directly to backtrack without the scanner needing
// to support an explicit "mark" operation.
type Scanner struct {
	buf []byte
	pos int
}

// NewScanner wraps buf. The scanner never copies or mutates buf.
func NewScanner(buf []byte) *Scanner {
	return &Scanner{buf: buf}
}

func (s *Scanner) Len() int { return len(s.buf) }

// Position is the current byte offset, clamped to [0, len(buf)].
func (s *Scanner) Position() int { return s.pos }

// MoveTo sets the current offset, clamping it into range.
func (s *Scanner) MoveTo(offset int) {
	switch {
	case offset < 0:
		s.pos = 0
	case offset > len(s.buf):
		s.pos = len(s.buf)
	default:
		s.pos = offset
	}
}

func (s *Scanner) IsAtEnd() bool { return s.pos >= len(s.buf) }

// Peek returns the byte at the current position without consuming it,
// or EOF if the scanner is at the end of the buffer.
func (s *Scanner) Peek() int {
	return s.PeekAt(0)
}

// PeekAt returns the byte offset bytes ahead of the current position.
func (s *Scanner) PeekAt(offset int) int {
	i := s.pos + offset
	if i < 0 || i >= len(s.buf) {
		return EOF
	}
	return int(s.buf[i])
}

// Advance consumes and returns the current byte, or EOF without moving
// if already at the end.
func (s *Scanner) Advance() int {
	if s.IsAtEnd() {
		return EOF
	}
	b := s.buf[s.pos]
	s.pos++
	return int(b)
}

// Match consumes the current byte and returns true if it equals b;
// otherwise the position is left unchanged.
func (s *Scanner) Match(b byte) bool {
	if s.Peek() == int(b) {
		s.pos++
		return true
	}
	return false
}

// Bytes returns the slice [from, s.Position()) without copying.
func (s *Scanner) Bytes(from int) []byte {
	if from < 0 {
		from = 0
	}
	if from > s.pos {
		return nil
	}
	return s.buf[from:s.pos]
}

// Raw exposes the underlying buffer, for callers (xref brute-force
// recovery, stream body extraction) that need to scan or slice
// independently of the scanner's own position.
func (s *Scanner) Raw() []byte { return s.buf }

func isWhitespace(b int) bool {
	switch b {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	default:
		return false
	}
}

func isDelimiter(b int) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return false
	}
}

func isRegular(b int) bool {
	return b != EOF && !isWhitespace(b) && !isDelimiter(b)
}

func isDigit(b int) bool { return b >= '0' && b <= '9' }

// SkipWhitespace advances past PDF whitespace bytes only (no comment
// handling), for callers like the xref-table parser whose fixed-width
// entries never contain comments.
func (s *Scanner) SkipWhitespace() {
	for isWhitespace(s.Peek()) {
		s.Advance()
	}
}

// skipWhitespaceAndComments advances past whitespace and "%...end of
// line" comments, the way PDF requires between every pair of tokens.
func (s *Scanner) skipWhitespaceAndComments() {
	for {
		b := s.Peek()
		switch {
		case isWhitespace(b):
			s.Advance()
		case b == '%':
			for {
				c := s.Advance()
				if c == EOF || c == '\n' || c == '\r' {
					break
				}
			}
		default:
			return
		}
	}
}
