package lex

import "fmt"

// SyntaxError reports a lexical or grammatical deviation at a given
// byte offset.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}
