package pdf

import (
	"fmt"

	"github.com/shaneholloman/libpdf-sub001/filter"
	"github.com/shaneholloman/libpdf-sub001/security"
)

// SyntaxError reports a malformed token or grammar deviation found
// while parsing, surfaced from the lexer in strict mode.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("pdf: syntax error at offset %d: %s", e.Pos, e.Msg)
}

// XRefError reports that a cross-reference section could not be
// parsed and, in strict mode, brute-force recovery was not attempted.
type XRefError struct {
	Msg string
}

func (e *XRefError) Error() string { return "pdf: xref: " + e.Msg }

// FilterError and AuthenticationFailedError are re-exported from the
// packages that define them canonically: a stream filter failure is
// intrinsically a filter-package concern, and a wrong password is
// intrinsically a security-package concern. Aliasing keeps
// errors.As/errors.Is working whichever import path a caller reaches
// for.
type FilterError = filter.FilterError
type AuthenticationFailedError = security.AuthenticationFailedError

// ErrNotAuthenticated is returned when an encrypted String or Stream
// is read before a successful Authenticate call.
var ErrNotAuthenticated = security.ErrNotAuthenticated

// PermissionDeniedError reports that a protection-changing operation
// was attempted without owner access.
type PermissionDeniedError struct {
	Op string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("pdf: permission denied: %s requires owner access", e.Op)
}

// InvariantViolationError indicates a bug in this implementation, not
// in the input document: an unreachable code path or an impossible
// state was observed.
type InvariantViolationError struct {
	Msg string
}

func (e *InvariantViolationError) Error() string { return "pdf: invariant violation: " + e.Msg }
