package ota

import "github.com/pkg/errors"

// Code identifies the class of a protocol-level failure, surfaced to the
// cloud-visible ERROR resource as a single byte.
type Code byte

// Error codes as reported on the ERROR resource (spec.md §7).
const (
	// CodeParameterFail marks a malformed command, wrong session, or
	// other protocol violation.
	CodeParameterFail Code = 1
	// CodeOutOfMemory marks an allocation failure in a collaborator.
	CodeOutOfMemory Code = 2
	// CodeStorageError marks a short read or write from a collaborator.
	CodeStorageError Code = 3
	// CodeChecksumFail marks a final whole-image hash mismatch.
	CodeChecksumFail Code = 4
)

func (c Code) String() string {
	switch c {
	case CodeParameterFail:
		return "PARAMETER_FAIL"
	case CodeOutOfMemory:
		return "OUT_OF_MEMORY"
	case CodeStorageError:
		return "STORAGE_ERROR"
	case CodeChecksumFail:
		return "CHECKSUM_FAIL"
	default:
		return "UNKNOWN"
	}
}

// Error is a taxonomy-tagged error. All errors raised by this module and
// by package engine are local: they are never propagated as panics, only
// returned, logged, and optionally reported on the ERROR resource.
type Error struct {
	Code Code
	msg  string
}

// NewError returns an Error with the given code wrapping msg.
func NewError(code Code, msg string) error {
	return &Error{Code: code, msg: msg}
}

func (e *Error) Error() string {
	return e.Code.String() + ": " + e.msg
}

// WithCode tags err with code, returning an *Error whose message is
// msg followed by err's text (formatted with pkg/errors.Wrap). The
// returned error keeps only that text: it does not wrap err, so
// errors.Cause and errors.Unwrap do not reach the original error.
func WithCode(code Code, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, msg: errors.Wrap(err, msg).Error()}
}

// CodeOf extracts the Code from err, if err is (or wraps) an *Error.
// Returns false if no Code is present.
func CodeOf(err error) (Code, bool) {
	var oerr *Error
	if errors.As(err, &oerr) {
		return oerr.Code, true
	}
	return 0, false
}
