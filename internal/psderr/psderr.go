// Package psderr defines the sentinel error kinds shared across psdstruct's
// parser, diff engine, and decomposition store, mirroring the way the
// teacher's fsops package exposes ErrSymlinkNotAllowed as a checkable
// sentinel rather than a custom error type hierarchy.
package psderr

import "errors"

var (
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrUnexpectedEOF      = errors.New("unexpected EOF")
	ErrInconsistentIndex  = errors.New("inconsistent index")
	ErrMissingRegion      = errors.New("missing region")
	ErrMissingObject      = errors.New("missing object")
	ErrInvalidPatchAction = errors.New("invalid patch action")
	ErrUsage              = errors.New("usage error")
	ErrModeConflict       = errors.New("mode conflict")
	ErrDoubleAction       = errors.New("double action")
)
