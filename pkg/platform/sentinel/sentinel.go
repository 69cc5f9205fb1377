package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Persisters and backends return
// these (optionally wrapped) so services can translate them into domain errors.
//
// - ErrNotFound: nothing persisted yet, or the record does not exist
// - ErrCorrupt: a persisted document exists but cannot be decoded
// - ErrInvalidState: component is in the wrong state for the operation
// - ErrUnavailable: dependency temporarily unavailable
//
// For validation errors (bad input, out-of-range values), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrCorrupt      = errors.New("corrupt document")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
