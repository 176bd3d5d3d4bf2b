package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Ledger stores and platform clients
// return these (optionally wrapped) and services translate them into domain
// errors:
//   - ErrNotFound: no ledger entry exists for the key
//   - ErrConflict: an optimistic version check failed; another writer appended first
//   - ErrUnavailable: the backing store or broker cannot be reached
//
// Validation failures are not sentinels; they carry their own typed errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
