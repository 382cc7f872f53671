package storage

import "errors"

// Error taxonomy shared by the repository and the matching service.
// Handlers map these onto HTTP status codes; everything here is
// recoverable by the caller.
var (
	// ErrNotFound means the referenced receipt/transaction/group/match does
	// not exist or does not belong to the acting user.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means the operation was attempted on a match that is
	// not in the required state (e.g. confirming an already-confirmed match).
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict means the optimistic concurrency version stamp did not
	// match. The caller should refetch and decide whether to retry.
	ErrConflict = errors.New("version conflict")

	// ErrValidation means malformed input (e.g. both or neither of
	// transaction/group supplied to a manual match).
	ErrValidation = errors.New("validation error")

	// ErrIntegrity means a write would violate a persistence-level
	// invariant, such as a second confirmed match for the same candidate.
	ErrIntegrity = errors.New("data integrity violation")
)
