package domain

import "errors"

// Error taxonomy for remote operations. Callers branch on these with
// errors.Is; only network errors are safe to retry, and only for
// idempotent reads.
var (
	// ErrNetwork indicates a transient transport failure.
	ErrNetwork = errors.New("network error")

	// ErrConflict indicates the remote entity state diverged; refetch,
	// do not blindly retry.
	ErrConflict = errors.New("remote state conflict")

	// ErrValidation indicates a local, non-retryable input problem.
	ErrValidation = errors.New("validation error")

	// ErrTimeout is treated identically to failure. Never assume the
	// remote operation did not happen.
	ErrTimeout = errors.New("operation timed out")
)

// Retryable reports whether an error is safe to retry for an idempotent
// read.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
