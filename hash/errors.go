package hash

import "github.com/pkg/errors"

// Error kinds reported by the loss and evaluator. All precondition failures
// wrap one of these sentinels so callers can test with errors.Is while the
// message carries the offending dimensions.
var (
	ErrShapeMismatch  = errors.New("hash: shape mismatch")
	ErrInvalidMargin  = errors.New("hash: margin must be > 0")
	ErrEmptyClass     = errors.New("hash: class has no samples")
	ErrNonBinaryInput = errors.New("hash: input is not binary")
)
