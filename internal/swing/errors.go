package swing

import (
	"errors"
	"fmt"
)

var (
	// ErrNonMonotonicBar is returned for a bar whose index or timestamp does not advance.
	ErrNonMonotonicBar = errors.New("non-monotonic bar")

	// ErrInvalidPrice is returned for a bar with NaN/Inf or inconsistent OHLC prices.
	ErrInvalidPrice = errors.New("invalid bar price")

	// ErrInvariantViolation means the detector state is corrupted. The detector halts.
	ErrInvariantViolation = errors.New("detector invariant violated")

	// ErrDetectorHalted is returned by every call after a fatal error: a
	// malformed or non-monotonic bar, or an invariant violation. It wraps the cause.
	ErrDetectorHalted = errors.New("detector halted")

	// ErrStaleSnapshot signals that a snapshot was produced by a different
	// configuration or algorithm version. Rebuilding from history is recommended.
	ErrStaleSnapshot = errors.New("snapshot may be stale, rebuild recommended")

	// ErrUnsupportedSnapshot is returned for an unknown snapshot schema version.
	ErrUnsupportedSnapshot = errors.New("unsupported snapshot schema")
)

// ValidationError 설정 검증 실패 (생성 시점에 거부)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invariantf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}
