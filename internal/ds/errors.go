package ds

import (
	"errors"
	"fmt"
)

// ErrFatal marks errors that must abort the whole sync cycle, such as
// credential failures or an unreachable index. Per-item errors never wrap it.
var ErrFatal = errors.New("fatal sync error")

// Fatal wraps err so that IsFatal reports true for it.
func Fatal(err error) error {
	if err == nil || IsFatal(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// IsFatal reports whether err should abort the cycle.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
