package statestore

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no value exists for the key under the
// bound bot. Use IsNotFound to test for it through wrapped errors.
var ErrNotFound = errors.New("state key not found")

// QuotaError reports a rejected Put: committing the write would have pushed
// the bot's total state size past its limit. The write was not applied and
// prior state is unchanged.
type QuotaError struct {
	BotID     string
	Requested int64 // total size the write would have required
	Limit     int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("cannot set state for bot %s: request would require %d bytes storage, the current storage limit is %d",
		e.BotID, e.Requested, e.Limit)
}

// DecodeError reports a stored payload that the configured codec could not
// decode. This indicates corruption or a codec change, not a caller bug.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode state value for key %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error means the requested key has no value.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsQuotaExceeded returns true if the error is a rejected over-quota write.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}
