package session

import (
	"fmt"
	"time"
)

// StorageParseError reports persisted session data that could not be decoded.
// It is logged and counted, never returned to callers of the Manager.
type StorageParseError struct {
	Key string
	Err error
}

func (e *StorageParseError) Error() string {
	return fmt.Sprintf("malformed persisted %s: %v", e.Key, e.Err)
}

func (e *StorageParseError) Unwrap() error {
	return e.Err
}

// AuthExpiredError reports that the local clock found the token stale.
type AuthExpiredError struct {
	ExpiredAt time.Time
}

func (e *AuthExpiredError) Error() string {
	if e.ExpiredAt.IsZero() {
		return Notice(ReasonExpired)
	}
	return fmt.Sprintf("%s (expired at %s)", Notice(ReasonExpired), e.ExpiredAt.Format(time.RFC3339))
}
