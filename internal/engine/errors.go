package engine

import (
	"errors"
	"fmt"
)

// ErrMaxConcurrentTests is returned by CreateTest when the cap on
// simultaneously active tests has been reached.
var ErrMaxConcurrentTests = errors.New("maximum concurrent tests limit reached")

// ValidationError reports malformed CreateTest input. The test is not
// persisted when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid test config: " + e.Reason
	}
	return fmt.Sprintf("invalid test config: %s: %s", e.Field, e.Reason)
}
