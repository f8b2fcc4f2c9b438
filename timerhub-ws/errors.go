package timerhubws

import (
	"errors"
	"fmt"
	"strings"
)

// AuthorizationError marks a mutation attempted by a user who does not own
// the timer. The transport response stays 200; the rejection is log-only.
type AuthorizationError struct {
	TimerID string
	UserID  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %v is not the owner of timer %v", e.UserID, e.TimerID)
}

// IsAuthorizationError checks if the error is an AuthorizationError.
func IsAuthorizationError(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// ValidationError marks a malformed envelope or a missing required field.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidationError checks if the error is a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsEndpointGone checks if a delivery error is a GoneException (HTTP 410),
// meaning the remote connection no longer exists and should be pruned.
// Any other delivery failure is treated as transient.
func IsEndpointGone(err error) bool {
	return strings.Contains(err.Error(), "GoneException") ||
		strings.Contains(err.Error(), "410")
}
