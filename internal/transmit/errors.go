package transmit

import "errors"

// Error classes for one send. Collaborator failures are wrapped into one of
// these so callers can classify outcomes with errors.Is.
var (
	// ErrFocus means the target window could not be found or activated.
	ErrFocus = errors.New("window focus failed")

	// ErrTransmission means the keystroke collaborator reported a failure.
	ErrTransmission = errors.New("transmission failed")

	// ErrThrottled marks a failure the collaborator attributes to the target
	// application's own rate limiting. A collaborator returns an error
	// wrapping ErrThrottled to signal it.
	ErrThrottled = errors.New("throttled by target")

	// ErrSendTimeout means the per-message wall-clock ceiling elapsed.
	ErrSendTimeout = errors.New("send deadline exceeded")
)

// IsThrottle reports whether err stems from externally observed throttling.
func IsThrottle(err error) bool { return errors.Is(err, ErrThrottled) }

// ErrKind maps err to a short label for metrics and logs.
func ErrKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrThrottled):
		return "throttled"
	case errors.Is(err, ErrFocus):
		return "focus"
	case errors.Is(err, ErrSendTimeout):
		return "timeout"
	case errors.Is(err, ErrTransmission):
		return "transmission"
	default:
		return "internal"
	}
}
