package haven

import (
	"errors"
	"fmt"
)

// Error taxonomy for Haven API operations.
// Use errors.Is() to classify failures in calling code.
var (
	// ErrAuthentication covers every auth failure mode: calling an
	// auth-required endpoint without a session, a 401 from upstream,
	// and a failed token refresh.
	ErrAuthentication = errors.New("haven: authentication error")

	// ErrAPI is returned for non-2xx responses other than 401 and for
	// transport-level failures (DNS, timeout, connection reset).
	ErrAPI = errors.New("haven: api error")

	// ErrDevice is reserved for device-specific validation failures.
	ErrDevice = errors.New("haven: device error")
)

// StatusError wraps an unexpected HTTP status so callers can still
// inspect the code after errors.Is(err, ErrAPI) matched.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
