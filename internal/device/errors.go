package device

import "fmt"

// TransportError is returned for any network, HTTP status or payload failure
// when talking to the device API. Callers decide their own fallback.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("device %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
