package click

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse marks a response that could not be interpreted.
var ErrMalformedResponse = errors.New("malformed gateway response")

// TransportError reports a call that produced no usable gateway verdict:
// the request could not be sent, timed out, or the reply was unreadable.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("click %s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("click %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err carries a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
