package outcome

import (
	"fmt"
	"net/http"
)

// Error is the error form of a failed Outcome.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Cause }

// StatusError carries a buffered non-success response inside an error. The
// refresh path returns one for every non-200 refresh reply; Do maps it
// through the error table like a plain response.
type StatusError struct {
	Response *Response
}

// NewStatusError buffers resp into a StatusError.
func NewStatusError(resp *http.Response) (*StatusError, error) {
	buffered, err := Buffer(resp)
	if err != nil {
		return nil, err
	}
	return &StatusError{Response: buffered}, nil
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Response.StatusCode)
}

// Status returns the HTTP status carried by the error.
func (e *StatusError) Status() int { return e.Response.StatusCode }
