// Package outcome classifies the result of a single HTTP call into a
// success/error Outcome using a declarative status table.
//
// Error messages are always resolved strings: either fixed text or computed
// from the response body. A status that is in neither table produces an
// explicit KindUnmappedStatus error instead of a misleading default.
package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
)

// maxBodyBytes caps how much of a response body is buffered.
const maxBodyBytes = 1 << 20

// ErrBodyTooLarge is the cause of an Outcome whose response body exceeded
// maxBodyBytes.
var ErrBodyTooLarge = fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)

const (
	msgTransport = "Unable to reach the server. Please try again."
)

// Type discriminates an Outcome.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
)

// Kind classifies an error Outcome.
type Kind string

const (
	KindNone           Kind = ""
	KindValidation     Kind = "validation"
	KindAuth           Kind = "auth"
	KindNotFound       Kind = "not_found"
	KindServer         Kind = "server"
	KindUnmappedStatus Kind = "unmapped_status"
	KindTransport      Kind = "transport"
	KindStorage        Kind = "storage"
)

// Call performs exactly one HTTP request.
type Call func(ctx context.Context) (*http.Response, error)

// Response is the buffered view of an HTTP response handed to a Message.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Message resolves the error text for a response.
type Message func(resp *Response) string

// Text returns a Message that always yields s.
func Text(s string) Message {
	return func(*Response) string { return s }
}

// FieldMessage returns a Message that reads the string field name from a
// JSON response body.
func FieldMessage(name string) Message {
	return func(resp *Response) string {
		var body map[string]any
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return ""
		}
		s, _ := body[name].(string)
		return s
	}
}

// Config is the status table for one endpoint.
type Config struct {
	SuccessStatuses []int
	ErrorStatuses   map[int]Message
}

// Outcome is the classified result of a call. Data is set only for
// TypeSuccess; Error and Kind only for TypeError.
type Outcome struct {
	Type       Type            `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	StatusCode int             `json:"statusCode"`
	Kind       Kind            `json:"kind,omitempty"`
	Cause      error           `json:"-"`
}

// OK reports whether o is a success.
func (o Outcome) OK() bool { return o.Type == TypeSuccess }

// Decode unmarshals the success body into v.
func (o Outcome) Decode(v any) error {
	if !o.OK() {
		return o.Err()
	}
	if err := json.Unmarshal(o.Data, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Err returns nil for a success and an *Error otherwise.
func (o Outcome) Err() error {
	if o.OK() {
		return nil
	}
	return &Error{Kind: o.Kind, StatusCode: o.StatusCode, Message: o.Error, Cause: o.Cause}
}

// Success builds a success Outcome.
func Success(status int, body []byte) Outcome {
	return Outcome{Type: TypeSuccess, Data: body, StatusCode: status}
}

// Failure builds an error Outcome, deriving Kind from status when kind is
// KindNone.
func Failure(status int, kind Kind, msg string) Outcome {
	if kind == KindNone {
		kind = KindForStatus(status)
	}
	return Outcome{Type: TypeError, Error: msg, StatusCode: status, Kind: kind}
}

// Unmapped builds the explicit error Outcome for a status no table covers.
func Unmapped(status int) Outcome {
	return Failure(status, KindUnmappedStatus, fmt.Sprintf("Unexpected server response (status %d).", status))
}

// Do invokes call once and classifies the result according to cfg.
func Do(ctx context.Context, call Call, cfg Config) Outcome {
	resp, err := call(ctx)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Response != nil {
			return classify(se.Response, cfg)
		}
		o := Failure(0, KindTransport, msgTransport)
		o.Cause = err
		return o
	}
	if resp == nil {
		return Failure(0, KindTransport, msgTransport)
	}

	buffered, err := Buffer(resp)
	if err != nil {
		o := Failure(resp.StatusCode, KindTransport, msgTransport)
		o.Cause = err
		return o
	}
	return classify(buffered, cfg)
}

func classify(resp *Response, cfg Config) Outcome {
	if slices.Contains(cfg.SuccessStatuses, resp.StatusCode) {
		return Success(resp.StatusCode, resp.Body)
	}

	msg, ok := cfg.ErrorStatuses[resp.StatusCode]
	if !ok || msg == nil {
		return Unmapped(resp.StatusCode)
	}

	text := msg(resp)
	if text == "" {
		text = fmt.Sprintf("Request failed (status %d).", resp.StatusCode)
	}
	return Failure(resp.StatusCode, KindNone, text)
}

// Buffer reads and closes the body of resp.
func Buffer(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}

// KindForStatus maps an HTTP status onto the error taxonomy.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 400 && status < 500:
		return KindValidation
	case status >= 500:
		return KindServer
	default:
		return KindUnmappedStatus
	}
}
