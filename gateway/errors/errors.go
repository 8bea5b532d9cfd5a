package errors

import "fmt"

// RequestError carries the HTTP status the gateway should answer with.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return e.Message
}

func NewRequestError(statusCode int, format string, args ...interface{}) *RequestError {
	return &RequestError{StatusCode: statusCode, Message: fmt.Sprintf(format, args...)}
}

type EntityNotFoundError struct {
	Err  error
	Kind string // Patient, Device, Endpoint
	Key  string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("no %s found for %s: %s", e.Kind, e.Key, e.Err)
}

type ValidationError struct {
	Err error
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Validation Error. Msg: %s, Err: %s", e.Msg, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type UnexpectedStatusCodeError struct {
	Err        error
	StatusCode int //500, 401, etc
	Body       string
}

func (e *UnexpectedStatusCodeError) Error() string {
	return fmt.Sprintf("Unexpected Status Code %d: %s", e.StatusCode, e.Err)
}

func (e *UnexpectedStatusCodeError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is returned when an upstream answered successfully but
// the body could not be interpreted.
type MalformedResponseError struct {
	Err     error
	Service string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %s", e.Service, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
