package transport

import (
	"fmt"
	"net/http"
)

const (
	CodeTokenExpired   = "TOKEN_EXPIRED"
	CodeInvalidToken   = "INVALID_TOKEN"
	CodeRefreshExpired = "REFRESH_EXPIRED"
	CodeRateLimited    = "RATE_LIMITED"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool    `json:"success"`
	Data    any     `json:"data"`
	Error   *string `json:"error"`
	Code    string  `json:"code,omitempty"`
}

func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

func Fail(msg, code string) Envelope {
	return Envelope{Success: false, Error: &msg, Code: code}
}

type Message struct {
	Message string `json:"message"`
}

// APIError is returned by handlers and rendered by the error handler.
type APIError struct {
	Status  int
	Message string
	Code    string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

func NewError(status int, msg string) *APIError {
	return &APIError{Status: status, Message: msg}
}

func (e *APIError) WithCode(code string) *APIError {
	e.Code = code
	return e
}

func (e *APIError) Wrap(err error) *APIError {
	e.Err = err
	return e
}

func BadRequest(msg string) *APIError   { return NewError(http.StatusBadRequest, msg) }
func Unauthorized(msg string) *APIError { return NewError(http.StatusUnauthorized, msg) }
func NotFound(msg string) *APIError     { return NewError(http.StatusNotFound, msg) }
func Conflict(msg string) *APIError     { return NewError(http.StatusConflict, msg) }
func Internal(msg string) *APIError     { return NewError(http.StatusInternalServerError, msg) }
