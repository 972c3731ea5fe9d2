package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind separates "could not talk to the server" from "the server said no".
type Kind string

const (
	KindNetwork  Kind = "network"
	KindTimeout  Kind = "timeout"
	KindCanceled Kind = "canceled"
	KindHTTP     Kind = "http"
	KindContract Kind = "contract"
)

type Error struct {
	Kind   Kind
	Method string
	Path   string

	// Status and Body are set only for KindHTTP (and KindContract when a response was read).
	Status int
	Body   []byte

	// Message is what a form or banner may show the user.
	Message string

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNetwork:
		return "cannot reach server"
	case KindTimeout:
		return "request timed out"
	case KindCanceled:
		return "request canceled"
	case KindContract:
		if e.Message != "" {
			return "unexpected response from server: " + e.Message
		}
		return "unexpected response from server"
	default:
		if e.Message != "" {
			return e.Message
		}
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Detail is the log-friendly form.
func (e *Error) Detail() string {
	s := fmt.Sprintf("%s %s kind=%s", e.Method, e.Path, e.Kind)
	if e.Status != 0 {
		s += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Err != nil {
		s += " err=" + e.Err.Error()
	}
	return s
}

func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

func StatusOf(err error) int {
	if be, ok := AsError(err); ok && be.Kind == KindHTTP {
		return be.Status
	}
	return 0
}

func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsNotReady reports the 403/404 class that payment endpoints return when the
// backend side is not implemented or not permitted yet.
func IsNotReady(err error) bool {
	s := StatusOf(err)
	return s == http.StatusForbidden || s == http.StatusNotFound
}

func IsNetwork(err error) bool {
	be, ok := AsError(err)
	return ok && be.Kind == KindNetwork
}

func IsTimeout(err error) bool {
	be, ok := AsError(err)
	return ok && be.Kind == KindTimeout
}

func IsCanceled(err error) bool {
	be, ok := AsError(err)
	return ok && be.Kind == KindCanceled
}

// errorBody is the documented error shape of the backend.
type errorBody struct {
	Message string `json:"message"`
}

func messageFrom(body []byte, status int) string {
	var eb errorBody
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil && strings.TrimSpace(eb.Message) != "" {
		return strings.TrimSpace(eb.Message)
	}
	if t := http.StatusText(status); t != "" {
		return t
	}
	return fmt.Sprintf("status %d", status)
}
