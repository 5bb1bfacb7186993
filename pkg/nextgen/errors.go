package nextgen

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a NextGen failure.
type Kind int

const (
	// KindAPI is the generic API error (unexpected status, undecodable payload).
	KindAPI Kind = iota
	KindConfiguration
	KindAuthentication
	KindValidation
	KindNetwork
	KindRateLimit
	KindClient
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindRateLimit:
		return "rate_limit"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	default:
		return "api"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrAPI            = &Error{Kind: KindAPI}
	ErrConfiguration  = &Error{Kind: KindConfiguration}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrRateLimit      = &Error{Kind: KindRateLimit}
	ErrClient         = &Error{Kind: KindClient}
	ErrServer         = &Error{Kind: KindServer}

	// ErrClosed is wrapped by calls made after Client.Close.
	ErrClosed = errors.New("nextgen: client is closed")
)

// Error is the single error type returned by the library.
type Error struct {
	Kind    Kind
	Message string
	// StatusCode is zero when no HTTP response was received.
	StatusCode int
	// Body is the raw response body, if any.
	Body []byte
	// Data is the parsed error body, or {"error_text": raw} when it is not JSON.
	Data map[string]any
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("nextgen ")
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels: errors.Is(err, ErrRateLimit).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.StatusCode == 0 && t.Err == nil && t.Kind == e.Kind
}

// Retryable reports whether the same call may succeed later without changes.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimit, KindServer:
		return true
	}
	return false
}

// KindOf returns the Kind of err, or KindAPI when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindAPI
}

// StatusCodeOf returns the HTTP status carried by err, or zero.
func StatusCodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func validationError(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// parseErrorBody decodes an error body into a map. Non-object JSON is kept
// under "data"; anything else under "error_text".
func parseErrorBody(body []byte) map[string]any {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return map[string]any{"error_text": string(body)}
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"data": v}
}

// serverMessage extracts a human readable message from a parsed error body.
func serverMessage(data map[string]any) string {
	for _, key := range []string{"message", "error_description", "detail", "title"} {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	switch v := data["error"].(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["message"].(string); ok {
			return s
		}
	}
	return ""
}
