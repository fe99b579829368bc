// Package errors defines the error taxonomy returned by the Cerberus client.
//
// Callers see one of three families:
//
//   - ClientError for conditions on the client side: bad arguments, transport
//     failures after retries were exhausted, malformed response bodies and an
//     exhausted credentials provider chain.
//   - ServerError when the service answered with a non-success status and a
//     legacy error body ({"errors": ["..."]}).
//   - ServerAPIError when the service answered with a v2 error body that
//     carries a server-assigned error id and structured per-field errors.
//
// StatusCode and IsNotFound work across both server error flavors so callers
// rarely need to switch on the concrete type.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidArgument is wrapped by every construction-time argument failure.
var ErrInvalidArgument = errors.New("invalid argument")

// InvalidArgument returns an error wrapping ErrInvalidArgument.
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ClientError is an unrecoverable client-side or transport condition.
type ClientError struct {
	Message string
	Err     error
}

// NewClientError builds a ClientError wrapping err, which may be nil.
func NewClientError(message string, err error) *ClientError {
	return &ClientError{Message: message, Err: err}
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// ServerError is a non-success response carrying legacy error messages.
type ServerError struct {
	StatusCode int
	Errors     []string
}

func (e *ServerError) Error() string {
	msg := fmt.Sprintf("cerberus returned status %d", e.StatusCode)
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Errors, "; ")
	}
	return msg
}

// APIError is a single structured error entry of a v2 error response.
type APIError struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// ServerAPIError is a non-success response carrying a v2 error body.
type ServerAPIError struct {
	StatusCode int
	ErrorID    string
	Errors     []APIError
}

func (e *ServerAPIError) Error() string {
	msg := fmt.Sprintf("cerberus returned status %d (error id: %s)", e.StatusCode, e.ErrorID)
	if len(e.Errors) > 0 {
		parts := make([]string, 0, len(e.Errors))
		for _, apiErr := range e.Errors {
			parts = append(parts, fmt.Sprintf("%d: %s", apiErr.Code, apiErr.Message))
		}
		msg += ": " + strings.Join(parts, "; ")
	}
	return msg
}

// Messages returns the human readable part of every structured error.
func (e *ServerAPIError) Messages() []string {
	out := make([]string, 0, len(e.Errors))
	for _, apiErr := range e.Errors {
		out = append(out, apiErr.Message)
	}
	return out
}

// StatusCode extracts the HTTP status of a server error anywhere in err's chain.
func StatusCode(err error) (int, bool) {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.StatusCode, true
	}
	var apiErr *ServerAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, true
	}
	return 0, false
}

// IsNotFound reports whether err is a server error with status 404.
func IsNotFound(err error) bool {
	code, ok := StatusCode(err)
	return ok && code == http.StatusNotFound
}

// IsClientError reports whether err is, or wraps, a ClientError.
func IsClientError(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr)
}

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// Explain turns a client error into a UserError with a suggestion for the CLI.
func Explain(err error) error {
	if err == nil {
		return nil
	}

	var userErr UserError
	if errors.As(err, &userErr) {
		return err
	}
	var cfgErr ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}

	if code, ok := StatusCode(err); ok {
		switch code {
		case http.StatusUnauthorized:
			return UserError{Message: "Cerberus rejected the token", Err: err,
				Suggestion: "Set CERBERUS_TOKEN or run 'cerberus login' with a fresh token"}
		case http.StatusForbidden:
			return UserError{Message: "Permission denied", Err: err,
				Suggestion: "Check that your role has access to the safe deposit box"}
		case http.StatusNotFound:
			return UserError{Message: "Not found", Err: err,
				Suggestion: "Verify the path; 'cerberus list <sdb path>' shows what exists"}
		}
		return UserError{Message: "Cerberus request failed", Err: err}
	}

	if IsClientError(err) {
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "credentials provider chain"):
			return UserError{Message: "No Cerberus credentials found", Err: err,
				Suggestion: "Set CERBERUS_TOKEN, run 'cerberus login', or run with an AWS identity"}
		case strings.Contains(errStr, "TLS"):
			return UserError{Message: "TLS handshake failed", Err: err,
				Suggestion: "Check the URL scheme and any intercepting proxy"}
		case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
			return UserError{Message: "Unable to reach Cerberus", Err: err,
				Suggestion: "Check your network and the --url / CERBERUS_ADDR value"}
		}
	}

	return err
}
