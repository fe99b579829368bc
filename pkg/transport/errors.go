package transport

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

// maxBodySize bounds how much of an error body is read.
const maxBodySize = 1 << 20

// TLSMismatchMessage is used when a transport failure looks like a plaintext
// server on the other end of a TLS connection, or the reverse.
const TLSMismatchMessage = "TLS handshake failed: the server did not speak TLS as expected; " +
	"check the URL scheme and any intercepting proxy between the client and Cerberus"

// IOErrorMessage is used for every other transport failure.
const IOErrorMessage = "I/O error while communicating with Cerberus"

var tlsMismatchSignatures = []string{
	"server gave HTTP response to HTTPS client",
	"first record does not look like a TLS handshake",
}

// IsTLSMismatch reports whether err carries a plaintext/TLS mismatch
// signature.
func IsTLSMismatch(err error) bool {
	if err == nil {
		return false
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	msg := err.Error()
	for _, signature := range tlsMismatchSignatures {
		if strings.Contains(msg, signature) {
			return true
		}
	}
	return false
}

// ClassifyIOError wraps a transport failure in a ClientError.
func ClassifyIOError(err error) *cerrors.ClientError {
	if IsTLSMismatch(err) {
		return cerrors.NewClientError(TLSMismatchMessage, err)
	}
	return cerrors.NewClientError(IOErrorMessage, err)
}

type legacyErrorBody struct {
	Errors []string `json:"errors"`
}

type apiErrorBody struct {
	ErrorID string             `json:"error_id"`
	Errors  []cerrors.APIError `json:"errors"`
}

// ParseError reads resp's body and turns it into the matching error. The
// caller still closes the body.
func ParseError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return cerrors.NewClientError(fmt.Sprintf("failed to read error response (status %d)", resp.StatusCode), err)
	}
	return ParseErrorBody(resp.StatusCode, body)
}

// ParseErrorBody classifies an error body. A body with an error_id is a
// ServerAPIError, a list of messages is a ServerError, an empty body is a
// ServerError without messages, and anything unparseable is a ClientError.
func ParseErrorBody(statusCode int, body []byte) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return &cerrors.ServerError{StatusCode: statusCode}
	}

	var envelope struct {
		ErrorID string          `json:"error_id"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return cerrors.NewClientError(fmt.Sprintf("failed to parse error response (status %d)", statusCode), err)
	}

	if envelope.ErrorID != "" {
		var v2 apiErrorBody
		if err := json.Unmarshal(body, &v2); err != nil {
			return cerrors.NewClientError(fmt.Sprintf("failed to parse error response (status %d)", statusCode), err)
		}
		return &cerrors.ServerAPIError{StatusCode: statusCode, ErrorID: v2.ErrorID, Errors: v2.Errors}
	}

	if len(envelope.Errors) == 0 {
		return &cerrors.ServerError{StatusCode: statusCode}
	}

	var legacy legacyErrorBody
	if err := json.Unmarshal(body, &legacy); err == nil {
		return &cerrors.ServerError{StatusCode: statusCode, Errors: legacy.Errors}
	}

	// Some endpoints return structured errors without an id.
	var structured apiErrorBody
	if err := json.Unmarshal(body, &structured); err != nil {
		return cerrors.NewClientError(fmt.Sprintf("failed to parse error response (status %d)", statusCode), err)
	}
	messages := make([]string, 0, len(structured.Errors))
	for _, apiErr := range structured.Errors {
		messages = append(messages, apiErr.Message)
	}
	return &cerrors.ServerError{StatusCode: statusCode, Errors: messages}
}

// DecodeJSON decodes resp's body into v, reporting malformed bodies as
// ClientError.
func DecodeJSON(resp *http.Response, v interface{}) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return cerrors.NewClientError("failed to parse response body", err)
	}
	return nil
}
