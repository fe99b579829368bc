package transport_test

import (
	"crypto/tls"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/transport"
)

func TestParseErrorBody(t *testing.T) {
	t.Parallel()

	t.Run("legacy errors", func(t *testing.T) {
		t.Parallel()
		err := transport.ParseErrorBody(403, []byte(`{"errors":["permission denied"]}`))
		var serverErr *cerrors.ServerError
		require.True(t, errors.As(err, &serverErr))
		assert.Equal(t, 403, serverErr.StatusCode)
		assert.Equal(t, []string{"permission denied"}, serverErr.Errors)
	})

	t.Run("v2 api errors", func(t *testing.T) {
		t.Parallel()
		body := `{"error_id":"7e2b","errors":[{"code":99228,"message":"sdb not found","context":{"id":"abc"}}]}`
		err := transport.ParseErrorBody(404, []byte(body))
		var apiErr *cerrors.ServerAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "7e2b", apiErr.ErrorID)
		require.Len(t, apiErr.Errors, 1)
		assert.Equal(t, 99228, apiErr.Errors[0].Code)
		assert.Equal(t, "abc", apiErr.Errors[0].Context["id"])
		assert.True(t, cerrors.IsNotFound(err))
	})

	t.Run("structured errors without id", func(t *testing.T) {
		t.Parallel()
		err := transport.ParseErrorBody(400, []byte(`{"errors":[{"code":1,"message":"bad"}]}`))
		var serverErr *cerrors.ServerError
		require.True(t, errors.As(err, &serverErr))
		assert.Equal(t, []string{"bad"}, serverErr.Errors)
	})

	t.Run("empty body", func(t *testing.T) {
		t.Parallel()
		err := transport.ParseErrorBody(404, nil)
		var serverErr *cerrors.ServerError
		require.True(t, errors.As(err, &serverErr))
		assert.Empty(t, serverErr.Errors)
		assert.True(t, cerrors.IsNotFound(err))
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		err := transport.ParseErrorBody(500, []byte(`<html>gateway</html>`))
		assert.True(t, cerrors.IsClientError(err))
		_, isServer := cerrors.StatusCode(err)
		assert.False(t, isServer)
	})
}

func TestIsTLSMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain http answer", errors.New("http: server gave HTTP response to HTTPS client"), true},
		{"record header", fmt.Errorf("get: %w", tls.RecordHeaderError{Msg: "first record does not look like a TLS handshake"}), true},
		{"reset", errors.New("connection reset by peer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, transport.IsTLSMismatch(tt.err))
		})
	}
}
