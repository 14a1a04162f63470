package llm

import (
	"errors"
	"net/http"

	"kimi-proxy/internal/auth"
	"kimi-proxy/internal/rpc"
)

var (
	// ErrInvalidRequest is returned for request bodies that cannot be served
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBackendCall wraps any failure reported by the chat backend
	ErrBackendCall = errors.New("backend call failed")
)

// authorizeCredential checks that token can be forwarded to the backend and
// builds the per-request RPC configuration from its claims.
func authorizeCredential(token, baseURL string) (rpc.Config, error) {
	if err := auth.RequireStructured(token); err != nil {
		return rpc.Config{}, err
	}
	claims := auth.ReadClaims(token)
	return rpc.Config{
		BaseURL:   baseURL,
		Token:     token,
		DeviceID:  claims.DeviceID,
		SessionID: claims.SessionID,
		UserID:    claims.UserID,
	}, nil
}

// errorInfo maps an error to the HTTP status, OpenAI error type and code
// reported to the client.
func errorInfo(err error) (int, string, string) {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		return http.StatusUnauthorized, "authentication_error", "missing_credential"
	case errors.Is(err, auth.ErrInvalidCredentialFormat):
		return http.StatusUnauthorized, "authentication_error", "invalid_credential_format"
	case errors.Is(err, auth.ErrUnsupportedCredentialType):
		return http.StatusUnauthorized, "authentication_error", "unsupported_credential_type"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error", "invalid_request"
	case errors.Is(err, ErrBackendCall):
		return http.StatusBadGateway, "upstream_error", "backend_call_failure"
	default:
		return http.StatusInternalServerError, "server_error", "internal_error"
	}
}

// SetErrorResponseHeaders sets the appropriate headers for error responses
func SetErrorResponseHeaders(w http.ResponseWriter, err error) {
	if status, _, _ := errorInfo(err); status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="kimi"`)
	}
}
