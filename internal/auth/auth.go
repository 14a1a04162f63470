// Package auth extracts and classifies the caller's Kimi credential.
//
// Callers present either a structured access token (a JWT issued by Kimi)
// or an opaque refresh token. Only access tokens can be forwarded to the
// chat backend. Classification is structural: signatures are never checked
// here, the backend does that.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

const (
	// HeaderAuthorization carries "Bearer <token>".
	HeaderAuthorization = "Authorization"
	// HeaderGoogAPIKey is accepted for clients that only speak the Gemini
	// header convention.
	HeaderGoogAPIKey = "X-Goog-Api-Key"

	bearerPrefix = "bearer "
)

var (
	// ErrMissingCredential is returned when neither credential header is set
	ErrMissingCredential = errors.New("missing credential: set the Authorization or x-goog-api-key header")

	// ErrInvalidCredentialFormat is returned when the credential is empty after normalization
	ErrInvalidCredentialFormat = errors.New("invalid credential format: empty bearer token")
)

// HeaderSink receives the raw inbound headers for diagnostics.
type HeaderSink interface {
	RecordHeaders(h http.Header)
}

// HeaderSinkFunc adapts a function to HeaderSink.
type HeaderSinkFunc func(h http.Header)

// RecordHeaders calls f(h).
func (f HeaderSinkFunc) RecordHeaders(h http.Header) {
	f(h)
}

// ExtractCredential returns the normalized token from h.
//
// Authorization wins over x-goog-api-key. A case-insensitive "Bearer "
// prefix and surrounding whitespace are removed. sink may be nil.
func ExtractCredential(h http.Header, sink HeaderSink) (string, error) {
	if sink != nil {
		sink.RecordHeaders(h)
	}

	raw, ok := headerValue(h, HeaderAuthorization)
	if !ok {
		key, ok := headerValue(h, HeaderGoogAPIKey)
		if !ok {
			return "", ErrMissingCredential
		}
		raw = "Bearer " + key
	}

	token := stripBearer(raw)
	if token == "" {
		return "", ErrInvalidCredentialFormat
	}
	return token, nil
}

// headerValue reports whether key is present at all, even with an empty value.
func headerValue(h http.Header, key string) (string, bool) {
	values, ok := h[http.CanonicalHeaderKey(key)]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func stripBearer(value string) string {
	value = strings.TrimSpace(value)
	// repeated to cover "Bearer Bearer x" produced by the api-key fallback
	for len(value) >= len(bearerPrefix) && strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		value = strings.TrimSpace(value[len(bearerPrefix):])
	}
	// a bare "Bearer" loses its trailing space to header trimming
	if strings.EqualFold(value, strings.TrimSpace(bearerPrefix)) {
		return ""
	}
	return value
}
