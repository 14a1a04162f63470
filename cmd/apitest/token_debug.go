package main

import (
	"fmt"
	"io"
	"time"

	"kimi-proxy/internal/auth"
)

// AnalyzeToken checks if a token is in the correct format for the proxy
func AnalyzeToken(token string) string {
	if token == "" {
		return "ERROR: Token is empty\n"
	}

	r := auth.Inspect(token)
	result := fmt.Sprintf("Token length: %d\n", r.Length)

	if r.BearerPrefix {
		result += "WARNING: Token starts with 'Bearer ' prefix, which should be added by the client\n"
	}

	if r.Segments != 3 {
		result += fmt.Sprintf("WARNING: Token has %d segments, a Kimi access token has 3\n", r.Segments)
	}

	switch {
	case r.Kind == auth.KindStructured:
		result += "✓ Token is a Kimi access token\n"
	case r.TokenType == "refresh":
		result += "ERROR: Token is a refresh token, the proxy only accepts access tokens\n"
	default:
		result += "ERROR: Token is not a Kimi access token\n"
	}

	if r.Kind == auth.KindStructured {
		for _, c := range []struct{ name, value string }{
			{"device_id", r.Claims.DeviceID},
			{"ssid", r.Claims.SessionID},
			{"sub", r.Claims.UserID},
		} {
			if c.value == "" {
				result += fmt.Sprintf("WARNING: Token is missing the '%s' claim\n", c.name)
			} else {
				result += fmt.Sprintf("✓ Token has '%s' claim\n", c.name)
			}
		}
		if r.Expired(time.Now()) {
			result += fmt.Sprintf("ERROR: Token expired at %s\n", r.ExpiresAt.UTC().Format(time.RFC3339))
		}
	}

	return result
}

// DisplayTokenAnalysis provides detailed analysis of the token format
func DisplayTokenAnalysis(w io.Writer, token string) {
	fmt.Fprintln(w, "\nToken Analysis")
	fmt.Fprintln(w, "----------------------------")
	fmt.Fprint(w, AnalyzeToken(token))
	fmt.Fprintln(w, "----------------------------")
}
