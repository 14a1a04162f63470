package auth

import (
	"encoding/json"
	"strings"
	"time"
)

// Report describes a credential for operators. It never contains the
// credential itself.
type Report struct {
	Kind Kind
	// Length is the credential length after any Bearer prefix is removed
	Length int
	// BearerPrefix is set when the input still carried "Bearer "
	BearerPrefix bool
	// Segments is the number of dot separated parts
	Segments  int
	AppID     string
	TokenType string
	Claims    SessionClaims
	// ExpiresAt is zero when the token has no readable exp claim
	ExpiresAt time.Time
}

// Expired reports whether the token carried an exp claim in the past.
func (r Report) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Inspect analyzes token without verifying it.
func Inspect(token string) Report {
	token = strings.TrimSpace(token)
	var r Report
	if stripped := stripBearer(token); stripped != token {
		r.BearerPrefix = true
		token = stripped
	}
	r.Length = len(token)
	if token == "" {
		return r
	}
	r.Segments = strings.Count(token, ".") + 1
	r.Kind = Classify(token)

	claims, ok := decodePayload(token)
	if !ok {
		return r
	}
	r.AppID, _ = claims[claimAppID].(string)
	r.TokenType, _ = claims[claimTokenType].(string)
	r.Claims = ReadClaims(token)
	if exp, ok := claims["exp"].(json.Number); ok {
		if secs, err := exp.Int64(); err == nil {
			r.ExpiresAt = time.Unix(secs, 0)
		}
	}
	return r
}
