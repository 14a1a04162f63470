package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Kind is the structural class of a credential.
type Kind int

const (
	// KindOpaque is any credential that is not a Kimi access token,
	// typically a refresh token.
	KindOpaque Kind = iota
	// KindStructured is a Kimi access token carrying session claims.
	KindStructured
)

func (k Kind) String() string {
	if k == KindStructured {
		return "structured"
	}
	return "opaque"
}

const (
	// jwtMarker is base64url for `{"`, the start of every JWT header.
	jwtMarker = "eyJ"

	expectedAppID     = "kimi"
	expectedTokenType = "access"

	claimAppID     = "app_id"
	claimTokenType = "typ"
	claimDeviceID  = "device_id"
	claimSessionID = "ssid"
	claimSubject   = "sub"
)

// ErrUnsupportedCredentialType is returned when an opaque credential is used
// where an access token is required.
var ErrUnsupportedCredentialType = errors.New("unsupported credential type: refresh tokens are not accepted, supply a Kimi access token (JWT) instead")

// Classify reports whether token is a Kimi access token. It never fails;
// anything that does not decode cleanly is opaque.
func Classify(token string) Kind {
	if !strings.HasPrefix(token, jwtMarker) {
		return KindOpaque
	}
	claims, ok := decodePayload(token)
	if !ok {
		return KindOpaque
	}
	appID, _ := claims[claimAppID].(string)
	typ, _ := claims[claimTokenType].(string)
	if appID != expectedAppID || typ != expectedTokenType {
		return KindOpaque
	}
	return KindStructured
}

// RequireStructured returns ErrUnsupportedCredentialType unless token is an
// access token.
func RequireStructured(token string) error {
	if Classify(token) != KindStructured {
		return ErrUnsupportedCredentialType
	}
	return nil
}

// SessionClaims are the backend session attributes carried by an access
// token. An empty field means the claim was absent or unreadable.
type SessionClaims struct {
	DeviceID  string
	SessionID string
	UserID    string
}

// ReadClaims decodes each session claim independently.
func ReadClaims(token string) SessionClaims {
	var c SessionClaims
	if v, ok := DeviceID(token); ok {
		c.DeviceID = v
	}
	if v, ok := SessionID(token); ok {
		c.SessionID = v
	}
	if v, ok := UserID(token); ok {
		c.UserID = v
	}
	return c
}

// DeviceID returns the device_id claim.
func DeviceID(token string) (string, bool) {
	return claimString(token, claimDeviceID)
}

// SessionID returns the ssid claim.
func SessionID(token string) (string, bool) {
	return claimString(token, claimSessionID)
}

// UserID returns the sub claim.
func UserID(token string) (string, bool) {
	return claimString(token, claimSubject)
}

// decodePayload returns the JSON object in the middle segment of a three
// segment token. The header and signature are never looked at. Padded
// segments are accepted without touching jwt.DecodePaddingAllowed.
func decodePayload(token string) (map[string]interface{}, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, false
	}
	raw, err := jwt.DecodeSegment(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var claims map[string]interface{}
	if err := dec.Decode(&claims); err != nil || claims == nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return claims, true
}

// claimString decodes token from scratch and returns one claim as a string.
// Numbers are rendered in decimal; objects, arrays and nulls are absent.
func claimString(token, key string) (string, bool) {
	claims, ok := decodePayload(token)
	if !ok {
		return "", false
	}

	switch v := claims[key].(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return fmt.Sprint(v), true
	default:
		return "", false
	}
}
