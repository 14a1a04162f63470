package utils

import (
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// CompletionIDPrefix is the prefix OpenAI clients expect on completion ids.
const CompletionIDPrefix = "chatcmpl-"

// GetEnvWithDefault retrieves an environment variable or returns a default value if not set.
//
// Parameters:
//   - name: The name of the environment variable
//   - defaultValue: The default value to return if the environment variable is not set
//
// Returns the value of the environment variable, or the default value if not set.
func GetEnvWithDefault(name, defaultValue string) string {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvBool parses a boolean environment variable. Unset or unparsable
// values return defaultValue.
func GetEnvBool(name string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// GetEnvInt parses an integer environment variable. Unset or unparsable
// values return defaultValue.
func GetEnvInt(name string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// NewCompletionID returns a fresh OpenAI style completion id.
func NewCompletionID() string {
	return CompletionIDPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// MaskToken masks a token for display by showing only the first and last few characters.
// A "Bearer " prefix is kept so masked header values stay recognizable.
func MaskToken(token string) string {
	prefix := ""
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		prefix, token = token[:7], token[7:]
	}

	if len(token) < 10 {
		return prefix + "***" // Too short to safely show anything
	}

	// For JWTs keep the header segment marker visible
	if strings.HasPrefix(token, "eyJ") && strings.Count(token, ".") == 2 {
		return prefix + token[:6] + "...(jwt)..." + token[len(token)-4:]
	}

	return prefix + token[:4] + "..." + token[len(token)-4:]
}
