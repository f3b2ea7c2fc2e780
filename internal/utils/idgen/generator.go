package idgen

import (
	"crypto/rand"
	"fmt"
)

const charset = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateSecureID generates a cryptographically secure ID with the given
// prefix and length. Uses only lowercase alphanumeric characters.
func GenerateSecureID(prefix string, length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := make([]byte, length)
	for i := 0; i < length; i++ {
		encoded[i] = charset[int(bytes[i])%len(charset)]
	}

	return fmt.Sprintf("%s_%s", prefix, string(encoded)), nil
}

// ConversationID generates a public conversation identifier.
func ConversationID() (string, error) {
	return GenerateSecureID("conv", 24)
}

// MessageID generates a public message identifier.
func MessageID() (string, error) {
	return GenerateSecureID("msg", 24)
}

// SessionID generates a public session identifier.
func SessionID() (string, error) {
	return GenerateSecureID("sess", 24)
}
