// Package auth provides bearer-token authentication utilities.
//
// How identity is established stays at the HTTP boundary; core
// operations receive the resolved user id as an explicit parameter.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Token format: tl_{prefix}_{secret}
// Example: tl_7a9x3k_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const (
	TokenPrefixLen = 6  // Visible prefix length (hex encoded 3 bytes)
	TokenSecretLen = 32 // Secret length (hex encoded 16 bytes)
)

var (
	// ErrInvalidTokenFormat indicates the token format is invalid.
	ErrInvalidTokenFormat = errors.New("invalid token format")
	// tokenFormatRegex validates the token format.
	tokenFormatRegex = regexp.MustCompile(`^tl_([a-f0-9]{6})_([a-f0-9]{32})$`)
)

// GeneratedToken contains the parts of a newly generated bearer token.
type GeneratedToken struct {
	Plaintext string // Full token (show once only)
	Hash      string // Argon2id hash for storage
	Prefix    string // 6-char visible prefix for lookup
}

// GenerateToken creates a new bearer token.
// Returns the plaintext (to show once), hash (to store), and prefix.
func GenerateToken() (*GeneratedToken, error) {
	prefixBytes := make([]byte, 3)
	if _, err := rand.Read(prefixBytes); err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	prefix := hex.EncodeToString(prefixBytes)

	secretBytes := make([]byte, 16)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	plaintext := fmt.Sprintf("tl_%s_%s", prefix, secret)

	hash, err := HashToken(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash token: %w", err)
	}

	return &GeneratedToken{
		Plaintext: plaintext,
		Hash:      hash,
		Prefix:    prefix,
	}, nil
}

// ParsedToken contains the parsed parts of a bearer token.
type ParsedToken struct {
	Prefix string
	Secret string
}

// ParseToken extracts the components from a plaintext token.
// Returns an error if the format is invalid.
func ParseToken(token string) (*ParsedToken, error) {
	matches := tokenFormatRegex.FindStringSubmatch(token)
	if matches == nil {
		return nil, ErrInvalidTokenFormat
	}

	return &ParsedToken{
		Prefix: matches[1],
		Secret: matches[2],
	}, nil
}
