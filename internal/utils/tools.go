package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// HashToken returns the hex SHA-256 of an opaque token value. Refresh tokens
// are stored hashed so a database leak does not leak usable credentials.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DetectContentType sniffs the real content type from the first bytes of an
// upload, ignoring whatever the client claimed.
func DetectContentType(content []byte) string {
	limit := len(content)
	if limit > 512 {
		limit = 512
	}
	return http.DetectContentType(content[:limit])
}
