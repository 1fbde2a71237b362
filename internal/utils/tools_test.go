package utils

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in the clear")
	}
	if !VerifyPassword(hash, "s3cret") {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword(hash, "S3cret") {
		t.Fatal("wrong password accepted")
	}
}

func TestHashPasswordClampsCost(t *testing.T) {
	// Out-of-range costs fall back to the bcrypt default instead of failing.
	hash, err := HashPassword("pw", 99)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Fatalf("cost = %d, want %d", cost, bcrypt.DefaultCost)
	}
}

func TestHashToken(t *testing.T) {
	a := HashToken("token-a")
	b := HashToken("token-b")
	if len(a) != 64 || len(b) != 64 {
		t.Fatalf("hash lengths = %d, %d", len(a), len(b))
	}
	if a == b {
		t.Fatal("distinct tokens hash equal")
	}
	if HashToken("token-a") != a {
		t.Fatal("hash is not deterministic")
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    string
	}{
		{"pdf", []byte("%PDF-1.7 body"), "application/pdf"},
		{"png", []byte("\x89PNG\r\n\x1a\n rest"), "image/png"},
		{"text", []byte("plain old words"), "text/plain; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectContentType(tt.content); got != tt.want {
				t.Fatalf("DetectContentType = %q, want %q", got, tt.want)
			}
		})
	}
}
