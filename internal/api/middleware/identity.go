package middleware

import (
	"fmt"
	"strconv"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/config"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/services"
)

// Identity is what a verified bearer token asserts about its holder. For
// externally issued tokens UserID is zero and the local account is resolved
// by email.
type Identity struct {
	UserID uint
	Email  string
}

// IdentityVerifier checks a raw bearer token. There are two variants:
// locally signed access tokens, or tokens from an external identity
// provider validated against its JWKS. The variant is chosen once at
// startup by configuration.
type IdentityVerifier interface {
	Verify(rawToken string) (*Identity, error)
}

func NewIdentityVerifier(cfg config.AuthConfig, tokens *services.TokenService) (IdentityVerifier, error) {
	if cfg.ExternalJWKSURL != "" {
		return newJWKSVerifier(cfg.ExternalJWKSURL)
	}
	return &localVerifier{tokens: tokens}, nil
}

type localVerifier struct {
	tokens *services.TokenService
}

func (v *localVerifier) Verify(rawToken string) (*Identity, error) {
	claims, err := v.tokens.VerifyAccessToken(rawToken)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, services.Unauthorized("invalid access token")
	}
	return &Identity{UserID: uint(id), Email: claims.Email}, nil
}

type jwksVerifier struct {
	keys keyfunc.Keyfunc
}

func newJWKSVerifier(jwksURL string) (*jwksVerifier, error) {
	keys, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("load JWKS from %s: %w", jwksURL, err)
	}
	return &jwksVerifier{keys: keys}, nil
}

type externalClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func (v *jwksVerifier) Verify(rawToken string) (*Identity, error) {
	claims := &externalClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, v.keys.Keyfunc)
	if err != nil || !token.Valid {
		return nil, services.Unauthorized("invalid token")
	}
	if claims.Email == "" {
		return nil, services.Unauthorized("token carries no email claim")
	}
	return &Identity{Email: claims.Email}, nil
}
