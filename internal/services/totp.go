package services

import (
	"github.com/pquerna/otp/totp"
)

// TOTPEngine is the narrow capability the auth flows need from a time-based
// one-time-password implementation. It is a normal compile-time dependency;
// a missing TOTP capability is a startup configuration error, never a
// per-call one.
type TOTPEngine interface {
	GenerateSecret(accountName string) (secret, provisioningURI string, err error)
	Verify(code, secret string) bool
}

type totpEngine struct {
	issuer string
}

func NewTOTPEngine(issuer string) TOTPEngine {
	return &totpEngine{issuer: issuer}
}

func (e *totpEngine) GenerateSecret(accountName string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

func (e *totpEngine) Verify(code, secret string) bool {
	return totp.Validate(code, secret)
}
