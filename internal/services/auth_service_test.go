package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
)

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createUser(t, env.db, "alice@example.com", "correct horse")

	result, err := env.auth.Login(ctx, "Alice@Example.com ", "correct horse", "", ClientContext{IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.RequiresTwoFactor {
		t.Fatal("unexpected two-factor prompt")
	}
	if result.Tokens == nil || result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatal("expected a token pair")
	}
	if result.Profile.Email != "alice@example.com" {
		t.Fatalf("profile email = %q", result.Profile.Email)
	}

	var stored models.User
	if err := env.db.Where("email = ?", "alice@example.com").First(&stored).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if stored.LastLoginAt == nil {
		t.Fatal("last login timestamp not set")
	}
}

func TestLoginUnknownEmailIsGeneric(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.auth.Login(context.Background(), "ghost@example.com", "whatever", "", ClientContext{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if err.Error() != "invalid credentials" {
		t.Fatalf("message %q leaks account existence", err.Error())
	}
}

func TestLoginAccountStatusGates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.User)
	}{
		{"pending", func(u *models.User) { u.Status = models.UserPending }},
		{"rejected", func(u *models.User) { u.Status = models.UserRejected }},
		{"deactivated", func(u *models.User) { u.IsActive = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := tt.name + "@example.com"
			createUser(t, env.db, email, "secret", tt.mutate)
			_, err := env.auth.Login(ctx, email, "secret", "", ClientContext{})
			if !errors.Is(err, ErrForbidden) {
				t.Fatalf("err = %v, want forbidden", err)
			}
		})
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "bob@example.com", "right")

	for i := 0; i < 5; i++ {
		_, err := env.auth.Login(ctx, "bob@example.com", "wrong", "", ClientContext{})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("attempt %d: err = %v, want unauthorized", i+1, err)
		}
	}

	var stored models.User
	if err := env.db.First(&stored, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if stored.FailedLoginAttempts != 5 {
		t.Fatalf("failed attempts = %d, want 5", stored.FailedLoginAttempts)
	}
	if stored.LockedUntil == nil || !stored.IsLocked(time.Now()) {
		t.Fatal("account should be locked")
	}

	// While locked, even the correct password is rejected and the counter
	// does not move.
	_, err := env.auth.Login(ctx, "bob@example.com", "right", "", ClientContext{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want forbidden while locked", err)
	}
	if !strings.Contains(err.Error(), "minutes") {
		t.Fatalf("lock message %q should state the remaining time", err.Error())
	}
	if err := env.db.First(&stored, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if stored.FailedLoginAttempts != 5 {
		t.Fatalf("counter moved while locked: %d", stored.FailedLoginAttempts)
	}

	// The lockout notification went out once.
	msgs := env.sender.messages()
	if len(msgs) != 1 || msgs[0].To != "bob@example.com" {
		t.Fatalf("lock notification = %+v", msgs)
	}
}

func TestLoginSuccessResetsCounters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "carol@example.com", "pw")

	for i := 0; i < 3; i++ {
		env.auth.Login(ctx, "carol@example.com", "nope", "", ClientContext{})
	}
	if _, err := env.auth.Login(ctx, "carol@example.com", "pw", "", ClientContext{}); err != nil {
		t.Fatalf("login: %v", err)
	}

	var stored models.User
	if err := env.db.First(&stored, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if stored.FailedLoginAttempts != 0 || stored.LockedUntil != nil || stored.LastFailedLoginAt != nil {
		t.Fatalf("counters not reset: %+v", stored)
	}
}

func TestRegistrationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := createUser(t, env.db, "admin@example.com", "pw", func(u *models.User) { u.Role = models.RoleAdmin })
	actx := AuditContext{ActorID: &admin.ID}

	user, err := env.auth.Register(ctx, "new@example.com", "pw", "New", "Person")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Status != models.UserPending {
		t.Fatalf("status = %s, want PENDING", user.Status)
	}

	// Duplicate email is rejected regardless of case.
	if _, err := env.auth.Register(ctx, "NEW@example.com", "pw", "", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate register err = %v, want conflict", err)
	}

	// Pending accounts cannot log in.
	if _, err := env.auth.Login(ctx, "new@example.com", "pw", "", ClientContext{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("pending login err = %v, want forbidden", err)
	}

	before := countAuditRows(t, env.db)
	if err := env.auth.Approve(ctx, user.ID, actx); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := countAuditRows(t, env.db); got != before+1 {
		t.Fatalf("audit rows = %d, want %d", got, before+1)
	}

	// Approving twice is a conflict, the account is no longer pending.
	if err := env.auth.Approve(ctx, user.ID, actx); !errors.Is(err, ErrConflict) {
		t.Fatalf("second approve err = %v, want conflict", err)
	}

	if _, err := env.auth.Login(ctx, "new@example.com", "pw", "", ClientContext{}); err != nil {
		t.Fatalf("login after approval: %v", err)
	}
}

func TestRejectedRegistrationCannotLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, "denied@example.com", "pw", "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := env.auth.Reject(ctx, user.ID, AuditContext{}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := env.auth.Login(ctx, "denied@example.com", "pw", "", ClientContext{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "dave@example.com", "old-pw")

	result, err := env.auth.Login(ctx, "dave@example.com", "old-pw", "", ClientContext{})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.auth.ChangePassword(ctx, user.ID, "wrong", "new-pw"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("change with wrong password err = %v, want unauthorized", err)
	}
	if err := env.auth.ChangePassword(ctx, user.ID, "old-pw", "new-pw"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	// The old refresh token has been revoked.
	if _, err := env.auth.Refresh(ctx, result.Tokens.RefreshToken, ClientContext{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh after change err = %v, want unauthorized", err)
	}

	if _, err := env.auth.Login(ctx, "dave@example.com", "old-pw", "", ClientContext{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := env.auth.Login(ctx, "dave@example.com", "new-pw", "", ClientContext{}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestTwoFactorRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "eve@example.com", "pw")
	client := ClientContext{IPAddress: "10.0.0.2"}

	setup, err := env.auth.SetupTwoFactor(ctx, user.ID)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if setup.Secret == "" || !strings.Contains(setup.ProvisioningURI, "otpauth://") {
		t.Fatalf("setup = %+v", setup)
	}

	// Setup alone does not enable anything.
	if enabled, _ := env.auth.TwoFactorStatus(ctx, user.ID); enabled {
		t.Fatal("two-factor enabled before verification")
	}

	if err := env.auth.EnableTwoFactor(ctx, user.ID, "000000", client); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("enable with bad code err = %v, want unauthorized", err)
	}

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := env.auth.EnableTwoFactor(ctx, user.ID, code, client); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if enabled, _ := env.auth.TwoFactorStatus(ctx, user.ID); !enabled {
		t.Fatal("two-factor should be enabled")
	}

	// Login now stops at the second factor until a code is supplied.
	result, err := env.auth.Login(ctx, "eve@example.com", "pw", "", client)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !result.RequiresTwoFactor || result.Tokens != nil {
		t.Fatalf("result = %+v, want two-factor prompt without tokens", result)
	}

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	result, err = env.auth.Login(ctx, "eve@example.com", "pw", code, client)
	if err != nil {
		t.Fatalf("login with code: %v", err)
	}
	if result.Tokens == nil {
		t.Fatal("expected tokens after full login")
	}

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := env.auth.DisableTwoFactor(ctx, user.ID, code, client); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if enabled, _ := env.auth.TwoFactorStatus(ctx, user.ID); enabled {
		t.Fatal("two-factor should be disabled")
	}
}

func TestTwoFactorLockoutIsIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "frank@example.com", "pw")
	client := ClientContext{}

	setup, err := env.auth.SetupTwoFactor(ctx, user.ID)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := env.auth.EnableTwoFactor(ctx, user.ID, code, client); err != nil {
		t.Fatalf("enable: %v", err)
	}

	for i := 0; i < 5; i++ {
		_, err := env.auth.Login(ctx, "frank@example.com", "pw", "999999", client)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("attempt %d: err = %v, want unauthorized", i+1, err)
		}
	}

	var stored models.User
	if err := env.db.First(&stored, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if !stored.IsTwoFactorLocked(time.Now()) {
		t.Fatal("two-factor verification should be locked")
	}
	if stored.IsLocked(time.Now()) || stored.FailedLoginAttempts != 0 {
		t.Fatal("password lockout state must stay untouched")
	}

	// Even a valid code is refused while the 2FA lock holds.
	code, err = totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if _, err := env.auth.Login(ctx, "frank@example.com", "pw", code, client); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want forbidden while 2FA locked", err)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "gina@example.com", "pw")

	result, err := env.auth.Login(ctx, "gina@example.com", "pw", "", ClientContext{})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Garbage tokens are a silent no-op.
	if n, err := env.auth.Logout(ctx, user.ID, "not-a-token"); err != nil || n != 0 {
		t.Fatalf("logout with garbage = (%d, %v)", n, err)
	}
	if n, err := env.auth.Logout(ctx, user.ID, ""); err != nil || n != 0 {
		t.Fatalf("logout with empty token = (%d, %v)", n, err)
	}

	if n, err := env.auth.Logout(ctx, user.ID, result.Tokens.RefreshToken); err != nil || n != 1 {
		t.Fatalf("logout = (%d, %v), want 1 revoked", n, err)
	}
	// Revoking the same token again counts nothing.
	if n, err := env.auth.Logout(ctx, user.ID, result.Tokens.RefreshToken); err != nil || n != 0 {
		t.Fatalf("second logout = (%d, %v), want 0", n, err)
	}
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "hank@example.com", "pw")

	for i := 0; i < 3; i++ {
		if _, err := env.auth.Login(ctx, "hank@example.com", "pw", "", ClientContext{}); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}
	if n, err := env.auth.LogoutAll(ctx, user.ID); err != nil || n != 3 {
		t.Fatalf("logout all = (%d, %v), want 3", n, err)
	}
	if n, err := env.auth.LogoutAll(ctx, user.ID); err != nil || n != 0 {
		t.Fatalf("repeated logout all = (%d, %v), want 0", n, err)
	}
}
