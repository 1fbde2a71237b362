package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/config"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/mailer"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/utils"
	"github.com/nigeier/dk-vertragsmgmt-sub000/pkg/metrics"
)

// ClientContext identifies the caller of an auth operation for audit and
// notification purposes. IP and user agent are recorded, never enforced.
type ClientContext struct {
	IPAddress string
	UserAgent string
}

// Profile is the non-sensitive slice of a user returned to clients.
type Profile struct {
	ID               uint            `json:"id"`
	Email            string          `json:"email"`
	FirstName        string          `json:"firstName"`
	LastName         string          `json:"lastName"`
	Role             models.UserRole `json:"role"`
	TwoFactorEnabled bool            `json:"twoFactorEnabled"`
}

// LoginResult either carries a token pair or signals that a second factor
// is still required. In the latter case no tokens have been issued.
type LoginResult struct {
	RequiresTwoFactor bool
	Profile           Profile
	Tokens            *TokenPair
}

// TwoFactorSetup is handed back from SetupTwoFactor so the user can enroll
// an authenticator app.
type TwoFactorSetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioningUri"`
}

// AuthService orchestrates login, refresh, logout and two-factor flows.
// It is the only component that writes password, lockout or token fields.
type AuthService struct {
	db           *gorm.DB
	cfg          config.AuthConfig
	tokens       *TokenService
	totp         TOTPEngine
	sender       mailer.Sender
	audit        *AuditService
	logger       *zap.Logger
	metrics      *metrics.Collector
	loginLockout LockoutPolicy
	twoFALockout LockoutPolicy
}

func NewAuthService(
	database *gorm.DB,
	cfg config.AuthConfig,
	tokens *TokenService,
	totp TOTPEngine,
	sender mailer.Sender,
	audit *AuditService,
	logger *zap.Logger,
	collector *metrics.Collector,
) *AuthService {
	return &AuthService{
		db:      database,
		cfg:     cfg,
		tokens:  tokens,
		totp:    totp,
		sender:  sender,
		audit:   audit,
		logger:  logger.With(zap.String("service", "auth_service")),
		metrics: collector,
		loginLockout: LockoutPolicy{
			Threshold: cfg.MaxFailedAttempts,
			Duration:  cfg.LockoutDuration,
		},
		twoFALockout: LockoutPolicy{
			Threshold: cfg.TwoFactorMaxFailed,
			Duration:  cfg.TwoFactorLockout,
		},
	}
}

// Login walks the attempt state machine: account status, lockout, password,
// optional second factor, then token issuance. Failure messages never reveal
// whether the email exists.
func (as *AuthService) Login(ctx context.Context, email, password, totpCode string, client ClientContext) (*LoginResult, error) {
	email = normalizeEmail(email)
	now := time.Now()

	var user models.User
	err := as.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			as.metrics.IncrementCounter("auth.login_failures", map[string]string{"reason": "unknown_email"})
			return nil, Unauthorized("invalid credentials")
		}
		return nil, err
	}

	switch {
	case user.Status == models.UserPending:
		return nil, Forbidden("account is pending approval")
	case user.Status == models.UserRejected:
		return nil, Forbidden("registration was rejected")
	case !user.IsActive:
		return nil, Forbidden("account is deactivated")
	}

	if remaining := as.loginLockout.Remaining(user.LockedUntil, now); remaining > 0 {
		// No password check is consumed while the lock holds.
		as.logger.Warn("login attempt on locked account",
			zap.Uint("user_id", user.ID),
			zap.String("ip", client.IPAddress))
		return nil, Forbidden("account is locked, try again in %d minutes", RemainingMinutes(remaining))
	}

	if !utils.VerifyPassword(user.PasswordHash, password) {
		as.registerFailedLogin(ctx, &user, client, now)
		as.metrics.IncrementCounter("auth.login_failures", map[string]string{"reason": "bad_password"})
		return nil, Unauthorized("invalid credentials")
	}

	if user.TwoFactorEnabled {
		if totpCode == "" {
			return &LoginResult{
				RequiresTwoFactor: true,
				Profile:           profileOf(&user),
			}, nil
		}
		if err := as.verifyTwoFactorCode(ctx, &user, totpCode, client, now); err != nil {
			return nil, err
		}
	}

	if err := as.resetLoginCounters(ctx, &user, now); err != nil {
		return nil, err
	}

	pair, err := as.tokens.IssuePair(ctx, &user, client.IPAddress, client.UserAgent)
	if err != nil {
		return nil, err
	}
	as.metrics.IncrementCounter("auth.logins", nil)
	as.logger.Info("user logged in",
		zap.Uint("user_id", user.ID),
		zap.String("ip", client.IPAddress))
	return &LoginResult{Profile: profileOf(&user), Tokens: pair}, nil
}

// Refresh rotates a refresh token into a fresh pair.
func (as *AuthService) Refresh(ctx context.Context, refreshToken string, client ClientContext) (*LoginResult, error) {
	user, pair, err := as.tokens.Rotate(ctx, refreshToken, client.IPAddress, client.UserAgent)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Profile: profileOf(user), Tokens: pair}, nil
}

// Logout revokes the presented refresh token. A missing or invalid token is
// a no-op. Returns how many tokens were revoked (0 or 1).
func (as *AuthService) Logout(ctx context.Context, userID uint, refreshToken string) (int64, error) {
	if refreshToken == "" {
		return 0, nil
	}
	count, err := as.tokens.Revoke(ctx, refreshToken)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		as.logger.Info("user logged out", zap.Uint("user_id", userID))
	}
	return count, nil
}

// LogoutAll revokes every active session of the user.
func (as *AuthService) LogoutAll(ctx context.Context, userID uint) (int64, error) {
	count, err := as.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	as.logger.Info("all sessions revoked", zap.Uint("user_id", userID), zap.Int64("count", count))
	return count, nil
}

// ChangePassword re-verifies the old password, stores the new hash and
// forces re-login on every device.
func (as *AuthService) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	var user models.User
	if err := as.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFound("user not found")
		}
		return err
	}
	if !utils.VerifyPassword(user.PasswordHash, oldPassword) {
		return Unauthorized("current password is incorrect")
	}
	hash, err := utils.HashPassword(newPassword, as.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if err := as.db.WithContext(ctx).Model(&user).Update("password_hash", hash).Error; err != nil {
		return err
	}
	revoked, err := as.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return err
	}
	as.logger.Info("password changed, sessions revoked",
		zap.Uint("user_id", userID),
		zap.Int64("sessions_revoked", revoked))
	return nil
}

// Register creates a self-service account in PENDING state.
func (as *AuthService) Register(ctx context.Context, email, password, firstName, lastName string) (*models.User, error) {
	return as.createUser(ctx, email, password, firstName, lastName, models.RoleUser, models.UserPending)
}

// CreateUser is the admin path: the account starts ACTIVE with the given role.
func (as *AuthService) CreateUser(ctx context.Context, email, password, firstName, lastName string, role models.UserRole) (*models.User, error) {
	return as.createUser(ctx, email, password, firstName, lastName, role, models.UserActive)
}

func (as *AuthService) createUser(ctx context.Context, email, password, firstName, lastName string, role models.UserRole, status models.UserStatus) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, Conflict("email and password are required")
	}

	var existing models.User
	err := as.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, Conflict("email already registered")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := utils.HashPassword(password, as.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
		Status:       status,
		IsActive:     true,
	}
	if err := as.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	as.logger.Info("user created",
		zap.Uint("user_id", user.ID),
		zap.String("status", string(status)))
	return &user, nil
}

// Approve moves a PENDING registration to ACTIVE. The status transition is
// audited with explicitly captured old and new values because the request
// interceptor cannot see the pre-update row.
func (as *AuthService) Approve(ctx context.Context, userID uint, actx AuditContext) error {
	return as.decideRegistration(ctx, userID, models.UserActive, actx)
}

// Reject moves a PENDING registration to REJECTED. Terminal.
func (as *AuthService) Reject(ctx context.Context, userID uint, actx AuditContext) error {
	return as.decideRegistration(ctx, userID, models.UserRejected, actx)
}

func (as *AuthService) decideRegistration(ctx context.Context, userID uint, next models.UserStatus, actx AuditContext) error {
	var user models.User
	if err := as.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFound("user not found")
		}
		return err
	}
	if user.Status != models.UserPending {
		return Conflict("user is not pending approval")
	}
	old := user.Status
	if err := as.db.WithContext(ctx).Model(&user).Update("status", next).Error; err != nil {
		return err
	}
	as.audit.Record(ctx, AuditEntry{
		Action:     models.AuditUpdate,
		EntityType: "User",
		EntityID:   formatID(user.ID),
		OldValue:   map[string]any{"status": old},
		NewValue:   map[string]any{"status": next},
	}, actx)
	as.logger.Info("registration decided",
		zap.Uint("user_id", user.ID),
		zap.String("status", string(next)))
	return nil
}

// SetupTwoFactor generates and persists a pending secret. 2FA is not
// enabled until the user proves possession via EnableTwoFactor.
func (as *AuthService) SetupTwoFactor(ctx context.Context, userID uint) (*TwoFactorSetup, error) {
	var user models.User
	if err := as.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, NotFound("user not found")
	}
	if user.TwoFactorEnabled {
		return nil, Conflict("two-factor authentication is already enabled")
	}
	secret, uri, err := as.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, err
	}
	if err := as.db.WithContext(ctx).Model(&user).Update("two_factor_secret", secret).Error; err != nil {
		return nil, err
	}
	return &TwoFactorSetup{Secret: secret, ProvisioningURI: uri}, nil
}

// EnableTwoFactor flips 2FA on once the caller supplies a code valid against
// the pending secret.
func (as *AuthService) EnableTwoFactor(ctx context.Context, userID uint, code string, client ClientContext) error {
	var user models.User
	if err := as.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return NotFound("user not found")
	}
	if user.TwoFactorEnabled {
		return Conflict("two-factor authentication is already enabled")
	}
	if user.TwoFactorSecret == "" {
		return Conflict("two-factor setup has not been run")
	}
	if err := as.verifyTwoFactorCode(ctx, &user, code, client, time.Now()); err != nil {
		return err
	}
	if err := as.db.WithContext(ctx).Model(&user).Update("two_factor_enabled", true).Error; err != nil {
		return err
	}
	as.notify(ctx, mailer.TwoFactorEnabled(user.Email))
	as.metrics.IncrementCounter("auth.two_factor_enabled", nil)
	as.logger.Info("two-factor enabled", zap.Uint("user_id", user.ID))
	return nil
}

// DisableTwoFactor requires a currently valid code, then clears the secret.
func (as *AuthService) DisableTwoFactor(ctx context.Context, userID uint, code string, client ClientContext) error {
	var user models.User
	if err := as.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return NotFound("user not found")
	}
	if !user.TwoFactorEnabled {
		return Conflict("two-factor authentication is not enabled")
	}
	if err := as.verifyTwoFactorCode(ctx, &user, code, client, time.Now()); err != nil {
		return err
	}
	err := as.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"two_factor_enabled": false,
		"two_factor_secret":  "",
	}).Error
	if err != nil {
		return err
	}
	as.logger.Info("two-factor disabled", zap.Uint("user_id", user.ID))
	return nil
}

// TwoFactorStatus reports whether 2FA is enabled for the user.
func (as *AuthService) TwoFactorStatus(ctx context.Context, userID uint) (bool, error) {
	var user models.User
	if err := as.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return false, NotFound("user not found")
	}
	return user.TwoFactorEnabled, nil
}

// verifyTwoFactorCode is the single verification path shared between login,
// enable and disable. It maintains the 2FA counter/lock pair.
func (as *AuthService) verifyTwoFactorCode(ctx context.Context, user *models.User, code string, client ClientContext, now time.Time) error {
	if remaining := as.twoFALockout.Remaining(user.TwoFactorLockedUntil, now); remaining > 0 {
		as.logger.Warn("two-factor attempt while locked",
			zap.Uint("user_id", user.ID),
			zap.String("ip", client.IPAddress))
		return Forbidden("two-factor verification is locked, try again in %d minutes", RemainingMinutes(remaining))
	}

	if !as.totp.Verify(code, user.TwoFactorSecret) {
		user.TwoFactorFailedAttempts++
		updates := map[string]any{"two_factor_failed_attempts": user.TwoFactorFailedAttempts}
		if lock := as.twoFALockout.NextLock(user.TwoFactorFailedAttempts, now); lock != nil {
			user.TwoFactorLockedUntil = lock
			updates["two_factor_locked_until"] = lock
			as.metrics.IncrementCounter("auth.two_factor_lockouts", nil)
			as.logger.Warn("two-factor lock engaged",
				zap.Uint("user_id", user.ID),
				zap.String("ip", client.IPAddress))
		}
		if err := as.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			as.logger.Error("failed to persist two-factor counters", zap.Error(err))
		}
		as.metrics.IncrementCounter("auth.login_failures", map[string]string{"reason": "bad_totp"})
		return Unauthorized("invalid two-factor code")
	}

	if user.TwoFactorFailedAttempts != 0 || user.TwoFactorLockedUntil != nil {
		err := as.db.WithContext(ctx).Model(user).Updates(map[string]any{
			"two_factor_failed_attempts": 0,
			"two_factor_locked_until":    nil,
		}).Error
		if err != nil {
			as.logger.Error("failed to reset two-factor counters", zap.Error(err))
		}
		user.TwoFactorFailedAttempts = 0
		user.TwoFactorLockedUntil = nil
	}
	return nil
}

func (as *AuthService) registerFailedLogin(ctx context.Context, user *models.User, client ClientContext, now time.Time) {
	user.FailedLoginAttempts++
	updates := map[string]any{
		"failed_login_attempts": user.FailedLoginAttempts,
		"last_failed_login_at":  now,
	}
	if lock := as.loginLockout.NextLock(user.FailedLoginAttempts, now); lock != nil {
		updates["locked_until"] = lock
		as.metrics.IncrementCounter("auth.lockouts", nil)
		as.logger.Warn("account lock engaged",
			zap.Uint("user_id", user.ID),
			zap.String("ip", client.IPAddress),
			zap.Int("failed_attempts", user.FailedLoginAttempts))
		as.notify(ctx, mailer.AccountLocked(user.Email, *lock))
	}
	if err := as.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		as.logger.Error("failed to persist login counters", zap.Error(err))
	}
}

func (as *AuthService) resetLoginCounters(ctx context.Context, user *models.User, now time.Time) error {
	return as.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"failed_login_attempts": 0,
		"last_failed_login_at":  nil,
		"locked_until":          nil,
		"last_login_at":         now,
	}).Error
}

// notify fires a best-effort mail. Failures are logged, never propagated.
func (as *AuthService) notify(ctx context.Context, msg mailer.Message) {
	if err := as.sender.Send(ctx, msg); err != nil {
		as.logger.Warn("notification email failed",
			zap.Error(err),
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject))
	}
}

func profileOf(user *models.User) Profile {
	return Profile{
		ID:               user.ID,
		Email:            user.Email,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		Role:             user.Role,
		TwoFactorEnabled: user.TwoFactorEnabled,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
