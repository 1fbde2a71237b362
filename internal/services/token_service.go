package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/config"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/utils"
	"github.com/nigeier/dk-vertragsmgmt-sub000/pkg/metrics"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessClaims is the payload of a short-lived signed access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Role      models.UserRole `json:"role"`
	TokenType string          `json:"typ"`
}

type refreshClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
}

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // access token lifetime in seconds
}

// TokenService issues signed access tokens and rotates persisted refresh
// tokens. The refresh token the client sees is a signed wrapper around an
// opaque value; only the hash of the opaque value is stored.
type TokenService struct {
	db      *gorm.DB
	cfg     config.AuthConfig
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewTokenService(database *gorm.DB, cfg config.AuthConfig, logger *zap.Logger, collector *metrics.Collector) *TokenService {
	return &TokenService{
		db:      database,
		cfg:     cfg,
		logger:  logger.With(zap.String("service", "token_service")),
		metrics: collector,
	}
}

// IssuePair mints an access token and a brand-new persisted refresh token.
// IP and user agent are recorded for audit, not enforced on later use.
func (ts *TokenService) IssuePair(ctx context.Context, user *models.User, ip, userAgent string) (*TokenPair, error) {
	access, err := ts.issueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := ts.issueRefreshToken(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	ts.metrics.IncrementCounter("tokens.pairs_issued", nil)
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(ts.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (ts *TokenService) issueAccessToken(user *models.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.cfg.AccessTokenTTL)),
		},
		Email:     user.Email,
		Name:      user.FullName(),
		Role:      user.Role,
		TokenType: tokenTypeAccess,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(ts.cfg.JWTSecret))
}

func (ts *TokenService) issueRefreshToken(ctx context.Context, userID uint, ip, userAgent string) (string, error) {
	now := time.Now()
	opaque := uuid.New().String()
	expiresAt := now.Add(ts.cfg.RefreshTokenTTL)

	row := models.RefreshToken{
		TokenHash: utils.HashToken(opaque),
		UserID:    userID,
		IPAddress: ip,
		UserAgent: userAgent,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}
	if err := ts.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", err
	}

	claims := refreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ID:        opaque,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenType: tokenTypeRefresh,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(ts.cfg.JWTSecret))
}

// Rotate exchanges a refresh token for a new pair. Exactly one concurrent
// rotation of the same token can succeed. Presenting an already-revoked
// token is treated as theft: every refresh token of that user is revoked
// before the call fails.
func (ts *TokenService) Rotate(ctx context.Context, rawToken string, ip, userAgent string) (*models.User, *TokenPair, error) {
	userID, opaque, err := ts.parseRefreshToken(rawToken)
	if err != nil {
		return nil, nil, Unauthorized("invalid refresh token")
	}

	now := time.Now()
	var row models.RefreshToken
	err = ts.db.WithContext(ctx).Where("token_hash = ?", utils.HashToken(opaque)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, Unauthorized("invalid refresh token")
		}
		return nil, nil, err
	}

	if row.RevokedAt != nil {
		// Reuse after revocation is the theft signal: contain by killing
		// every session of this user.
		revoked, revokeErr := ts.RevokeAll(ctx, row.UserID)
		if revokeErr != nil {
			ts.logger.Error("failed to revoke sessions after token reuse", zap.Error(revokeErr), zap.Uint("user_id", row.UserID))
		}
		ts.metrics.IncrementCounter("tokens.reuse_detected", nil)
		ts.logger.Warn("refresh token reuse detected, all sessions revoked",
			zap.Uint("user_id", row.UserID),
			zap.String("ip", ip),
			zap.Int64("sessions_revoked", revoked))
		return nil, nil, Unauthorized("invalid refresh token")
	}
	if now.After(row.ExpiresAt) {
		return nil, nil, Unauthorized("refresh token expired")
	}

	// Conditional revoke: if another rotation of the same token won the
	// race, RowsAffected is zero and this use counts as reuse.
	res := ts.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", row.ID).
		Update("revoked_at", now)
	if res.Error != nil {
		return nil, nil, res.Error
	}
	if res.RowsAffected == 0 {
		revoked, revokeErr := ts.RevokeAll(ctx, row.UserID)
		if revokeErr != nil {
			ts.logger.Error("failed to revoke sessions after rotation race", zap.Error(revokeErr), zap.Uint("user_id", row.UserID))
		}
		ts.metrics.IncrementCounter("tokens.reuse_detected", nil)
		ts.logger.Warn("concurrent refresh token use detected, all sessions revoked",
			zap.Uint("user_id", row.UserID),
			zap.String("ip", ip),
			zap.Int64("sessions_revoked", revoked))
		return nil, nil, Unauthorized("invalid refresh token")
	}

	var user models.User
	if err := ts.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, nil, Unauthorized("invalid refresh token")
	}
	if !user.CanAuthenticate() {
		return nil, nil, Forbidden("account is not active")
	}

	pair, err := ts.IssuePair(ctx, &user, ip, userAgent)
	if err != nil {
		return nil, nil, err
	}
	ts.metrics.IncrementCounter("tokens.rotations", nil)
	return &user, pair, nil
}

// Revoke marks the presented refresh token revoked. An invalid or unknown
// token is a no-op so logout never fails the caller.
func (ts *TokenService) Revoke(ctx context.Context, rawToken string) (int64, error) {
	_, opaque, err := ts.parseRefreshToken(rawToken)
	if err != nil {
		return 0, nil
	}
	res := ts.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", utils.HashToken(opaque)).
		Update("revoked_at", time.Now())
	return res.RowsAffected, res.Error
}

// RevokeAll revokes every non-revoked refresh token of a user and returns
// how many were revoked. Already-revoked tokens are not counted again.
func (ts *TokenService) RevokeAll(ctx context.Context, userID uint) (int64, error) {
	res := ts.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now())
	return res.RowsAffected, res.Error
}

// CleanupExpired permanently deletes refresh tokens that are expired or
// revoked. Run periodically by the scheduler.
func (ts *TokenService) CleanupExpired(ctx context.Context) (int64, error) {
	res := ts.db.WithContext(ctx).
		Where("expires_at < ? OR revoked_at IS NOT NULL", time.Now()).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		ts.logger.Info("cleaned up refresh tokens", zap.Int64("deleted", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// VerifyAccessToken checks signature, expiry and type tag of an access token.
func (ts *TokenService) VerifyAccessToken(rawToken string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(ts.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, Unauthorized("invalid access token")
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, Unauthorized("invalid access token")
	}
	return claims, nil
}

func (ts *TokenService) parseRefreshToken(rawToken string) (uint, string, error) {
	claims := &refreshClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(ts.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, "", Unauthorized("invalid refresh token")
	}
	if claims.TokenType != tokenTypeRefresh || claims.ID == "" {
		return 0, "", Unauthorized("invalid refresh token")
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", Unauthorized("invalid refresh token")
	}
	return uint(id), claims.ID, nil
}
