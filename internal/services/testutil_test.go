package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/config"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/mailer"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/utils"
	"github.com/nigeier/dk-vertragsmgmt-sub000/pkg/metrics"
)

var testDBSeq atomic.Int64

// newTestDB opens a private in-memory database with the full schema.
// A single connection keeps concurrent test goroutines serialized the way
// a single write transaction would on the real server.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:servicetest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("unwrap test database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return database
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:          "0123456789abcdef0123456789abcdef",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		MaxFailedAttempts:  5,
		LockoutDuration:    15 * time.Minute,
		TwoFactorMaxFailed: 5,
		TwoFactorLockout:   10 * time.Minute,
		TOTPIssuer:         "vertragsmgmt-test",
		BcryptCost:         bcrypt.MinCost,
	}
}

// fakeSender records outbound mail and can be told to fail for specific
// recipients.
type fakeSender struct {
	mu     sync.Mutex
	sent   []mailer.Message
	failTo map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{failTo: map[string]bool{}}
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[msg.To] {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) messages() []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mailer.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

type testEnv struct {
	db        *gorm.DB
	sender    *fakeSender
	metrics   *metrics.Collector
	audit     *AuditService
	tokens    *TokenService
	auth      *AuthService
	reminders *ReminderService
	contracts *ContractService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database := newTestDB(t)
	sender := newFakeSender()
	collector := metrics.NewCollector()
	log := zap.NewNop()
	cfg := testAuthConfig()

	audit := NewAuditService(database, log, collector)
	tokens := NewTokenService(database, cfg, log, collector)
	auth := NewAuthService(database, cfg, tokens, NewTOTPEngine(cfg.TOTPIssuer), sender, audit, log, collector)
	reminders := NewReminderService(database, sender, "https://contracts.example.com", log, collector)
	contracts := NewContractService(database, config.ContractsConfig{NumberPrefix: "CTR"}, audit, reminders, log, collector)

	return &testEnv{
		db:        database,
		sender:    sender,
		metrics:   collector,
		audit:     audit,
		tokens:    tokens,
		auth:      auth,
		reminders: reminders,
		contracts: contracts,
	}
}

func createUser(t *testing.T, database *gorm.DB, email, password string, mutate ...func(*models.User)) *models.User {
	t.Helper()
	hash, err := utils.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         models.RoleUser,
		Status:       models.UserActive,
		IsActive:     true,
	}
	for _, fn := range mutate {
		fn(&user)
	}
	if err := database.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &user
}

func createContract(t *testing.T, env *testEnv, ownerID uint, endDate *time.Time) *models.Contract {
	t.Helper()
	contract, err := env.contracts.Create(context.Background(), ownerID, ContractInput{
		Title:   "Service Agreement",
		EndDate: endDate,
	}, AuditContext{})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	return contract
}

func countAuditRows(t *testing.T, database *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := database.Model(&models.AuditLog{}).Count(&n).Error; err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	return n
}
