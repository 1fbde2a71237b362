package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/storage"
)

func newRetentionFixture(t *testing.T, env *testEnv, retentionDays int) (*RetentionService, *DocumentService, storage.Store) {
	t.Helper()
	store, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}
	docs := NewDocumentService(env.db, store, env.audit, zap.NewNop(), env.metrics)
	retention := NewRetentionService(env.db, store, env.audit, retentionDays, zap.NewNop(), env.metrics)
	return retention, docs, store
}

func uploadDeleted(t *testing.T, env *testEnv, docs *DocumentService, contractID, ownerID uint, name string, deletedAt time.Time) *models.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := docs.Upload(ctx, contractID, name, pdfStub, ownerID, false)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	err = env.db.Model(&models.Document{}).Where("id = ?", doc.ID).Updates(map[string]any{
		"deleted_at":    deletedAt,
		"deleted_by_id": ownerID,
	}).Error
	if err != nil {
		t.Fatalf("mark deleted: %v", err)
	}
	return doc
}

func TestSweepPurgesOnlyExpiredDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	retention, docs, store := newRetentionFixture(t, env, 90)
	owner := createUser(t, env.db, "owner@example.com", "pw")
	contract := createContract(t, env, owner.ID, nil)

	old := uploadDeleted(t, env, docs, contract.ID, owner.ID, "old.pdf", time.Now().AddDate(0, 0, -91))
	recent := uploadDeleted(t, env, docs, contract.ID, owner.ID, "recent.pdf", time.Now().AddDate(0, 0, -10))
	live, err := docs.Upload(ctx, contract.ID, "live.pdf", pdfStub, owner.ID, false)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	result, err := retention.RunSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Processed != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v", result)
	}

	var n int64
	env.db.Model(&models.Document{}).Where("id = ?", old.ID).Count(&n)
	if n != 0 {
		t.Fatal("expired document row survived the sweep")
	}
	if _, err := store.Stat(ctx, old.StorageKey); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expired bytes still present: %v", err)
	}

	for _, doc := range []*models.Document{recent, live} {
		env.db.Model(&models.Document{}).Where("id = ?", doc.ID).Count(&n)
		if n != 1 {
			t.Fatalf("document %d vanished", doc.ID)
		}
		if _, err := store.Stat(ctx, doc.StorageKey); err != nil {
			t.Fatalf("bytes of document %d vanished: %v", doc.ID, err)
		}
	}
}

func TestSweepWritesSystemAudit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	retention, docs, _ := newRetentionFixture(t, env, 90)
	owner := createUser(t, env.db, "owner@example.com", "pw")
	contract := createContract(t, env, owner.ID, nil)
	uploadDeleted(t, env, docs, contract.ID, owner.ID, "old.pdf", time.Now().AddDate(0, 0, -120))

	before := countAuditRows(t, env.db)
	if _, err := retention.RunSweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got := countAuditRows(t, env.db); got != before+1 {
		t.Fatalf("audit rows = %d, want %d", got, before+1)
	}

	var row models.AuditLog
	if err := env.db.Order("id DESC").First(&row).Error; err != nil {
		t.Fatalf("load audit row: %v", err)
	}
	if row.Action != models.AuditDelete || row.ActorUserID == nil {
		t.Fatalf("audit row = %+v", row)
	}

	var system models.User
	if err := env.db.First(&system, *row.ActorUserID).Error; err != nil {
		t.Fatalf("load system account: %v", err)
	}
	if system.Email != "system@internal" {
		t.Fatalf("actor = %q, want the system account", system.Email)
	}
	// The system account must never be able to log in.
	if system.IsActive || system.CanAuthenticate() {
		t.Fatal("system account is loginable")
	}
	if _, err := env.auth.Login(ctx, "system@internal", "!", "", ClientContext{}); err == nil {
		t.Fatal("login as system account succeeded")
	}
}

func TestSweepReusesSystemAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	retention, docs, _ := newRetentionFixture(t, env, 90)
	owner := createUser(t, env.db, "owner@example.com", "pw")
	contract := createContract(t, env, owner.ID, nil)

	uploadDeleted(t, env, docs, contract.ID, owner.ID, "a.pdf", time.Now().AddDate(0, 0, -120))
	if _, err := retention.RunSweep(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	uploadDeleted(t, env, docs, contract.ID, owner.ID, "b.pdf", time.Now().AddDate(0, 0, -120))
	if _, err := retention.RunSweep(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	var n int64
	env.db.Model(&models.User{}).Where("email = ?", "system@internal").Count(&n)
	if n != 1 {
		t.Fatalf("system accounts = %d, want 1", n)
	}
}

func TestSweepWithNothingToDo(t *testing.T) {
	env := newTestEnv(t)
	retention, _, _ := newRetentionFixture(t, env, 90)

	result, err := retention.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Processed != 0 || result.Failed != 0 {
		t.Fatalf("result = %+v", result)
	}
	// An empty sweep writes no audit noise.
	if countAuditRows(t, env.db) != 0 {
		t.Fatal("empty sweep produced audit rows")
	}
}
