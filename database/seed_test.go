package database

import (
	"context"
	"testing"

	"github.com/sahilchouksey/exam-prep-api/model"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Init(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestRunSeeds_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	opts := SeedOptions{AdminEmail: "Root@Example.com", AdminPassword: "correct horse 1", DemoExam: true}

	for i := 0; i < 2; i++ {
		if err := RunSeeds(ctx, store.DB(), opts); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	var users []model.User
	store.DB().Find(&users)
	if len(users) != 1 || users[0].Email != "root@example.com" || !users[0].IsAdmin() {
		t.Fatalf("expected one lower-cased admin, got %+v", users)
	}

	var exams []model.Exam
	store.DB().Preload("Sections").Find(&exams)
	if len(exams) != 1 || len(exams[0].Sections) != 3 {
		t.Fatalf("expected one demo exam with three sections, got %d", len(exams))
	}
	if exams[0].Status != model.ExamStatusDraft {
		t.Errorf("demo exam should start as a draft, got %q", exams[0].Status)
	}
}

func TestRunSeeds_NoCredentials(t *testing.T) {
	store := newTestStore(t)
	if err := RunSeeds(context.Background(), store.DB(), SeedOptions{}); err != nil {
		t.Fatalf("missing credentials should not fail: %v", err)
	}
	var count int64
	store.DB().Model(&model.User{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no users, got %d", count)
	}
}

func TestUpsertAdmin_PromotesExistingUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	member := model.User{Email: "user@example.com", Name: "User", PasswordHash: "x", Role: model.RoleUser, Status: model.UserStatusDisabled}
	store.DB().Create(&member)

	created, err := NewSeeder(store.DB()).UpsertAdmin(ctx, "user@example.com", "new password 2", "User")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created {
		t.Error("existing user should be updated, not created")
	}

	var got model.User
	store.DB().First(&got, member.ID)
	if !got.IsAdmin() || !got.IsActive() {
		t.Errorf("expected an active admin, got role=%q status=%q", got.Role, got.Status)
	}
	if got.TokenVersion != member.TokenVersion+1 {
		t.Errorf("sessions should be revoked, token version %d", got.TokenVersion)
	}
	if got.PasswordHash == "x" {
		t.Error("password was not reset")
	}
}
