package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Nithesh414/Bloom-Alert/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := New(db, nil)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func mustCreateUser(t *testing.T, s *Store, username string) models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), username, "hash-"+username)
	if err != nil {
		t.Fatalf("CreateUser(%q): %v", username, err)
	}
	return u
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	version, err := store.MigrationVersion(ctx)
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
}

func TestCreateAndGetUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := mustCreateUser(t, store, "alice")
	if created.ID == 0 {
		t.Fatal("expected non-zero user id")
	}

	got, err := store.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got != created {
		t.Errorf("got %+v, want %+v", got, created)
	}

	if _, err := store.GetUserByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing user err = %v, want ErrNotFound", err)
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	mustCreateUser(t, store, "alice")

	_, err := store.CreateUser(context.Background(), "alice", "other")
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate err = %v, want ErrDuplicate", err)
	}
}

func TestReports_ListAndOwnership(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	alice := mustCreateUser(t, store, "alice")
	bob := mustCreateUser(t, store, "bob")

	inputs := []models.Report{
		{UserID: alice.ID, ImageFilename: "a1.png", DateTime: "2025-03-01T08:00", FlowerName: "Rose"},
		{UserID: alice.ID, ImageFilename: "a2.png", DateTime: "2025-03-05T08:00", FlowerName: "Lotus"},
		{UserID: bob.ID, ImageFilename: "b1.png", DateTime: "2025-03-09T08:00", FlowerName: "Tulip"},
		{UserID: alice.ID, ImageFilename: "a3.png", DateTime: "2025-03-05T08:00", FlowerName: "Jasmine"},
	}
	var ids []int64
	for _, r := range inputs {
		created, err := store.CreateReport(ctx, r)
		if err != nil {
			t.Fatalf("CreateReport: %v", err)
		}
		ids = append(ids, created.ID)
	}

	all, err := store.ListReports(ctx)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len(ListReports) = %d, want 4", len(all))
	}

	mine, err := store.ListReportsByUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListReportsByUser: %v", err)
	}
	wantOrder := []string{"a3.png", "a2.png", "a1.png"}
	if len(mine) != len(wantOrder) {
		t.Fatalf("len(ListReportsByUser) = %d, want %d", len(mine), len(wantOrder))
	}
	for i, name := range wantOrder {
		if mine[i].ImageFilename != name {
			t.Errorf("mine[%d] = %s, want %s", i, mine[i].ImageFilename, name)
		}
	}

	if _, err := store.GetReport(ctx, bob.ID, ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReport other owner err = %v, want ErrNotFound", err)
	}
	got, err := store.GetReport(ctx, alice.ID, ids[0])
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.FlowerName != "Rose" {
		t.Errorf("FlowerName = %q, want Rose", got.FlowerName)
	}
}

func TestListReportsByUser_Empty(t *testing.T) {
	store := setupTestStore(t)
	u := mustCreateUser(t, store, "carol")

	reports, err := store.ListReportsByUser(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ListReportsByUser: %v", err)
	}
	if reports == nil || len(reports) != 0 {
		t.Errorf("reports = %#v, want empty non-nil slice", reports)
	}
}

func TestUpdateReport(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	alice := mustCreateUser(t, store, "alice")
	bob := mustCreateUser(t, store, "bob")

	r, err := store.CreateReport(ctx, models.Report{UserID: alice.ID, ImageFilename: "x.png", FlowerName: "Rose"})
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}

	fields := models.ReportFields{Location: "Park", DateTime: "2025-04-01", FlowerName: "Lily", Intensity: "High"}
	updated, err := store.UpdateReport(ctx, alice.ID, r.ID, fields)
	if err != nil {
		t.Fatalf("UpdateReport: %v", err)
	}
	if updated.Location != "Park" || updated.FlowerName != "Lily" || updated.Intensity != "High" || updated.ImageFilename != "x.png" {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := store.UpdateReport(ctx, bob.ID, r.ID, fields); !errors.Is(err, ErrNotFound) {
		t.Errorf("update by other user err = %v, want ErrNotFound", err)
	}
	if _, err := store.UpdateReport(ctx, alice.ID, r.ID+100, fields); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing report err = %v, want ErrNotFound", err)
	}
}

func TestSessions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, store, "alice")
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	live := models.Session{Token: "live", UserID: u.ID, Username: u.Username, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	expired := models.Session{Token: "old", UserID: u.ID, Username: u.Username, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	for _, s := range []models.Session{live, expired} {
		if err := store.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession(%s): %v", s.Token, err)
		}
	}

	got, err := store.GetSession(ctx, "live")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != live {
		t.Errorf("GetSession = %+v, want %+v", got, live)
	}

	n, err := store.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if _, err := store.GetSession(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session err = %v, want ErrNotFound", err)
	}

	if err := store.DeleteSession(ctx, "live"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := store.DeleteSession(ctx, "live"); err != nil {
		t.Errorf("DeleteSession of unknown token: %v", err)
	}
	if _, err := store.GetSession(ctx, "live"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted session err = %v, want ErrNotFound", err)
	}
}
