package credstore

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "creds", "credentials.db"), testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveLoadDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, Credential{Server: "http://localhost:8000", Username: "alice", Token: "t1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(ctx, "http://localhost:8000")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("expected credential, got nil")
	}
	if got.Token != "t1" || got.Username != "alice" || got.TokenType != "bearer" {
		t.Fatalf("unexpected credential: %+v", got)
	}
	if got.LastUsedAt.IsZero() {
		t.Fatal("expected last_used_at to be set")
	}

	if err := s.Delete(ctx, "http://localhost:8000"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = s.Load(ctx, "http://localhost:8000")
	if err != nil {
		t.Fatalf("load after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after delete, got %+v", got)
	}
}

func TestStore_SaveReplacesToken(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Save(ctx, Credential{Server: "srv", Username: "alice", Token: "old"})
	if err := s.Save(ctx, Credential{Server: "srv", Username: "alice", Token: "new"}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 credential, got %d", len(all))
	}
	if all[0].Token != "new" {
		t.Fatalf("expected replaced token, got %q", all[0].Token)
	}
}

func TestStore_SaveRequiresServerAndToken(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save(context.Background(), Credential{Server: "srv"}); err == nil {
		t.Fatal("expected error for empty token")
	}
	if err := s.Save(context.Background(), Credential{Token: "t"}); err == nil {
		t.Fatal("expected error for empty server")
	}
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	s := openTestStore(t)
	if err := s.Delete(context.Background(), "nowhere"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestStore_Touch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.Save(ctx, Credential{Server: "srv", Token: "t"})
	if err := s.Touch(ctx, "srv"); err != nil {
		t.Fatalf("touch: %v", err)
	}
}

func TestRunMigrations_FreshAndIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()

	if v, err := SchemaVersion(ctx, db); err != nil || v != 0 {
		t.Fatalf("fresh db: version=%d err=%v", v, err)
	}
	for i := 0; i < 2; i++ {
		if err := RunMigrations(ctx, db, testLogger()); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}
	v, err := SchemaVersion(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Fatalf("expected version %d, got %d", schemaVersion, v)
	}
}

func TestRunMigrations_PartiallyAppliedUpgrade(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()

	// v1 applied by hand, v2's column already present but unrecorded.
	if _, err := db.Exec(migrations[0].SQL); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("ALTER TABLE credentials ADD COLUMN last_used_at DATETIME"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, description TEXT, applied_at DATETIME)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO schema_version (version, description) VALUES (1, 'manual')"); err != nil {
		t.Fatal(err)
	}

	if err := RunMigrations(ctx, db, testLogger()); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if v, _ := SchemaVersion(ctx, db); v != schemaVersion {
		t.Fatalf("expected version %d, got %d", schemaVersion, v)
	}
}
