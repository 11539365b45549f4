package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"railstock/infrastructure/sqlite"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.OpenDB(filepath.Join(t.TempDir(), "warehouse-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := sqlite.ApplyEmbeddedMigrations(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func TestEnsureIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := Ensure(ctx, db, CreateInput{ID: DefaultID, Name: "Main", Zones: []string{"a", "B", "a", " "}})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(first.Zones) != 2 || first.Zones[0] != "A" || first.Zones[1] != "B" {
		t.Fatalf("expected normalized zones [A B], got %v", first.Zones)
	}

	second, err := Ensure(ctx, db, CreateInput{ID: DefaultID, Name: "Renamed"})
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if second.Name != "Main" {
		t.Fatalf("expected existing warehouse to be returned, got %q", second.Name)
	}

	all, err := List(ctx, db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one warehouse, got %d", len(all))
	}
}

func TestLoadByIDMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := LoadByID(context.Background(), db, "nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestEnsureRequiresName(t *testing.T) {
	db := openTestDB(t)
	if _, err := Ensure(context.Background(), db, CreateInput{Name: "  "}); err == nil {
		t.Fatalf("expected error for blank name")
	}
}
