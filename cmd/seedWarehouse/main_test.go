package main

import (
	"context"
	"path/filepath"
	"testing"

	"railstock/infrastructure/logger"
	"railstock/infrastructure/sqlite"
	"railstock/infrastructure/sqlite/sqlitetest"
)

func TestSeedCreatesGridAndUser(t *testing.T) {
	db := sqlitetest.Open(t)
	summary, err := seed(context.Background(), db, logger.Nop(), seedOptions{DemoRolls: 3})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if summary.RailsAdded != gridRows*gridCols {
		t.Fatalf("rails added = %d, want %d", summary.RailsAdded, gridRows*gridCols)
	}
	if summary.RollsAdded != 3 {
		t.Fatalf("rolls added = %d, want 3", summary.RollsAdded)
	}
	if n := sqlitetest.Count(t, db, `SELECT COUNT(*) FROM rails WHERE warehouse_id = ?`, "00000000-0000-0000-0000-000000000001"); n != 40 {
		t.Fatalf("rails in default warehouse = %d, want 40", n)
	}
	if n := sqlitetest.Count(t, db, `SELECT COUNT(*) FROM rails WHERE code = 'R-040' AND zone = 'B'`); n != 1 {
		t.Fatalf("R-040 should sit in zone B (row 4)")
	}
	if n := sqlitetest.Count(t, db, `SELECT COUNT(*) FROM users WHERE device_id = ?`, testUserDevice); n != 1 {
		t.Fatalf("test user not bound to %s", testUserDevice)
	}
	if n := sqlitetest.Count(t, db, `SELECT COUNT(*) FROM movements WHERE type = 'RECEIVE'`); n != 3 {
		t.Fatalf("receive movements = %d, want 3", n)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	db := sqlitetest.Open(t)
	first, err := seed(context.Background(), db, logger.Nop(), seedOptions{DemoRolls: 2})
	if err != nil {
		t.Fatalf("first seed: %v", err)
	}
	second, err := seed(context.Background(), db, logger.Nop(), seedOptions{DemoRolls: 2})
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if second.RailsAdded != 0 {
		t.Fatalf("second run added %d rails", second.RailsAdded)
	}
	if second.UserID != first.UserID {
		t.Fatalf("test user changed: %s -> %s", first.UserID, second.UserID)
	}
	if second.RollsAdded != 0 || second.RollsExists != 2 {
		t.Fatalf("second run rolls = %+v", second)
	}
	if n := sqlitetest.Count(t, db, `SELECT COUNT(*) FROM warehouses`); n != 1 {
		t.Fatalf("warehouses = %d, want 1", n)
	}
}

func TestRunSeedsConfiguredDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.db")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("MIGRATIONS_DIR", "")

	t.Setenv("SEED_DEMO_ROLLS", "-1")
	if err := run(); err == nil {
		t.Fatalf("expected error for negative SEED_DEMO_ROLLS")
	}

	t.Setenv("SEED_DEMO_ROLLS", "1")
	if err := run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	db, err := sqlite.OpenDB(path)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if n := sqlitetest.Count(t, db, `SELECT COUNT(*) FROM rolls`); n != 1 {
		t.Fatalf("rolls after run = %d, want 1", n)
	}
}
