// Package sqlitetest opens migrated throwaway databases and seeds reference
// rows for package tests.
package sqlitetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"railstock/infrastructure/sqlite"
)

// WarehouseID is the warehouse every seeded rail belongs to.
const WarehouseID = "wh-test"

// Open returns a migrated database in a temp dir, closed on cleanup.
func Open(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.OpenDB(filepath.Join(t.TempDir(), "railstock-test.db"))
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

// Exec runs raw statements in one write transaction.
func Exec(t *testing.T, db *sqlite.DB, query string, args ...any) {
	t.Helper()
	err := db.WithWriteTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// SeedRail inserts an active or inactive rail with id "rail-<code>" and
// returns that id. The test warehouse is created on first use.
func SeedRail(t *testing.T, db *sqlite.DB, code string, active bool) string {
	t.Helper()
	Exec(t, db, `INSERT OR IGNORE INTO warehouses (id, name, zones) VALUES (?, 'Test warehouse', '["A","B"]')`, WarehouseID)
	id := "rail-" + code
	Exec(t, db, `INSERT INTO rails (id, code, name, warehouse_id, zone, row_index, col_index, pos_index, is_active)
VALUES (?, ?, ?, ?, 'A', 0, 0, 0, ?)`, id, code, "Rail "+code, WarehouseID, active)
	return id
}

// SeedUser inserts a worker bound to deviceID.
func SeedUser(t *testing.T, db *sqlite.DB, id, name, deviceID string) {
	t.Helper()
	Exec(t, db, `INSERT INTO users (id, name, device_id, role) VALUES (?, ?, ?, 'worker')`, id, name, deviceID)
}

// SeedRoll inserts an active roll without a location.
func SeedRoll(t *testing.T, db *sqlite.DB, id, ean string) {
	t.Helper()
	now := time.Now().UTC()
	Exec(t, db, `INSERT INTO rolls (id, ean, material_name, status, received_at, updated_at) VALUES (?, ?, 'Kraft', 'active', ?, ?)`, id, ean, now, now)
}

// Count returns the row count of query.
func Count(t *testing.T, db *sqlite.DB, query string, args ...any) int {
	t.Helper()
	var n int
	err := db.WithReadTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(query, args...).Scan(ctx, &n)
	})
	if err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}
