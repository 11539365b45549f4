package rails

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"railstock/infrastructure/apperror"
	"railstock/infrastructure/cache"
	"railstock/infrastructure/sqlite"
	"railstock/models"
)

// FindByCode loads a rail by code regardless of whether it is active.
func FindByCode(ctx context.Context, idb bun.IDB, code string) (models.Rail, error) {
	var rail models.Rail
	err := idb.NewSelect().Model(&rail).Where("ra.code = ?", NormalizeCode(code)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Rail{}, apperror.NotFound("Rail not found")
	}
	if err != nil {
		return models.Rail{}, fmt.Errorf("load rail: %w", err)
	}
	return rail, nil
}

// Resolve returns the rail for code, reading through railCache.
func Resolve(ctx context.Context, idb bun.IDB, railCache *cache.RailCache, code string) (models.Rail, error) {
	if rail, ok := railCache.Get(code); ok {
		return rail, nil
	}
	rail, err := FindByCode(ctx, idb, code)
	if err != nil {
		return models.Rail{}, err
	}
	railCache.Add(rail)
	return rail, nil
}

// List returns active rails in grid order with their roll counts.
func List(ctx context.Context, db *sqlite.DB, f ListFilters) ([]RailView, error) {
	var rows []struct {
		models.Rail `bun:",extend"`
		RollCount   int `bun:"roll_count"`
	}
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().
			Model(&rows).
			ColumnExpr("ra.*").
			ColumnExpr("(SELECT COUNT(*) FROM locations l WHERE l.rail_id = ra.id) AS roll_count").
			Where("ra.is_active = 1")
		if id := strings.TrimSpace(f.WarehouseID); id != "" {
			q = q.Where("ra.warehouse_id = ?", id)
		}
		if zone := strings.TrimSpace(f.Zone); zone != "" {
			q = q.Where("ra.zone = ?", strings.ToUpper(zone))
		}
		return q.OrderExpr("ra.row_index ASC, ra.col_index ASC, ra.pos_index ASC").Scan(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list rails: %w", err)
	}
	out := make([]RailView, 0, len(rows))
	for _, row := range rows {
		out = append(out, RailView{Rail: row.Rail, RollCount: row.RollCount})
	}
	return out, nil
}

// LoadView returns one rail with its warehouse and roll count.
func LoadView(ctx context.Context, db *sqlite.DB, code string) (RailView, error) {
	var view RailView
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		rail, err := FindByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		view.Rail = rail
		if err := tx.NewRaw(`SELECT COUNT(*) FROM locations WHERE rail_id = ?`, rail.ID).Scan(ctx, &view.RollCount); err != nil {
			return fmt.Errorf("count rail rolls: %w", err)
		}
		var wh models.Warehouse
		err = tx.NewSelect().Model(&wh).Where("w.id = ?", rail.WarehouseID).Limit(1).Scan(ctx)
		if err == nil {
			view.Warehouse = &wh
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load rail warehouse: %w", err)
		}
		return nil
	})
	return view, err
}

// LoadInventory returns the active rolls on the rail with code.
func LoadInventory(ctx context.Context, db *sqlite.DB, code string) (Inventory, error) {
	inv := Inventory{Rolls: make([]InventoryRoll, 0)}
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		rail, err := FindByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		inv.RailCode = rail.Code
		inv.RailName = rail.Name

		var rows []struct {
			models.Roll `bun:",extend"`
			PlacedAt    time.Time `bun:"placed_at"`
			LastMovedAt time.Time `bun:"last_moved_at"`
		}
		if err := tx.NewSelect().
			Model(&rows).
			ColumnExpr("ro.*").
			ColumnExpr("l.placed_at, l.last_moved_at").
			Join("JOIN locations AS l ON l.roll_id = ro.id").
			Where("l.rail_id = ?", rail.ID).
			Where("ro.status = ?", models.RollStatusActive).
			OrderExpr("l.last_moved_at DESC").
			Scan(ctx); err != nil {
			return fmt.Errorf("load rail inventory: %w", err)
		}
		for _, row := range rows {
			inv.Rolls = append(inv.Rolls, InventoryRoll{Roll: row.Roll, PlacedAt: row.PlacedAt, LastMovedAt: row.LastMovedAt})
		}
		return nil
	})
	return inv, err
}

// SeedGrid creates rails R-001.. laid out row by row. Codes that already
// exist are left untouched. It returns the number of rails inserted.
func SeedGrid(ctx context.Context, db *sqlite.DB, in GridInput) (int, error) {
	if in.Rows <= 0 || in.Cols <= 0 {
		return 0, fmt.Errorf("grid needs positive rows and cols")
	}
	inserted := 0
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		for row := 0; row < in.Rows; row++ {
			for col := 0; col < in.Cols; col++ {
				code := fmt.Sprintf("R-%03d", row*in.Cols+col+1)
				var zone *string
				if len(in.Zones) > 0 {
					z := in.Zones[row%len(in.Zones)]
					zone = &z
				}
				res, err := tx.ExecContext(ctx, `
INSERT INTO rails (id, code, name, warehouse_id, zone, row_index, col_index, pos_index, is_active, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 0, 1, ?)
ON CONFLICT (code) DO NOTHING`, uuid.NewString(), code, "Kolejnice "+code, in.WarehouseID, zone, row, col, now)
				if err != nil {
					return fmt.Errorf("insert rail %s: %w", code, err)
				}
				if n, err := res.RowsAffected(); err == nil {
					inserted += int(n)
				}
			}
		}
		return nil
	})
	return inserted, err
}

// LoadLabels returns label data for active rails, optionally for one zone.
func LoadLabels(ctx context.Context, db *sqlite.DB, zone string) ([]RailLabelData, error) {
	views, err := List(ctx, db, ListFilters{Zone: zone})
	if err != nil {
		return nil, err
	}
	labels := make([]RailLabelData, 0, len(views))
	for _, v := range views {
		l := RailLabelData{Code: v.Code, Name: v.Name}
		if v.Zone != nil {
			l.Zone = *v.Zone
		}
		labels = append(labels, l)
	}
	return labels, nil
}

// NormalizeCode upper-cases and trims a scanned rail code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
