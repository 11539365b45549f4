// Package locations keeps the single current-placement row of each roll.
package locations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"railstock/infrastructure/apperror"
	"railstock/infrastructure/sqlite"
	"railstock/models"
)

// Place creates the location row of a freshly received roll.
func Place(ctx context.Context, idb bun.IDB, rollID, railID string, at time.Time) (models.Location, error) {
	loc := models.Location{RollID: rollID, RailID: &railID, PlacedAt: at, LastMovedAt: at}
	if _, err := idb.NewInsert().Model(&loc).Exec(ctx); err != nil {
		if sqlite.IsUniqueViolation(err) {
			return models.Location{}, apperror.Conflict("roll %s already has a location", rollID)
		}
		if sqlite.IsForeignKeyViolation(err) {
			return models.Location{}, apperror.NotFound("roll or rail not found")
		}
		return models.Location{}, fmt.Errorf("insert location: %w", err)
	}
	return loc, nil
}

// Find returns the location row of rollID, or NotFound.
func Find(ctx context.Context, idb bun.IDB, rollID string) (models.Location, error) {
	var loc models.Location
	err := idb.NewSelect().Model(&loc).Where("l.roll_id = ?", rollID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Location{}, apperror.NotFound("location of roll %s not found", rollID)
	}
	if err != nil {
		return models.Location{}, fmt.Errorf("load location: %w", err)
	}
	return loc, nil
}

// CurrentRailOf returns the rail rollID sits on, or nil when the roll has
// been removed. A roll with no location row is NotFound.
func CurrentRailOf(ctx context.Context, idb bun.IDB, rollID string) (*string, error) {
	loc, err := Find(ctx, idb, rollID)
	if err != nil {
		return nil, err
	}
	return loc.RailID, nil
}

// Relocate points rollID at newRailID. placed_at is left as it was.
func Relocate(ctx context.Context, idb bun.IDB, rollID, newRailID string, at time.Time) (models.Location, error) {
	loc, err := Find(ctx, idb, rollID)
	if err != nil {
		return models.Location{}, err
	}
	if loc.RailID != nil && *loc.RailID == newRailID {
		return models.Location{}, apperror.Conflict("roll is already on this rail")
	}
	loc.RailID = &newRailID
	loc.LastMovedAt = at
	if _, err := idb.NewUpdate().
		Model(&loc).
		Column("rail_id", "last_moved_at").
		WherePK().
		Exec(ctx); err != nil {
		if sqlite.IsForeignKeyViolation(err) {
			return models.Location{}, apperror.NotFound("rail not found")
		}
		return models.Location{}, fmt.Errorf("update location: %w", err)
	}
	return loc, nil
}

// Clear detaches rollID from its rail and returns the rail it was on.
// last_moved_at keeps the time of the last placement change.
func Clear(ctx context.Context, idb bun.IDB, rollID string) (*string, error) {
	loc, err := Find(ctx, idb, rollID)
	if err != nil {
		return nil, err
	}
	prior := loc.RailID
	if _, err := idb.NewUpdate().
		TableExpr("locations").
		Set("rail_id = NULL").
		Where("roll_id = ?", rollID).
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("clear location: %w", err)
	}
	return prior, nil
}

// CountByRail returns the number of rolls currently on each rail.
func CountByRail(ctx context.Context, idb bun.IDB) (map[string]int, error) {
	var rows []struct {
		RailID string `bun:"rail_id"`
		Count  int    `bun:"count"`
	}
	err := idb.NewSelect().
		TableExpr("locations").
		ColumnExpr("rail_id, COUNT(*) AS count").
		Where("rail_id IS NOT NULL").
		GroupExpr("rail_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("count rolls per rail: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.RailID] = row.Count
	}
	return out, nil
}
