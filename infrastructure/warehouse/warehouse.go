package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"railstock/infrastructure/sqlite"
	"railstock/models"
)

// DefaultID is the fixed id of the warehouse created by the seed command.
const DefaultID = "00000000-0000-0000-0000-000000000001"

type CreateInput struct {
	ID    string
	Name  string
	Zones []string
}

func List(ctx context.Context, db *sqlite.DB) ([]models.Warehouse, error) {
	warehouses := make([]models.Warehouse, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&warehouses).OrderExpr("name ASC, id ASC").Scan(ctx)
	})
	return warehouses, err
}

func LoadByID(ctx context.Context, db *sqlite.DB, id string) (models.Warehouse, error) {
	var w models.Warehouse
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&w).Where("id = ?", id).Limit(1).Scan(ctx)
	})
	return w, err
}

// Ensure creates the warehouse when no row with input.ID exists and returns
// the stored row either way.
func Ensure(ctx context.Context, db *sqlite.DB, input CreateInput) (models.Warehouse, error) {
	var w models.Warehouse
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return w, fmt.Errorf("warehouse name is required")
	}
	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}
	zones := normalizeZones(input.Zones)

	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().Model(&w).Where("id = ?", id).Limit(1).Scan(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		w = models.Warehouse{ID: id, Name: name, Zones: zones, CreatedAt: time.Now().UTC()}
		_, err = tx.NewInsert().Model(&w).Exec(ctx)
		return err
	})
	return w, err
}

func normalizeZones(zones []string) []string {
	out := make([]string, 0, len(zones))
	seen := make(map[string]struct{}, len(zones))
	for _, z := range zones {
		z = strings.ToUpper(strings.TrimSpace(z))
		if z == "" {
			continue
		}
		if _, ok := seen[z]; ok {
			continue
		}
		seen[z] = struct{}{}
		out = append(out, z)
	}
	return out
}
