package movements

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"railstock/infrastructure/apperror"
	"railstock/infrastructure/sqlite"
	"railstock/models"
)

// Validate checks the shape of a movement before it reaches the store.
func Validate(in AppendInput) error {
	if !in.Type.Valid() {
		return apperror.Validation("unknown movement type %q", in.Type)
	}
	if strings.TrimSpace(in.RollID) == "" {
		return apperror.Validation("movement roll is required")
	}
	if strings.TrimSpace(in.UserID) == "" {
		return apperror.Validation("movement user is required")
	}
	if in.At.IsZero() {
		return apperror.Validation("movement time is required")
	}
	switch in.Type {
	case models.MovementReceive:
		if in.FromRailID != nil || in.ToRailID == nil {
			return apperror.Validation("RECEIVE needs a target rail and no source rail")
		}
	case models.MovementMove:
		if in.FromRailID == nil || in.ToRailID == nil {
			return apperror.Validation("MOVE needs source and target rails")
		}
		if *in.FromRailID == *in.ToRailID {
			return apperror.Validation("MOVE source and target rails must differ")
		}
	case models.MovementRemove:
		if in.ToRailID != nil {
			return apperror.Validation("REMOVE must not have a target rail")
		}
	}
	if err := in.Attributes.Check(in.Type); err != nil {
		return apperror.Validation("%v", err)
	}
	return nil
}

// Append inserts one movement. It never modifies existing rows.
func Append(ctx context.Context, idb bun.IDB, in AppendInput) (models.Movement, error) {
	if err := Validate(in); err != nil {
		return models.Movement{}, err
	}
	m := models.Movement{
		ID:         uuid.NewString(),
		Type:       in.Type,
		RollID:     in.RollID,
		FromRailID: in.FromRailID,
		ToRailID:   in.ToRailID,
		UserID:     in.UserID,
		DeviceID:   in.DeviceID,
		At:         in.At,
	}
	if !in.Attributes.Empty() {
		m.Attributes = in.Attributes
	}
	if _, err := idb.NewInsert().Model(&m).Exec(ctx); err != nil {
		if sqlite.IsForeignKeyViolation(err) {
			return models.Movement{}, apperror.NotFound("movement references an unknown roll, rail or user")
		}
		return models.Movement{}, fmt.Errorf("insert movement: %w", err)
	}
	return m, nil
}

// HistoryOf returns the movements of rollID. limit <= 0 returns all of them.
func HistoryOf(ctx context.Context, idb bun.IDB, rollID string, limit int, mostRecentFirst bool) ([]models.Movement, error) {
	history := make([]models.Movement, 0)
	q := idb.NewSelect().Model(&history).Where("m.roll_id = ?", rollID)
	if mostRecentFirst {
		q = q.OrderExpr("m.at DESC, m.rowid DESC")
	} else {
		q = q.OrderExpr("m.at ASC, m.rowid ASC")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("load movement history: %w", err)
	}
	return history, nil
}

// RecentWithNames returns the last limit movements of rollID, newest first,
// with rail codes and user name resolved.
func RecentWithNames(ctx context.Context, idb bun.IDB, rollID string, limit int) ([]HistoryEntry, error) {
	var rows []struct {
		models.Movement `bun:",extend"`
		FromRailCode    *string `bun:"from_rail_code"`
		ToRailCode      *string `bun:"to_rail_code"`
		UserName        string  `bun:"user_name"`
	}
	q := idb.NewSelect().
		Model(&rows).
		ColumnExpr("m.*").
		ColumnExpr("fr.code AS from_rail_code").
		ColumnExpr("tr.code AS to_rail_code").
		ColumnExpr("COALESCE(u.name, '') AS user_name").
		Join("LEFT JOIN rails AS fr ON fr.id = m.from_rail_id").
		Join("LEFT JOIN rails AS tr ON tr.id = m.to_rail_id").
		Join("LEFT JOIN users AS u ON u.id = m.user_id").
		Where("m.roll_id = ?", rollID).
		OrderExpr("m.at DESC, m.rowid DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("load recent movements: %w", err)
	}
	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, HistoryEntry{
			Movement:     row.Movement,
			FromRailCode: row.FromRailCode,
			ToRailCode:   row.ToRailCode,
			UserName:     row.UserName,
		})
	}
	return entries, nil
}

// RollIDs returns every roll id that has at least one movement.
func RollIDs(ctx context.Context, idb bun.IDB) ([]string, error) {
	ids := make([]string, 0)
	err := idb.NewSelect().
		TableExpr("movements").
		ColumnExpr("DISTINCT roll_id").
		OrderExpr("roll_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list rolls with movements: %w", err)
	}
	return ids, nil
}
