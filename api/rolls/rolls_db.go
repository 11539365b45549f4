package rolls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"railstock/api/movements"
	"railstock/infrastructure/apperror"
	"railstock/infrastructure/audit"
	"railstock/infrastructure/sqlite"
	"railstock/models"
)

// Create inserts a new active roll. A duplicate EAN, including the EAN of a
// removed roll, is a Conflict carrying the existing roll id.
func Create(ctx context.Context, idb bun.IDB, in CreateInput) (models.Roll, error) {
	ean := strings.TrimSpace(in.EAN)
	material := strings.TrimSpace(in.MaterialName)
	if ean == "" {
		return models.Roll{}, apperror.Validation("ean is required")
	}
	if material == "" {
		return models.Roll{}, apperror.Validation("materialName is required")
	}
	if err := checkPositive("widthMm", in.WidthMM); err != nil {
		return models.Roll{}, err
	}
	if err := checkPositive("grammageGm2", in.GrammageGM2); err != nil {
		return models.Roll{}, err
	}
	roll := models.Roll{
		ID:           uuid.NewString(),
		EAN:          ean,
		MaterialName: material,
		Description:  trimmed(in.Description),
		WidthMM:      in.WidthMM,
		GrammageGM2:  in.GrammageGM2,
		Color:        trimmed(in.Color),
		Supplier:     trimmed(in.Supplier),
		BatchNo:      trimmed(in.BatchNo),
		Photo:        trimmed(in.Photo),
		Status:       models.RollStatusActive,
		ReceivedAt:   in.ReceivedAt,
		UpdatedAt:    in.ReceivedAt,
	}
	if _, err := idb.NewInsert().Model(&roll).Exec(ctx); err != nil {
		if sqlite.IsUniqueViolation(err) {
			existing, findErr := FindByEAN(ctx, idb, ean)
			if findErr != nil {
				return models.Roll{}, apperror.DuplicateEAN("")
			}
			return models.Roll{}, apperror.DuplicateEAN(existing.ID)
		}
		return models.Roll{}, fmt.Errorf("insert roll: %w", err)
	}
	return roll, nil
}

func FindByID(ctx context.Context, idb bun.IDB, id string) (models.Roll, error) {
	var roll models.Roll
	err := idb.NewSelect().Model(&roll).Where("ro.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Roll{}, apperror.NotFound("Roll not found")
	}
	if err != nil {
		return models.Roll{}, fmt.Errorf("load roll: %w", err)
	}
	return roll, nil
}

func FindByEAN(ctx context.Context, idb bun.IDB, ean string) (models.Roll, error) {
	var roll models.Roll
	err := idb.NewSelect().Model(&roll).Where("ro.ean = ?", strings.TrimSpace(ean)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Roll{}, apperror.NotFound("Roll not found")
	}
	if err != nil {
		return models.Roll{}, fmt.Errorf("load roll by ean: %w", err)
	}
	return roll, nil
}

// MarkRemoved flips the roll status to removed.
func MarkRemoved(ctx context.Context, idb bun.IDB, id string, at time.Time) error {
	res, err := idb.NewUpdate().
		TableExpr("rolls").
		Set("status = ?", models.RollStatusRemoved).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark roll removed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("Roll not found")
	}
	return nil
}

// UpdateAttributes applies patch to an active roll and records the change
// in the audit log within the same transaction.
func UpdateAttributes(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userID, id string, patch Patch, now time.Time) (models.Roll, error) {
	var updated models.Roll
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		before, err := FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if before.Removed() {
			return apperror.Conflict("Cannot update removed roll")
		}
		after, err := applyPatch(before, patch)
		if err != nil {
			return err
		}
		after.UpdatedAt = now
		if _, err := tx.NewUpdate().
			Model(&after).
			Column("material_name", "description", "width_mm", "grammage_gm2", "color", "supplier", "batch_no", "photo", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("update roll: %w", err)
		}
		if err := auditSvc.Write(ctx, tx, userID, "roll.update", "roll", id, before, after); err != nil {
			return err
		}
		updated = after
		return nil
	})
	return updated, err
}

func applyPatch(roll models.Roll, p Patch) (models.Roll, error) {
	if p.MaterialName.Set {
		v := trimmed(p.MaterialName.Value)
		if v == nil {
			return roll, apperror.ValidationFields(map[string]string{"materialName": "required"})
		}
		roll.MaterialName = *v
	}
	patchString(&roll.Description, p.Description)
	patchString(&roll.Color, p.Color)
	patchString(&roll.Supplier, p.Supplier)
	patchString(&roll.BatchNo, p.BatchNo)
	patchString(&roll.Photo, p.Photo)
	if p.WidthMM.Set {
		if err := checkPositive("widthMm", p.WidthMM.Value); err != nil {
			return roll, err
		}
		roll.WidthMM = p.WidthMM.Value
	}
	if p.GrammageGM2.Set {
		if err := checkPositive("grammageGm2", p.GrammageGM2.Value); err != nil {
			return roll, err
		}
		roll.GrammageGM2 = p.GrammageGM2.Value
	}
	return roll, nil
}

func patchString(dst **string, o Optional[string]) {
	if o.Set {
		*dst = trimmed(o.Value)
	}
}

// likeEscaper makes user text match literally inside a LIKE ... ESCAPE '!' pattern.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Search returns rolls matching f, newest received first.
func Search(ctx context.Context, db *sqlite.DB, f Filters) ([]SearchRow, error) {
	var rows []struct {
		models.Roll `bun:",extend"`
		RailCode    *string    `bun:"rail_code"`
		RailName    *string    `bun:"rail_name"`
		LastMovedAt *time.Time `bun:"last_moved_at"`
	}
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().
			Model(&rows).
			ColumnExpr("ro.*").
			ColumnExpr("ra.code AS rail_code, ra.name AS rail_name, l.last_moved_at").
			Join("LEFT JOIN locations AS l ON l.roll_id = ro.id").
			Join("LEFT JOIN rails AS ra ON ra.id = l.rail_id")
		if text := strings.ToLower(strings.TrimSpace(f.Query)); text != "" {
			pattern := "%" + likeEscaper.Replace(text) + "%"
			q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("LOWER(ro.ean) LIKE ? ESCAPE '!'", pattern).
					WhereOr("LOWER(ro.material_name) LIKE ? ESCAPE '!'", pattern).
					WhereOr("LOWER(COALESCE(ro.description, '')) LIKE ? ESCAPE '!'", pattern)
			})
		}
		if status := strings.TrimSpace(f.Status); status != "" {
			q = q.Where("ro.status = ?", status)
		}
		if code := strings.TrimSpace(f.RailCode); code != "" {
			q = q.Where("ra.code = ?", strings.ToUpper(code))
		}
		if f.WidthMin != nil {
			q = q.Where("ro.width_mm >= ?", *f.WidthMin)
		}
		if f.WidthMax != nil {
			q = q.Where("ro.width_mm <= ?", *f.WidthMax)
		}
		if f.GrammageMin != nil {
			q = q.Where("ro.grammage_gm2 >= ?", *f.GrammageMin)
		}
		if f.GrammageMax != nil {
			q = q.Where("ro.grammage_gm2 <= ?", *f.GrammageMax)
		}
		if color := strings.TrimSpace(f.Color); color != "" {
			q = q.Where("LOWER(ro.color) = LOWER(?)", color)
		}
		if supplier := strings.TrimSpace(f.Supplier); supplier != "" {
			q = q.Where("LOWER(ro.supplier) = LOWER(?)", supplier)
		}
		return q.OrderExpr("ro.received_at DESC, ro.rowid DESC").Limit(clampLimit(f.Limit)).Scan(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("search rolls: %w", err)
	}
	out := make([]SearchRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, SearchRow{Roll: row.Roll, RailCode: row.RailCode, RailName: row.RailName, LastMovedAt: row.LastMovedAt})
	}
	return out, nil
}

// LoadDetail returns a roll with its current rail and last movements.
func LoadDetail(ctx context.Context, db *sqlite.DB, id string) (Detail, error) {
	var detail Detail
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		roll, err := FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		detail.Roll = roll

		var locs []DetailLocation
		if err := tx.NewRaw(`
SELECT l.rail_id, ra.code AS rail_code, ra.name AS rail_name, l.placed_at, l.last_moved_at
FROM locations l
LEFT JOIN rails ra ON ra.id = l.rail_id
WHERE l.roll_id = ?`, id).Scan(ctx, &locs); err != nil {
			return fmt.Errorf("load roll location: %w", err)
		}
		if len(locs) > 0 {
			detail.Location = &locs[0]
		}

		detail.Movements, err = movements.RecentWithNames(ctx, tx, id, DetailHistoryLimit)
		return err
	})
	return detail, err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

func checkPositive(field string, v *int) error {
	if v != nil && *v <= 0 {
		return apperror.ValidationFields(map[string]string{field: "gt"})
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
