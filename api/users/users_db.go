package users

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
	"railstock/infrastructure/audit"
	"railstock/infrastructure/cache"
	"railstock/infrastructure/sqlite"
	"railstock/models"
)

// RegisterResult reports whether Register matched an existing user.
type RegisterResult struct {
	User     models.User
	Existing bool
}

// Register binds deviceID to the user called name, creating a worker when
// no user has that name. A device belongs to at most one user, so it is
// first released from whoever held it.
func Register(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userCache *cache.UserCache, name, deviceID string) (RegisterResult, error) {
	name = strings.TrimSpace(name)
	deviceID = strings.TrimSpace(deviceID)
	if name == "" || deviceID == "" {
		return RegisterResult{}, apperror.Validation("Missing required fields: name, deviceId")
	}

	var result RegisterResult
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC().Truncate(time.Millisecond)

		var existing models.User
		err := tx.NewSelect().Model(&existing).Where("u.name = ?", name).OrderExpr("u.created_at ASC, u.id ASC").Limit(1).Scan(ctx)
		found := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load user by name: %w", err)
		}

		if _, err := tx.NewUpdate().
			TableExpr("users").
			Set("device_id = NULL").
			Set("updated_at = ?", now).
			Where("device_id = ?", deviceID).
			Where("name <> ?", name).
			Exec(ctx); err != nil {
			return fmt.Errorf("release device: %w", err)
		}

		if found {
			before := existing
			existing.DeviceID = &deviceID
			existing.UpdatedAt = now
			if _, err := tx.NewUpdate().Model(&existing).Column("device_id", "updated_at").WherePK().Exec(ctx); err != nil {
				return fmt.Errorf("bind device: %w", err)
			}
			if err := auditSvc.Write(ctx, tx, existing.ID, "user.bind_device", "user", existing.ID, before, existing); err != nil {
				return err
			}
			result = RegisterResult{User: existing, Existing: true}
			return nil
		}

		user := models.User{
			ID:        uuid.NewString(),
			Name:      name,
			DeviceID:  &deviceID,
			Role:      models.RoleWorker,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := tx.NewInsert().Model(&user).Exec(ctx); err != nil {
			if sqlite.IsUniqueViolation(err) {
				return apperror.Conflict("device %s is already registered", deviceID)
			}
			return fmt.Errorf("insert user: %w", err)
		}
		if err := auditSvc.Write(ctx, tx, user.ID, "user.register", "user", user.ID, nil, user); err != nil {
			return err
		}
		result = RegisterResult{User: user}
		return nil
	})
	if err != nil {
		return RegisterResult{}, err
	}
	userCache.Add(deviceID, result.User)
	return result, nil
}

// FindByDevice returns the user bound to deviceID.
func FindByDevice(ctx context.Context, db *sqlite.DB, userCache *cache.UserCache, deviceID string) (models.User, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return models.User{}, apperror.Validation("Missing deviceId parameter")
	}
	if user, ok := userCache.Get(deviceID); ok {
		return user, nil
	}
	var user models.User
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&user).Where("u.device_id = ?", deviceID).Limit(1).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperror.NotFound("User not found")
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user by device: %w", err)
	}
	userCache.Add(deviceID, user)
	return user, nil
}

// FindByID loads a user inside the caller transaction.
func FindByID(ctx context.Context, idb bun.IDB, id string) (models.User, error) {
	var user models.User
	err := idb.NewSelect().Model(&user).Where("u.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperror.NotFound("User not found")
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
