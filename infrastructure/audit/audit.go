package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"

	"railstock/models"
)

// Service writes audit records inside the caller transaction, so the record
// commits or rolls back together with the change it describes.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Write records action on entityType/entityID. userID may be empty for system actions.
func (s *Service) Write(ctx context.Context, idb bun.IDB, userID, action, entityType, entityID string, before, after any) error {
	if s == nil {
		return nil
	}
	beforeJSON, err := marshal(before)
	if err != nil {
		return fmt.Errorf("marshal audit before: %w", err)
	}
	afterJSON, err := marshal(after)
	if err != nil {
		return fmt.Errorf("marshal audit after: %w", err)
	}
	log := &models.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		BeforeJSON: beforeJSON,
		AfterJSON:  afterJSON,
	}
	if userID != "" {
		log.UserID = &userID
	}
	if _, err := idb.NewInsert().Model(log).ExcludeColumn("id", "created_at").Exec(ctx); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// List returns the audit trail of one entity, oldest first.
func List(ctx context.Context, idb bun.IDB, entityType, entityID string) ([]models.AuditLog, error) {
	logs := make([]models.AuditLog, 0)
	err := idb.NewSelect().
		Model(&logs).
		Where("entity_type = ?", entityType).
		Where("entity_id = ?", entityID).
		OrderExpr("id ASC").
		Scan(ctx)
	return logs, err
}

func marshal(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
