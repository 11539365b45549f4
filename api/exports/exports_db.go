package exports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"railstock/infrastructure/sqlite"
	"railstock/models"
)

// ListEvents returns movements at or after since, oldest first.
func ListEvents(ctx context.Context, db *sqlite.DB, since *time.Time, limit int) ([]Event, error) {
	rows := make([]eventRow, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := `
SELECT m.id, m.type, m.roll_id, ro.ean, m.user_id, COALESCE(u.name, '') AS user_name, m.device_id,
       fr.code AS from_rail_code, tr.code AS to_rail_code, m.attributes, m.at
FROM movements m
JOIN rolls ro ON ro.id = m.roll_id
LEFT JOIN users u ON u.id = m.user_id
LEFT JOIN rails fr ON fr.id = m.from_rail_id
LEFT JOIN rails tr ON tr.id = m.to_rail_id`
		args := make([]any, 0)
		if since != nil {
			q += " WHERE m.at >= ?"
			args = append(args, since.UTC())
		}
		q += " ORDER BY m.at ASC, m.rowid ASC LIMIT ?"
		args = append(args, clampLimit(limit))
		return tx.NewRaw(q, args...).Scan(ctx, &rows)
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		ev, err := toEvent(r)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// IdempotencyKey identifies a movement for consumers that deduplicate by
// device. It is nil when the movement carries no device.
func IdempotencyKey(deviceID *string, movementType models.MovementType, rollID string, at time.Time) *string {
	if deviceID == nil || strings.TrimSpace(*deviceID) == "" {
		return nil
	}
	key := fmt.Sprintf("%s:%s:%s:%s", *deviceID, strings.ToLower(string(movementType)), rollID, at.UTC().Format(isoMillis))
	return &key
}

func toEvent(r eventRow) (Event, error) {
	payload := map[string]any{
		"roll_id":   r.RollID,
		"ean":       r.EAN,
		"user_id":   r.UserID,
		"user_name": r.UserName,
		"device_id": r.DeviceID,
	}
	var eventType string
	switch models.MovementType(r.Type) {
	case models.MovementReceive:
		eventType = EventRollReceived
		payload["to_rail_code"] = r.ToRailCode
	case models.MovementMove:
		eventType = EventRollMoved
		payload["from_rail_code"] = r.FromRailCode
		payload["to_rail_code"] = r.ToRailCode
	case models.MovementRemove:
		eventType = EventRollRemoved
		payload["from_rail_code"] = r.FromRailCode
		var reason *string
		if r.Attributes != nil && *r.Attributes != "" {
			var attrs models.MovementAttributes
			if err := json.Unmarshal([]byte(*r.Attributes), &attrs); err != nil {
				return Event{}, fmt.Errorf("decode attributes of movement %s: %w", r.ID, err)
			}
			if v := attrs.RemovalReason(); v != "" {
				reason = &v
			}
		}
		payload["reason"] = reason
	default:
		return Event{}, fmt.Errorf("movement %s has unknown type %q", r.ID, r.Type)
	}
	return Event{
		EventID:        r.ID,
		EventType:      eventType,
		OccurredAt:     r.At.UTC().Format(isoMillis),
		IdempotencyKey: IdempotencyKey(r.DeviceID, models.MovementType(r.Type), r.RollID, r.At),
		Payload:        payload,
	}, nil
}

// WriteEventsNDJSON writes one JSON document per line.
func WriteEventsNDJSON(w io.Writer, events []Event) error {
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sqlite.DB) ([]snapshotRow, error) {
	rows := make([]snapshotRow, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT ro.id, ro.ean, ro.material_name, ro.description, ro.width_mm, ro.grammage_gm2, ro.color,
       ro.supplier, ro.batch_no, ro.status, ra.code AS rail_code, ro.received_at, l.last_moved_at
FROM rolls ro
LEFT JOIN locations l ON l.roll_id = ro.id
LEFT JOIN rails ra ON ra.id = l.rail_id
ORDER BY ro.received_at DESC, ro.rowid DESC`).Scan(ctx, &rows)
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return rows, nil
}

// WriteSnapshotCSV writes the current inventory, one roll per record.
func WriteSnapshotCSV(w io.Writer, rows []snapshotRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"roll_id", "ean", "material_name", "description", "width_mm", "grammage_gm2", "color", "supplier", "batch_no", "status", "rail_code", "received_at", "last_moved_at"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		lastMoved := ""
		if r.LastMovedAt != nil {
			lastMoved = r.LastMovedAt.UTC().Format(isoMillis)
		}
		record := []string{
			r.RollID,
			r.EAN,
			r.MaterialName,
			deref(r.Description),
			intString(r.WidthMM),
			intString(r.GrammageGM2),
			deref(r.Color),
			deref(r.Supplier),
			deref(r.BatchNo),
			r.Status,
			deref(r.RailCode),
			r.ReceivedAt.UTC().Format(isoMillis),
			lastMoved,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func recordExportRun(ctx context.Context, db *sqlite.DB, exportType string, rowCount int, deviceID *string) error {
	return db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var did any = nil
		if deviceID != nil {
			did = *deviceID
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO export_runs (export_type, row_count, device_id, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`, exportType, rowCount, did)
		return err
	})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultEventLimit
	}
	if limit > MaxEventLimit {
		return MaxEventLimit
	}
	return limit
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
