package exports

import "time"

const (
	DefaultEventLimit = 1000
	MaxEventLimit     = 10000

	FeedEvents   = "events_ndjson"
	FeedSnapshot = "snapshot_csv"

	// isoMillis is the UTC timestamp layout used in feeds and idempotency keys.
	isoMillis = "2006-01-02T15:04:05.000Z"
)

// Event types of the movement feed.
const (
	EventRollReceived = "ROLL_RECEIVED"
	EventRollMoved    = "ROLL_MOVED"
	EventRollRemoved  = "ROLL_REMOVED"
)

// Event is one movement as published to downstream consumers.
type Event struct {
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	OccurredAt     string         `json:"occurred_at"`
	IdempotencyKey *string        `json:"idempotency_key"`
	Payload        map[string]any `json:"payload"`
}

type eventRow struct {
	ID           string    `bun:"id"`
	Type         string    `bun:"type"`
	RollID       string    `bun:"roll_id"`
	EAN          string    `bun:"ean"`
	UserID       string    `bun:"user_id"`
	UserName     string    `bun:"user_name"`
	DeviceID     *string   `bun:"device_id"`
	FromRailCode *string   `bun:"from_rail_code"`
	ToRailCode   *string   `bun:"to_rail_code"`
	Attributes   *string   `bun:"attributes"`
	At           time.Time `bun:"at"`
}

type snapshotRow struct {
	RollID       string     `bun:"id"`
	EAN          string     `bun:"ean"`
	MaterialName string     `bun:"material_name"`
	Description  *string    `bun:"description"`
	WidthMM      *int       `bun:"width_mm"`
	GrammageGM2  *int       `bun:"grammage_gm2"`
	Color        *string    `bun:"color"`
	Supplier     *string    `bun:"supplier"`
	BatchNo      *string    `bun:"batch_no"`
	Status       string     `bun:"status"`
	RailCode     *string    `bun:"rail_code"`
	ReceivedAt   time.Time  `bun:"received_at"`
	LastMovedAt  *time.Time `bun:"last_moved_at"`
}
