package movements

import (
	"time"

	"railstock/models"
)

// AppendInput describes one movement to record. At is stored as given.
type AppendInput struct {
	Type       models.MovementType
	RollID     string
	FromRailID *string
	ToRailID   *string
	UserID     string
	DeviceID   *string
	At         time.Time
	Attributes *models.MovementAttributes
}

// HistoryEntry is a movement with rail codes and user name resolved.
type HistoryEntry struct {
	models.Movement
	FromRailCode *string `json:"fromRailCode"`
	ToRailCode   *string `json:"toRailCode"`
	UserName     string  `json:"userName"`
}
