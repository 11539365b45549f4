package ledger

import (
	"railstock/models"
)

type ReceiveInput struct {
	EAN          string
	MaterialName string
	Description  *string
	WidthMM      *int
	GrammageGM2  *int
	Color        *string
	Supplier     *string
	BatchNo      *string
	Photo        *string
	ToRailCode   string
	UserID       string
	DeviceID     *string
}

type ReceiveResult struct {
	Roll     models.Roll     `json:"roll"`
	Location models.Location `json:"location"`
	Movement models.Movement `json:"movement"`
}

type MoveInput struct {
	RollID     string
	ToRailCode string
	UserID     string
	DeviceID   *string
}

type MoveResult struct {
	Location models.Location `json:"location"`
	Movement models.Movement `json:"movement"`
}

type RemoveInput struct {
	RollID   string
	Reason   string
	UserID   string
	DeviceID *string
}

// RemoveResult has AlreadyRemoved set, and no movement, when the roll had
// left the warehouse before the call.
type RemoveResult struct {
	Movement       *models.Movement `json:"movement,omitempty"`
	AlreadyRemoved bool             `json:"alreadyRemoved"`
}

type BatchMoveInput struct {
	RollIDs    []string
	ToRailCode string
	UserID     string
	DeviceID   *string
}

// BatchMoveResult lists one movement per moved roll. Skipped holds the ids
// of rolls with no current rail or already on the target rail. A roll id
// listed more than once is processed once and reported once.
type BatchMoveResult struct {
	BatchID   string            `json:"batchId"`
	Movements []models.Movement `json:"movements"`
	Count     int               `json:"count"`
	Skipped   []string          `json:"skipped"`
}
