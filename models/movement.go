package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// MovementType is the kind of event recorded in the movement log.
type MovementType string

const (
	MovementReceive MovementType = "RECEIVE"
	MovementMove    MovementType = "MOVE"
	MovementRemove  MovementType = "REMOVE"
)

// Valid reports whether t is one of the known movement types.
func (t MovementType) Valid() bool {
	switch t {
	case MovementReceive, MovementMove, MovementRemove:
		return true
	}
	return false
}

// MoveAttributes is the attribute variant of a MOVE movement.
type MoveAttributes struct {
	BatchID string `json:"batchId,omitempty"`
}

// RemoveAttributes is the attribute variant of a REMOVE movement.
type RemoveAttributes struct {
	Reason string `json:"reason,omitempty"`
}

// MovementAttributes is a variant keyed by movement type: at most one member
// is set and it must match the owning movement's type. RECEIVE has none.
type MovementAttributes struct {
	Move   *MoveAttributes   `json:"move,omitempty"`
	Remove *RemoveAttributes `json:"remove,omitempty"`
}

// Check returns an error when the populated member does not belong to t.
func (a *MovementAttributes) Check(t MovementType) error {
	if a == nil {
		return nil
	}
	switch {
	case a.Move != nil && a.Remove != nil:
		return fmt.Errorf("movement attributes carry more than one variant")
	case a.Move != nil && t != MovementMove:
		return fmt.Errorf("move attributes on %s movement", t)
	case a.Remove != nil && t != MovementRemove:
		return fmt.Errorf("remove attributes on %s movement", t)
	}
	return nil
}

// Empty reports whether no variant is populated.
func (a *MovementAttributes) Empty() bool {
	return a == nil || (a.Move == nil && a.Remove == nil)
}

// RemovalReason returns the removal reason, or "" when none was recorded.
func (a *MovementAttributes) RemovalReason() string {
	if a == nil || a.Remove == nil {
		return ""
	}
	return a.Remove.Reason
}

// Movement is one immutable receive/move/remove event.
type Movement struct {
	bun.BaseModel `bun:"table:movements,alias:m"`

	ID         string              `bun:"id,pk" json:"id"`
	Type       MovementType        `bun:"type,notnull" json:"type"`
	RollID     string              `bun:"roll_id,notnull" json:"rollId"`
	FromRailID *string             `bun:"from_rail_id" json:"fromRailId"`
	ToRailID   *string             `bun:"to_rail_id" json:"toRailId"`
	UserID     string              `bun:"user_id,notnull" json:"userId"`
	DeviceID   *string             `bun:"device_id" json:"deviceId"`
	At         time.Time           `bun:"at,notnull" json:"at"`
	Attributes *MovementAttributes `bun:"attributes,type:text" json:"attributes,omitempty"`
}
