package movements

import (
	"fmt"

	"railstock/models"
)

// State is the location and status a roll's history implies.
type State struct {
	Received bool
	RailID   *string
	Status   string
}

// Replay folds an oldest-first history into the state it implies. It returns
// an error at the first movement that is not a legal transition from the
// state built so far.
func Replay(history []models.Movement) (State, error) {
	var s State
	for i, m := range history {
		switch m.Type {
		case models.MovementReceive:
			if s.Received {
				return s, fmt.Errorf("movement %d (%s): RECEIVE of a roll already received", i, m.ID)
			}
			s = State{Received: true, RailID: m.ToRailID, Status: models.RollStatusActive}
		case models.MovementMove:
			if !s.Received || s.Status != models.RollStatusActive {
				return s, fmt.Errorf("movement %d (%s): MOVE of a roll that is not located", i, m.ID)
			}
			if !sameRail(s.RailID, m.FromRailID) {
				return s, fmt.Errorf("movement %d (%s): MOVE from a rail the roll is not on", i, m.ID)
			}
			s.RailID = m.ToRailID
		case models.MovementRemove:
			if !s.Received || s.Status != models.RollStatusActive {
				return s, fmt.Errorf("movement %d (%s): REMOVE of a roll that is not located", i, m.ID)
			}
			s.RailID = nil
			s.Status = models.RollStatusRemoved
		default:
			return s, fmt.Errorf("movement %d (%s): unknown type %q", i, m.ID, m.Type)
		}
	}
	return s, nil
}

// Matches reports whether the replayed state equals a stored location and status.
func (s State) Matches(railID *string, status string) bool {
	return s.Status == status && sameRail(s.RailID, railID)
}

func sameRail(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
