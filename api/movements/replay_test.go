package movements

import (
	"testing"

	"railstock/models"
)

func ptr(s string) *string { return &s }

func TestReplayFoldsHistory(t *testing.T) {
	history := []models.Movement{
		{ID: "1", Type: models.MovementReceive, ToRailID: ptr("r1")},
		{ID: "2", Type: models.MovementMove, FromRailID: ptr("r1"), ToRailID: ptr("r2")},
	}
	s, err := Replay(history)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !s.Matches(ptr("r2"), models.RollStatusActive) {
		t.Fatalf("expected active on r2, got %+v", s)
	}

	history = append(history, models.Movement{ID: "3", Type: models.MovementRemove, FromRailID: ptr("r2")})
	s, err = Replay(history)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !s.Matches(nil, models.RollStatusRemoved) {
		t.Fatalf("expected removed with no rail, got %+v", s)
	}
}

func TestReplayRejectsIllegalSequences(t *testing.T) {
	cases := map[string][]models.Movement{
		"move before receive": {
			{ID: "1", Type: models.MovementMove, FromRailID: ptr("r1"), ToRailID: ptr("r2")},
		},
		"double receive": {
			{ID: "1", Type: models.MovementReceive, ToRailID: ptr("r1")},
			{ID: "2", Type: models.MovementReceive, ToRailID: ptr("r2")},
		},
		"move from wrong rail": {
			{ID: "1", Type: models.MovementReceive, ToRailID: ptr("r1")},
			{ID: "2", Type: models.MovementMove, FromRailID: ptr("r3"), ToRailID: ptr("r2")},
		},
		"move after remove": {
			{ID: "1", Type: models.MovementReceive, ToRailID: ptr("r1")},
			{ID: "2", Type: models.MovementRemove, FromRailID: ptr("r1")},
			{ID: "3", Type: models.MovementMove, FromRailID: ptr("r1"), ToRailID: ptr("r2")},
		},
	}
	for name, history := range cases {
		if _, err := Replay(history); err == nil {
			t.Fatalf("%s: expected replay error", name)
		}
	}
}

func TestReplayEmptyHistory(t *testing.T) {
	s, err := Replay(nil)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if s.Received || s.RailID != nil {
		t.Fatalf("expected zero state, got %+v", s)
	}
}
