package movements

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"railstock/infrastructure/apperror"
	"railstock/infrastructure/sqlite"
	"railstock/infrastructure/sqlite/sqlitetest"
	"railstock/models"
)

type fixture struct {
	db    *sqlite.DB
	railA string
	railB string
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := sqlitetest.Open(t)
	f := fixture{
		db:    db,
		railA: sqlitetest.SeedRail(t, db, "R-001", true),
		railB: sqlitetest.SeedRail(t, db, "R-002", true),
	}
	sqlitetest.SeedUser(t, db, "u1", "Test User", "dev-1")
	sqlitetest.SeedRoll(t, db, "roll-1", "8595000001")
	return f
}

func appendTx(t *testing.T, db *sqlite.DB, in AppendInput) (models.Movement, error) {
	t.Helper()
	var m models.Movement
	err := db.WithWriteTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		var err error
		m, err = Append(ctx, tx, in)
		return err
	})
	return m, err
}

func TestValidateShapes(t *testing.T) {
	at := time.Now().UTC()
	a, b := "a", "b"
	cases := []struct {
		name string
		in   AppendInput
		ok   bool
	}{
		{"receive ok", AppendInput{Type: models.MovementReceive, RollID: "r", UserID: "u", At: at, ToRailID: &a}, true},
		{"receive with source", AppendInput{Type: models.MovementReceive, RollID: "r", UserID: "u", At: at, FromRailID: &b, ToRailID: &a}, false},
		{"move same rail", AppendInput{Type: models.MovementMove, RollID: "r", UserID: "u", At: at, FromRailID: &a, ToRailID: &a}, false},
		{"move ok", AppendInput{Type: models.MovementMove, RollID: "r", UserID: "u", At: at, FromRailID: &a, ToRailID: &b}, true},
		{"remove with target", AppendInput{Type: models.MovementRemove, RollID: "r", UserID: "u", At: at, ToRailID: &a}, false},
		{"remove ok", AppendInput{Type: models.MovementRemove, RollID: "r", UserID: "u", At: at, FromRailID: &a}, true},
		{"unknown type", AppendInput{Type: "TELEPORT", RollID: "r", UserID: "u", At: at}, false},
		{"missing user", AppendInput{Type: models.MovementReceive, RollID: "r", At: at, ToRailID: &a}, false},
		{"reason on move", AppendInput{Type: models.MovementMove, RollID: "r", UserID: "u", At: at, FromRailID: &a, ToRailID: &b,
			Attributes: &models.MovementAttributes{Remove: &models.RemoveAttributes{Reason: "x"}}}, false},
	}
	for _, tc := range cases {
		err := Validate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, apperror.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestAppendAndHistory(t *testing.T) {
	f := setup(t)
	base := time.Now().UTC().Truncate(time.Millisecond)

	if _, err := appendTx(t, f.db, AppendInput{Type: models.MovementReceive, RollID: "roll-1", ToRailID: &f.railA, UserID: "u1", At: base}); err != nil {
		t.Fatalf("append receive: %v", err)
	}
	if _, err := appendTx(t, f.db, AppendInput{Type: models.MovementMove, RollID: "roll-1", FromRailID: &f.railA, ToRailID: &f.railB, UserID: "u1", At: base.Add(time.Second)}); err != nil {
		t.Fatalf("append move: %v", err)
	}
	removeAttrs := &models.MovementAttributes{Remove: &models.RemoveAttributes{Reason: "damaged"}}
	if _, err := appendTx(t, f.db, AppendInput{Type: models.MovementRemove, RollID: "roll-1", FromRailID: &f.railB, UserID: "u1", At: base.Add(2 * time.Second), Attributes: removeAttrs}); err != nil {
		t.Fatalf("append remove: %v", err)
	}

	var oldest, newest []models.Movement
	var recent []HistoryEntry
	err := f.db.WithReadTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		var err error
		if oldest, err = HistoryOf(ctx, tx, "roll-1", 0, false); err != nil {
			return err
		}
		if newest, err = HistoryOf(ctx, tx, "roll-1", 1, true); err != nil {
			return err
		}
		recent, err = RecentWithNames(ctx, tx, "roll-1", 20)
		return err
	})
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(oldest) != 3 || oldest[0].Type != models.MovementReceive || oldest[2].Type != models.MovementRemove {
		t.Fatalf("unexpected oldest-first history: %+v", oldest)
	}
	if oldest[0].Attributes != nil {
		t.Fatalf("expected RECEIVE to carry no attributes, got %+v", oldest[0].Attributes)
	}
	if got := oldest[2].Attributes.RemovalReason(); got != "damaged" {
		t.Fatalf("expected removal reason damaged, got %q", got)
	}
	if len(newest) != 1 || newest[0].Type != models.MovementRemove {
		t.Fatalf("expected newest movement to be REMOVE, got %+v", newest)
	}
	if len(recent) != 3 || recent[0].UserName != "Test User" {
		t.Fatalf("unexpected recent history: %+v", recent)
	}
	if recent[1].FromRailCode == nil || *recent[1].FromRailCode != "R-001" || recent[1].ToRailCode == nil || *recent[1].ToRailCode != "R-002" {
		t.Fatalf("expected MOVE R-001 -> R-002, got %+v", recent[1])
	}

	state, err := Replay(oldest)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !state.Matches(nil, models.RollStatusRemoved) {
		t.Fatalf("expected replay to end removed, got %+v", state)
	}
}

func TestAppendUnknownReferences(t *testing.T) {
	f := setup(t)
	_, err := appendTx(t, f.db, AppendInput{Type: models.MovementReceive, RollID: "roll-1", ToRailID: &f.railA, UserID: "ghost", At: time.Now().UTC()})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected not found for unknown user, got %v", err)
	}
	if n := sqlitetest.Count(t, f.db, `SELECT COUNT(*) FROM movements`); n != 0 {
		t.Fatalf("expected no movements, got %d", n)
	}
}
