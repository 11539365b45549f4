package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"railstock/api/locations"
	"railstock/api/movements"
	"railstock/api/rolls"
	"railstock/infrastructure/apperror"
	"railstock/infrastructure/audit"
	"railstock/infrastructure/cache"
	"railstock/infrastructure/metrics"
	"railstock/infrastructure/sqlite"
	"railstock/infrastructure/sqlite/sqlitetest"
	"railstock/models"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	db    *sqlite.DB
	svc   *Service
	rails map[string]string
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := sqlitetest.Open(t)
	f := fixture{db: db, rails: make(map[string]string)}
	for _, code := range []string{"R-001", "R-002", "R-003"} {
		f.rails[code] = sqlitetest.SeedRail(t, db, code, true)
	}
	f.rails["R-099"] = sqlitetest.SeedRail(t, db, "R-099", false)
	sqlitetest.SeedUser(t, db, "u1", "Test User", "test-device-001")

	clock := &testClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	f.svc = NewService(db, audit.NewService(), metrics.New(), nil, cache.NewRailCache())
	f.svc.Now = clock.Now
	return f
}

func device(s string) *string { return &s }

func (f fixture) receive(t *testing.T, ean, rail string) models.Roll {
	t.Helper()
	res, err := f.svc.Receive(context.Background(), ReceiveInput{
		EAN: ean, MaterialName: "Kraft", ToRailCode: rail, UserID: "u1", DeviceID: device("test-device-001"),
	})
	if err != nil {
		t.Fatalf("receive %s on %s: %v", ean, rail, err)
	}
	return res.Roll
}

func (f fixture) state(t *testing.T, rollID string) (models.Roll, models.Location, []models.Movement) {
	t.Helper()
	ctx := context.Background()
	roll, err := rolls.FindByID(ctx, f.db.R, rollID)
	if err != nil {
		t.Fatalf("load roll: %v", err)
	}
	loc, err := locations.Find(ctx, f.db.R, rollID)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	history, err := movements.HistoryOf(ctx, f.db.R, rollID, 0, false)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	return roll, loc, history
}

// assertReplayMatches checks that folding the history yields the stored state.
func (f fixture) assertReplayMatches(t *testing.T, rollID string) {
	t.Helper()
	roll, loc, history := f.state(t, rollID)
	replayed, err := movements.Replay(history)
	if err != nil {
		t.Fatalf("replay %s: %v", rollID, err)
	}
	if !replayed.Matches(loc.RailID, roll.Status) {
		t.Fatalf("replay of %s gives %+v, stored rail=%v status=%s", rollID, replayed, loc.RailID, roll.Status)
	}
	if (roll.Status == models.RollStatusRemoved) != (loc.RailID == nil) {
		t.Fatalf("status %s disagrees with rail %v", roll.Status, loc.RailID)
	}
}

func TestReceiveMoveRemoveScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	roll := f.receive(t, "8595000001", "R-001")
	if roll.Status != models.RollStatusActive {
		t.Fatalf("expected active roll, got %s", roll.Status)
	}
	_, loc, history := f.state(t, roll.ID)
	if loc.RailID == nil || *loc.RailID != f.rails["R-001"] {
		t.Fatalf("expected roll on R-001, got %v", loc.RailID)
	}
	if len(history) != 1 || history[0].Type != models.MovementReceive || history[0].FromRailID != nil || *history[0].ToRailID != f.rails["R-001"] {
		t.Fatalf("unexpected history after receive: %+v", history)
	}
	if history[0].DeviceID == nil || *history[0].DeviceID != "test-device-001" {
		t.Fatalf("expected device to be recorded, got %v", history[0].DeviceID)
	}

	moved, err := f.svc.Move(ctx, MoveInput{RollID: roll.ID, ToRailCode: "r-002", UserID: "u1"})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if *moved.Movement.FromRailID != f.rails["R-001"] || *moved.Movement.ToRailID != f.rails["R-002"] {
		t.Fatalf("unexpected move movement %+v", moved.Movement)
	}
	_, loc, _ = f.state(t, roll.ID)
	if *loc.RailID != f.rails["R-002"] {
		t.Fatalf("expected roll on R-002, got %v", *loc.RailID)
	}
	if !loc.PlacedAt.Before(loc.LastMovedAt) {
		t.Fatalf("expected placed_at kept and last_moved_at advanced, got %v / %v", loc.PlacedAt, loc.LastMovedAt)
	}

	removed, err := f.svc.Remove(ctx, RemoveInput{RollID: roll.ID, Reason: "damaged", UserID: "u1"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.AlreadyRemoved || removed.Movement == nil {
		t.Fatalf("expected a REMOVE movement, got %+v", removed)
	}
	if *removed.Movement.FromRailID != f.rails["R-002"] || removed.Movement.ToRailID != nil {
		t.Fatalf("unexpected remove movement %+v", removed.Movement)
	}
	if got := removed.Movement.Attributes.RemovalReason(); got != "damaged" {
		t.Fatalf("expected reason damaged, got %q", got)
	}

	again, err := f.svc.Remove(ctx, RemoveInput{RollID: roll.ID, UserID: "u1"})
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if !again.AlreadyRemoved || again.Movement != nil {
		t.Fatalf("expected already-removed warning, got %+v", again)
	}

	stored, loc, history := f.state(t, roll.ID)
	if stored.Status != models.RollStatusRemoved || loc.RailID != nil {
		t.Fatalf("expected removed roll without rail, got %s %v", stored.Status, loc.RailID)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 movements, got %d", len(history))
	}
	if !loc.LastMovedAt.Equal(moved.Location.LastMovedAt) {
		t.Fatalf("expected remove to keep last_moved_at %v, got %v", moved.Location.LastMovedAt, loc.LastMovedAt)
	}

	_, err = f.svc.Move(ctx, MoveInput{RollID: roll.ID, ToRailCode: "R-003", UserID: "u1"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("expected conflict moving removed roll, got %v", err)
	}
	f.assertReplayMatches(t, roll.ID)
}

func TestReceiveRejectsDuplicateEAN(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	first := f.receive(t, "8595000002", "R-001")

	_, err := f.svc.Receive(ctx, ReceiveInput{EAN: "8595000002", MaterialName: "Kraft", ToRailCode: "R-002", UserID: "u1"})
	if !errors.Is(err, apperror.ErrConflict) || apperror.As(err).RollID != first.ID {
		t.Fatalf("expected duplicate conflict with roll id, got %v", err)
	}

	if _, err := f.svc.Remove(ctx, RemoveInput{RollID: first.ID, UserID: "u1"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, err = f.svc.Receive(ctx, ReceiveInput{EAN: "8595000002", MaterialName: "Kraft", ToRailCode: "R-002", UserID: "u1"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("expected EAN of removed roll to stay taken, got %v", err)
	}
	if n := sqlitetest.Count(t, f.db, `SELECT COUNT(*) FROM rolls`); n != 1 {
		t.Fatalf("expected one roll, got %d", n)
	}
	if n := sqlitetest.Count(t, f.db, `SELECT COUNT(*) FROM movements`); n != 2 {
		t.Fatalf("expected RECEIVE and REMOVE only, got %d", n)
	}
}

func TestReceiveRejectionsLeaveNoTrace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   ReceiveInput
		want error
	}{
		{"missing fields", ReceiveInput{EAN: "1", ToRailCode: "R-001"}, apperror.ErrValidation},
		{"unknown rail", ReceiveInput{EAN: "1", MaterialName: "Kraft", ToRailCode: "R-404", UserID: "u1"}, apperror.ErrNotFound},
		{"inactive rail", ReceiveInput{EAN: "1", MaterialName: "Kraft", ToRailCode: "R-099", UserID: "u1"}, apperror.ErrNotFound},
		{"unknown user", ReceiveInput{EAN: "1", MaterialName: "Kraft", ToRailCode: "R-001", UserID: "ghost"}, apperror.ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := f.svc.Receive(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	for _, table := range []string{"rolls", "locations", "movements"} {
		if n := sqlitetest.Count(t, f.db, `SELECT COUNT(*) FROM `+table); n != 0 {
			t.Fatalf("expected empty %s, got %d rows", table, n)
		}
	}

	_, err := f.svc.Receive(ctx, ReceiveInput{})
	fields := apperror.As(err).Fields
	for _, name := range []string{"ean", "materialName", "toRailCode", "userId"} {
		if fields[name] != "required" {
			t.Fatalf("expected %s to be reported missing, got %v", name, fields)
		}
	}
}

func TestMoveToSameRailIsRejected(t *testing.T) {
	f := setup(t)
	roll := f.receive(t, "8595000003", "R-001")
	_, before, _ := f.state(t, roll.ID)

	_, err := f.svc.Move(context.Background(), MoveInput{RollID: roll.ID, ToRailCode: "R-001", UserID: "u1"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	_, after, history := f.state(t, roll.ID)
	if len(history) != 1 || !after.LastMovedAt.Equal(before.LastMovedAt) {
		t.Fatalf("expected no change, got %d movements and last_moved_at %v", len(history), after.LastMovedAt)
	}
}

func TestMoveRejections(t *testing.T) {
	f := setup(t)
	roll := f.receive(t, "8595000004", "R-001")
	ctx := context.Background()

	cases := []struct {
		name string
		in   MoveInput
		want error
		msg  string
	}{
		{"unknown roll", MoveInput{RollID: "missing", ToRailCode: "R-002", UserID: "u1"}, apperror.ErrNotFound, "Roll not found"},
		{"unknown rail", MoveInput{RollID: roll.ID, ToRailCode: "R-404", UserID: "u1"}, apperror.ErrNotFound, "Target rail not found"},
		{"inactive rail", MoveInput{RollID: roll.ID, ToRailCode: "R-099", UserID: "u1"}, apperror.ErrNotFound, "Target rail not found"},
		{"unknown user", MoveInput{RollID: roll.ID, ToRailCode: "R-002", UserID: "ghost"}, apperror.ErrNotFound, "User not found"},
	}
	for _, tc := range cases {
		_, err := f.svc.Move(ctx, tc.in)
		if !errors.Is(err, tc.want) || apperror.As(err).Message != tc.msg {
			t.Fatalf("%s: expected %q, got %v", tc.name, tc.msg, err)
		}
	}
	f.assertReplayMatches(t, roll.ID)
}

func TestBatchMoveSkipsRollsWithoutRail(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.receive(t, "8595000010", "R-001")
	b := f.receive(t, "8595000011", "R-001")
	c := f.receive(t, "8595000012", "R-002")
	d := f.receive(t, "8595000013", "R-003")
	if _, err := f.svc.Remove(ctx, RemoveInput{RollID: b.ID, UserID: "u1"}); err != nil {
		t.Fatalf("remove b: %v", err)
	}

	res, err := f.svc.BatchMove(ctx, BatchMoveInput{RollIDs: []string{a.ID, b.ID, c.ID, d.ID, "unknown"}, ToRailCode: "R-003", UserID: "u1"})
	if err != nil {
		t.Fatalf("batch move: %v", err)
	}
	if res.Count != 2 || len(res.Movements) != 2 {
		t.Fatalf("expected 2 moved rolls, got %+v", res)
	}
	skipped := map[string]bool{}
	for _, id := range res.Skipped {
		skipped[id] = true
	}
	if !skipped[b.ID] || !skipped[d.ID] || !skipped["unknown"] || len(res.Skipped) != 3 {
		t.Fatalf("unexpected skipped list %v", res.Skipped)
	}

	from := map[string]string{a.ID: f.rails["R-001"], c.ID: f.rails["R-002"]}
	for _, m := range res.Movements {
		if m.Type != models.MovementMove || *m.ToRailID != f.rails["R-003"] || *m.FromRailID != from[m.RollID] {
			t.Fatalf("unexpected batch movement %+v", m)
		}
		if m.Attributes == nil || m.Attributes.Move == nil || m.Attributes.Move.BatchID != res.BatchID {
			t.Fatalf("expected batch id %s on movement, got %+v", res.BatchID, m.Attributes)
		}
	}

	for _, roll := range []models.Roll{a, b, c, d} {
		f.assertReplayMatches(t, roll.ID)
	}
	_, locB, _ := f.state(t, b.ID)
	if locB.RailID != nil {
		t.Fatalf("expected removed roll to stay off the rails, got %v", *locB.RailID)
	}

	trail, err := audit.List(ctx, f.db.R, "batch", res.BatchID)
	if err != nil {
		t.Fatalf("list batch audit: %v", err)
	}
	if len(trail) != 1 || trail[0].Action != "ledger.batch_move" {
		t.Fatalf("expected one batch audit row, got %+v", trail)
	}
}

func TestBatchMoveHandlesRepeatedIDsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.receive(t, "8595000014", "R-001")

	res, err := f.svc.BatchMove(ctx, BatchMoveInput{RollIDs: []string{a.ID, " " + a.ID, a.ID}, ToRailCode: "R-002", UserID: "u1"})
	if err != nil {
		t.Fatalf("batch move: %v", err)
	}
	if res.Count != 1 || len(res.Movements) != 1 {
		t.Fatalf("expected one move for repeated id, got %+v", res)
	}
	if len(res.Skipped) != 0 {
		t.Fatalf("expected repeated id not to be reported as skipped, got %v", res.Skipped)
	}
	f.assertReplayMatches(t, a.ID)
}

func TestBatchMoveValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	if _, err := f.svc.BatchMove(ctx, BatchMoveInput{ToRailCode: "R-001", UserID: "u1"}); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected validation error for empty list, got %v", err)
	}
	if _, err := f.svc.BatchMove(ctx, BatchMoveInput{RollIDs: []string{"x"}, ToRailCode: "R-404", UserID: "u1"}); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected not found rail, got %v", err)
	}
}

func TestBatchMoveRollsBackOnFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.receive(t, "8595000020", "R-001")
	b := f.receive(t, "8595000021", "R-001")
	c := f.receive(t, "8595000022", "R-001")
	before := sqlitetest.Count(t, f.db, `SELECT COUNT(*) FROM movements`)

	sqlitetest.Exec(t, f.db, `CREATE TRIGGER fail_roll_c BEFORE INSERT ON movements
WHEN NEW.roll_id = ? AND NEW.type = 'MOVE'
BEGIN
  SELECT RAISE(ABORT, 'injected failure');
END`, c.ID)

	_, err := f.svc.BatchMove(ctx, BatchMoveInput{RollIDs: []string{a.ID, b.ID, c.ID}, ToRailCode: "R-002", UserID: "u1"})
	if err == nil {
		t.Fatalf("expected batch to fail")
	}
	if apperror.KindOf(err) != apperror.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if after := sqlitetest.Count(t, f.db, `SELECT COUNT(*) FROM movements`); after != before {
		t.Fatalf("expected no movements from failed batch, had %d now %d", before, after)
	}
	for _, roll := range []models.Roll{a, b, c} {
		_, loc, _ := f.state(t, roll.ID)
		if *loc.RailID != f.rails["R-001"] {
			t.Fatalf("expected %s to stay on R-001, got %s", roll.EAN, *loc.RailID)
		}
		f.assertReplayMatches(t, roll.ID)
	}
}

func TestConcurrentReceivesOfSameEANHaveOneWinner(t *testing.T) {
	f := setup(t)
	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Receive(context.Background(), ReceiveInput{EAN: "8595000030", MaterialName: "Kraft", ToRailCode: "R-001", UserID: "u1"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperror.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if n := sqlitetest.Count(t, f.db, `SELECT COUNT(*) FROM movements WHERE type = 'RECEIVE'`); n != 1 {
		t.Fatalf("expected one RECEIVE, got %d", n)
	}
}

func TestConcurrentMovesFormAChain(t *testing.T) {
	f := setup(t)
	roll := f.receive(t, "8595000040", "R-001")
	targets := []string{"R-002", "R-003", "R-001", "R-002", "R-003", "R-002", "R-001", "R-003", "R-001", "R-002"}

	var wg sync.WaitGroup
	errs := make(chan error, len(targets))
	for _, code := range targets {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			_, err := f.svc.Move(context.Background(), MoveInput{RollID: roll.ID, ToRailCode: code, UserID: "u1"})
			errs <- err
		}(code)
	}
	wg.Wait()
	close(errs)

	moves := 0
	for err := range errs {
		switch {
		case err == nil:
			moves++
		case errors.Is(err, apperror.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	_, loc, history := f.state(t, roll.ID)
	if len(history) != moves+1 {
		t.Fatalf("expected %d movements, got %d", moves+1, len(history))
	}
	for i := 1; i < len(history); i++ {
		if *history[i].FromRailID != *history[i-1].ToRailID {
			t.Fatalf("movement %d starts at %s but previous ended at %s", i, *history[i].FromRailID, *history[i-1].ToRailID)
		}
	}
	if *loc.RailID != *history[len(history)-1].ToRailID {
		t.Fatalf("location %s disagrees with last movement", *loc.RailID)
	}
	f.assertReplayMatches(t, roll.ID)
}
