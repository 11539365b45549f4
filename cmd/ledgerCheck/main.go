// Command ledgerCheck replays each roll's movement history and reports rolls
// whose stored rail or status disagrees with it. It only reads.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/uptrace/bun"

	"railstock/api/movements"
	"railstock/infrastructure/config"
	"railstock/infrastructure/logger"
	"railstock/infrastructure/sqlite"
	"railstock/models"
)

type mismatch struct {
	RollID string
	Reason string
}

func main() {
	mismatches, err := run(os.Stdout)
	if err != nil {
		log.Fatal(err)
	}
	if mismatches > 0 {
		os.Exit(1)
	}
}

// run reports drift to w and returns the number of mismatched rolls.
func run(w io.Writer) (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return 0, fmt.Errorf("load config: %w", err)
	}
	lg := logger.New(cfg.LogLevel)
	defer func() { _ = lg.Sync() }()

	db, err := sqlite.OpenDBWithOptions(cfg.Database.Path, sqlite.Options{BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		return 0, fmt.Errorf("open db %s: %w", cfg.Database.Path, err)
	}
	defer db.Close()

	checked, found, err := check(context.Background(), db)
	if err != nil {
		return 0, fmt.Errorf("ledger check: %w", err)
	}
	report(w, checked, found)
	lg.Infow("ledger check done", "rolls", checked, "mismatches", len(found))
	return len(found), nil
}

// check returns the number of rolls inspected and the ones that disagree with
// their history. It runs in one read transaction so the view is consistent.
func check(ctx context.Context, db *sqlite.DB) (int, []mismatch, error) {
	var (
		checked int
		found   []mismatch
	)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ids, err := movements.RollIDs(ctx, tx)
		if err != nil {
			return err
		}
		silent, err := rollsWithoutHistory(ctx, tx)
		if err != nil {
			return err
		}
		for _, id := range silent {
			found = append(found, mismatch{RollID: id, Reason: "roll has no movements"})
		}
		checked = len(ids) + len(silent)

		for _, id := range ids {
			m, err := checkRoll(ctx, tx, id)
			if err != nil {
				return fmt.Errorf("roll %s: %w", id, err)
			}
			if m != nil {
				found = append(found, *m)
			}
		}
		return nil
	})
	return checked, found, err
}

func checkRoll(ctx context.Context, tx bun.Tx, rollID string) (*mismatch, error) {
	history, err := movements.HistoryOf(ctx, tx, rollID, 0, false)
	if err != nil {
		return nil, err
	}
	state, err := movements.Replay(history)
	if err != nil {
		return &mismatch{RollID: rollID, Reason: err.Error()}, nil
	}

	var roll models.Roll
	if err := tx.NewSelect().Model(&roll).Where("ro.id = ?", rollID).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &mismatch{RollID: rollID, Reason: "movements reference a missing roll"}, nil
		}
		return nil, err
	}

	var loc models.Location
	var railID *string
	err = tx.NewSelect().Model(&loc).Where("l.roll_id = ?", rollID).Limit(1).Scan(ctx)
	switch {
	case err == nil:
		railID = loc.RailID
	case errors.Is(err, sql.ErrNoRows):
		return &mismatch{RollID: rollID, Reason: "roll has no location row"}, nil
	default:
		return nil, err
	}

	if !state.Matches(railID, roll.Status) {
		return &mismatch{
			RollID: rollID,
			Reason: fmt.Sprintf("stored (%s, %s) but history implies (%s, %s)", railOrNone(railID), roll.Status, railOrNone(state.RailID), state.Status),
		}, nil
	}
	return nil, nil
}

func rollsWithoutHistory(ctx context.Context, tx bun.Tx) ([]string, error) {
	ids := make([]string, 0)
	err := tx.NewRaw(`
SELECT ro.id FROM rolls ro
WHERE NOT EXISTS (SELECT 1 FROM movements m WHERE m.roll_id = ro.id)
ORDER BY ro.id`).Scan(ctx, &ids)
	return ids, err
}

func report(w io.Writer, checked int, found []mismatch) {
	for _, m := range found {
		fmt.Fprintf(w, "%s: %s\n", m.RollID, m.Reason)
	}
	fmt.Fprintf(w, "checked %d rolls, %d mismatches\n", checked, len(found))
}

func railOrNone(id *string) string {
	if id == nil {
		return "no rail"
	}
	return *id
}
