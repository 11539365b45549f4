package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"go.uber.org/zap"

	"railstock/api/ledger"
	"railstock/api/rails"
	"railstock/api/users"
	"railstock/infrastructure/apperror"
	"railstock/infrastructure/audit"
	"railstock/infrastructure/cache"
	"railstock/infrastructure/config"
	"railstock/infrastructure/logger"
	"railstock/infrastructure/metrics"
	"railstock/infrastructure/sqlite"
	"railstock/infrastructure/warehouse"
)

const (
	gridRows       = 5
	gridCols       = 8
	testUserName   = "Test User"
	testUserDevice = "test-device-001"
)

var demoMaterials = []string{"Kraft 80", "Testliner 125", "Fluting 100", "Duplex 250"}

type seedOptions struct {
	DemoRolls int
}

type seedSummary struct {
	Warehouse   string
	RailsAdded  int
	UserID      string
	RollsAdded  int
	RollsExists int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	lg := logger.New(cfg.LogLevel)
	defer func() { _ = lg.Sync() }()

	demo, err := strconv.Atoi(getenv("SEED_DEMO_ROLLS", "0"))
	if err != nil || demo < 0 {
		return fmt.Errorf("SEED_DEMO_ROLLS must be a non-negative integer")
	}

	db, err := sqlite.OpenDBWithOptions(cfg.Database.Path, sqlite.Options{BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := sqlite.ApplyMigrations(context.Background(), db, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	summary, err := seed(context.Background(), db, lg, seedOptions{DemoRolls: demo})
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fmt.Printf("seeded warehouse %q: %d new rails, test user %s, %d demo rolls (%d already present)\n",
		summary.Warehouse, summary.RailsAdded, summary.UserID, summary.RollsAdded, summary.RollsExists)
	return nil
}

// seed is idempotent: rerunning it adds only what is missing.
func seed(ctx context.Context, db *sqlite.DB, lg *zap.SugaredLogger, opts seedOptions) (seedSummary, error) {
	var summary seedSummary

	wh, err := warehouse.Ensure(ctx, db, warehouse.CreateInput{
		ID:    warehouse.DefaultID,
		Name:  "Hlavní sklad",
		Zones: []string{"A", "B", "C"},
	})
	if err != nil {
		return summary, fmt.Errorf("ensure warehouse: %w", err)
	}
	summary.Warehouse = wh.Name

	added, err := rails.SeedGrid(ctx, db, rails.GridInput{
		WarehouseID: wh.ID,
		Rows:        gridRows,
		Cols:        gridCols,
		Zones:       wh.Zones,
	})
	if err != nil {
		return summary, fmt.Errorf("seed rails: %w", err)
	}
	summary.RailsAdded = added

	auditSvc := audit.NewService()
	reg, err := users.Register(ctx, db, auditSvc, cache.NewUserCache(), testUserName, testUserDevice)
	if err != nil {
		return summary, fmt.Errorf("register test user: %w", err)
	}
	summary.UserID = reg.User.ID

	if opts.DemoRolls == 0 {
		return summary, nil
	}

	svc := ledger.NewService(db, auditSvc, metrics.New(), lg, cache.NewRailCache())
	device := testUserDevice
	railCount := gridRows * gridCols
	for i := 0; i < opts.DemoRolls; i++ {
		width := 1000 + 100*(i%6)
		_, err := svc.Receive(ctx, ledger.ReceiveInput{
			EAN:          fmt.Sprintf("859500000%04d", i+1),
			MaterialName: demoMaterials[i%len(demoMaterials)],
			WidthMM:      &width,
			ToRailCode:   fmt.Sprintf("R-%03d", i%railCount+1),
			UserID:       reg.User.ID,
			DeviceID:     &device,
		})
		if err != nil {
			if apperror.As(err).Kind == apperror.KindConflict {
				summary.RollsExists++
				continue
			}
			return summary, fmt.Errorf("receive demo roll %d: %w", i+1, err)
		}
		summary.RollsAdded++
	}
	return summary, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
