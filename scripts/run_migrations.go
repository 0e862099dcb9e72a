package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"

	"github.com/shopspring/decimal"

	"github.com/safar/mute-store/internal/config"
	"github.com/safar/mute-store/internal/database"
	"github.com/safar/mute-store/internal/logger"
	"github.com/safar/mute-store/internal/store"
	"github.com/safar/mute-store/migrations"
)

// Usage: go run scripts/run_migrations.go [up|down|seed <catalog.json>]
func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate", Format: "console"})
	ctx := context.Background()

	if len(os.Args) < 2 {
		logg.Warn(ctx, "usage: go run scripts/run_migrations.go [up|down|seed <catalog.json>]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "load config", err)
		os.Exit(1)
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logg.Error(ctx, "connect to database", err)
		os.Exit(1)
	}
	defer db.Close()

	switch os.Args[1] {
	case "seed":
		if len(os.Args) < 3 {
			logg.Warn(ctx, "seed needs a catalog file")
			os.Exit(2)
		}
		n, err := seedCatalog(ctx, db, os.Args[2])
		if err != nil {
			logg.Error(ctx, "seed catalog", err)
			os.Exit(1)
		}
		logg.Info(logg.WithField(ctx, "count", n), "catalog seeded")
	default:
		direction := database.Direction(os.Args[1])
		applied, err := database.Migrate(ctx, db, migrations.FS, direction, func(name string) {
			logg.Info(logg.WithField(ctx, "file", name), "running migration")
		})
		if err != nil {
			logg.Error(ctx, "migrate", err)
			os.Exit(1)
		}
		logg.Info(logg.WithFields(ctx, map[string]any{"count": len(applied), "direction": string(direction)}), "migrations complete")
	}
}

type catalogEntry struct {
	ID          string          `json:"id"`
	Name        string          `json:"nombre"`
	Description string          `json:"descripcion"`
	Price       decimal.Decimal `json:"precio"`
	Image       string          `json:"imagen"`
	Sizes       []string        `json:"tallas"`
}

func seedCatalog(ctx context.Context, db *sql.DB, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var entries []catalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, err
	}
	for _, e := range entries {
		_, err := store.CreateProduct(ctx, db, store.NewProduct{
			SKU:         e.ID,
			Name:        e.Name,
			Description: e.Description,
			Price:       e.Price,
			ImageURL:    e.Image,
			Sizes:       e.Sizes,
		})
		if err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}
