package main

// Apply the work order schema:
//   go run ./cmd/migrate

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"maintenance-backend/internal/shared/config"
	"maintenance-backend/internal/shared/storage/db"
)

const migrateTimeout = 2 * time.Minute

func main() {
	if err := run(config.Load()); err != nil {
		log.Printf("migrate: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return err
	}
	version, err := db.MigrationVersion(ctx, sqlDB)
	if err != nil {
		log.Printf("migrations applied; version unavailable: %v", err)
		return nil
	}
	log.Printf("migrations applied; schema version %d", version)
	return nil
}
