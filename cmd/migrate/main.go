package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"faersignal/internal/config"
	"faersignal/internal/container"
	"faersignal/internal/migration"
)

func main() {
	reset := flag.Bool("reset", false, "empty the report tables after migrating")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := container.OpenDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	var runner migration.Migrator = migration.NewRunner()
	if *reset {
		log.Println("Resetting database - emptying report tables...")
	}
	if err := migration.Apply(context.Background(), runner, db, *reset); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Schema at version %s", runner.Version())
}
