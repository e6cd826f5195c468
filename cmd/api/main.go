package main

import (
	"context"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"corrcov/adapters/postgres"
	"corrcov/app"
	"corrcov/internal"
	"corrcov/internal/config"
	"corrcov/ports"
	"corrcov/ui"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewDefaultLogger()

	// Run persistence is optional: without DATABASE_URL the API computes
	// corrections but keeps no journal.
	var runs ports.RunRepository
	if appConfig.Database.URL != "" {
		db, err := sqlx.Connect("postgres", appConfig.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		repo := postgres.NewRunRepository(db)
		if err := repo.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to prepare database schema: %v", err)
		}
		runs = repo
		logger.Info("[API] run persistence enabled")
	} else {
		logger.Info("[API] DATABASE_URL not set, run persistence disabled")
	}

	service := app.NewCorrectionService(appConfig.Correction, runs, logger)
	server := ui.NewServer(service, runs)

	log.Fatal(server.Start(":" + appConfig.Server.Port))
}
