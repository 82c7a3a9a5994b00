package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"courier-backend/internal/database"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	seed := flag.Bool("seed", false, "create the demo shop and drivers after migrating up")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: migrate [-seed] up|down|status|version|redo|reset\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL environment variable not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := database.Connect(dbURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, logger, command, flag.Args()[min(1, flag.NArg()):]...); err != nil {
		logger.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
	logger.Info("migration completed", zap.String("command", command))

	if *seed && command == "up" {
		if err := database.NewStore(db, logger).SeedAccounts(ctx); err != nil {
			logger.Fatal("seeding failed", zap.Error(err))
		}
	}
}
