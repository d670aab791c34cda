// Package main applies the embedded database migrations.
package main

import (
	"flag"
	"time"

	"github.com/jason-s-yu/chessroom/internal/config"
	"github.com/jason-s-yu/chessroom/internal/database"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	start := time.Now()

	direction := flag.String("direction", database.Up, "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("loading config: %v", err)
	}
	logger := cfg.NewLogger()

	version, err := database.Migrate(cfg.DatabaseURL, *direction, *steps)
	if err != nil {
		logger.WithError(err).Fatal("migration failed")
	}
	logger.WithFields(logrus.Fields{
		"direction": *direction,
		"version":   version,
		"elapsed":   time.Since(start),
	}).Info("migrations applied")
}
