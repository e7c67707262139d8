package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"parkingnear/internal/config"
	"parkingnear/internal/database"
	"parkingnear/internal/events"
	"parkingnear/internal/logging"
	"parkingnear/internal/models"
	"parkingnear/internal/service"
)

// watch follows one user's current booking and logs every status change.
func main() {
	userID := flag.Int64("user", 0, "user id to watch")
	flag.Parse()

	if err := run(*userID); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("-user is required")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	requests := service.NewRequestService(db, events.NewEventBus(), logging.Component(logger, "requests"))
	watcher := service.NewStatusWatcher(requests, cfg.Watcher.Interval, logging.Component(logger, "watcher"))

	logger.Info().Int64("user_id", userID).Dur("interval", cfg.Watcher.Interval).Msg("Watching current booking")
	watcher.Watch(ctx, userID, func(view *models.RequestView) {
		if view == nil {
			logger.Info().Int64("user_id", userID).Msg("No open booking")
			return
		}
		logger.Info().
			Int64("request_id", view.ID).
			Str("status", view.Status).
			Str("address", view.SpaceAddress).
			Str("vehicle", view.VehicleNumber).
			Msg("Booking status changed")
	})
	return nil
}
