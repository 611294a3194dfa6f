// Command sweep runs one reconciliation pass: confirmed bookings that have
// ended are completed and spaces left marked booked are freed. Meant for cron.
// Completion events are queued as notification tasks for the API process.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"venuebook/internal/config"
	"venuebook/internal/database"
	"venuebook/internal/domain"
	"venuebook/internal/events"
	"venuebook/internal/logging"
	"venuebook/internal/repository"
	"venuebook/internal/service"
	"venuebook/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to config.yaml")
		at         = flag.String("now", "", "sweep as of this RFC3339 instant instead of the current time")
		timeout    = flag.Duration("timeout", 5*time.Minute, "give up after this long")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
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

	now := time.Now()
	if *at != "" {
		if now, err = time.Parse(time.RFC3339, *at); err != nil {
			return fmt.Errorf("parse -now: %w", err)
		}
	}

	loc, err := cfg.Booking.Location()
	if err != nil {
		return err
	}
	blocking, err := cfg.Booking.Statuses()
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	db.SetLocation(loc)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rdb := connectRedis(ctx, cfg, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	bookings := service.NewBookingService(db, nil, eventBus(db, cfg, rdb, logger), service.Options{
		BlockingStatuses: blocking,
		Location:         loc,
		MaxAdvanceDays:   cfg.Booking.MaxAdvanceDays,
	}, logging.Component(logger, "bookings"))
	reconciler := service.NewReconciler(bookings, cfg.Booking.SweepInterval, logging.Component(logger, "reconciler"))

	res, err := reconciler.SweepAll(ctx, now)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	out, _ := json.Marshal(res)
	fmt.Println(string(out))
	if res.Failed > 0 {
		return fmt.Errorf("%d items failed", res.Failed)
	}
	return nil
}

// eventBus records completion events as notification tasks. The API process
// owns the sinks and delivers them.
func eventBus(db *database.DB, cfg *config.Config, rdb *redis.Client, logger *zerolog.Logger) domain.EventPublisher {
	names := cfg.Notifications.SinkNames()
	if len(names) == 0 {
		return nil
	}
	bus := events.NewEventBus()
	worker.NewNotificationEnqueuer(db, names, rdb, logging.Component(logger, "notifications")).Subscribe(bus)
	return bus
}

func connectRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}
	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, tasks left for polling")
		_ = client.Close()
		return nil
	}
	return client
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
