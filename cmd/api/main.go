package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"venuebook/internal/api"
	"venuebook/internal/bot"
	"venuebook/internal/config"
	"venuebook/internal/database"
	"venuebook/internal/domain"
	"venuebook/internal/events"
	"venuebook/internal/google"
	"venuebook/internal/logging"
	"venuebook/internal/metrics"
	"venuebook/internal/models"
	"venuebook/internal/notify"
	"venuebook/internal/repository"
	"venuebook/internal/service"
	"venuebook/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	loc, err := cfg.Booking.Location()
	if err != nil {
		return err
	}
	blocking, err := cfg.Booking.Statuses()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, loc, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	locker := initLocker(cfg, redisClient, logger)

	bus := events.NewEventBus()
	bookings := service.NewBookingService(db, locker, bus, service.Options{
		BlockingStatuses: blocking,
		Location:         loc,
		MaxAdvanceDays:   cfg.Booking.MaxAdvanceDays,
	}, logging.Component(logger, "bookings"))
	spaces := service.NewSpaceService(db, locker, logging.Component(logger, "spaces"))
	reconciler := service.NewReconciler(bookings, cfg.Booking.SweepInterval, logging.Component(logger, "reconciler"))

	tgBot := initTelegram(cfg, logger)
	if tgBot != nil && cfg.Notifications.Telegram.AdminBot {
		admin := bot.NewBot(bot.NewBotWrapper(tgBot), bookings, spaces, reconciler,
			cfg.Notifications.Telegram.AdminChatIDs, loc, logging.Component(logger, "bot"))
		go admin.Start(ctx)
	}

	if cfg.Notifications.Enabled {
		sinks := initSinks(ctx, cfg, loc, tgBot, logger)
		notifications := worker.NewNotificationWorker(
			db, sinks, redisClient,
			worker.RetryPolicyFromConfig(cfg.Notifications.Retry),
			logging.Component(logger, "notifications"),
		)
		notifications.Subscribe(bus)
		go notifications.Start(ctx)
	}

	go reconciler.Start(ctx)
	go database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start(ctx)

	startMetrics(ctx, cfg, logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Bookings:   bookings,
		Spaces:     spaces,
		Reconciler: reconciler,
		Pinger:     db,
		Location:   loc,
	}, logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, db, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchHealth(ctx, 15*time.Second)
	}

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

func loadSpaces(path string) ([]models.Space, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spaces: %w", err)
	}
	var spacesConfig struct {
		Spaces []models.Space `yaml:"spaces"`
	}
	if err := yaml.Unmarshal(data, &spacesConfig); err != nil {
		return nil, fmt.Errorf("parse spaces: %w", err)
	}
	if err := config.ValidateSpaces(spacesConfig.Spaces); err != nil {
		return nil, err
	}
	return spacesConfig.Spaces, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, loc *time.Location, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	db.SetLocation(loc)

	spacesPath := cfg.SpacesFile
	if env := os.Getenv("SPACES_PATH"); env != "" {
		spacesPath = env
	}
	if spacesPath == "" {
		return db, nil
	}

	seed, err := loadSpaces(spacesPath)
	if err != nil {
		db.Close()
		logger.Error().Err(err).Str("spaces_path", spacesPath).Msg("load seed spaces")
		return nil, err
	}
	created, err := db.UpsertSpaces(ctx, seed)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("seed spaces: %w", err)
	}
	logger.Info().Int("seed", len(seed)).Int("created", created).Msg("spaces loaded")
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initLocker prefers the redis lock so several API processes can share one
// database; the in-process lock covers redis outages.
func initLocker(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.SpaceLocker {
	memory := repository.NewMemorySpaceLocker()
	if client == nil {
		return memory
	}
	return repository.NewFailoverSpaceLocker(
		repository.NewRedisSpaceLocker(client, cfg.Booking.LockTTL),
		memory,
		logging.Component(logger, "locker"),
	)
}

func initTelegram(cfg *config.Config, logger *zerolog.Logger) *tgbotapi.BotAPI {
	tg := cfg.Notifications.Telegram
	if tg.BotToken == "" {
		return nil
	}
	botAPI, err := notify.NewBotAPI(tg.BotToken, tg.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram")
		return nil
	}
	logger.Info().Str("bot", botAPI.Self.UserName).Int("chats", len(tg.AdminChatIDs)).Msg("telegram connected")
	return botAPI
}

func initSinks(ctx context.Context, cfg *config.Config, loc *time.Location, tgBot *tgbotapi.BotAPI, logger *zerolog.Logger) []domain.Notifier {
	sinks := []domain.Notifier{notify.NewLogNotifier(logging.Component(logger, "notify"))}

	if tgBot != nil {
		sinks = append(sinks, notify.NewTelegramNotifier(tgBot, cfg.Notifications.Telegram.AdminChatIDs, loc))
	}

	if g := cfg.Notifications.Google; g.SpreadsheetID != "" {
		sheets, err := google.NewSheetsService(ctx, g.CredentialsFile, g.SpreadsheetID, g.SheetName, loc)
		if err == nil {
			err = sheets.TestConnection(ctx)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		} else {
			if email, err := google.ServiceAccountEmail(g.CredentialsFile); err == nil {
				logger.Info().Str("service_account", email).Msg("google sheets connected")
			}
			sheets.StartCacheRefresh(ctx, 10*time.Minute, func(err error) {
				logger.Warn().Err(err).Msg("sheets row cache refresh failed")
			})
			sinks = append(sinks, sheets)
		}
	}

	return sinks
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	if cfg.API.HTTP.Enabled {
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().
		Bool("grpc", grpcServer != nil).
		Bool("http", cfg.API.HTTP.Enabled).
		Int("http_port", cfg.API.HTTP.Port).
		Msg("venuebook started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if cfg.API.HTTP.Enabled {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("venuebook stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
