package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parkingnear/internal/api"
	"parkingnear/internal/config"
	"parkingnear/internal/database"
	"parkingnear/internal/domain"
	"parkingnear/internal/events"
	"parkingnear/internal/geo"
	"parkingnear/internal/logging"
	"parkingnear/internal/metrics"
	"parkingnear/internal/notify"
	"parkingnear/internal/report"
	"parkingnear/internal/service"
	"parkingnear/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
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
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus()
	svc := buildServices(cfg, db, bus, logger)
	if redisClient != nil {
		svc.DeadLetters = notify.NewDeadLetters(redisClient)
	}

	if cfg.Notifications.Enabled {
		sink, cleanup, err := buildSink(cfg, redisClient, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		go startNotificationWorker(ctx, cfg, db, sink, redisClient, logger)
	}

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(db, cfg.Database.Path, cfg.Backup, logging.Component(logger, "backup"))
		go backup.Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, running background workers only")
		<-ctx.Done()
		return nil
	}

	httpServer := api.NewHTTPServer(cfg.API, svc, logger)
	return serve(ctx, httpServer, cfg, logger)
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

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

func buildServices(cfg *config.Config, db *database.DB, bus *events.EventBus, logger *zerolog.Logger) api.Services {
	var geocoder domain.Geocoder
	if cfg.Geocoder.Enabled {
		geocoder = geo.NewClient(geo.Config{
			BaseURL:   cfg.Geocoder.BaseURL,
			UserAgent: cfg.Geocoder.UserAgent,
			Timeout:   cfg.Geocoder.Timeout,
			RPS:       cfg.Geocoder.RPS,
		}, logging.Component(logger, "geocoder"))
	}

	billing := service.NewBillingService(db, bus, cfg.Billing.DueDays, logging.Component(logger, "billing"))
	if cfg.Billing.AutoGenerate {
		bus.Subscribe(events.EventRequestCompleted, billing.HandleRequestCompleted)
	}

	return api.Services{
		Spaces:        service.NewSpaceService(db, geocoder, logging.Component(logger, "spaces")),
		Requests:      service.NewRequestService(db, bus, logging.Component(logger, "requests")),
		Billing:       billing,
		Payments:      service.NewPaymentService(db, bus, logging.Component(logger, "payments")),
		Users:         service.NewUserService(db, logging.Component(logger, "users")),
		Exporter:      report.NewExporter(billing, logging.Component(logger, "exports")),
		Notifications: db,
		ExportDir:     cfg.Exports.Path,
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := notify.NewRedisClient(cfg.Redis)
	if err := notify.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// buildSink assembles the configured sinks. Broker sinks copy undelivered
// notifications to the log and report the failure, so the outbox retries them.
func buildSink(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) (notify.Sink, func(), error) {
	sinkLogger := logging.Component(logger, "notify")
	logSink := notify.NewLogSink(sinkLogger)

	var sinks []notify.Sink
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	for _, name := range cfg.Notifications.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, logSink)
		case "redis":
			if redisClient == nil {
				logger.Warn().Msg("redis sink configured but redis is unavailable, using log")
				sinks = append(sinks, logSink)
				continue
			}
			sinks = append(sinks, notify.NewFailoverSink(notify.NewRedisSink(redisClient), logSink, sinkLogger))
		case "amqp":
			conn, err := notify.DialAMQP(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			closers = append(closers, conn.Close)
			amqpSink := notify.NewAMQPSink(conn.Channel(), cfg.RabbitMQ.Exchange)
			sinks = append(sinks, notify.NewFailoverSink(amqpSink, logSink, sinkLogger))
		case "telegram":
			bot, err := notify.NewTelegramBot(cfg.Telegram)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			sinks = append(sinks, notify.NewTelegramSink(bot, sinkLogger))
		}
	}

	if len(sinks) == 1 {
		return sinks[0], cleanup, nil
	}
	return notify.NewMultiSink(sinks...), cleanup, nil
}

func startNotificationWorker(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	sink notify.Sink,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) {
	w := worker.NewNotificationWorker(db, sink,
		worker.RetryPolicy{MaxRetries: cfg.Notifications.MaxRetries},
		logging.Component(logger, "notification-worker"))
	w.SetPolling(cfg.Notifications.PollInterval, cfg.Notifications.BatchSize)
	if redisClient != nil {
		w.SetDeadLetters(notify.NewDeadLetters(redisClient))
	}
	w.Start(ctx)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.Port).Msg("parkingnear started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("parkingnear stopped")
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
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
