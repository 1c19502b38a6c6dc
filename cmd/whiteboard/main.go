package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kitehostel/internal/api"
	"kitehostel/internal/cache"
	"kitehostel/internal/config"
	"kitehostel/internal/db"
	"kitehostel/internal/events"
	"kitehostel/internal/metrics"
	"kitehostel/internal/service"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	configPath := config.PathFromEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel()); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	bus := events.NewEventBus(&logger)

	var source service.LessonSource = database
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		cached := cache.NewCachedSource(database, rdb, cfg.CacheTTL(), &logger)
		cached.Subscribe(bus)
		source = cached
	}

	svc := service.New(source, database, bus, cfg.SchedulePolicy(), &logger)

	err = config.Watch(ctx, configPath, cfg.WatchInterval(), func(updated *config.Config) {
		policy := updated.SchedulePolicy()
		if policy != svc.Policy() {
			logger.Info().Str("overlap", string(policy.Overlap)).Int("min_duration", policy.MinDurationMinutes).Msg("schedule policy reloaded")
			svc.SetPolicy(policy)
		}
	})
	if err != nil {
		logger.Warn().Err(err).Msg("config watch disabled")
	}

	backup := db.NewBackupService(database, cfg.Backup, &logger)
	go backup.Start(ctx)

	go startHealthServer(ctx, cfg.HealthPort(), database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.MetricsPort(), &logger)
	}

	logger.Info().Str("config", configPath).Msg("whiteboard started")

	if !cfg.API.Enabled {
		logger.Info().Msg("API disabled")
		<-ctx.Done()
		return
	}

	rps, burst := cfg.APIRate()
	server := api.NewHTTPServer(svc, cfg.APIPort(), rps, burst, &logger)
	server.SetSessionTTL(cfg.SessionTTL())
	server.Start(ctx)
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
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
