// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/audit"
	"github.com/Shivanand-hulikatti/slot-registration/internal/cache"
	"github.com/Shivanand-hulikatti/slot-registration/internal/config"
	"github.com/Shivanand-hulikatti/slot-registration/internal/database"
	"github.com/Shivanand-hulikatti/slot-registration/internal/handler"
	"github.com/Shivanand-hulikatti/slot-registration/internal/identity"
	"github.com/Shivanand-hulikatti/slot-registration/internal/logger"
	"github.com/Shivanand-hulikatti/slot-registration/internal/ratelimit"
	"github.com/Shivanand-hulikatti/slot-registration/internal/repository"
	"github.com/Shivanand-hulikatti/slot-registration/internal/service"
	"github.com/Shivanand-hulikatti/slot-registration/internal/telemetry"
	"github.com/Shivanand-hulikatti/slot-registration/internal/worker"
	"go.uber.org/zap"
)

const auditTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Configuration, logging, tracing ───────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.App.Name,
		Development: cfg.App.IsDevelopment(),
	}); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Get()

	if err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	loc, err := cfg.Registration.Location()
	if err != nil {
		return fmt.Errorf("registration time zone: %w", err)
	}

	// ── 2. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	log.Info("connected to PostgreSQL")

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema migrated")
	}

	// ── 3. Optional backends ──────────────────────────────────────────────
	var eventCache service.EventViewCache
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		eventCache = cache.NewEventCache(client, cfg.Redis.TTL, log)
		log.Info("event view cache enabled", zap.String("addr", cfg.Redis.Addr()))
	}

	sinks := []audit.Sink{audit.NewLogSink(log)}
	if cfg.Kafka.Enabled {
		client, err := audit.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer client.Close()
		sinks = append(sinks, audit.NewKafkaSink(client, cfg.Kafka.AuditTopic))
		log.Info("audit topic enabled", zap.String("topic", cfg.Kafka.AuditTopic))
	}
	recorder := audit.NewDispatcher(log, auditTimeout, sinks...)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := recorder.Close(flushCtx); err != nil {
			log.Warn("audit flush incomplete", zap.Error(err))
		}
	}()

	// ── 4. Wire up layers ────────────────────────────────────────────────
	eventRepo := repository.NewEventRepository(pool)
	videoRepo := repository.NewVideoRepository(pool)

	eventSvc := service.NewEventService(eventRepo, eventCache)
	slotSvc := service.NewSlotService(eventRepo, eventCache, log)
	checker := service.NewChecker(eventRepo, service.NewQuotaCounter(videoRepo), loc)
	members := service.NewMemberDirectory(videoRepo, cfg.Registration.MemberCacheTTL, nil)
	regSvc := service.NewRegistrationService(videoRepo, checker, slotSvc, recorder, members, log)

	go worker.NewSlotReconciler(eventRepo, videoRepo, slotSvc, cfg.Workers.ReconcileInterval, log).Run(ctx)
	go worker.NewPurgeWorker(regSvc, cfg.Workers.PurgeInterval, cfg.Workers.PurgeRetention, log).Run(ctx)

	limiter := ratelimit.NewStore(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 15*time.Minute)
	limiter.StartJanitor(ctx, 2*time.Minute)

	// ── 5. Build the router ───────────────────────────────────────────────
	router := handler.NewRouter(handler.RouterConfig{
		Events:   handler.NewEventHandler(eventSvc, slotSvc, checker, log),
		Videos:   handler.NewVideoHandler(regSvc, checker, members, log),
		Verifier: identity.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer),
		Limiter:  limiter,
		Log:      log,
	})

	// ── 6. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Block until SIGINT/SIGTERM or a server failure.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
