package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/wa-pool/app/handlers"
	"github.com/amirphl/wa-pool/app/middleware"
	"github.com/amirphl/wa-pool/app/router"
	"github.com/amirphl/wa-pool/app/scheduler"
	"github.com/amirphl/wa-pool/app/services"
	businessflow "github.com/amirphl/wa-pool/business_flow"
	"github.com/amirphl/wa-pool/config"
	"github.com/amirphl/wa-pool/logging"
	"github.com/amirphl/wa-pool/repository"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	logger    zerolog.Logger
	stopFuncs []func()
	closers   []io.Closer
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging, cfg.Deployment.Version)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logCloser.Close()

	logger.Info().Str("environment", cfg.Deployment.Environment).Msg("starting wa-pool")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := initializeApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		serverErr <- app.router.Start(address)
	}()

	select {
	case <-sigChan:
		logger.Info().Msg("shutting down gracefully")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server stopped unexpectedly")
	}

	app.shutdown(cfg.Server.ShutdownTimeout)
	logger.Info().Msg("server stopped")
}

func (a *Application) shutdown(timeout time.Duration) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.router.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("error during http shutdown")
	}

	// background workers stop in reverse start order
	for i := len(a.stopFuncs) - 1; i >= 0; i-- {
		a.stopFuncs[i]()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("error closing resource")
		}
	}
}

func databaseDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
}

// migrateDatabase applies embedded migrations over a short-lived lib/pq connection
func migrateDatabase(cfg config.DatabaseConfig, logger zerolog.Logger) error {
	db, err := sql.Open("postgres", databaseDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	if err := repository.RunMigrations(db); err != nil {
		return err
	}
	logger.Info().Msg("database migrations applied")
	return nil
}

// gormLogWriter routes gorm's slow-query and error lines through zerolog
type gormLogWriter struct {
	logger zerolog.Logger
}

func (w gormLogWriter) Printf(format string, args ...any) {
	w.logger.Warn().Msgf(format, args...)
}

func initializeDatabase(cfg config.DatabaseConfig, logger zerolog.Logger) (*gorm.DB, error) {
	logLevel := gormlogger.Silent
	if cfg.SlowQueryLog {
		logLevel = gormlogger.Warn
	}
	slow := cfg.SlowQueryTime
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}

	db, err := gorm.Open(postgres.Open(databaseDSN(cfg)), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(gormLogWriter{logger: logger.With().Str("component", "gorm").Logger()}, gormlogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Int("max_open_conns", cfg.MaxOpenConns).
		Int("max_idle_conns", cfg.MaxIdleConns).
		Msg("database connection established")

	return db, nil
}

func initializeCache(cfg config.CacheConfig, logger zerolog.Logger) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Int("db", cfg.RedisDB).Msg("redis connection established")
	return rc, nil
}

func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger zerolog.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn().Err(err).Msg("redis healthcheck failed")
				}
				c()
			}
		}
	}()
	return cancel
}

func initializeApplication(ctx context.Context, cfg *config.ProductionConfig, logger zerolog.Logger) (*Application, error) {
	app := &Application{config: cfg, logger: logger}

	if cfg.Database.RunMigrations {
		if err := migrateDatabase(cfg.Database, logger); err != nil {
			return nil, err
		}
	}

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, sqlDB)

	rc, err := initializeCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	channelRepo := repository.NewChannelRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	gateway := services.NewGatewayClient(cfg.Gateway)
	tokenService, err := services.NewTokenService(cfg.JWT.AccessTokenTTL, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	pool := businessflow.NewChannelPool(channelRepo, auditRepo, gateway, logger)

	var locker scheduler.RefillLocker
	if rc != nil {
		hostname, _ := os.Hostname()
		locker = scheduler.NewRedisRefillLock(rc, scheduler.RefillLockKey(cfg.Cache.RedisPrefix), cfg.Scheduler.RefillLockTTL, hostname)
		app.stopFuncs = append(app.stopFuncs, startCacheHealthMonitor(ctx, rc, 30*time.Second, logger))
		app.closers = append(app.closers, rc)
	}
	refill := scheduler.NewRefillDispatcher(pool, locker, cfg.Pool, logger)
	app.stopFuncs = append(app.stopFuncs, refill.Start(ctx))

	maintainer := scheduler.NewPoolMaintainer(refill, cfg.Pool.MaintenanceCron, logger)
	stopMaintainer, err := maintainer.Start(ctx)
	if err != nil {
		return nil, err
	}
	app.stopFuncs = append(app.stopFuncs, stopMaintainer)

	if cfg.Scheduler.StatusCheckInterval > 0 {
		reconciler := scheduler.NewStatusReconciler(pool, cfg.Scheduler.StatusCheckInterval, cfg.Scheduler.StatusCheckBatch, logger)
		app.stopFuncs = append(app.stopFuncs, reconciler.Start(ctx))
	}

	connectFlow := businessflow.NewConnectFlow(pool, gateway, refill, auditRepo, cfg.Pool.AssignAttempts, logger)
	adminFlow := businessflow.NewAdminChannelFlow(pool, auditRepo, cfg.Pool.TargetSize, cfg.Pool.RefillThreshold)

	health := map[string]router.HealthCheck{
		"database": sqlDB.PingContext,
	}
	if rc != nil {
		health["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}

	app.router = router.NewFiberRouter(
		cfg,
		handlers.NewChannelHandler(connectFlow, logger),
		handlers.NewChannelAdminHandler(adminFlow, logger),
		middleware.NewAuthMiddleware(tokenService),
		health,
		logger,
	)

	return app, nil
}
