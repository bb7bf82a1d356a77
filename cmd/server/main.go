// Package main - точка входа для API-сервера Progression Engine.
//
// Сервер обслуживает REST API прогрессии студентов:
// - Начисление XP и ведение журнала транзакций
// - Шаги серий активности (streaks) и автоматические достижения
// - Витрины чтения: прогресс, журнал, сетка достижений, лидерборд
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries)
// - Infrastructure: Postgres, Redis, event bus
// - Interface: HTTP handlers
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/studyhub/progression-engine/config"

	// Application layer
	"github.com/studyhub/progression-engine/internal/application"
	"github.com/studyhub/progression-engine/internal/application/command"
	"github.com/studyhub/progression-engine/internal/application/eventhandler"
	"github.com/studyhub/progression-engine/internal/application/query"

	// Domain layer
	"github.com/studyhub/progression-engine/internal/domain/progression"

	// Infrastructure layer
	"github.com/studyhub/progression-engine/internal/infrastructure/messaging"
	"github.com/studyhub/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/studyhub/progression-engine/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/studyhub/progression-engine/internal/interface/http"
	"github.com/studyhub/progression-engine/internal/interface/http/handlers"

	// Packages
	"github.com/studyhub/progression-engine/pkg/logger"
	"github.com/studyhub/progression-engine/pkg/timeutil"
)

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем приложение
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	// .env нужен только для локальной разработки, в проде его нет
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Progression Engine API server",
		logger.String("env", string(cfg.App.Environment)),
		logger.Bool("debug", cfg.App.Debug),
		logger.String("version", cfg.App.Version),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.AutoMigrate {
		log.Info("checking database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (витрины чтения)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache    *redis.Cache
		leaderboard   *redis.LeaderboardCache
		progressCache *redis.ProgressCache
	)

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			// Витрины деградируют до Postgres, сервер остаётся рабочим
			log.Warn("failed to connect to Redis, read models degrade to Postgres", logger.Err(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			if cfg.Features.IsEnabled(config.FeatureRedisLeaderboard) {
				leaderboard = redis.NewLeaderboardCache(redisCache)
			}
			if cfg.Features.IsEnabled(config.FeatureProgressCache) {
				progressCache = redis.NewProgressCache(redisCache, nil)
			}
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	studentRepo := postgres.NewStudentRepository(dbConn)
	ledgerRepo := postgres.NewLedgerRepository(dbConn)
	streakRepo := postgres.NewStreakRepository(dbConn)
	unlockRepo := postgres.NewUnlockRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ EVENT BUS И ОБРАБОТЧИКОВ СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// Проекции: лидерборд и инвалидация кеша прогресса
	if leaderboard != nil || progressCache != nil {
		var boardWriter eventhandler.LeaderboardWriter
		if leaderboard != nil {
			boardWriter = leaderboard
		}
		var cacheWriter query.ProgressCache
		if progressCache != nil {
			cacheWriter = progressCache
		}
		projector := eventhandler.NewProjector(boardWriter, cacheWriter, log)
		if err := projector.Register(eventBus); err != nil {
			return fmt.Errorf("failed to register projections: %w", err)
		}
	}

	// Празднования level-up и достижений в логах
	if cfg.Features.IsEnabled(config.FeatureCelebrations) {
		notifier := eventhandler.NewNotifier(log)
		if err := notifier.Register(eventBus); err != nil {
			return fmt.Errorf("failed to register notifier: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. СБОРКА APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("building application layer...")
	clock := timeutil.SystemClock{}
	catalog := progression.DefaultCatalog()

	awardHandler := command.NewAwardXPHandler(studentRepo, eventBus, clock, log)
	unlockHandler := command.NewUnlockAchievementHandler(studentRepo, unlockRepo, catalog, eventBus, clock, log)
	streakHandler := command.NewUpdateStreakHandler(streakRepo, unlockHandler, eventBus, clock, log)
	activityHandler := command.NewActivityHandler(awardHandler, streakHandler, log)

	var progressCacheDep query.ProgressCache
	if progressCache != nil {
		progressCacheDep = progressCache
	}
	progressHandler := query.NewGetProgressHandler(studentRepo, streakRepo, unlockRepo, progressCacheDep, log)
	totalXPHandler := query.NewGetTotalXPHandler(studentRepo)
	ledgerHandler := query.NewGetLedgerHandler(ledgerRepo)
	achievementsHandler := query.NewGetAchievementsHandler(catalog, unlockRepo)

	var board query.Leaderboard
	if leaderboard != nil {
		board = leaderboard
	}
	leaderboardHandler := query.NewGetLeaderboardHandler(board, studentRepo, log)

	engine := application.NewEngine(application.Handlers{
		AwardXP:      awardHandler,
		UpdateStreak: streakHandler,
		Unlock:       unlockHandler,
		Activity:     activityHandler,
		Progress:     progressHandler,
		TotalXP:      totalXPHandler,
		Ledger:       ledgerHandler,
		Achievements: achievementsHandler,
		Leaderboard:  leaderboardHandler,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("postgres", handlers.NewDatabaseCheck(dbConn))
	if redisCache != nil {
		healthChecker.AddCheck("redis", handlers.NewCacheCheck(redisCache))
	}

	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.EnableCORS = cfg.HTTP.EnableCORS
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.APIKeyHashes = cfg.HTTP.APIKeyHashes

	server := httpserver.NewServer(serverCfg, httpserver.Dependencies{
		Engine:        engine,
		Logger:        log,
		HealthChecker: healthChecker,
	})

	errCh := server.StartAsync()

	log.Info("Progression Engine API server is running",
		logger.String("address", server.Address()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...",
		logger.Duration("timeout", cfg.App.ShutdownTimeout),
	)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", logger.Err(err))
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts)
}
