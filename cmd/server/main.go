// Package main - точка входа для API-сервера Progression Engine.
//
// Server принимает весь входящий трафик:
// - REST API для чтения рангов, достижений, лидербордов и уведомлений
// - Администраторские операции (ручное повышение, пересчёт)
// - Webhook платформы с колбэками об изменении статистики участников
//
// Каждый колбэк запускает прогрессионный проход: пересчёт ранга,
// проверку достижений и инвалидацию затронутых кешей лидербордов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/refnet-platform/progression-engine/config"
	"github.com/refnet-platform/progression-engine/internal/application/command"
	"github.com/refnet-platform/progression-engine/internal/application/eventhandler"
	"github.com/refnet-platform/progression-engine/internal/application/query"
	"github.com/refnet-platform/progression-engine/internal/application/saga"
	"github.com/refnet-platform/progression-engine/internal/domain/achievement"
	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
	httpapi "github.com/refnet-platform/progression-engine/internal/interface/http"
	"github.com/refnet-platform/progression-engine/internal/interface/http/handlers"
	"github.com/refnet-platform/progression-engine/internal/infrastructure/messaging"
	"github.com/refnet-platform/progression-engine/internal/infrastructure/persistence/postgres"
	redisinfra "github.com/refnet-platform/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/refnet-platform/progression-engine/internal/infrastructure/service"
	"github.com/refnet-platform/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	slogger := setupLogger(cfg)
	slogger.Info("starting Progression Engine API",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	appLog := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	}).With(logger.String("app", "server"))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		slogger.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	slogger.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slogger.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redisinfra.Cache
	var boardCache leaderboard.Cache

	if !cfg.Redis.Disabled {
		slogger.Info("connecting to Redis...")
		redisCfg := redisinfra.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		if cfg.Redis.PoolSize > 0 {
			redisCfg.PoolSize = cfg.Redis.PoolSize
		}

		redisCache, err = redisinfra.NewCache(redisCfg)
		if err != nil {
			slogger.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			boardCache = redisinfra.NewBoardCache(redisCache)
			slogger.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing repositories...")
	memberRepo := postgres.NewMemberRepository(dbConn)
	rankRepo := postgres.NewRankRepository(dbConn)
	achievementRepo := postgres.NewAchievementRepository(dbConn)
	leaderboardRepo := postgres.NewLeaderboardRepository(dbConn)
	notificationRepo := postgres.NewNotificationRepository(dbConn)
	outboxRepo := postgres.NewOutboxRepository(dbConn)

	// Каталоги почти не меняются, читаются на каждом прогоне.
	var rankCatalog rank.CatalogRepository = rankRepo
	var achievementCatalog achievement.CatalogRepository = achievementRepo
	if redisCache != nil {
		rankCatalog = redisinfra.NewCachedRankCatalog(rankRepo, redisCache)
		achievementCatalog = redisinfra.NewCachedAchievementCatalog(achievementRepo, redisCache)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ EVENT BUS И ПОДПИСОК
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing event bus...")
	eventBus, err := buildEventBus(cfg, redisCache, slogger)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer func() {
		slogger.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION LAYER (CQRS)
	// ─────────────────────────────────────────────────────────────────────────
	evaluateHandler := command.NewEvaluateMemberHandler(
		memberRepo, rankCatalog, rankRepo,
		achievementCatalog, achievementRepo,
		outboxRepo, dbConn, eventBus, appLog,
	)
	promoteHandler := command.NewPromoteMemberHandler(
		memberRepo, rankCatalog, rankRepo,
		outboxRepo, dbConn, eventBus, appLog,
	)
	recalculateHandler := command.NewRecalculateRankHandler(
		memberRepo, rankCatalog, rankRepo,
		outboxRepo, dbConn, eventBus, appLog,
	)

	progressionFlow := saga.NewProgressionFlowSaga(
		evaluateHandler, boardCache, appLog, saga.DefaultProgressionFlowConfig(),
	)

	onRankChanged := eventhandler.NewOnRankChangedHandler(boardCache, slogger)
	onAchievement := eventhandler.NewOnAchievementUnlockedHandler(slogger)
	if err := eventBus.Subscribe(onRankChanged.EventType(), onRankChanged.Handle); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", onRankChanged.EventType(), err)
	}
	if err := eventBus.Subscribe(onAchievement.EventType(), onAchievement.Handle); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", onAchievement.EventType(), err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. WEBHOOK ПЛАТФОРМЫ
	// ─────────────────────────────────────────────────────────────────────────
	webhookHandler := handlers.NewPlatformWebhookHandler()
	webhookHandler.RegisterEvent(handlers.EventCommissionCredited,
		func(ctx context.Context, event *handlers.PlatformEvent) error {
			_, err := progressionFlow.RunAfterCommission(ctx, event.MemberID, event.CorrelationID)
			return err
		})
	webhookHandler.RegisterEvent(handlers.EventRecruitJoined,
		func(ctx context.Context, event *handlers.PlatformEvent) error {
			_, err := progressionFlow.RunAfterRecruitment(ctx, event.MemberID, event.CorrelationID)
			return err
		})
	// Неизвестные и общие stats-события запускают полный проход.
	webhookHandler.RegisterDefault(
		func(ctx context.Context, event *handlers.PlatformEvent) error {
			_, err := progressionFlow.Execute(ctx, saga.ProgressionInput{
				MemberID:      event.MemberID,
				Trigger:       command.TriggerScheduled,
				CorrelationID: event.CorrelationID,
			})
			return err
		})
	webhookHandler.SetErrorHandler(func(err error) {
		slogger.Error("platform webhook processing failed", "error", err)
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", handlers.NewPingCheck(dbConn))
	if redisCache != nil {
		healthChecker.AddCheck("redis", handlers.NewPingCheck(redisCache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.EnableCORS = cfg.HTTP.EnableCORS
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.EnableMetrics = cfg.HTTP.EnableMetrics
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.APIKeyHeader = cfg.HTTP.APIKeyHeader
	serverCfg.APIKeys = cfg.HTTP.APIKeys
	serverCfg.WebhookSecret = cfg.HTTP.WebhookSecret

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		GetLeaderboardHandler:         query.NewGetLeaderboardHandler(leaderboardRepo, boardCache, appLog),
		GetMemberPositionHandler:      query.NewGetMemberPositionHandler(leaderboardRepo, boardCache, appLog),
		GetRankProgressHandler:        query.NewGetRankProgressHandler(memberRepo, rankCatalog, rankRepo),
		GetAchievementProgressHandler: query.NewGetAchievementProgressHandler(memberRepo, achievementCatalog, achievementRepo),
		GetNotificationsHandler:       query.NewGetNotificationsHandler(notificationRepo),
		GetPlatformStatsHandler:       query.NewGetPlatformStatsHandler(leaderboardRepo),
		ListMembersHandler:            query.NewListMembersHandler(memberRepo, rankRepo, rankCatalog),
		ListSnapshotsHandler:          query.NewListSnapshotsHandler(leaderboardRepo),
		EvaluateMemberHandler:         evaluateHandler,
		PromoteMemberHandler:          promoteHandler,
		RecalculateRankHandler:        recalculateHandler,
		Notifications:                 notificationRepo,
		Notifier:                      service.NewOutboxNotifier(outboxRepo, slogger),
		Logger:                        appLog,
		HealthChecker:                 healthChecker,
		WebhookHandler:                webhookHandler,
	})

	slogger.Info("starting HTTP server", "address", server.Address())
	serverErr := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 12. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		slogger.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	slogger.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slogger.Warn("http server shutdown failed", "error", err)
	}

	slogger.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// buildEventBus выбирает шину событий: in-memory по умолчанию, Redis Pub/Sub
// за экспериментальным флагом при доступном Redis.
func buildEventBus(cfg *config.Config, cache *redisinfra.Cache, slogger *slog.Logger) (eventBusCloser, error) {
	if cache != nil && cfg.Features.IsEnabled(config.FeatureExperimentalRedisBus, nil) {
		slogger.Info("using Redis event bus", "channel", cfg.Redis.EventChannel)
		localCfg := messaging.DefaultInMemoryEventBusConfig()
		localCfg.Logger = slogger
		bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewCacheRedisClient(cache),
			ChannelName:    cfg.Redis.EventChannel,
			LocalBusConfig: localCfg,
			Logger:         slogger,
		})
		if err != nil {
			return nil, err
		}
		return bus, nil
	}

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = slogger
	return messaging.NewInMemoryEventBus(busCfg), nil
}

// eventBusCloser объединяет шину событий с её остановкой.
type eventBusCloser interface {
	shared.EventBus
	Close() error
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug || cfg.Observability.LogLevel == "debug" {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}
