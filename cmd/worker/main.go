// Package main - точка входа для фоновых процессов (Worker) Progression Engine.
//
// Worker отвечает за периодические задачи:
// - Пересчёт лидербордов и сохранение снапшотов
// - Сверка рангов всех активных участников
// - Доставка уведомлений из outbox по каналам
// - Очистка отправленных записей outbox
//
// Worker не принимает HTTP-трафик: все входящие события обрабатывает
// Server, а Worker держит производные данные (ранги, рейтинги, кеши)
// в актуальном состоянии.
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
	"github.com/refnet-platform/progression-engine/internal/application/saga"
	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
	"github.com/refnet-platform/progression-engine/internal/infrastructure/messaging"
	"github.com/refnet-platform/progression-engine/internal/infrastructure/persistence/postgres"
	redisinfra "github.com/refnet-platform/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/refnet-platform/progression-engine/internal/infrastructure/scheduler"
	"github.com/refnet-platform/progression-engine/internal/infrastructure/scheduler/jobs"
	"github.com/refnet-platform/progression-engine/internal/infrastructure/service"
	"github.com/refnet-platform/progression-engine/pkg/logger"
)

// rebuildLockKey защищает пересборку лидербордов от параллельного запуска
// несколькими экземплярами Worker.
const rebuildLockKey = "progression:jobs:rebuild_leaderboards:lock"

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
	slogger.Info("starting Progression Engine Worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// Командные обработчики используют внутренний структурный логгер.
	appLog := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	}).With(logger.String("app", "worker"))

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
	// 4. ЗАПУСК МИГРАЦИЙ (Worker также должен иметь актуальную схему)
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
	var locker jobs.Locker

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
			slogger.Warn("failed to connect to Redis, board caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			boardCache = redisinfra.NewBoardCache(redisCache)
			locker = redisCache
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

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ EVENT BUS
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
	// 8. КОМАНДНЫЕ ОБРАБОТЧИКИ И ПОДПИСКИ
	// ─────────────────────────────────────────────────────────────────────────
	evaluateHandler := command.NewEvaluateMemberHandler(
		memberRepo, rankRepo, rankRepo,
		achievementRepo, achievementRepo,
		outboxRepo, dbConn, eventBus, appLog,
	)
	recalculateHandler := command.NewRecalculateRankHandler(
		memberRepo, rankRepo, rankRepo,
		outboxRepo, dbConn, eventBus, appLog,
	)
	progressionFlow := saga.NewProgressionFlowSaga(
		evaluateHandler, boardCache, appLog, saga.DefaultProgressionFlowConfig(),
	)

	// При Redis-шине события других экземпляров тоже попадают сюда,
	// поэтому Worker держит кеши в актуальном состоянии за всех.
	onRankChanged := eventhandler.NewOnRankChangedHandler(boardCache, slogger)
	onAchievement := eventhandler.NewOnAchievementUnlockedHandler(slogger)
	onStatsUpdated := eventhandler.NewOnStatsUpdatedHandler(progressionFlow, slogger)

	for _, sub := range []struct {
		eventType shared.EventType
		handler   shared.EventHandler
	}{
		{onRankChanged.EventType(), onRankChanged.Handle},
		{onAchievement.EventType(), onAchievement.Handle},
		{onStatsUpdated.EventType(), onStatsUpdated.Handle},
	} {
		if err := eventBus.Subscribe(sub.eventType, sub.handler); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", sub.eventType, err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. OUTBOX DISPATCHER (доставка уведомлений)
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("starting outbox dispatcher...")
	dispatcher, err := messaging.NewOutboxDispatcher(messaging.OutboxDispatcherConfig{
		Outbox:       outboxRepo,
		Channels:     buildChannels(cfg, notificationRepo, slogger),
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		RetryConfig: messaging.RetryConfig{
			MaxRetries:     cfg.Outbox.MaxRetries,
			InitialBackoff: cfg.Outbox.InitialBackoff,
			MaxBackoff:     cfg.Outbox.MaxBackoff,
		},
		Logger: slogger,
	})
	if err != nil {
		return fmt.Errorf("failed to create outbox dispatcher: %w", err)
	}
	dispatcher.Start()
	defer func() {
		slogger.Info("stopping outbox dispatcher...")
		_ = dispatcher.Stop()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. ПЛАНИРОВЩИК ФОНОВЫХ ЗАДАЧ
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		slogger.Info("starting scheduler...")

		schedCfg := scheduler.DefaultSchedulerConfig()
		schedCfg.Logger = slogger
		sched = scheduler.NewScheduler(schedCfg)

		// Снапшоты можно выключить флагом: job принимает nil-репозиторий.
		var snapshots leaderboard.SnapshotRepository
		if cfg.Features.IsEnabled(config.FeatureLeaderboardSnapshots, nil) {
			snapshots = leaderboardRepo
		}

		rebuildJob := jobs.NewRebuildLeaderboardsJob(
			leaderboardRepo, snapshots, boardCache,
			leaderboardRepo, locker, rebuildLockKey,
			slogger,
			jobs.RebuildLeaderboardsConfig{
				BoardSize:             cfg.Scheduler.LeaderboardSize,
				SnapshotRetentionDays: cfg.Scheduler.SnapshotRetentionDays,
				Timeout:               cfg.Scheduler.JobTimeout,
			},
		)
		reconcileJob := jobs.NewReconcileRanksJob(
			memberRepo, recalculateHandler, slogger,
			jobs.ReconcileRanksConfig{
				PageSize: cfg.Scheduler.ReconcilePageSize,
				Timeout:  cfg.Scheduler.JobTimeout,
			},
		)
		purgeJob := jobs.NewPurgeOutboxJob(outboxRepo, cfg.Outbox.Retention, slogger)
		purgeSchedule, err := scheduler.ParseCronExpression(cfg.Scheduler.PurgeOutboxCron)
		if err != nil {
			return fmt.Errorf("invalid SCHEDULER_PURGE_CRON: %w", err)
		}

		for _, reg := range []struct {
			job      scheduler.Job
			schedule scheduler.Schedule
		}{
			{rebuildJob, scheduler.NewIntervalSchedule(cfg.Scheduler.RebuildLeaderboardInterval)},
			{reconcileJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ReconcileRanksInterval)},
			{purgeJob, purgeSchedule},
		} {
			if err := sched.Register(reg.job, reg.schedule); err != nil {
				return fmt.Errorf("failed to register job %s: %w", reg.job.Name(), err)
			}
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		slogger.Warn("scheduler is disabled, only outbox dispatch is running")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("Progression Engine Worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	slogger.Info("received shutdown signal", "signal", sig.String())
	slogger.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	if sched != nil {
		if err := sched.Stop(); err != nil {
			slogger.Warn("scheduler stop failed", "error", err)
		}
	}

	// Перед остановкой пытаемся дослать накопившиеся уведомления.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer drainCancel()
	if err := dispatcher.DrainOnce(drainCtx); err != nil {
		slogger.Warn("outbox drain failed", "error", err)
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

// buildChannels собирает каналы доставки в порядке приоритета. Без единого
// включённого канала уведомления уходят в лог, чтобы outbox не рос вечно.
func buildChannels(cfg *config.Config, repo notification.Repository, slogger *slog.Logger) []notification.Channel {
	var channels []notification.Channel

	if cfg.Features.IsEnabled(config.FeatureDeliveryInApp, nil) {
		channels = append(channels, service.NewInAppChannel(repo))
	}
	if cfg.Features.IsEnabled(config.FeatureDeliveryWebhook, nil) && cfg.Webhook.Endpoint != "" {
		channels = append(channels, service.NewWebhookChannel(service.WebhookChannelConfig{
			Endpoint:  cfg.Webhook.Endpoint,
			AuthToken: cfg.Webhook.AuthToken,
			Timeout:   cfg.Webhook.RequestTimeout,
			Logger:    slogger,
		}))
	}
	if len(channels) == 0 {
		slogger.Warn("no delivery channels enabled, notifications go to the log")
		channels = append(channels, service.NewLogChannel(slogger))
	}

	return channels
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
