package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"flowtask/internal/bot"
	"flowtask/internal/config"
	"flowtask/internal/logging"
	"flowtask/internal/model"
	"flowtask/internal/recordstore"
	"flowtask/internal/repository"
	"flowtask/internal/service"
)

const digestJobTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	logger, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("logging")
	}
	mainLog := logging.Component("main")

	db, err := repository.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("db")
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	todoRepo, categoryRepo, err := buildStores(cfg, db)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("store")
	}
	mainLog.Info().Str("store", cfg.Store).Str("category_policy", cfg.CategoryPolicy).Msg("store ready")

	opts := service.Options{
		PersistOrder:   cfg.PersistOrder,
		CategoryPolicy: categoryPolicy(cfg.CategoryPolicy),
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	}
	newList := func() *service.TaskList {
		return service.NewTaskList(todoRepo, categoryRepo, opts)
	}

	subscriberRepo := repository.NewSubscriberRepository(db)
	digestSvc := service.NewDigestService(todoRepo, categoryRepo)

	telegramBot, err := bot.New(cfg.TelegramToken, subscriberRepo, digestSvc, newList, logger)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("bot")
	}

	scheduler := service.NewSchedulerService(time.Local, logger)
	sendDigest := func() {
		jobCtx, cancel := context.WithTimeout(ctx, digestJobTimeout)
		defer cancel()
		if err := telegramBot.SendDueDigests(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			mainLog.Error().Err(err).Msg("digest")
		}
	}
	if cfg.DigestAt != "" {
		if _, err := scheduler.ScheduleDaily(cfg.DigestAt, sendDigest); err != nil {
			mainLog.Fatal().Err(err).Msg("schedule daily digest")
		}
	}
	if cfg.DigestInterval > 0 {
		if _, err := scheduler.ScheduleInterval(cfg.DigestInterval, sendDigest); err != nil {
			mainLog.Fatal().Err(err).Msg("schedule digest interval")
		}
	}
	if scheduler.Entries() > 0 {
		scheduler.Start()
		defer scheduler.Stop()
	}

	mainLog.Info().Msg("flowtask bot started")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		mainLog.Error().Err(err).Msg("bot stopped with error")
		return
	}
	mainLog.Info().Msg("shutdown complete")
}

func buildStores(cfg config.Config, db *gorm.DB) (service.TodoRepository, service.CategoryRepository, error) {
	switch cfg.Store {
	case config.StoreMemory:
		var (
			todos []model.Todo
			cats  []model.Category
		)
		if cfg.Seed {
			var err error
			if todos, err = repository.SeedTodos(); err != nil {
				return nil, nil, fmt.Errorf("seed todos: %w", err)
			}
			if cats, err = repository.SeedCategories(); err != nil {
				return nil, nil, fmt.Errorf("seed categories: %w", err)
			}
		}
		delay := repository.WithDelay(cfg.MockDelay)
		return repository.NewMemoryTodoRepository(todos, delay), repository.NewMemoryCategoryRepository(cats, delay), nil
	case config.StoreSQLite:
		return repository.NewSQLTodoRepository(db), repository.NewSQLCategoryRepository(db), nil
	case config.StoreRemote:
		client := recordstore.NewHTTPClient(cfg.Remote.BaseURL, cfg.Remote.ProjectID, cfg.Remote.PublicKey)
		return repository.NewRemoteTodoRepository(client, cfg.Remote.PageSize),
			repository.NewRemoteCategoryRepository(client, cfg.Remote.PageSize), nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func categoryPolicy(raw string) service.CategoryPolicy {
	if raw == config.CategoryPolicyCascade {
		return service.PolicyCascade
	}
	return service.PolicyFallback
}
