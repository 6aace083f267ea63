package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-autopilot/internal/api"
	"github.com/ignite/campaign-autopilot/internal/campaignctl"
	"github.com/ignite/campaign-autopilot/internal/config"
	"github.com/ignite/campaign-autopilot/internal/engine"
	"github.com/ignite/campaign-autopilot/internal/metricsource"
	"github.com/ignite/campaign-autopilot/internal/notify"
	"github.com/ignite/campaign-autopilot/internal/pkg/distlock"
	"github.com/ignite/campaign-autopilot/internal/pkg/logger"
	"github.com/ignite/campaign-autopilot/internal/repository/postgres"
	"github.com/ignite/campaign-autopilot/internal/repository/rediscache"
	"github.com/ignite/campaign-autopilot/internal/service/history"
	"github.com/ignite/campaign-autopilot/internal/service/rule"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logger.Error("loading config failed", "path", configPath, "error", err)
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactRecipients != nil {
		logger.SetRedactRecipients(*cfg.Logging.RedactRecipients)
	}

	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		logger.Error("invalid engine timezone", "timezone", cfg.Engine.Timezone, "error", err)
		os.Exit(1)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, continuing without cache", "addr", cfg.Redis.Addr, "error", err)
			redisClient = nil
		} else {
			logger.Info("connected to redis", "addr", cfg.Redis.Addr)
		}
	}

	var ruleRepo rule.Repository = postgres.NewRuleRepo(db)
	if redisClient != nil {
		ruleRepo = rediscache.New(ruleRepo, redisClient, 30*time.Second)
	}
	ruleSvc := rule.NewService(ruleRepo, loc)
	historySvc := history.NewService(postgres.NewExecutionRepo(db))

	dispatcher := buildDispatcher(cfg, db)

	eng := engine.New(engine.Options{
		Rules:           ruleSvc,
		History:         historySvc,
		Source:          metricsource.NewClient(cfg.MetricSource),
		Control:         campaignctl.NewClient(cfg.CampaignControl),
		Notifier:        dispatcher,
		Tick:            cfg.Engine.TickInterval(),
		Workers:         cfg.Engine.Workers,
		ExternalTimeout: cfg.Engine.ExternalTimeout(),
		BudgetFloor:     cfg.Engine.BudgetFloor,
		Location:        loc,
		Locks: func(key string) distlock.DistLock {
			return distlock.NewLock(redisClient, db, key, 2*cfg.Engine.TickInterval())
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Engine.Enabled {
		go eng.Run(ctx)
	} else {
		logger.Warn("engine loop disabled; serving management API only")
	}

	var evaluator api.Evaluator
	if cfg.Engine.Enabled {
		evaluator = eng
	}
	server := api.NewServer(cfg.Server, api.NewHandlers(ruleSvc, historySvc, evaluator, postgres.NewInboxRepo(db)))

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("api server failed", "error", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("stopped")
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// buildDispatcher registers every enabled notification channel. The in-app
// channel is always on; it only needs the database.
func buildDispatcher(cfg *config.Config, db *sql.DB) *notify.Dispatcher {
	channels := []notify.Channel{notify.NewInAppChannel(db)}

	if cfg.Notifications.Email.Enabled {
		email, err := notify.NewEmailChannel(
			context.Background(),
			cfg.Notifications.Email.Region,
			cfg.Notifications.Email.AccessKey,
			cfg.Notifications.Email.SecretKey,
			cfg.Notifications.Email.From,
			cfg.Notifications.Email.Subject,
		)
		if err != nil {
			logger.Error("email channel init failed, channel disabled", "error", err)
		} else {
			channels = append(channels, email)
		}
	}
	if cfg.Notifications.SMS.Enabled {
		channels = append(channels, notify.NewSMSChannel(
			cfg.Notifications.SMS.GatewayURL,
			cfg.Notifications.SMS.APIKey,
			cfg.Notifications.SMS.SenderID,
		))
	}
	if cfg.Notifications.Chat.Enabled {
		channels = append(channels, notify.NewChatChannel(cfg.Notifications.Chat.WebhookURL))
	}

	return notify.NewDispatcher(
		cfg.Notifications.Retry.MaxAttempts,
		cfg.Notifications.Retry.BaseDelay(),
		channels...,
	)
}
