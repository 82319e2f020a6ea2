package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"quiz-status-gateway/internal/app"
	"quiz-status-gateway/internal/config"
	"quiz-status-gateway/internal/infra/memory"
	pgstore "quiz-status-gateway/internal/infra/postgres"
	redisstore "quiz-status-gateway/internal/infra/redis"
	"quiz-status-gateway/internal/infra/sessionapi"
	"quiz-status-gateway/internal/logging"
	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// gateway bundles everything a command needs and how to release it.
type gateway struct {
	cfg     config.Config
	log     hclog.Logger
	manager *app.StatusManager
	beacon  *sessionapi.BeaconSender
	closers []func()
}

func (g *gateway) Close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		g.closers[i]()
	}
}

func newGateway(ctx context.Context, configPath string) (*gateway, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New("quiz-status-gateway", cfg.Log.Level, os.Stderr)
	g := &gateway{cfg: cfg, log: logger}

	store, err := g.pendingStore(ctx)
	if err != nil {
		g.Close()
		return nil, err
	}

	api := sessionapi.NewClient(cfg.API.BaseURL, cfg.API.Token,
		config.Duration(cfg.API.Timeout, 10*time.Second),
		sessionapi.WithLogger(logger.Named("sessionapi")))
	g.beacon = sessionapi.NewBeaconSender(cfg.API.Token,
		config.Duration(cfg.Beacon.Timeout, 5*time.Second),
		cfg.Beacon.MaxInFlight,
		logger.Named("beacon"))

	g.manager = app.NewStatusManager(app.ManagerConfig{
		API:     api,
		Beacon:  g.beacon,
		BaseURL: cfg.API.BaseURL,
		Store:   store,
		Logger:  logger,
	})
	return g, nil
}

// pendingStore prefers Postgres, then Redis, then memory.
func (g *gateway) pendingStore(ctx context.Context) (app.PendingStore, error) {
	if g.cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, g.cfg, g.log); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, g.cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		g.closers = append(g.closers, pool.Close)
		g.log.Info("pending statuses kept in postgres")
		return pgstore.NewPendingStore(pool), nil
	}
	if g.cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     g.cfg.Redis.Addr,
			Password: g.cfg.Redis.Password,
			DB:       g.cfg.Redis.DB,
		})
		g.closers = append(g.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		g.log.Info("pending statuses kept in redis", "addr", g.cfg.Redis.Addr)
		return redisstore.NewPendingStore(client, redisstore.WithLogger(g.log.Named("outbox"))), nil
	}
	g.log.Warn("no redis or postgres configured, pending statuses are lost on restart")
	return memory.NewPendingStore(), nil
}
