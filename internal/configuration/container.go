package configuration

import (
	"context"
	"time"

	"LanChat/internal/auth"
	"LanChat/internal/cache"
	"LanChat/internal/db"
	"LanChat/internal/handler"
	"LanChat/internal/hub"
	"LanChat/internal/metrics"
	"LanChat/internal/reaper"
	"LanChat/internal/repo"
	"LanChat/internal/repo/memstore"
	"LanChat/internal/repo/mongostore"
	"LanChat/internal/repo/pgstore"
	"LanChat/internal/service"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Container struct {
	Config   Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Clock    clockwork.Clock
	Verifier auth.Verifier

	Store  repo.Store
	Cache  *cache.Cache
	Chat   *service.ChatService
	Hub    *hub.Hub
	Calls  *hub.CallRelay
	Reaper *reaper.Reaper

	ChatHandler    handler.ChatHandler
	MonitorHandler handler.MonitorHandler
	HealthHandler  *handler.HealthHandler
}

// BuildContainer opens the store and cache selected by cfg and wires every
// component. The reaper is built but not started.
func BuildContainer(ctx context.Context, cfg Config, logger *zap.Logger) (*Container, error) {
	clock := clockwork.NewRealClock()
	m := metrics.New()

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("store ready", zap.String("driver", cfg.Database.Driver))

	ephemeral := openCache(cfg.Cache, clock, logger, m)
	logger.Info("cache ready", zap.String("backend", ephemeral.Backend()))

	h := hub.NewHub(hub.Config{
		WorkerPoolSize:  cfg.Hub.WorkerPoolSize,
		SendBuffer:      cfg.Hub.SendBuffer,
		SendTimeout:     cfg.Hub.SendTimeout,
		KickOnFull:      cfg.Hub.KickOnFull,
		EventsPerSecond: cfg.Hub.EventsPerSecond,
		EventBurst:      cfg.Hub.EventBurst,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	}, logger.Named("hub"), m)

	chat := service.NewChatService(store, h, clock, logger.Named("chat"), m, service.Options{
		OpTimeout: cfg.Database.OpTimeout,
	})

	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
	hub.NewSocketHandlers(h, ephemeral, verifier, chat, clock, logger.Named("socket")).Register()
	calls := hub.NewCallRelay(h, clock, logger.Named("calls"), m)
	calls.Register()

	c := &Container{
		Config:         cfg,
		Logger:         logger,
		Metrics:        m,
		Clock:          clock,
		Verifier:       verifier,
		Store:          store,
		Cache:          ephemeral,
		Chat:           chat,
		Hub:            h,
		Calls:          calls,
		ChatHandler:    handler.NewChatHandler(chat, logger.Named("http")),
		MonitorHandler: handler.NewMonitorHandler(hub.NewMonitorService(h, calls)),
		HealthHandler:  handler.NewHealthHandler(handler.PingFunc(store.Ping), ephemeral, logger),
	}

	if cfg.Retention.ReaperEnabled {
		c.Reaper, err = reaper.New(store.Messages, clock, logger.Named("reaper"), m, reaper.Options{
			Cron:  cfg.Retention.ReaperCron,
			Grace: cfg.Retention.Grace,
		})
		if err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	return c, nil
}

func openStore(ctx context.Context, cfg DatabaseConfig, logger *zap.Logger) (repo.Store, error) {
	switch cfg.Driver {
	case DriverMongo:
		database, err := db.OpenConnection(cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return repo.Store{}, errors.Wrap(err, "connect mongo")
		}
		store, err := mongostore.New(ctx, database, logger.Named("mongostore"), mongostore.Options{
			Transactions: cfg.Mongo.Transactions,
		})
		if err != nil {
			_ = database.Client().Disconnect(context.Background())
			return repo.Store{}, err
		}
		return store, nil

	case DriverPostgres:
		bunDB, err := db.OpenPostgres(db.PostgresOptions{
			DSN:          cfg.Postgres.DSN,
			SQLDriver:    cfg.Postgres.SQLDriver,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
		})
		if err != nil {
			return repo.Store{}, errors.Wrap(err, "connect postgres")
		}
		if cfg.Postgres.AutoMigrate {
			if err := pgstore.CreateSchema(ctx, bunDB); err != nil {
				_ = bunDB.Close()
				return repo.Store{}, err
			}
		}
		return pgstore.New(bunDB, logger.Named("pgstore")), nil

	case DriverMemory:
		logger.Warn("using the in-process store; data is lost on restart")
		return memstore.New().Repositories(), nil
	}
	return repo.Store{}, errors.Errorf("unknown database driver %q", cfg.Driver)
}

func openCache(cfg CacheConfig, clock clockwork.Clock, logger *zap.Logger, m *metrics.Metrics) *cache.Cache {
	fallback := cache.NewMemoryBackend(clock, cfg.SweepInterval)

	var primary cache.Backend
	if cfg.Backend == CacheRedis {
		primary = cache.NewRedisBackend(cache.NewRedisClient(cache.RedisConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
			OpTimeout:   cfg.OpTimeout,
		}))
	}

	return cache.New(primary, fallback, clock, logger.Named("cache"), m, cache.Options{
		RetryAfter: cfg.RetryAfter,
		OpTimeout:  cfg.OpTimeout,
	})
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the reaper and the hub first (closes all WebSocket connections)
	if c.Reaper != nil {
		c.Reaper.Stop()
	}
	if c.Hub != nil {
		c.Hub.Stop()
	}

	var firstErr error
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			firstErr = errors.Wrap(err, "close cache")
		}
	}

	if c.Store.Close != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Store.Close(ctx); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "close store")
		}
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return firstErr
}
