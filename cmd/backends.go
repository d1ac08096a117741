package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/internal/answerbank"
	"github.com/xkilldash9x/applypilot/internal/browser"
	"github.com/xkilldash9x/applypilot/internal/config"
	"github.com/xkilldash9x/applypilot/internal/elicit"
	"github.com/xkilldash9x/applypilot/internal/history"
	"github.com/xkilldash9x/applypilot/internal/resolver"
	"github.com/xkilldash9x/applypilot/internal/store"
)

// deps are the external resources commands open. Tests swap them for in-memory versions.
type deps struct {
	openStore   func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.Store, func(), error)
	openPage    func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (browser.Page, func(), error)
	newElicitor func(unattended bool, logger *zap.Logger) resolver.Elicitor
	now         func() time.Time
}

func defaultDeps() deps {
	return deps{
		openStore:   openPostgresStore,
		openPage:    openBrowserPage,
		newElicitor: elicit.ForStdin,
		now:         time.Now,
	}
}

// openPostgresStore connects to database.url and makes sure the tables exist.
func openPostgresStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.Store, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (APPLYPILOT_DATABASE_URL)")
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

// openBrowserPage launches Chrome with the persistent profile and opens the working tab.
func openBrowserPage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (browser.Page, func(), error) {
	manager, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	tab, err := manager.NewTab(ctx)
	if err != nil {
		shutdown(manager, logger)
		return nil, nil, err
	}
	return tab, func() { shutdown(manager, logger) }, nil
}

func shutdown(m *browser.Manager, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		logger.Warn("Browser shutdown reported an error.", zap.Error(err))
	}
}

// backends lazily opens the shared connections behind the answer bank and history backends.
type backends struct {
	cfg     *config.Config
	deps    deps
	logger  *zap.Logger
	store   *store.Store
	redis   *redis.Client
	closers []func()
}

func newBackends(cfg *config.Config, d deps, logger *zap.Logger) *backends {
	return &backends{cfg: cfg, deps: d, logger: logger}
}

// Close releases every connection in reverse order of opening.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

func (b *backends) postgres(ctx context.Context) (*store.Store, error) {
	if b.store != nil {
		return b.store, nil
	}
	s, cleanup, err := b.deps.openStore(ctx, b.cfg, b.logger)
	if err != nil {
		return nil, err
	}
	b.store = s
	b.closers = append(b.closers, cleanup)
	return s, nil
}

func (b *backends) redisClient(ctx context.Context) (*redis.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	if b.cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis.addr is not configured")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     b.cfg.Redis.Addr,
		Password: b.cfg.Redis.Password,
		DB:       b.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", b.cfg.Redis.Addr, err)
	}
	b.redis = client
	b.closers = append(b.closers, func() { _ = client.Close() })
	return client, nil
}

// answerBank returns the backend described by sel.
func (b *backends) answerBank(ctx context.Context, sel config.AnswerBankConfig) (answerbank.Backend, error) {
	switch sel.Backend {
	case config.BackendFile:
		format, err := sel.ResolvedFormat()
		if err != nil {
			return nil, err
		}
		codec, err := answerbank.CodecFor(format)
		if err != nil {
			return nil, err
		}
		return answerbank.NewFileBackend(sel.Path, codec), nil
	case config.BackendRedis:
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return answerbank.NewRedisBackend(client, b.cfg.Redis.Prefix), nil
	case config.BackendPostgres:
		s, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return s.Answers(), nil
	default:
		return nil, fmt.Errorf("answer bank backend %q is not supported", sel.Backend)
	}
}

// history returns the application-history backend described by sel.
func (b *backends) history(ctx context.Context, sel config.HistoryConfig) (history.Backend, error) {
	switch sel.Backend {
	case config.BackendFile:
		return history.NewMarkdownBackend(sel.Path), nil
	case config.BackendPostgres:
		s, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return s.History(), nil
	default:
		return nil, fmt.Errorf("history backend %q is not supported", sel.Backend)
	}
}
