package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"chlumarket/internal/config"
	"chlumarket/internal/domain"
	"chlumarket/internal/infra/cas"
	"chlumarket/internal/infra/db"
	"chlumarket/internal/infra/did"
	httpinfra "chlumarket/internal/infra/http"
	"chlumarket/internal/infra/identity"
	"chlumarket/internal/infra/policyopa"
	"chlumarket/internal/infra/ratelimit"
	"chlumarket/internal/infra/redisclient"
	"chlumarket/internal/infra/sqlite"
	"chlumarket/internal/infra/vendormem"
	"chlumarket/internal/usecase"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the marketplace REST service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if port > 0 {
				cfg.HTTPAddr = fmt.Sprintf(":%d", port)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override listen port")
	return cmd
}

type closer func() error

// app is everything serve needs from the backends. closers run in reverse
// order on shutdown and are populated even when wiring fails part way.
type app struct {
	mkt         *usecase.Marketplace
	rateLimiter domain.RateLimiter
	closers     []closer
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnw("close failed", "error", err)
		}
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	if level, err := logging.LevelFromString(cfg.LogLevel); err == nil {
		logging.SetAllLoggers(level)
	} else {
		log.Warnw("unknown log level, keeping info", "level", cfg.LogLevel)
	}

	a, err := buildMarketplace(ctx, cfg)
	defer a.close()
	if err != nil {
		return err
	}
	mkt := a.mkt

	if err := mkt.Start(ctx); err != nil {
		return fmt.Errorf("failed to start marketplace: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := mkt.Stop(stopCtx); err != nil {
			log.Errorw("marketplace stop failed", "error", err)
		}
	}()
	wk, err := mkt.WellKnown(ctx)
	if err != nil {
		return fmt.Errorf("failed to load marketplace identity: %w", err)
	}
	log.Infow("marketplace ready", "did", wk.Identity, "node", wk.NodeID, "network", wk.Network, "backend", cfg.DirectoryBackend)

	srv := httpinfra.NewServerWithDeps(cfg, httpinfra.ServerDeps{Marketplace: mkt, RateLimiter: a.rateLimiter})
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	log.Info("shutting down")
	return nil
}

// buildMarketplace wires backends from cfg. With REDIS_ADDR set one Redis
// pool backs both the DID registry and the rate limiter.
func buildMarketplace(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}

	directory, dirClose, err := buildDirectory(cfg)
	if dirClose != nil {
		a.closers = append(a.closers, dirClose)
	}
	if err != nil {
		return a, err
	}

	var store cas.Store = cas.NewMemory()
	if cfg.CASDir != "" {
		local, err := cas.NewLocalFS(cfg.CASDir)
		if err != nil {
			return a, fmt.Errorf("open content store: %w", err)
		}
		store = local
	}

	var registry did.Registry = did.NewMemoryRegistry()
	if cfg.RedisAddr != "" {
		client, err := redisclient.NewFromConfig(cfg)
		if err != nil {
			return a, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		redisRegistry, err := did.NewRedisRegistry(client)
		if err != nil {
			return a, fmt.Errorf("did registry: %w", err)
		}
		registry = redisRegistry
		if cfg.RateLimitRequests > 0 {
			limiter, err := ratelimit.NewRedisLimiter(client, nil)
			if err != nil {
				return a, fmt.Errorf("rate limiter: %w", err)
			}
			a.rateLimiter = limiter
		}
	}

	provider, err := identity.NewProvider(identity.Config{
		KeyPath:        cfg.KeyPath,
		Network:        cfg.Network,
		ResolveTimeout: cfg.ResolveTimeout(),
	}, store, registry)
	if err != nil {
		return a, err
	}

	policy, err := policyopa.NewEngineFromPath(ctx, cfg.PoPRPolicyPath)
	if err != nil {
		return a, fmt.Errorf("load popr policy: %w", err)
	}

	a.mkt = usecase.NewMarketplace(directory, provider, policy, cfg.PublicURL)
	return a, nil
}

func buildDirectory(cfg config.Config) (usecase.Directory, closer, error) {
	switch cfg.DirectoryBackend {
	case config.BackendMemory:
		return vendormem.New(), nil, nil
	case config.BackendSQLite:
		return sqlite.New(cfg.SQLitePath), nil, nil
	case config.BackendPostgres:
		store, err := db.NewStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		if store.DB == nil {
			return nil, nil, errors.New("postgres directory requires POSTGRES_DSN")
		}
		return db.NewVendorDirectory(store.DB), store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown directory backend %q", cfg.DirectoryBackend)
	}
}
