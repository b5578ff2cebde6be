package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/groupsub/internal/config"
	"github.com/JonMunkholm/groupsub/internal/core"
	"github.com/JonMunkholm/groupsub/internal/database"
	"github.com/JonMunkholm/groupsub/internal/entity"
	"github.com/JonMunkholm/groupsub/internal/group"
	"github.com/JonMunkholm/groupsub/internal/logging"
	"github.com/JonMunkholm/groupsub/internal/metrics"
	"github.com/JonMunkholm/groupsub/internal/operator"
	"github.com/JonMunkholm/groupsub/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Setup structured logging based on config
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"table_prefix", cfg.Database.TablePrefix,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"auth_required", cfg.Security.RequireAuth,
	)
	logger.Debug("effective configuration", "config", cfg.String())

	// Cancelled on SIGINT/SIGTERM; stops the scheduler and the server.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		logger.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		logger.Info("connected to database")
	}

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, pool, cfg.Database.TablePrefix, logger); err != nil {
			return err
		}
	}

	factory, err := entity.NewFactory(cfg.Subscriptions.DefaultCurrency)
	if err != nil {
		return err
	}

	tables := database.NewTables(cfg.Database.TablePrefix)
	names := group.NewHelper(cfg.Subscriptions.GroupNames)
	catalog := group.NewCatalog(pool, tables.Groups, names, cfg.Subscriptions.GroupCacheTTL, logger)
	m := metrics.New(prometheus.DefaultRegisterer)

	packages := operator.NewPackageOperator(pool, tables, names, factory, logger, operator.WithMetrics(m))
	subscriptions := operator.NewSubscriptionOperator(pool, tables, factory, logger, operator.WithMetrics(m))
	audit := core.NewAuditLog(pool, tables.AdminLog, logger)

	server := web.NewServer(web.Deps{
		Packages:      packages,
		Subscriptions: subscriptions,
		Groups:        catalog,
		Audit:         audit,
		Factory:       factory,
		DB:            pool,
		Metrics:       m,
		Gatherer:      prometheus.DefaultGatherer,
		Logger:        logger,
	}, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		core.StartExpiryScheduler(gctx, subscriptions, core.ExpiryConfig{
			Interval: cfg.Subscriptions.ExpiryInterval,
		}, logger)
		return nil
	})

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown once a signal arrives or either goroutine fails
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
