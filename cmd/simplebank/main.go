package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Keda87/simple-banking-api/cmd/simplebank/cli"
	"github.com/Keda87/simple-banking-api/internal/app"
	"github.com/Keda87/simple-banking-api/internal/audit"
	"github.com/Keda87/simple-banking-api/internal/auth"
	"github.com/Keda87/simple-banking-api/internal/banking"
	"github.com/Keda87/simple-banking-api/internal/customers"
	"github.com/Keda87/simple-banking-api/internal/observability"
	"github.com/Keda87/simple-banking-api/internal/platform/cache"
	"github.com/Keda87/simple-banking-api/internal/platform/db"
	"github.com/Keda87/simple-banking-api/internal/rbac"
	"github.com/Keda87/simple-banking-api/internal/shared"
	"github.com/Keda87/simple-banking-api/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		slog.Default().Error("simplebank", slog.Any("error", err))
		os.Exit(1)
	}
}

// newRootCommand wires the subcommands. Running without one serves the API.
func newRootCommand() *cobra.Command {
	var (
		cfg    *app.Config
		logger *slog.Logger
	)
	root := &cobra.Command{
		Use:           "simplebank",
		Short:         "Simple banking HTTP API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
			logger = app.NewLogger(cfg)
			slog.SetDefault(logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg, logger)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg, logger)
		},
	}
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context(), cfg, logger)
		},
	}
	jobsCmd := &cobra.Command{
		Use:   "jobs trigger <job> | jobs stats [queue]",
		Short: "Trigger maintenance jobs or inspect queues",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobsCLI := cli.NewJobsCLI(cfg.RedisAddr, cfg.IdempotencyRetention)
			defer func() {
				if err := jobsCLI.Close(); err != nil {
					logger.Warn("jobs cli close", slog.Any("error", err))
				}
			}()
			out, err := jobsCLI.Run(cmd.Context(), args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	auditCmd := cli.NewAuditCommand(func(ctx context.Context) (cli.AuditLister, func(), error) {
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return shared.NewAuditLogger(pool), pool.Close, nil
	})

	root.AddCommand(serveCmd, migrateCmd, jobsCmd, auditCmd)
	return root
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}
	logger.Info("schema applied")
	return nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{
		MaxConns:        cfg.PGMaxConns,
		MaxConnLifetime: cfg.PGMaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	if cfg.PGAutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	redisOpts := cfg.RedisOptions()
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobClient := jobs.NewClient(redisOpts.AsynqOpt())
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts.AsynqOpt())
	defer inspector.Close()

	metrics := observability.NewMetrics()
	dispatcher := audit.NewDispatcher(audit.DispatcherConfig{
		Publisher:      jobClient,
		Logger:         logger.With(slog.String("component", "audit")),
		Buffer:         cfg.AuditBuffer,
		PublishTimeout: cfg.AuditPublishTimeout,
		Dropped:        metrics,
	})

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	bankingService := banking.NewService(banking.NewRepository(pool), dispatcher)
	bankingService.WithObserver(metrics)
	customerService := customers.NewService(customers.NewRepository(pool), dispatcher, cfg.AccountNumberAttempts)
	authService := auth.NewService(auth.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AuthHandler:     auth.NewHandler(logger, authService, sessionManager, csrfManager),
		CustomerHandler: customers.NewHandler(logger, customerService),
		BankingHandler:  banking.NewHandler(logger, bankingService, shared.NewIdempotencyStore(pool)),
		RBACMiddleware:  rbac.Middleware{Resolver: customerService, Logger: logger},
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
		Ready: func(r *http.Request) error {
			if err := pool.Ping(r.Context()); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	// The dispatcher gets its own context so it keeps draining while the
	// HTTP server finishes in-flight requests.
	auditCtx, stopAudit := context.WithCancel(context.WithoutCancel(ctx))
	defer stopAudit()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(auditCtx)
	})
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		stopAudit()
		return err
	})
	return g.Wait()
}
