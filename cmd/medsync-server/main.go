package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medsync/medsync/internal/config"
	"github.com/medsync/medsync/internal/domain/atencion"
	"github.com/medsync/medsync/internal/domain/report"
	"github.com/medsync/medsync/internal/domain/synclog"
	"github.com/medsync/medsync/internal/domain/user"
	"github.com/medsync/medsync/internal/platform/auth"
	"github.com/medsync/medsync/internal/platform/db"
	"github.com/medsync/medsync/internal/platform/middleware"
	"github.com/medsync/medsync/internal/source"
	syncpkg "github.com/medsync/medsync/internal/sync"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medsync-server",
		Short: "Back-office API for consolidated medical billing records",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Upstream adapters
	retry := source.RetryConfig{Attempts: cfg.SyncRetryAttempts, Delay: cfg.SyncRetryDelay()}
	scheduler := source.NewScheduler(source.SchedulerConfig{
		BaseURL:  cfg.SchedulerAPIURL,
		APIToken: cfg.SchedulerAPIToken,
		Timeout:  cfg.HTTPTimeout(),
		Retry:    retry,
	}, logger)
	voucher := source.NewVoucher(source.VoucherConfig{
		BaseURL: cfg.VoucherAPIURL,
		APIKey:  cfg.VoucherAPIKey,
		OrgID:   cfg.VoucherOrgID,
		Timeout: cfg.HTTPTimeout(),
		Retry:   retry,
	}, logger)
	invoicer := source.NewInvoicer(source.InvoicerConfig{
		BaseURL:   cfg.InvoicerAPIURL,
		APIKey:    cfg.InvoicerAPIKey,
		CompanyID: cfg.InvoicerCompanyID,
		Timeout:   cfg.HTTPTimeout(),
		Retry:     retry,
	}, logger)

	// Repositories and services
	atencionRepo := atencion.NewRepoPG(pool)
	logRepo := synclog.NewRepoPG(pool)
	userRepo := user.NewRepoPG(pool)

	atencionSvc := atencion.NewService(atencionRepo, logger)
	userSvc := user.NewService(userRepo, []byte(cfg.JWTSecret), cfg.JWTExpiry(), logger)
	reportSvc := report.NewService(atencionRepo, logger)

	consolidator := syncpkg.NewConsolidator(atencionRepo, logger)
	orchestrator := syncpkg.NewOrchestrator(
		[]source.Adapter{scheduler, voucher, invoicer}, consolidator, logRepo, logger)
	importer := syncpkg.NewImporter(voucher, consolidator, logRepo, cfg.SyncBatchSize, logger)
	webhookHandler := syncpkg.NewWebhookHandler(scheduler, voucher, consolidator, cfg.WebhookSecret, logger)

	// Public routes
	e.GET("/health", db.HealthHandler(pool))
	public := e.Group("/api/v1")
	userHandler := user.NewHandler(userSvc)
	userHandler.RegisterPublicRoutes(public)
	webhookHandler.RegisterWebhookRoutes(public)

	// Authenticated routes
	api := e.Group("/api/v1")
	if cfg.IsDev() && cfg.JWTSecret == "" {
		logger.Warn().Msg("dev auth enabled, all requests run as admin")
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{SigningKey: []byte(cfg.JWTSecret)}))
	}
	api.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	userHandler.RegisterRoutes(api)
	atencion.NewHandler(atencionSvc).RegisterRoutes(api)
	report.NewHandler(reportSvc).RegisterRoutes(api)
	syncpkg.NewHandler(orchestrator, importer, logRepo).RegisterRoutes(api)

	// Scheduled sync
	cronScheduler := syncpkg.NewScheduler(orchestrator, cfg.SyncIntervalMinutes, cfg.SyncDaysBack, logger)
	if err := cronScheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduled sync")
	}

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	cronScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
