package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/visitprep/visitprep/internal/config"
	"github.com/visitprep/visitprep/internal/domain/history"
	"github.com/visitprep/visitprep/internal/domain/patient"
	"github.com/visitprep/visitprep/internal/domain/screening"
	"github.com/visitprep/visitprep/internal/platform/cache"
	"github.com/visitprep/visitprep/internal/platform/db"
	"github.com/visitprep/visitprep/internal/platform/metrics"
	"github.com/visitprep/visitprep/internal/platform/middleware"
)

// PatientDirectoryAdapter adapts a patient.Repository to the
// screening.PatientDirectory interface, avoiding a dependency from the
// screening package on the patient package.
type PatientDirectoryAdapter struct {
	repo patient.Repository
}

func NewPatientDirectoryAdapter(repo patient.Repository) *PatientDirectoryAdapter {
	return &PatientDirectoryAdapter{repo: repo}
}

// ListPatients implements screening.PatientDirectory.
func (a *PatientDirectoryAdapter) ListPatients(ctx context.Context) ([]screening.PatientInfo, error) {
	patients, err := a.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]screening.PatientInfo, 0, len(patients))
	for _, p := range patients {
		infos = append(infos, screening.PatientInfo{ID: p.ID, Name: p.Name, MRN: p.MRN})
	}
	return infos, nil
}

// GetPatient implements screening.PatientDirectory.
func (a *PatientDirectoryAdapter) GetPatient(ctx context.Context, id uuid.UUID) (*screening.PatientInfo, error) {
	p, err := a.repo.GetByID(ctx, id)
	if errors.Is(err, patient.ErrNotFound) {
		return nil, screening.ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &screening.PatientInfo{ID: p.ID, Name: p.Name, MRN: p.MRN}, nil
}

// HistorySourceAdapter adapts a history.Repository to
// screening.HistorySource.
type HistorySourceAdapter struct {
	repo history.Repository
}

func NewHistorySourceAdapter(repo history.Repository) *HistorySourceAdapter {
	return &HistorySourceAdapter{repo: repo}
}

// MostRecentCompletion implements screening.HistorySource.
func (a *HistorySourceAdapter) MostRecentCompletion(ctx context.Context, patientID uuid.UUID, screeningType string) (*time.Time, error) {
	return a.repo.MostRecentCompletion(ctx, patientID, screeningType)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "visitprep-server",
		Short: "Visit-prep screening status API server",
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

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
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

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
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

	// Query cache, shared between the read path and the regeneration engine
	queryCache := cache.New(cfg.CacheTTL())
	cacheCtx, cancelCache := context.WithCancel(ctx)
	defer cancelCache()
	queryCache.StartCleanup(cacheCtx, time.Minute)

	// Repositories and collaborator adapters
	patientRepo := patient.NewRepoPG(pool)
	historyRepo := history.NewRepoPG(pool)
	recordRepo := screening.NewRecordRepoPG(pool)

	registry := screening.DefaultRegistry()
	engine := screening.NewEngine(
		recordRepo,
		NewPatientDirectoryAdapter(patientRepo),
		NewHistorySourceAdapter(historyRepo),
		registry,
		queryCache,
		logger,
		cfg.DueSoonDays,
	)
	runs := screening.NewRunManager(engine, logger)
	query := screening.NewQueryService(recordRepo, queryCache, logger)
	svc := screening.NewService(registry, engine, runs, query)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	screening.NewHandler(svc).RegisterRoutes(apiV1)

	// Operational endpoints
	e.GET("/health", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Start server with graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
