package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/healthmetrics/internal/config"
	"github.com/ehr/healthmetrics/internal/domain/alerting"
	"github.com/ehr/healthmetrics/internal/domain/metrics"
	"github.com/ehr/healthmetrics/internal/domain/monitoring"
	"github.com/ehr/healthmetrics/internal/platform/auth"
	"github.com/ehr/healthmetrics/internal/platform/cache"
	"github.com/ehr/healthmetrics/internal/platform/db"
	"github.com/ehr/healthmetrics/internal/platform/middleware"
	"github.com/ehr/healthmetrics/internal/platform/telemetry"
	"github.com/ehr/healthmetrics/internal/platform/websocket"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "healthmetrics-server",
		Short: "Health metrics monitoring and alerting API server",
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
			target, _ := cmd.Flags().GetInt("to")
			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.UpTo(ctx, target)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	upCmd.Flags().Int("to", 0, "Apply up to this version only")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(ctx context.Context, dir string, fn func(context.Context, *db.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir))
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).Level(cfg.Level()).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(cfg.Level()).With().Timestamp().Logger()
	}
	return logger
}

// handlers are the route groups mounted by newServer.
type handlers struct {
	metrics    *metrics.Handler
	alerts     *alerting.Handler
	monitoring *monitoring.Handler
	ws         *websocket.Handler
	dbHealth   echo.HandlerFunc
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(auth.AuthSkipper)
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
		QueryParam: "access_token",
	})
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func newServer(cfg *config.Config, logger zerolog.Logger, h handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(telemetry.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.Secure())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(authMiddleware(cfg))
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if h.dbHealth != nil {
		e.GET("/health/db", h.dbHealth)
	}
	e.GET("/metrics", telemetry.Handler())

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitConfig(cfg)))

	h.metrics.RegisterRoutes(apiV1)
	h.alerts.RegisterRoutes(apiV1)
	h.monitoring.RegisterRoutes(apiV1)
	h.ws.RegisterRoutes(e.Group("/ws"))

	return e
}

func newCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Store, error) {
	if cfg.RedisURL == "" {
		mem := cache.NewMemoryStore()
		mem.StartCleanup(time.Minute)
		logger.Info().Msg("rollup cache: in-memory")
		return mem, nil
	}
	store, err := cache.NewRedisStore(ctx, cfg.RedisURL, "healthmetrics:rollup:")
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("rollup cache: redis")
	return store, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if cfg.IsDev() {
		logger.Warn().Msg("running in development mode: X-Dev-User/X-Dev-Roles headers are trusted and default to admin")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	ranges, err := metrics.LoadRangeTable(cfg.RangeTableFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load range table")
	}

	rollupCache, err := newCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to cache")
	}
	defer rollupCache.Close()

	hub := websocket.NewHub(logger)

	sampleRepo := metrics.NewSampleRepoPG(pool)
	alertRepo := alerting.NewAlertRepoPG(pool)

	emitter := alerting.NewEmitter(alertRepo, ranges,
		alerting.MetricPolicy(cfg.MetricAlertWindow),
		alerting.EventPolicy(cfg.MessageAlertWindow),
		logger)
	emitter.SetPublisher(alerting.NewHubPublisher(hub))

	metricsSvc := metrics.NewService(sampleRepo, ranges, logger)
	metricsSvc.SetEvaluator(emitter)

	alertSvc := alerting.NewService(alertRepo, logger)
	engine := monitoring.NewEngine(sampleRepo, ranges, cfg.RollupTimeout, logger)

	e := newServer(cfg, logger, handlers{
		metrics:    metrics.NewHandler(metricsSvc),
		alerts:     alerting.NewHandler(alertSvc, emitter),
		monitoring: monitoring.NewHandler(engine, rollupCache, cfg.RollupCacheTTL, logger),
		ws:         websocket.NewHandler(hub, cfg.CORSOrigins),
		dbHealth:   db.HealthHandler(pool),
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
