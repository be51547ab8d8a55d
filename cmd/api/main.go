package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fortunemagnet/docs"
	"fortunemagnet/internal/auth"
	"fortunemagnet/internal/config"
	"fortunemagnet/internal/database"
	"fortunemagnet/internal/database/migration"
	handlers "fortunemagnet/internal/http/handler"
	"fortunemagnet/internal/http/middleware"
	"fortunemagnet/internal/logging"
	"fortunemagnet/internal/otel"
	"fortunemagnet/internal/repository/postgres"
	"fortunemagnet/internal/service"
	"fortunemagnet/internal/signedurl"
	"fortunemagnet/internal/storage"
)

// @title Fortune Magnet Photo API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	loc := cfg.Location()
	log := logging.New(os.Stdout, loc).With("api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log, "fortunemagnet")
	if err != nil {
		fatal(log, "tracing_init_failed", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	if cfg.Auth.JWTSecret == "" {
		fatal(log, "config_invalid", errors.New("AUTH_JWT_SECRET is required"))
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		fatal(log, "database_connect_failed", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
		fatal(log, "migration_failed", err)
	}

	objStore, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		fatal(log, "storage_init_failed", err)
	}

	urls := signedurl.New(service.StorageSigner(objStore), nil,
		signedurl.WithSize(cfg.Storage.CacheSize),
		signedurl.WithLogger(log),
		signedurl.WithRegisterer(prometheus.DefaultRegisterer),
	)

	fortunes := postgres.NewFortunePostgres(db)
	photoSvc := service.NewPhotoService(service.Deps{
		Store:        objStore,
		Fortunes:     fortunes,
		Entitlements: fortunes,
		Media:        postgres.NewMediaPostgres(db),
		URLs:         urls,
		Logger:       log,
	}, service.Config{
		Bucket:       cfg.Storage.PhotoBucket,
		UploadMethod: cfg.Storage.UploadMethod,
		UploadTTL:    cfg.Storage.UploadTTL(),
		ReadTTL:      cfg.Storage.ReadTTL(),
	})

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		fatal(log, "metrics_init_failed", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(loc))
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.RegisterRoutes(app, db, photoSvc, auth.Middleware(auth.NewVerifier(cfg.Auth.JWTSecret)))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Info("server_starting", map[string]any{"port": cfg.Port, "storage_driver": cfg.Storage.Driver})
	if err := app.Listen(":" + cfg.Port); err != nil {
		fatal(log, "server_failed", err)
	}
}

func fatal(log *logging.Logger, event string, err error) {
	log.Error(event, err, nil)
	os.Exit(1)
}
