package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"proteinshake/internal/config"
	"proteinshake/internal/queue"
	mid "proteinshake/internal/server/middleware"
	"proteinshake/internal/storage"
	"proteinshake/pkg/logger"
	storepgx "proteinshake/pkg/store/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

// Validate runs the struct tags, then the value's own Validate method if it
// has one.
func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	if v, ok := i.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}

// New builds the echo instance serving app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e)
	return e
}

// Init connects the configured backing services and serves the API until
// SIGINT or SIGTERM.
func Init(cfg *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &mid.App{
		DataRoot:     cfg.DataRoot,
		MasterAPIKey: cfg.MasterAPIKey,
	}

	if cfg.AuthURL != "" {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.AuthURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Keyfunc = k.Keyfunc
	}

	if cfg.DatabaseURL != "" {
		st, pool, err := storepgx.NewStore(ctx, storepgx.NewStoreParams{DatabaseURL: cfg.DatabaseURL, Migrate: true})
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		defer pool.Close()
		app.Index = st
		app.Builds = st
	}

	if cfg.RabbitMQ.Enabled() {
		conn, err := queue.Connect(cfg.RabbitMQ)
		if err != nil {
			logger.Fatal("Failed to connect to queue", "err", err)
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, []string{queue.BuildQueue}); err != nil {
			logger.Fatal("Failed to setup queues", "err", err)
		}
		app.Queue = ch
	}

	if cfg.S3.Enabled() {
		params := storage.S3Params{
			Bucket:         cfg.S3.Bucket,
			Region:         cfg.S3.Region,
			Endpoint:       cfg.S3.Endpoint,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			PublicEndpoint: cfg.S3.PublicEndpoint,
		}
		client, err := storage.NewS3Client(ctx, params)
		if err != nil {
			logger.Fatal("Failed to create s3 client", "err", err)
		}
		app.Artifacts = storage.NewStore(client, params)
	}

	e := New(app)

	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
