package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/singleflight"

	"github.com/fusion-flap/flap-w7x-mdsplus/internal/metrics"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/queue"
	mid "github.com/fusion-flap/flap-w7x-mdsplus/internal/server/middleware"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/storage"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/util"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/datasource"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New builds the echo instance for app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e, app)
	return e
}

// Init serves the sources registered in reg until SIGINT or SIGTERM.
// The queue, database and S3 backends are optional and enabled by their
// environment variables.
func Init(reg *datasource.Registry, m *metrics.Metrics) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &mid.App{
		Sources:        reg,
		Metrics:        m,
		Flight:         &singleflight.Group{},
		MasterAPIKey:   util.GetEnv("MASTER_API_KEY"),
		MasterUserRole: util.GetEnv("MASTER_USER_ROLE"),
	}
	app.MasterUserID, _ = strconv.ParseInt(util.GetEnv("MASTER_USER_ID"), 10, 64)

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Keyfunc = k.Keyfunc
	}

	if dbURL := util.GetEnv("DATABASE_URL"); dbURL != "" {
		conn, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		defer conn.Close()
		app.DBConn = conn
	}

	if util.GetEnv("RABBITMQ_HOST") != "" {
		que, err := queue.Init()
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", "err", err)
		}
		defer que.Close()
		ch, err := que.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		if err := queue.SetupQueues(ch, queue.Queues); err != nil {
			logger.Fatal("Failed to setup queues", "err", err)
		}
		app.Queue = ch
	}

	if util.GetEnv("AWS_BUCKET") != "" {
		s3, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		app.S3 = s3
	}

	e := New(app)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port, "sources", reg.Names())
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
