package middleware

import (
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/singleflight"

	"github.com/fusion-flap/flap-w7x-mdsplus/internal/metrics"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/queue"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/datasource"
)

type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

// App carries the shared dependencies of all handlers. DBConn, Queue and S3
// may be nil when the corresponding backend is not configured.
type App struct {
	Sources *datasource.Registry
	Metrics *metrics.Metrics
	Flight  *singleflight.Group

	DBConn *pgxpool.Pool
	Queue  queue.Publisher
	S3     *s3.Client

	Keyfunc        jwt.Keyfunc
	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	if app.Flight == nil {
		app.Flight = &singleflight.Group{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
