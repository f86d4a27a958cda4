package middleware

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"proteinshake/internal/queue"
	"proteinshake/pkg/store"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

// ArtifactLinker hands out download links for published dataset artifacts.
type ArtifactLinker interface {
	DownloadLink(ctx context.Context, key string, expires time.Duration) (string, error)
}

// App carries the process wide dependencies of the API. Index, Builds, Queue
// and Artifacts are nil when the backing service is not configured.
type App struct {
	DataRoot     string
	Index        store.RecordIndex
	Builds       store.BuildStore
	Queue        queue.Publisher
	Artifacts    ArtifactLinker
	Keyfunc      jwt.Keyfunc
	MasterAPIKey string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
