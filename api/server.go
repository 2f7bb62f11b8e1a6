// Package api serves the recorded patch history over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/stupid-simple/patchwatch/database"
)

type Store interface {
	ListRepositories(ctx context.Context, ids ...uint) ([]database.Repository, error)
	GetRepository(ctx context.Context, slug string) (*database.Repository, error)
	FindVersions(ctx context.Context, repositoryID uint, opts ...database.FindVersionsOptions) ([]database.Version, error)
	GetVersion(ctx context.Context, repositoryID uint, versionString string) (*database.Version, error)
	FindVersionPatches(ctx context.Context, versionIDs []uint) ([]database.Patch, error)
	GetChain(ctx context.Context, patchID uint) (*database.PatchChain, error)
	GetPatch(ctx context.Context, id uint) (*database.Patch, error)
}

// NewServer returns an echo instance with every route registered.
func NewServer(store Store, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := logger.Debug()
			if v.Error != nil {
				event = logger.Warn().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))

	h := &handler{store: store}
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/api/repositories", h.listRepositories)
	e.GET("/api/versions/:slug", h.listVersions)
	e.GET("/api/versions/:slug/:version", h.getVersion)

	return e
}

func notFound(err error) error {
	if errors.Is(err, database.ErrRepositoryNotFound) || errors.Is(err, database.ErrVersionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}
