package http

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/example/record-service/config"
	v1 "github.com/example/record-service/internal/adapters/http/api/v1"
	internalhttp "github.com/example/record-service/internal/adapters/http/internal"
	appmw "github.com/example/record-service/internal/adapters/http/middleware"
	res "github.com/example/record-service/pkg/http"
	pkglog "github.com/example/record-service/pkg/log"
)

// HealthCheck re-exports internalhttp.Check for callers outside this subtree.
type HealthCheck = internalhttp.Check

type Router struct {
	cfg       *config.Config
	logger    pkglog.Logger
	apiRouter *v1.Router
	checks    map[string]internalhttp.Check
}

func NewRouter(cfg *config.Config, logger pkglog.Logger, apiRouter *v1.Router, checks map[string]internalhttp.Check) *Router {
	return &Router{cfg: cfg, logger: logger, apiRouter: apiRouter, checks: checks}
}

func (r *Router) Setup(e *echo.Echo) {
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = res.ErrorHandler(r.logger, r.cfg.IsProduction())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(appmw.RequestLogger(r.logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     r.cfg.CORSOrigins,
		AllowCredentials: true,
	}))
	// Multipart overhead on top of the largest accepted file.
	e.Use(middleware.BodyLimit(bodyLimit(r.cfg.UploadMaxBytes + 1<<20)))

	internalhttp.Register(e, r.checks)
	apiGroup := e.Group(r.cfg.HTTPBasePath)
	r.apiRouter.Register(apiGroup)
}

func bodyLimit(n int64) string {
	return fmt.Sprintf("%dK", n/1024+1)
}
