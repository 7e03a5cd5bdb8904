package internalhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Check reports whether one backing service is reachable.
type Check func(ctx context.Context) error

// Register attaches the health endpoint. Each named check runs on every call;
// any failure turns the response into 503.
func Register(e *echo.Echo, checks map[string]Check) {
	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		components := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				components[name] = err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}
		return c.JSON(code, map[string]interface{}{"status": status, "components": components})
	})
}
