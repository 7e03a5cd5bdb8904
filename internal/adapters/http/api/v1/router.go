package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/example/record-service/internal/adapters/http/api/v1/handlers"
	"github.com/example/record-service/internal/adapters/http/middleware"
)

type Handlers struct {
	Auth    *handlers.AuthHandler
	User    *handlers.UserHandler
	Dataset *handlers.DatasetHandler
	Record  *handlers.RecordHandler
	Job     *handlers.JobHandler
}

type Router struct {
	handlers Handlers
	authMW   echo.MiddlewareFunc
}

func NewRouter(h Handlers, authMW echo.MiddlewareFunc) *Router {
	return &Router{handlers: h, authMW: authMW}
}

func (r *Router) Register(g *echo.Group) {
	auth := g.Group("/auth")
	auth.POST("/create-user", r.handlers.Auth.CreateUser)
	auth.POST("/login", r.handlers.Auth.Login)
	auth.POST("/resend-otp", r.handlers.Auth.ResendOTP)
	auth.POST("/verify-email", r.handlers.Auth.VerifyEmail)
	auth.POST("/refresh-token", r.handlers.Auth.RefreshToken)
	auth.POST("/logout", r.handlers.Auth.Logout, r.authMW)

	g.GET("/user/me", r.handlers.User.Me, r.authMW)

	protected := g.Group("", r.authMW, middleware.RequireActive)

	datasets := protected.Group("/datasets")
	datasets.POST("/upload", r.handlers.Dataset.Upload)
	datasets.GET("", r.handlers.Dataset.List)
	datasets.GET("/:id", r.handlers.Dataset.Get)
	datasets.DELETE("/:id", r.handlers.Dataset.Delete)
	datasets.GET("/:id/export", r.handlers.Dataset.Export)
	datasets.POST("/:id/records", r.handlers.Record.Create)
	datasets.GET("/:id/records", r.handlers.Record.List)
	datasets.GET("/:id/records/filter", r.handlers.Record.Filter)

	records := protected.Group("/records")
	records.PATCH("/batch", r.handlers.Record.BatchUpdate)
	records.GET("/:id", r.handlers.Record.Get)
	records.PATCH("/:id", r.handlers.Record.Update)
	records.DELETE("/:id", r.handlers.Record.Delete)

	protected.GET("/jobs/:id", r.handlers.Job.Get)
}
