package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/record-service/internal/adapters/http/middleware"
	res "github.com/example/record-service/pkg/http"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler { return &UserHandler{} }

func (h *UserHandler) Me(c echo.Context) error {
	return res.JSON(c, http.StatusOK, "User profile", middleware.CurrentUser(c))
}
