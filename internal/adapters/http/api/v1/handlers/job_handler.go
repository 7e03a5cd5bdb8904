package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/record-service/internal/adapters/http/middleware"
	"github.com/example/record-service/internal/usecase"
	res "github.com/example/record-service/pkg/http"
)

type JobStatusReader interface {
	Status(ctx context.Context, jobID, userID string) (*usecase.JobView, error)
}

type JobHandler struct {
	jobs JobStatusReader
}

func NewJobHandler(jobs JobStatusReader) *JobHandler { return &JobHandler{jobs: jobs} }

func (h *JobHandler) Get(c echo.Context) error {
	view, err := h.jobs.Status(c.Request().Context(), c.Param("id"), middleware.CurrentUser(c).ID)
	if err != nil {
		return err
	}
	return res.JSON(c, http.StatusOK, "Job status", view)
}
