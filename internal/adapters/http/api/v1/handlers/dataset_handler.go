package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/record-service/internal/adapters/http/middleware"
	"github.com/example/record-service/internal/usecase"
	"github.com/example/record-service/pkg/apperr"
	res "github.com/example/record-service/pkg/http"
)

const defaultPageSize = 10

type DatasetHandler struct {
	service usecase.DatasetService
}

func NewDatasetHandler(s usecase.DatasetService) *DatasetHandler { return &DatasetHandler{service: s} }

func (h *DatasetHandler) Upload(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return apperr.BadRequest("No file uploaded")
	}
	file, err := header.Open()
	if err != nil {
		return apperr.Internal("File processing failed due to server error").Wrap(err)
	}
	defer file.Close()

	result, err := h.service.Upload(c.Request().Context(), res.RequestID(c), middleware.CurrentUser(c).ID, usecase.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get(echo.HeaderContentType),
		Content:     file,
	})
	if err != nil {
		return err
	}
	return res.JSON(c, http.StatusCreated, "File uploaded successfully", result)
}

func (h *DatasetHandler) List(c echo.Context) error {
	page, size, name := 1, defaultPageSize, ""
	if err := echo.QueryParamsBinder(c).
		Int("page", &page).
		Int("page_size", &size).
		String("name", &name).
		BindError(); err != nil {
		return apperr.BadRequest("Invalid query parameters")
	}
	datasets, meta, err := h.service.List(c.Request().Context(), middleware.CurrentUser(c).ID, name, page, size)
	if err != nil {
		return err
	}
	return res.JSON(c, http.StatusOK, "Datasets retrieved", map[string]interface{}{"datasets": datasets, "meta": meta})
}

func (h *DatasetHandler) Get(c echo.Context) error {
	dataset, err := h.service.Get(c.Request().Context(), middleware.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		return err
	}
	return res.JSON(c, http.StatusOK, "Dataset retrieved", dataset)
}

func (h *DatasetHandler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), res.RequestID(c), middleware.CurrentUser(c).ID, c.Param("id")); err != nil {
		return err
	}
	return res.JSON(c, http.StatusOK, "Dataset deleted", nil)
}

func (h *DatasetHandler) Export(c echo.Context) error {
	file, err := h.service.Export(c.Request().Context(), middleware.CurrentUser(c).ID, c.Param("id"), c.QueryParam("format"))
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Filename))
	return c.Blob(http.StatusOK, file.ContentType, file.Content)
}
