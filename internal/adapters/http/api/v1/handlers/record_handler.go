package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/record-service/internal/adapters/http/middleware"
	"github.com/example/record-service/internal/usecase"
	"github.com/example/record-service/pkg/apperr"
	res "github.com/example/record-service/pkg/http"
)

type RecordHandler struct {
	service usecase.RecordService
}

func NewRecordHandler(s usecase.RecordService) *RecordHandler { return &RecordHandler{service: s} }

type recordPayload struct {
	Data map[string]interface{} `json:"data"`
}

type batchUpdateRequest struct {
	Records []usecase.BatchItem `json:"records"`
}

func bindRecordData(c echo.Context) (map[string]interface{}, error) {
	req := new(recordPayload)
	if err := c.Bind(req); err != nil || req.Data == nil {
		return nil, apperr.BadRequest("Record data must be a JSON object")
	}
	return req.Data, nil
}

func (h *RecordHandler) Create(c echo.Context) error {
	data, err := bindRecordData(c)
	if err != nil {
		return err
	}
	record, err := h.service.Create(c.Request().Context(), res.RequestID(c), middleware.CurrentUser(c).ID, c.Param("id"), data)
	if err != nil {
		return err
	}
	return res.JSON(c, http.StatusCreated, "Record created", record)
}

func (h *RecordHandler) List(c echo.Context) error {
	in := usecase.ListRecordsInput{Page: 1, PageSize: defaultPageSize}
	if err := echo.QueryParamsBinder(c).
		Int("page", &in.Page).
		Int("page_size", &in.PageSize).
		String("sort_by", &in.SortBy).
		String("sort_order", &in.SortOrder).
		String("filter_key", &in.FilterKey).
		String("filter_value", &in.FilterValue).
		BindError(); err != nil {
		return apperr.BadRequest("Invalid query parameters")
	}
	records, meta, err := h.service.List(c.Request().Context(), middleware.CurrentUser(c).ID, c.Param("id"), in)
	if err != nil {
		return err
	}
	return res.JSON(c, http.StatusOK, "Records retrieved", map[string]interface{}{"records": records, "meta": meta})
}

func (h *RecordHandler) Filter(c echo.Context) error {
	var key, value string
	var limit int
	if err := echo.QueryParamsBinder(c).
		String("key", &key).
		String("value", &value).
		Int("limit", &limit).
		BindError(); err != nil {
		return apperr.BadRequest("Invalid query parameters")
	}
	records, err := h.service.Filter(c.Request().Context(), middleware.CurrentUser(c).ID, c.Param("id"), key, value, limit)
	if err != nil {
		return err
	}
	return res.JSON(c, http.StatusOK, "Records retrieved", records)
}

func (h *RecordHandler) Get(c echo.Context) error {
	record, err := h.service.Get(c.Request().Context(), middleware.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		return err
	}
	return res.JSON(c, http.StatusOK, "Record retrieved", record)
}

func (h *RecordHandler) Update(c echo.Context) error {
	data, err := bindRecordData(c)
	if err != nil {
		return err
	}
	record, err := h.service.Update(c.Request().Context(), res.RequestID(c), middleware.CurrentUser(c).ID, c.Param("id"), data)
	if err != nil {
		return err
	}
	return res.JSON(c, http.StatusOK, "Record updated", record)
}

func (h *RecordHandler) BatchUpdate(c echo.Context) error {
	req := new(batchUpdateRequest)
	if err := c.Bind(req); err != nil {
		return errInvalidPayload
	}
	records, err := h.service.BatchUpdate(c.Request().Context(), res.RequestID(c), middleware.CurrentUser(c).ID, req.Records)
	if err != nil {
		return err
	}
	return res.JSON(c, http.StatusOK, "Records updated", records)
}

func (h *RecordHandler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), res.RequestID(c), middleware.CurrentUser(c).ID, c.Param("id")); err != nil {
		return err
	}
	return res.JSON(c, http.StatusOK, "Record deleted", nil)
}
