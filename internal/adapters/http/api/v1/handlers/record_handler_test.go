package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/record-service/internal/domain"
	"github.com/example/record-service/internal/usecase"
	"github.com/example/record-service/pkg/apperr"
)

type mockRecordService struct {
	usecase.RecordService
	createFn func(datasetID string, data map[string]interface{}) (*domain.Record, error)
	listFn   func(datasetID string, in usecase.ListRecordsInput) ([]domain.Record, domain.PageMeta, error)
	batchFn  func(items []usecase.BatchItem) ([]domain.Record, error)
}

func (m *mockRecordService) Create(_ context.Context, _, _ string, datasetID string, data map[string]interface{}) (*domain.Record, error) {
	return m.createFn(datasetID, data)
}

func (m *mockRecordService) List(_ context.Context, _ string, datasetID string, in usecase.ListRecordsInput) ([]domain.Record, domain.PageMeta, error) {
	return m.listFn(datasetID, in)
}

func (m *mockRecordService) BatchUpdate(_ context.Context, _, _ string, items []usecase.BatchItem) ([]domain.Record, error) {
	return m.batchFn(items)
}

func authedContext(e *echo.Echo, req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("current_user", &domain.User{ID: "u1", IsActive: true})
	return c, rec
}

func TestRecordCreateRequiresObjectData(t *testing.T) {
	e := echo.New()
	h := NewRecordHandler(&mockRecordService{})
	for _, body := range []string{`{}`, `{"data": null}`, `{"data": [1]}`} {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c, _ := authedContext(e, req)
		err := h.Create(c)
		assert.True(t, apperr.Is(err, http.StatusBadRequest), "body %s", body)
	}
}

func TestRecordCreatePassesDatasetID(t *testing.T) {
	e := echo.New()
	svc := &mockRecordService{createFn: func(datasetID string, data map[string]interface{}) (*domain.Record, error) {
		assert.Equal(t, "ds-1", datasetID)
		assert.Equal(t, "Bob", data["name"])
		return &domain.Record{ID: "r1", DatasetID: datasetID, Data: data}, nil
	}}
	req := jsonRequest(t, map[string]interface{}{"data": map[string]string{"name": "Bob", "age": "30"}})
	c, rec := authedContext(e, req)
	c.SetParamNames("id")
	c.SetParamValues("ds-1")

	require.NoError(t, NewRecordHandler(svc).Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRecordListParsesQuery(t *testing.T) {
	e := echo.New()
	svc := &mockRecordService{listFn: func(_ string, in usecase.ListRecordsInput) ([]domain.Record, domain.PageMeta, error) {
		assert.Equal(t, 2, in.Page)
		assert.Equal(t, 5, in.PageSize)
		assert.Equal(t, "name", in.SortBy)
		assert.Equal(t, "desc", in.SortOrder)
		return nil, domain.NewPageMeta(0, domain.Page{Number: 2, Size: 5}), nil
	}}
	req := httptest.NewRequest(http.MethodGet, "/?page=2&page_size=5&sort_by=name&sort_order=desc", nil)
	c, rec := authedContext(e, req)

	require.NoError(t, NewRecordHandler(svc).List(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/?page=abc", nil)
	c, _ = authedContext(e, req)
	assert.True(t, apperr.Is(NewRecordHandler(svc).List(c), http.StatusBadRequest))
}

func TestRecordBatchUpdateKeepsRawData(t *testing.T) {
	e := echo.New()
	svc := &mockRecordService{batchFn: func(items []usecase.BatchItem) ([]domain.Record, error) {
		require.Len(t, items, 2)
		assert.JSONEq(t, `{"name":"Ann"}`, string(items[0].Data))
		assert.Equal(t, "5", string(items[1].Data))
		return nil, apperr.BadRequest("Data for record x must be an object")
	}}
	req := httptest.NewRequest(http.MethodPatch, "/", bytes.NewBufferString(`{"records":[{"id":"a","data":{"name":"Ann"}},{"id":"b","data":5}]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c, _ := authedContext(e, req)

	err := NewRecordHandler(svc).BatchUpdate(c)
	assert.True(t, apperr.Is(err, http.StatusBadRequest))
}
