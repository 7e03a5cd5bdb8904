package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/example/record-service/config"
	repo "github.com/example/record-service/internal/adapters/postgres"
	"github.com/example/record-service/internal/domain"
	"github.com/example/record-service/pkg/apperr"
	pkglog "github.com/example/record-service/pkg/log"
)

type ListRecordsInput struct {
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
	FilterKey   string
	FilterValue string
}

// BatchItem is one entry of a batch update. Data stays raw until the whole
// batch has been checked for shape.
type BatchItem struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

type RecordService interface {
	Create(ctx context.Context, traceID, userID, datasetID string, data map[string]interface{}) (*domain.Record, error)
	List(ctx context.Context, userID, datasetID string, in ListRecordsInput) ([]domain.Record, domain.PageMeta, error)
	Filter(ctx context.Context, userID, datasetID, key, value string, limit int) ([]domain.Record, error)
	Get(ctx context.Context, userID, recordID string) (*domain.Record, error)
	Update(ctx context.Context, traceID, userID, recordID string, data map[string]interface{}) (*domain.Record, error)
	BatchUpdate(ctx context.Context, traceID, userID string, items []BatchItem) ([]domain.Record, error)
	Delete(ctx context.Context, traceID, userID, recordID string) error
}

type recordService struct {
	cfg    *config.Config
	logger pkglog.Logger
	store  repo.Store
	guard  *OwnershipGuard
}

func NewRecordService(cfg *config.Config, logger pkglog.Logger, store repo.Store, guard *OwnershipGuard) RecordService {
	return &recordService{cfg: cfg, logger: logger, store: store, guard: guard}
}

func (s *recordService) Create(ctx context.Context, traceID, userID, datasetID string, data map[string]interface{}) (*domain.Record, error) {
	dataset, err := s.guard.Dataset(ctx, datasetID, userID)
	if err != nil {
		return nil, err
	}
	if err := validatePayload(data, dataset.Schema, false); err != nil {
		return nil, err
	}
	record := &domain.Record{DatasetID: dataset.ID, Data: data}
	err = s.store.WithinTx(ctx, func(tx repo.Store) error {
		if err := tx.Records().Create(ctx, record); err != nil {
			return err
		}
		return tx.Datasets().AdjustRowCount(ctx, dataset.ID, 1)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("trace_id", traceID).Str("dataset_id", dataset.ID).Str("record_id", record.ID).Msg("record created")
	return record, nil
}

func (s *recordService) List(ctx context.Context, userID, datasetID string, in ListRecordsInput) ([]domain.Record, domain.PageMeta, error) {
	dataset, err := s.guard.Dataset(ctx, datasetID, userID)
	if err != nil {
		return nil, domain.PageMeta{}, err
	}
	query := domain.RecordQuery{
		DatasetID: dataset.ID,
		Page:      NormalizePage(in.Page, in.PageSize, s.cfg.MaxPageSize),
	}
	if in.SortBy != "" {
		if _, ok := dataset.Schema[in.SortBy]; !ok {
			return nil, domain.PageMeta{}, apperr.BadRequest(fmt.Sprintf("Invalid sort field: %s", in.SortBy))
		}
		order, err := parseSortOrder(in.SortOrder)
		if err != nil {
			return nil, domain.PageMeta{}, err
		}
		query.SortField, query.SortOrder = in.SortBy, order
	}
	if in.FilterKey != "" {
		if _, ok := dataset.Schema[in.FilterKey]; !ok {
			return nil, domain.PageMeta{}, apperr.BadRequest(fmt.Sprintf("Invalid filter key: %s", in.FilterKey))
		}
		if in.FilterValue != "" {
			query.FilterKey, query.FilterValue = in.FilterKey, in.FilterValue
		}
	}

	records, total, err := s.store.Records().List(ctx, query)
	if err != nil {
		return nil, domain.PageMeta{}, err
	}
	return records, domain.NewPageMeta(total, query.Page), nil
}

func parseSortOrder(raw string) (domain.SortOrder, error) {
	switch domain.SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case "", domain.SortAsc:
		return domain.SortAsc, nil
	case domain.SortDesc:
		return domain.SortDesc, nil
	}
	return "", apperr.BadRequest("Sort order must be 'asc' or 'desc'")
}

// Filter returns records whose value under key equals value exactly.
func (s *recordService) Filter(ctx context.Context, userID, datasetID, key, value string, limit int) ([]domain.Record, error) {
	dataset, err := s.guard.Dataset(ctx, datasetID, userID)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, apperr.BadRequest("Filter key is required")
	}
	if _, ok := dataset.Schema[key]; !ok {
		return nil, apperr.BadRequest(fmt.Sprintf("Invalid filter key: %s", key))
	}
	if limit == 0 {
		limit = s.cfg.MaxPageSize
	}
	limit = NormalizePage(1, limit, s.cfg.MaxPageSize).Size
	return s.store.Records().FindByValue(ctx, dataset.ID, key, value, limit)
}

func (s *recordService) Get(ctx context.Context, userID, recordID string) (*domain.Record, error) {
	record, _, err := s.guard.Record(ctx, recordID, userID)
	return record, err
}

func (s *recordService) Update(ctx context.Context, traceID, userID, recordID string, data map[string]interface{}) (*domain.Record, error) {
	record, dataset, err := s.guard.Record(ctx, recordID, userID)
	if err != nil {
		return nil, err
	}
	if err := validatePayload(data, dataset.Schema, true); err != nil {
		return nil, err
	}
	record.Merge(data)
	if err := s.store.Records().UpdateData(ctx, record); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.NotFound("Record not found")
		}
		return nil, err
	}
	s.logger.Info().Str("trace_id", traceID).Str("record_id", record.ID).Msg("record updated")
	return record, nil
}

// BatchUpdate applies every item or none. Shape, existence, ownership and
// schema are all checked before the single persisting transaction.
func (s *recordService) BatchUpdate(ctx context.Context, traceID, userID string, items []BatchItem) ([]domain.Record, error) {
	if len(items) == 0 {
		return nil, apperr.BadRequest("No records provided for update")
	}
	patches := make(map[string]map[string]interface{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, err := uuid.Parse(item.ID); err != nil {
			return nil, apperr.BadRequest(fmt.Sprintf("Invalid record id: %s", item.ID))
		}
		if _, dup := patches[item.ID]; dup {
			return nil, apperr.BadRequest(fmt.Sprintf("Duplicate record id: %s", item.ID))
		}
		var patch map[string]interface{}
		if err := json.Unmarshal(item.Data, &patch); err != nil || patch == nil {
			return nil, apperr.BadRequest(fmt.Sprintf("Data for record %s must be an object", item.ID))
		}
		patches[item.ID] = patch
		ids = append(ids, item.ID)
	}

	records, err := s.store.Records().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(records) != len(ids) {
		found := make(map[string]bool, len(records))
		for _, r := range records {
			found[r.ID] = true
		}
		var missing []string
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, apperr.NotFound("Some records were not found").WithData(map[string]interface{}{"missing_ids": missing})
	}

	datasetIDs := make([]string, 0)
	seen := make(map[string]bool)
	for _, r := range records {
		if !seen[r.DatasetID] {
			seen[r.DatasetID] = true
			datasetIDs = append(datasetIDs, r.DatasetID)
		}
	}
	datasets, err := s.guard.Datasets(ctx, datasetIDs, userID)
	if err != nil {
		return nil, err
	}

	for i := range records {
		patch := patches[records[i].ID]
		if ok, reason := ValidatePayload(patch, datasets[records[i].DatasetID].Schema, true); !ok {
			return nil, apperr.BadRequest(fmt.Sprintf("Record %s: %s", records[i].ID, reason))
		}
		records[i].Merge(patch)
	}

	if err := s.store.WithinTx(ctx, func(tx repo.Store) error {
		return tx.Records().SaveAll(ctx, records)
	}); err != nil {
		return nil, err
	}
	s.logger.Info().Str("trace_id", traceID).Int("count", len(records)).Msg("records batch updated")
	return records, nil
}

func (s *recordService) Delete(ctx context.Context, traceID, userID, recordID string) error {
	record, dataset, err := s.guard.Record(ctx, recordID, userID)
	if err != nil {
		return err
	}
	err = s.store.WithinTx(ctx, func(tx repo.Store) error {
		if err := tx.Records().Delete(ctx, record.ID); err != nil {
			return err
		}
		return tx.Datasets().AdjustRowCount(ctx, dataset.ID, -1)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return apperr.NotFound("Record not found")
	}
	if err != nil {
		return err
	}
	s.logger.Info().Str("trace_id", traceID).Str("record_id", record.ID).Msg("record deleted")
	return nil
}
