package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/example/record-service/config"
	repo "github.com/example/record-service/internal/adapters/postgres"
	"github.com/example/record-service/internal/adapters/tabular"
	"github.com/example/record-service/internal/domain"
	"github.com/example/record-service/pkg/apperr"
	pkglog "github.com/example/record-service/pkg/log"
)

// TabularCodec turns uploads into tables and record sets into files.
type TabularCodec interface {
	Parse(u tabular.Upload) (*tabular.Table, error)
	Encode(w io.Writer, format tabular.Format, columns []string, rows [][]string) error
}

type UploadInput struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

type UploadResult struct {
	JobID   string          `json:"job_id"`
	Dataset *domain.Dataset `json:"dataset"`
}

// ExportFile is a fully rendered dataset. Rendering finishes before any byte
// reaches the client so an encode failure can still produce an error response.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

type DatasetService interface {
	Upload(ctx context.Context, traceID, userID string, in UploadInput) (*UploadResult, error)
	List(ctx context.Context, userID, name string, page, size int) ([]domain.Dataset, domain.PageMeta, error)
	Get(ctx context.Context, userID, datasetID string) (*domain.Dataset, error)
	Delete(ctx context.Context, traceID, userID, datasetID string) error
	Export(ctx context.Context, userID, datasetID, format string) (*ExportFile, error)
}

type datasetService struct {
	cfg    *config.Config
	logger pkglog.Logger
	store  repo.Store
	guard  *OwnershipGuard
	codec  TabularCodec
	jobs   *JobTracker
}

func NewDatasetService(cfg *config.Config, logger pkglog.Logger, store repo.Store, guard *OwnershipGuard, codec TabularCodec, jobs *JobTracker) DatasetService {
	return &datasetService{cfg: cfg, logger: logger, store: store, guard: guard, codec: codec, jobs: jobs}
}

func (s *datasetService) Upload(ctx context.Context, traceID, userID string, in UploadInput) (result *UploadResult, err error) {
	job := s.jobs.Begin(ctx, userID)
	log := pkglog.With(s.logger, pkglog.Fields{"trace_id": traceID, "job_id": job.ID, "user_id": userID})
	defer func() {
		if err != nil {
			log.Warn().Err(err).Msg("upload failed")
			s.jobs.Fail(ctx, job, err)
		}
	}()

	table, err := s.codec.Parse(tabular.Upload{Filename: in.Filename, ContentType: in.ContentType, Content: in.Content})
	if err != nil {
		if tabular.IsValidationError(err) {
			return nil, apperr.BadRequest(err.Error())
		}
		return nil, apperr.Internal("File processing failed due to server error").Wrap(err)
	}
	if len(table.Rows) == 0 {
		return nil, apperr.BadRequest("Uploaded file contains no rows.")
	}
	if len(table.Rows) > s.cfg.UploadMaxRows {
		return nil, apperr.BadRequest(fmt.Sprintf("File has too many rows. Max allowed is %d.", s.cfg.UploadMaxRows))
	}
	if len(table.Headers) > s.cfg.UploadMaxColumns {
		return nil, apperr.BadRequest(fmt.Sprintf("File has too many columns. Max allowed is %d.", s.cfg.UploadMaxColumns))
	}
	schema, columns, err := InferSchema(table.Headers)
	if err != nil {
		return nil, err
	}

	dataset := &domain.Dataset{
		UserID:      userID,
		Name:        in.Filename,
		Schema:      schema,
		Columns:     columns,
		RowCount:    len(table.Rows),
		ColumnCount: len(columns),
	}
	err = s.store.WithinTx(ctx, func(tx repo.Store) error {
		if err := tx.Datasets().Create(ctx, dataset); err != nil {
			return err
		}
		records := make([]domain.Record, len(table.Rows))
		for i, row := range table.Rows {
			data := make(map[string]interface{}, len(columns))
			for j, col := range columns {
				data[col] = strings.TrimSpace(row[j])
			}
			records[i] = domain.Record{DatasetID: dataset.ID, Data: data}
		}
		return tx.Records().BulkCreate(ctx, records, s.cfg.BulkInsertChunk)
	})
	if err != nil {
		return nil, err
	}

	s.jobs.Complete(ctx, job, map[string]interface{}{
		"dataset_id":   dataset.ID,
		"row_count":    dataset.RowCount,
		"column_count": dataset.ColumnCount,
	})
	log.Info().Str("dataset_id", dataset.ID).Int("rows", dataset.RowCount).Msg("dataset uploaded")
	return &UploadResult{JobID: job.ID, Dataset: dataset}, nil
}

func (s *datasetService) List(ctx context.Context, userID, name string, page, size int) ([]domain.Dataset, domain.PageMeta, error) {
	p := NormalizePage(page, size, s.cfg.MaxPageSize)
	datasets, total, err := s.store.Datasets().List(ctx, domain.DatasetQuery{UserID: userID, Name: strings.TrimSpace(name), Page: p})
	if err != nil {
		return nil, domain.PageMeta{}, err
	}
	return datasets, domain.NewPageMeta(total, p), nil
}

func (s *datasetService) Get(ctx context.Context, userID, datasetID string) (*domain.Dataset, error) {
	return s.guard.Dataset(ctx, datasetID, userID)
}

func (s *datasetService) Delete(ctx context.Context, traceID, userID, datasetID string) error {
	dataset, err := s.guard.Dataset(ctx, datasetID, userID)
	if err != nil {
		return err
	}
	if err := s.store.Datasets().Delete(ctx, dataset.ID); err != nil {
		return err
	}
	s.logger.Info().Str("trace_id", traceID).Str("dataset_id", dataset.ID).Msg("dataset deleted")
	return nil
}

func (s *datasetService) Export(ctx context.Context, userID, datasetID, format string) (*ExportFile, error) {
	f, err := tabular.ParseFormat(format)
	if err != nil {
		return nil, apperr.BadRequest("Unsupported export format. Use csv, xlsx or xls.")
	}
	dataset, err := s.guard.Dataset(ctx, datasetID, userID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.Records().AllByDataset(ctx, dataset.ID)
	if err != nil {
		return nil, err
	}

	columns := dataset.OrderedColumns()
	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(columns))
		for j, col := range columns {
			row[j] = cellText(rec.Data[col])
		}
		rows[i] = row
	}
	var buf bytes.Buffer
	if err := s.codec.Encode(&buf, f, columns, rows); err != nil {
		return nil, fmt.Errorf("encode %s export: %w", f, err)
	}
	base := strings.TrimSuffix(dataset.Name, filepath.Ext(dataset.Name))
	return &ExportFile{
		Filename:    base + f.Extension(),
		ContentType: f.ContentType(),
		Content:     buf.Bytes(),
	}, nil
}

func cellText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
