package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"

	repo "github.com/example/record-service/internal/adapters/postgres"
	"github.com/example/record-service/internal/domain"
	"github.com/example/record-service/pkg/apperr"
)

// OwnershipGuard resolves datasets and records on behalf of a user. Record
// ownership is always checked through the record's dataset.
type OwnershipGuard struct {
	store repo.Store
}

func NewOwnershipGuard(store repo.Store) *OwnershipGuard {
	return &OwnershipGuard{store: store}
}

func (g *OwnershipGuard) Dataset(ctx context.Context, datasetID, userID string) (*domain.Dataset, error) {
	if _, err := uuid.Parse(datasetID); err != nil {
		return nil, apperr.BadRequest("Invalid dataset id")
	}
	dataset, err := g.store.Datasets().FindByID(ctx, datasetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.NotFound("Dataset not found")
		}
		return nil, err
	}
	if dataset.UserID != userID {
		return nil, apperr.Forbidden("You do not have access to this dataset")
	}
	return dataset, nil
}

func (g *OwnershipGuard) Record(ctx context.Context, recordID, userID string) (*domain.Record, *domain.Dataset, error) {
	if _, err := uuid.Parse(recordID); err != nil {
		return nil, nil, apperr.BadRequest("Invalid record id")
	}
	record, err := g.store.Records().FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, apperr.NotFound("Record not found")
		}
		return nil, nil, err
	}
	dataset, err := g.Dataset(ctx, record.DatasetID, userID)
	if err != nil {
		return nil, nil, err
	}
	return record, dataset, nil
}

// Datasets loads every dataset in ids and fails with Forbidden when any of
// them belongs to someone else.
func (g *OwnershipGuard) Datasets(ctx context.Context, ids []string, userID string) (map[string]*domain.Dataset, error) {
	datasets, err := g.store.Datasets().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Dataset, len(datasets))
	for i := range datasets {
		if datasets[i].UserID != userID {
			return nil, apperr.Forbidden("You do not have access to one or more records")
		}
		byID[datasets[i].ID] = &datasets[i]
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, apperr.NotFound("Dataset not found")
		}
	}
	return byID, nil
}
