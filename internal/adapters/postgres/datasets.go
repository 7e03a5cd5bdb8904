package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/record-service/internal/domain"
)

type datasetRepo struct{ db *gorm.DB }

func (r *datasetRepo) Create(ctx context.Context, dataset *domain.Dataset) error {
	return translate(r.db.WithContext(ctx).Create(dataset).Error)
}

func (r *datasetRepo) FindByID(ctx context.Context, id string) (*domain.Dataset, error) {
	var dataset domain.Dataset
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&dataset).Error; err != nil {
		return nil, translate(err)
	}
	return &dataset, nil
}

func (r *datasetRepo) FindByIDs(ctx context.Context, ids []string) ([]domain.Dataset, error) {
	var datasets []domain.Dataset
	if len(ids) == 0 {
		return datasets, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&datasets).Error; err != nil {
		return nil, translate(err)
	}
	return datasets, nil
}

func (r *datasetRepo) List(ctx context.Context, query domain.DatasetQuery) ([]domain.Dataset, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&domain.Dataset{}).Where("user_id = ?", query.UserID)
		if query.Name != "" {
			q = q.Where("name ILIKE ?", "%"+escapeLike(query.Name)+"%")
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var datasets []domain.Dataset
	if err := scope().
		Order("created_at DESC").Order("id DESC").
		Offset(query.Page.Offset()).Limit(query.Page.Size).
		Find(&datasets).Error; err != nil {
		return nil, 0, translate(err)
	}
	return datasets, total, nil
}

func (r *datasetRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Dataset{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *datasetRepo) AdjustRowCount(ctx context.Context, id string, delta int) error {
	res := r.db.WithContext(ctx).Model(&domain.Dataset{}).Where("id = ?", id).
		Updates(map[string]interface{}{"row_count": gorm.Expr("GREATEST(row_count + ?, 0)", delta)})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
