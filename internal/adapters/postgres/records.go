package repo

import (
	"context"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/record-service/internal/domain"
)

type recordRepo struct{ db *gorm.DB }

func (r *recordRepo) Create(ctx context.Context, record *domain.Record) error {
	return translate(r.db.WithContext(ctx).Create(record).Error)
}

// BulkCreate inserts records in statements of at most chunk rows. Callers that
// need all-or-nothing semantics run it inside Store.WithinTx.
func (r *recordRepo) BulkCreate(ctx context.Context, records []domain.Record, chunk int) error {
	if len(records) == 0 {
		return nil
	}
	if chunk < 1 {
		chunk = 100
	}
	return translate(r.db.WithContext(ctx).CreateInBatches(&records, chunk).Error)
}

func (r *recordRepo) FindByID(ctx context.Context, id string) (*domain.Record, error) {
	var record domain.Record
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, translate(err)
	}
	return &record, nil
}

func (r *recordRepo) FindByIDs(ctx context.Context, ids []string) ([]domain.Record, error) {
	var records []domain.Record
	if len(ids) == 0 {
		return records, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, translate(err)
	}
	return records, nil
}

func (r *recordRepo) List(ctx context.Context, query domain.RecordQuery) ([]domain.Record, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&domain.Record{}).Where("dataset_id = ?", query.DatasetID)
		if query.FilterKey != "" {
			q = q.Where("data ->> ? ILIKE ?", query.FilterKey, "%"+escapeLike(query.FilterValue)+"%")
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	q := scope()
	if query.SortField != "" {
		dir := "ASC"
		if query.SortOrder == domain.SortDesc {
			dir = "DESC"
		}
		// id breaks ties so equal sort keys page deterministically.
		q = q.Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "data ->> ? " + dir + ", id " + dir,
			Vars:               []interface{}{query.SortField},
			WithoutParentheses: true,
		}})
	} else {
		q = q.Order("created_at DESC").Order("id DESC")
	}

	var records []domain.Record
	if err := q.Offset(query.Page.Offset()).Limit(query.Page.Size).Find(&records).Error; err != nil {
		return nil, 0, translate(err)
	}
	return records, total, nil
}

func (r *recordRepo) FindByValue(ctx context.Context, datasetID, key, value string, limit int) ([]domain.Record, error) {
	var records []domain.Record
	if err := r.db.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Where(datatypes.JSONQuery("data").Equals(value, key)).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, translate(err)
	}
	return records, nil
}

func (r *recordRepo) AllByDataset(ctx context.Context, datasetID string) ([]domain.Record, error) {
	var records []domain.Record
	if err := r.db.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("created_at ASC").Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, translate(err)
	}
	return records, nil
}

func (r *recordRepo) UpdateData(ctx context.Context, record *domain.Record) error {
	res := r.db.WithContext(ctx).Model(record).Select("data", "updated_at").Updates(record)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *recordRepo) SaveAll(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Save(&records).Error)
}

func (r *recordRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Record{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
