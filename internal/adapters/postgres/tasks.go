package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/record-service/internal/domain"
)

type taskRepo struct{ db *gorm.DB }

func (r *taskRepo) FindByJobID(ctx context.Context, jobID string) (*domain.Task, error) {
	var task domain.Task
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&task).Error; err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

func (r *taskRepo) Upsert(ctx context.Context, task *domain.Task) error {
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "result", "updated_at"}),
	}).Create(task).Error)
}
