package domain

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// Task persists the state of an asynchronous job and the user who started it.
type Task struct {
	ID        string            `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID     string            `gorm:"type:uuid;not null;uniqueIndex" json:"job_id"`
	UserID    string            `gorm:"type:uuid;not null;index" json:"user_id"`
	Status    JobStatus         `gorm:"type:text;not null" json:"status"`
	Result    datatypes.JSONMap `gorm:"type:jsonb" json:"result,omitempty"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }
