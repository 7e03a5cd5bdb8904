package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	repo "github.com/example/record-service/internal/adapters/postgres"
	"github.com/example/record-service/internal/domain"
	"github.com/example/record-service/pkg/apperr"
	pkglog "github.com/example/record-service/pkg/log"
)

// JobStateStore keeps the short-lived status string of a job.
type JobStateStore interface {
	SetState(ctx context.Context, jobID string, status domain.JobStatus, ttl time.Duration) error
	GetState(ctx context.Context, jobID string) (domain.JobStatus, bool, error)
}

type JobView struct {
	JobID  string                 `json:"job_id"`
	Status domain.JobStatus       `json:"status"`
	Result map[string]interface{} `json:"result,omitempty"`
}

// JobTracker records job progress in the state store and mirrors every
// transition to the tasks table. Tracking failures are logged, never returned:
// the tracked work must not fail because its bookkeeping did.
type JobTracker struct {
	states JobStateStore
	store  repo.Store
	ttl    time.Duration
	logger pkglog.Logger
}

func NewJobTracker(states JobStateStore, store repo.Store, ttl time.Duration, logger pkglog.Logger) *JobTracker {
	return &JobTracker{states: states, store: store, ttl: ttl, logger: logger}
}

// Job identifies a tracked unit of work and the user it belongs to.
type Job struct {
	ID     string
	UserID string
}

// Begin records a processing job owned by userID. The task row is written
// up front so status lookups can check ownership while the job runs.
func (t *JobTracker) Begin(ctx context.Context, userID string) Job {
	job := Job{ID: uuid.NewString(), UserID: userID}
	t.finish(ctx, job, domain.JobProcessing, nil)
	return job
}

func (t *JobTracker) Complete(ctx context.Context, job Job, result map[string]interface{}) {
	t.finish(ctx, job, domain.JobCompleted, result)
}

func (t *JobTracker) Fail(ctx context.Context, job Job, cause error) {
	msg := "internal error"
	var appErr *apperr.Error
	if errors.As(cause, &appErr) && appErr.Status < 500 {
		msg = appErr.Message
	}
	t.finish(ctx, job, domain.JobFailed, map[string]interface{}{"error": msg})
}

func (t *JobTracker) finish(ctx context.Context, job Job, status domain.JobStatus, result map[string]interface{}) {
	if err := t.states.SetState(ctx, job.ID, status, t.ttl); err != nil {
		t.logger.Warn().Err(err).Str("job_id", job.ID).Msg("job state write failed")
	}
	task := &domain.Task{JobID: job.ID, UserID: job.UserID, Status: status, Result: datatypes.JSONMap(result)}
	if err := t.store.Tasks().Upsert(ctx, task); err != nil {
		t.logger.Error().Err(err).Str("job_id", job.ID).Msg("task persist failed")
	}
}

// Status reports a job owned by userID. The live state wins over the
// persisted task, but only the task row proves who owns the job.
func (t *JobTracker) Status(ctx context.Context, jobID, userID string) (*JobView, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, apperr.BadRequest("Invalid job id")
	}
	task, err := t.store.Tasks().FindByJobID(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.NotFound("Job not found")
	}
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, apperr.Forbidden("You do not have access to this job")
	}
	view := &JobView{JobID: jobID, Status: task.Status, Result: task.Result}
	status, ok, stateErr := t.states.GetState(ctx, jobID)
	if stateErr != nil {
		t.logger.Warn().Err(stateErr).Str("job_id", jobID).Msg("job state read failed")
	}
	if ok && status != task.Status {
		view.Status, view.Result = status, nil
	}
	return view, nil
}
