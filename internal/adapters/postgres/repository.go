package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/example/record-service/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	SetOTP(ctx context.Context, userID string, otp domain.OTP) error
	MarkVerified(ctx context.Context, userID string) error
}

type SessionRepository interface {
	FindByUserAndDevice(ctx context.Context, userID, deviceID string) (*domain.RefreshToken, error)
	Create(ctx context.Context, token *domain.RefreshToken) error
	Delete(ctx context.Context, id string) error
	DeleteByUserAndDevice(ctx context.Context, userID, deviceID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type DatasetRepository interface {
	Create(ctx context.Context, dataset *domain.Dataset) error
	FindByID(ctx context.Context, id string) (*domain.Dataset, error)
	FindByIDs(ctx context.Context, ids []string) ([]domain.Dataset, error)
	List(ctx context.Context, query domain.DatasetQuery) ([]domain.Dataset, int64, error)
	Delete(ctx context.Context, id string) error
	AdjustRowCount(ctx context.Context, id string, delta int) error
}

type RecordRepository interface {
	Create(ctx context.Context, record *domain.Record) error
	BulkCreate(ctx context.Context, records []domain.Record, chunk int) error
	FindByID(ctx context.Context, id string) (*domain.Record, error)
	FindByIDs(ctx context.Context, ids []string) ([]domain.Record, error)
	List(ctx context.Context, query domain.RecordQuery) ([]domain.Record, int64, error)
	FindByValue(ctx context.Context, datasetID, key, value string, limit int) ([]domain.Record, error)
	AllByDataset(ctx context.Context, datasetID string) ([]domain.Record, error)
	UpdateData(ctx context.Context, record *domain.Record) error
	SaveAll(ctx context.Context, records []domain.Record) error
	Delete(ctx context.Context, id string) error
}

type TaskRepository interface {
	FindByJobID(ctx context.Context, jobID string) (*domain.Task, error)
	Upsert(ctx context.Context, task *domain.Task) error
}

// Store groups the repositories that share one connection or transaction.
type Store interface {
	Users() UserRepository
	Sessions() SessionRepository
	Datasets() DatasetRepository
	Records() RecordRepository
	Tasks() TaskRepository
	// WithinTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type gormStore struct{ db *gorm.DB }

func NewStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) Users() UserRepository       { return &userRepo{db: s.db} }
func (s *gormStore) Sessions() SessionRepository { return &sessionRepo{db: s.db} }
func (s *gormStore) Datasets() DatasetRepository { return &datasetRepo{db: s.db} }
func (s *gormStore) Records() RecordRepository   { return &recordRepo{db: s.db} }
func (s *gormStore) Tasks() TaskRepository       { return &taskRepo{db: s.db} }

func (s *gormStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// Migrate creates the extensions and tables the service needs.
func Migrate(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return err
	}
	return db.AutoMigrate(&domain.User{}, &domain.RefreshToken{}, &domain.Dataset{}, &domain.Record{}, &domain.Task{})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}
