package usecase

import (
	"context"
	"errors"
	"time"

	repo "github.com/example/record-service/internal/adapters/postgres"
	"github.com/example/record-service/internal/domain"
	"github.com/example/record-service/pkg/apperr"
	pkglog "github.com/example/record-service/pkg/log"
)

// NewSession describes the row written when a device session starts.
type NewSession struct {
	UserID    string
	DeviceID  string
	TokenHash string
	JTI       string
	UserAgent string
	IPAddress string
	ExpiresAt time.Time
}

// SessionManager owns the refresh-token rows. Every mutation is
// revoke-then-create inside one transaction; the unique (user_id, device_id)
// index rejects a racing second insert.
type SessionManager struct {
	store repo.Store
	now   func() time.Time
}

func NewSessionManager(store repo.Store) *SessionManager {
	return &SessionManager{store: store, now: time.Now}
}

// Get returns nil without error when the device has no session.
func (m *SessionManager) Get(ctx context.Context, userID, deviceID string) (*domain.RefreshToken, error) {
	session, err := m.store.Sessions().FindByUserAndDevice(ctx, userID, deviceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return session, err
}

// Start discards any session of the same (user, device) and inserts a new one.
func (m *SessionManager) Start(ctx context.Context, in NewSession) (*domain.RefreshToken, error) {
	var session *domain.RefreshToken
	err := m.store.WithinTx(ctx, func(tx repo.Store) error {
		if err := tx.Sessions().DeleteByUserAndDevice(ctx, in.UserID, in.DeviceID); err != nil {
			return err
		}
		created, err := m.insert(ctx, tx, in)
		session = created
		return err
	})
	if errors.Is(err, domain.ErrConflict) {
		return nil, apperr.Conflict("Another session is being established for this device").Wrap(err)
	}
	return session, err
}

// Rotate deletes old and inserts its successor. Losing the delete to a
// concurrent rotation means the presented token was already superseded.
func (m *SessionManager) Rotate(ctx context.Context, old *domain.RefreshToken, in NewSession) (*domain.RefreshToken, error) {
	var session *domain.RefreshToken
	err := m.store.WithinTx(ctx, func(tx repo.Store) error {
		if err := tx.Sessions().Delete(ctx, old.ID); err != nil {
			return err
		}
		created, err := m.insert(ctx, tx, in)
		session = created
		return err
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, apperr.Unauthorized("Invalid refresh token")
	case errors.Is(err, domain.ErrConflict):
		return nil, apperr.Conflict("Another session is being established for this device").Wrap(err)
	}
	return session, err
}

func (m *SessionManager) Revoke(ctx context.Context, session *domain.RefreshToken) error {
	err := m.store.Sessions().Delete(ctx, session.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (m *SessionManager) insert(ctx context.Context, tx repo.Store, in NewSession) (*domain.RefreshToken, error) {
	now := m.now().UTC()
	session := &domain.RefreshToken{
		UserID:     in.UserID,
		DeviceID:   in.DeviceID,
		TokenHash:  in.TokenHash,
		JTI:        in.JTI,
		UserAgent:  in.UserAgent,
		IPAddress:  in.IPAddress,
		IssuedAt:   now,
		ExpiresAt:  in.ExpiresAt,
		LastUsedAt: now,
	}
	if err := tx.Sessions().Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SweepExpired deletes sessions whose refresh token can no longer be used.
func (m *SessionManager) SweepExpired(ctx context.Context) (int64, error) {
	return m.store.Sessions().DeleteExpired(ctx, m.now().UTC())
}

// RunReaper sweeps expired sessions every interval until ctx is done.
func (m *SessionManager) RunReaper(ctx context.Context, interval time.Duration, logger pkglog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.SweepExpired(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("session sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int64("deleted", n).Msg("expired sessions swept")
			}
		}
	}
}
