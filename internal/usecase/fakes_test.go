package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/record-service/config"
	repo "github.com/example/record-service/internal/adapters/postgres"
	"github.com/example/record-service/internal/domain"
)

// memStore is an in-memory repo.Store. WithinTx snapshots every table and
// restores them when fn fails.
type memStore struct {
	mu       *sync.Mutex
	users    map[string]domain.User
	sessions map[string]domain.RefreshToken
	datasets map[string]domain.Dataset
	records  map[string]domain.Record
	tasks    map[string]domain.Task
	seq      int

	failSaveAll error
}

func newMemStore() *memStore {
	return &memStore{
		mu:       &sync.Mutex{},
		users:    map[string]domain.User{},
		sessions: map[string]domain.RefreshToken{},
		datasets: map[string]domain.Dataset{},
		records:  map[string]domain.Record{},
		tasks:    map[string]domain.Task{},
	}
}

func (s *memStore) Users() repo.UserRepository       { return memUsers{s} }
func (s *memStore) Sessions() repo.SessionRepository { return memSessions{s} }
func (s *memStore) Datasets() repo.DatasetRepository { return memDatasets{s} }
func (s *memStore) Records() repo.RecordRepository   { return memRecords{s} }
func (s *memStore) Tasks() repo.TaskRepository       { return memTasks{s} }

func (s *memStore) WithinTx(_ context.Context, fn func(repo.Store) error) error {
	s.mu.Lock()
	users, sessions, datasets, records := clone(s.users), clone(s.sessions), clone(s.datasets), clone(s.records)
	s.mu.Unlock()
	if err := fn(s); err != nil {
		s.mu.Lock()
		s.users, s.sessions, s.datasets, s.records = users, sessions, datasets, records
		s.mu.Unlock()
		return err
	}
	return nil
}

func clone[T any](m map[string]T) map[string]T {
	out := make(map[string]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// stamp keeps creation order strictly increasing for "newest first" listings.
func (s *memStore) stamp() time.Time {
	s.seq++
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Second)
}

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return domain.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = r.s.stamp()
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r memUsers) SetOTP(_ context.Context, id string, otp domain.OTP) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.SetOTP(otp)
	r.s.users[id] = u
	return nil
}

func (r memUsers) MarkVerified(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.OTPHash, u.OTPType, u.OTPExpiry = nil, nil, nil
	u.IsVerified = true
	r.s.users[id] = u
	return nil
}

type memSessions struct{ s *memStore }

func (r memSessions) FindByUserAndDevice(_ context.Context, userID, deviceID string) (*domain.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.sessions {
		if t.UserID == userID && t.DeviceID == deviceID {
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memSessions) Create(_ context.Context, t *domain.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.sessions {
		if (existing.UserID == t.UserID && existing.DeviceID == t.DeviceID) || existing.JTI == t.JTI || existing.TokenHash == t.TokenHash {
			return domain.ErrConflict
		}
	}
	t.ID = uuid.NewString()
	r.s.sessions[t.ID] = *t
	return nil
}

func (r memSessions) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.sessions, id)
	return nil
}

func (r memSessions) DeleteByUserAndDevice(_ context.Context, userID, deviceID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, t := range r.s.sessions {
		if t.UserID == userID && t.DeviceID == deviceID {
			delete(r.s.sessions, id)
		}
	}
	return nil
}

func (r memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.sessions {
		if !t.ExpiresAt.After(now) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

type memDatasets struct{ s *memStore }

func (r memDatasets) Create(_ context.Context, d *domain.Dataset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d.ID = uuid.NewString()
	d.CreatedAt = r.s.stamp()
	r.s.datasets[d.ID] = *d
	return nil
}

func (r memDatasets) FindByID(_ context.Context, id string) (*domain.Dataset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.datasets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (r memDatasets) FindByIDs(_ context.Context, ids []string) ([]domain.Dataset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Dataset
	for _, id := range ids {
		if d, ok := r.s.datasets[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r memDatasets) List(_ context.Context, q domain.DatasetQuery) ([]domain.Dataset, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []domain.Dataset
	for _, d := range r.s.datasets {
		if d.UserID == q.UserID && strings.Contains(strings.ToLower(d.Name), strings.ToLower(q.Name)) {
			all = append(all, d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, q.Page), int64(len(all)), nil
}

func (r memDatasets) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.datasets[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.datasets, id)
	for rid, rec := range r.s.records {
		if rec.DatasetID == id {
			delete(r.s.records, rid)
		}
	}
	return nil
}

func (r memDatasets) AdjustRowCount(_ context.Context, id string, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.datasets[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.RowCount += delta
	if d.RowCount < 0 {
		d.RowCount = 0
	}
	r.s.datasets[id] = d
	return nil
}

type memRecords struct{ s *memStore }

func (r memRecords) Create(_ context.Context, rec *domain.Record) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec.ID = uuid.NewString()
	rec.CreatedAt = r.s.stamp()
	r.s.records[rec.ID] = *rec
	return nil
}

func (r memRecords) BulkCreate(ctx context.Context, records []domain.Record, _ int) error {
	for i := range records {
		if err := r.Create(ctx, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r memRecords) FindByID(_ context.Context, id string) (*domain.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (r memRecords) FindByIDs(_ context.Context, ids []string) ([]domain.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Record
	for _, id := range ids {
		if rec, ok := r.s.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r memRecords) List(_ context.Context, q domain.RecordQuery) ([]domain.Record, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []domain.Record
	for _, rec := range r.s.records {
		if rec.DatasetID != q.DatasetID {
			continue
		}
		if q.FilterKey != "" {
			v, _ := rec.Data[q.FilterKey].(string)
			if !strings.Contains(strings.ToLower(v), strings.ToLower(q.FilterValue)) {
				continue
			}
		}
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if q.SortField == "" {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		a, _ := all[i].Data[q.SortField].(string)
		b, _ := all[j].Data[q.SortField].(string)
		if a == b {
			a, b = all[i].ID, all[j].ID
		}
		if q.SortOrder == domain.SortDesc {
			return a > b
		}
		return a < b
	})
	return page(all, q.Page), int64(len(all)), nil
}

func (r memRecords) FindByValue(_ context.Context, datasetID, key, value string, limit int) ([]domain.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Record
	for _, rec := range r.s.records {
		if rec.DatasetID == datasetID && rec.Data[key] == value && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r memRecords) AllByDataset(_ context.Context, datasetID string) ([]domain.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Record
	for _, rec := range r.s.records {
		if rec.DatasetID == datasetID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memRecords) UpdateData(_ context.Context, rec *domain.Record) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.records[rec.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.records[rec.ID] = *rec
	return nil
}

func (r memRecords) SaveAll(_ context.Context, records []domain.Record) error {
	if r.s.failSaveAll != nil {
		return r.s.failSaveAll
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range records {
		r.s.records[rec.ID] = rec
	}
	return nil
}

func (r memRecords) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.records, id)
	return nil
}

type memTasks struct{ s *memStore }

func (r memTasks) FindByJobID(_ context.Context, jobID string) (*domain.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (r memTasks) Upsert(_ context.Context, t *domain.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tasks[t.JobID] = *t
	return nil
}

func page[T any](all []T, p domain.Page) []T {
	start := p.Offset()
	if start >= len(all) {
		return nil
	}
	end := start + p.Size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

// memKV is both the revocation store and the job state store.
type memKV struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
	states  map[string]domain.JobStatus
	err     error
}

func newMemKV() *memKV {
	return &memKV{revoked: map[string]time.Duration{}, states: map[string]domain.JobStatus{}}
}

func (k *memKV) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return k.err
	}
	k.revoked[jti] = ttl
	return nil
}

func (k *memKV) IsRevoked(_ context.Context, jti string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return false, k.err
	}
	_, ok := k.revoked[jti]
	return ok, nil
}

func (k *memKV) SetState(_ context.Context, jobID string, status domain.JobStatus, _ time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return k.err
	}
	k.states[jobID] = status
	return nil
}

func (k *memKV) GetState(_ context.Context, jobID string) (domain.JobStatus, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return "", false, k.err
	}
	s, ok := k.states[jobID]
	return s, ok, nil
}

// plainHasher keeps tests fast; bcrypt is covered separately.
type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) { return "h:" + plain, nil }
func (plainHasher) Verify(plain, hash string) bool    { return hash == "h:"+plain }

type captureNotifier struct {
	mu   sync.Mutex
	sent []OTPMessage
	err  error
}

func (n *captureNotifier) NotifyOTP(_ context.Context, msg OTPMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *captureNotifier) last() OTPMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:             "test",
		JWTSecret:          "test-secret",
		JWTIssuer:          "record-service",
		JWTAudience:        "frontend",
		AccessTTL:          30 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		OTPExpiry:          30 * time.Minute,
		OTPLength:          6,
		DeviceCookieMaxAge: 8760 * time.Hour,
		UploadMaxBytes:     1 << 20,
		UploadMaxRows:      1000,
		UploadMaxColumns:   20,
		BulkInsertChunk:    2,
		MaxPageSize:        100,
		JobStateTTL:        time.Hour,
	}
}

var errBoom = errors.New("boom")
