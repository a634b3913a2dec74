package memory

import (
	"context"
	"sync"
	"time"

	"bakelite_bot/internal/models"
)

// Store is an in-process applicant store. Records are returned in the order
// they were first created.
type Store struct {
	mu      sync.RWMutex
	order   []int64
	records map[int64]*models.ApplicantRecord
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		records: make(map[int64]*models.ApplicantRecord),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for registration timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Upsert(_ context.Context, userID int64, fields models.ApplicantFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		rec = &models.ApplicantRecord{UserID: userID, RegisteredAt: s.now()}
		s.records[userID] = rec
		s.order = append(s.order, userID)
	}
	rec.Apply(fields)
	return nil
}

func (s *Store) FindByKey(_ context.Context, userID int64) (*models.ApplicantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) FindByStatus(_ context.Context, status models.Status) ([]*models.ApplicantRecord, error) {
	return s.collect(func(r *models.ApplicantRecord) bool { return r.Status == status }), nil
}

func (s *Store) ListAll(_ context.Context) ([]*models.ApplicantRecord, error) {
	return s.collect(func(*models.ApplicantRecord) bool { return true }), nil
}

func (s *Store) SetStatus(_ context.Context, userID int64, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[userID]; ok {
		rec.Status = status
	}
	return nil
}

func (s *Store) collect(keep func(*models.ApplicantRecord) bool) []*models.ApplicantRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ApplicantRecord, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		if !keep(rec) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out
}
