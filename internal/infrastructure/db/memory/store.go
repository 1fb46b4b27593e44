// Package memory keeps users and the sent-email log in process memory.
// It backs local development without Postgres and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/core/ports"
)

// Store implements ports.UserRepository and ports.SentEmailRepository.
type Store struct {
	mu     sync.RWMutex
	users  map[string]domain.User // key: user ID
	byName map[string]string      // username -> user ID
	sent   []sentEmail
	seq    int64
}

type sentEmail struct {
	rec domain.DispatchRecord
	seq int64
}

func NewStore() *Store {
	return &Store{
		users:  make(map[string]domain.User),
		byName: make(map[string]string),
	}
}

func (s *Store) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[user.Username]; exists {
		return nil, domain.ErrUserExists
	}
	if user.Email != "" {
		for _, u := range s.users {
			if u.Email == user.Email {
				return nil, domain.ErrUserExists
			}
		}
	}
	u := *user
	s.users[u.ID] = u
	s.byName[u.Username] = u.ID
	return &u, nil
}

func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *Store) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.LastLogin = &at
	s.users[userID] = u
	return nil
}

// SetActive flips the active flag of an existing user.
func (s *Store) SetActive(userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Active = active
	s.users[userID] = u
	return nil
}

func (s *Store) Record(_ context.Context, rec *domain.DispatchRecord) (*domain.DispatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	stored := *rec
	if rec.Digital != nil {
		d := *rec.Digital
		stored.Digital = &d
	}
	s.sent = append(s.sent, sentEmail{rec: stored, seq: s.seq})
	out := s.withSender(stored)
	return &out, nil
}

func (s *Store) Query(_ context.Context, filter ports.SentEmailFilter, page, pageSize int) ([]domain.DispatchRecord, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.match(filter)
	total := int64(len(matched))
	if pageSize <= 0 {
		return matched, total, nil
	}
	if page < 1 {
		page = 1
	}
	skip := (page - 1) * pageSize
	if skip >= len(matched) {
		return []domain.DispatchRecord{}, total, nil
	}
	end := min(skip+pageSize, len(matched))
	return matched[skip:end], total, nil
}

func (s *Store) Export(_ context.Context, filter ports.SentEmailFilter) ([]domain.DispatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.match(filter), nil
}

// match applies filter and sorts most recent first. Callers hold s.mu.
func (s *Store) match(f ports.SentEmailFilter) []domain.DispatchRecord {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	hits := make([]sentEmail, 0, len(s.sent))
	for _, e := range s.sent {
		r := e.rec
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if !f.DateFrom.IsZero() && r.SentAt.Before(f.DateFrom) {
			continue
		}
		if !f.DateTo.IsZero() && r.SentAt.After(f.DateTo) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(r.RecipientEmail), search) &&
			!strings.Contains(strings.ToLower(r.RecipientName), search) {
			continue
		}
		hits = append(hits, e)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if !hits[i].rec.SentAt.Equal(hits[j].rec.SentAt) {
			return hits[i].rec.SentAt.After(hits[j].rec.SentAt)
		}
		return hits[i].seq > hits[j].seq
	})

	out := make([]domain.DispatchRecord, 0, len(hits))
	for _, e := range hits {
		out = append(out, s.withSender(e.rec))
	}
	return out
}

func (s *Store) withSender(r domain.DispatchRecord) domain.DispatchRecord {
	if u, ok := s.users[r.UserID]; ok {
		r.SentBy = u.Username
	}
	return r
}
