// Package users keeps the per-user subscription state.
package users

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/gatebot/core/logger"
	"github.com/m3rciful/gatebot/internal/domain"
	"github.com/m3rciful/gatebot/internal/storage"
)

const component = "service.users"

// Persister writes the current state of all stores.
type Persister interface {
	Persist(ctx context.Context) error
}

// Options configures a Store.
type Options struct {
	Persister Persister
	Now       func() time.Time
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	users map[int64]domain.UserRecord

	persister Persister
	now       func() time.Time
}

// New builds a store from snap. A nil snap starts empty.
func New(snap *storage.Snapshot, opts Options) *Store {
	s := &Store{
		users:     make(map[int64]domain.UserRecord),
		persister: opts.Persister,
		now:       opts.Now,
	}
	if s.now == nil {
		s.now = domain.Now
	}
	if snap == nil {
		return s
	}
	for key, e := range snap.Users {
		rec := e.Record()
		// Older files may omit the id inside the entry.
		if rec.ID == 0 {
			rec.ID = key
		}
		s.users[rec.ID] = rec
	}
	logger.Info(logger.Background(), component, "rehydrate", slog.Int("users", len(s.users)))
	return s
}

// Export writes the user section into snap.
func (s *Store) Export(snap *storage.Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]storage.UserEntry, len(s.users))
	for id, u := range s.users {
		out[id] = storage.UserEntryFrom(u)
	}
	snap.Users = out
}

// GetOrCreate returns the record for id, creating it when absent. Only
// creation persists.
func (s *Store) GetOrCreate(ctx context.Context, id int64) (domain.UserRecord, error) {
	s.mu.Lock()
	if u, ok := s.users[id]; ok {
		s.mu.Unlock()
		return u, nil
	}
	u := s.newRecordLocked(id)
	s.mu.Unlock()

	logger.Info(ctx, component, "user.created", slog.Int64("user_id", id))
	return u, s.persist(ctx)
}

// Get returns the record for id.
func (s *Store) Get(id int64) (domain.UserRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// UpdateSubscriptionStatus records the latest membership result and stamps
// LastCheck. It creates the record when needed and persists on every call.
func (s *Store) UpdateSubscriptionStatus(ctx context.Context, id int64, subscribed bool) error {
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok {
		u = s.newRecordLocked(id)
	}
	prev := u.IsSubscribed
	u.IsSubscribed = subscribed
	u.LastCheck = s.now()
	s.users[id] = u
	s.mu.Unlock()

	if prev != subscribed || !ok {
		logger.Info(ctx, component, "user.subscription",
			slog.Int64("user_id", id),
			slog.Bool("subscribed", subscribed),
		)
	}
	return s.persist(ctx)
}

// SetReferralCode stores the user's own code. It returns false when a
// different code is already set.
func (s *Store) SetReferralCode(ctx context.Context, id int64, code string) (bool, error) {
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok {
		u = s.newRecordLocked(id)
	}
	if u.ReferralCode != "" {
		s.mu.Unlock()
		return u.ReferralCode == code, nil
	}
	u.ReferralCode = code
	s.users[id] = u
	s.mu.Unlock()

	return true, s.persist(ctx)
}

// SetReferredBy records the code the user joined with.
func (s *Store) SetReferredBy(ctx context.Context, id int64, code string) error {
	return s.update(ctx, id, func(u *domain.UserRecord) { u.ReferredBy = code })
}

// SetReferralCount refreshes the cached referral count of an existing record.
// It returns false without creating anything when the id is unknown.
func (s *Store) SetReferralCount(ctx context.Context, id int64, n int) (bool, error) {
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	u.ReferralCount = n
	s.users[id] = u
	s.mu.Unlock()
	return true, s.persist(ctx)
}

// Remove deletes the record. Removing an unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	if _, ok := s.users[id]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.users, id)
	s.mu.Unlock()

	logger.Info(ctx, component, "user.removed", slog.Int64("user_id", id))
	return s.persist(ctx)
}

// List returns all records ordered by id.
func (s *Store) List() []domain.UserRecord {
	return s.filter(func(domain.UserRecord) bool { return true })
}

// FilterBySubscription returns records with the given status, ordered by id.
func (s *Store) FilterBySubscription(subscribed bool) []domain.UserRecord {
	return s.filter(func(u domain.UserRecord) bool { return u.IsSubscribed == subscribed })
}

// Count is the number of known users.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *Store) filter(keep func(domain.UserRecord) bool) []domain.UserRecord {
	s.mu.RLock()
	out := make([]domain.UserRecord, 0, len(s.users))
	for _, u := range s.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) update(ctx context.Context, id int64, mutate func(*domain.UserRecord)) error {
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok {
		u = s.newRecordLocked(id)
	}
	mutate(&u)
	s.users[id] = u
	s.mu.Unlock()
	return s.persist(ctx)
}

func (s *Store) newRecordLocked(id int64) domain.UserRecord {
	now := s.now()
	u := domain.UserRecord{ID: id, LastCheck: now, JoinDate: now}
	s.users[id] = u
	return u
}

func (s *Store) persist(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Persist(ctx); err != nil {
		logger.Error(ctx, component, "persist.fail", slog.String("err", err.Error()))
		return fmt.Errorf("users: persist: %w", err)
	}
	return nil
}
