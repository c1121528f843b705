// Package referral keeps referral codes, who owns them and which users were
// already credited as someone's referral.
package referral

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/gatebot/core/logger"
	"github.com/m3rciful/gatebot/internal/domain"
	"github.com/m3rciful/gatebot/internal/storage"
)

const (
	// CodeLength is the number of characters in a referral code.
	CodeLength = 8
	// DefaultLeaderboardLimit applies when Leaderboard gets a non-positive limit.
	DefaultLeaderboardLimit = 10

	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts = 32
	component       = "service.referrals"
)

// ErrCodeSpaceExhausted is returned when no unused code was found within the
// attempt budget.
var ErrCodeSpaceExhausted = errors.New("referral: no free code after max attempts")

// Persister writes the current state of all stores.
type Persister interface {
	Persist(ctx context.Context) error
}

// Options configures a Store.
type Options struct {
	Persister Persister
	// Generate overrides code generation, mainly for tests.
	Generate func() (string, error)
	// Now overrides the clock used for CreatedAt.
	Now func() time.Time
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	byCode   map[string]*domain.ReferralRecord
	byOwner  map[int64]string
	referred map[int64]struct{}
	order    []string

	persister Persister
	generate  func() (string, error)
	now       func() time.Time
}

// New builds a store from snap. A nil snap starts empty.
func New(snap *storage.Snapshot, opts Options) *Store {
	s := &Store{
		byCode:    make(map[string]*domain.ReferralRecord),
		byOwner:   make(map[int64]string),
		referred:  make(map[int64]struct{}),
		persister: opts.Persister,
		generate:  opts.Generate,
		now:       opts.Now,
	}
	if s.generate == nil {
		s.generate = GenerateCode
	}
	if s.now == nil {
		s.now = domain.Now
	}
	if snap == nil {
		return s
	}

	for _, e := range snap.Referrals {
		if e.Code == "" {
			continue
		}
		if _, dup := s.byCode[e.Code]; dup {
			continue
		}
		rec := e.Record()
		s.byCode[rec.Code] = &rec
		s.order = append(s.order, rec.Code)
		if _, ok := s.byOwner[rec.OwnerID]; !ok {
			s.byOwner[rec.OwnerID] = rec.Code
		}
	}
	for owner, code := range snap.UserReferrals {
		if _, ok := s.byCode[code]; ok {
			s.byOwner[owner] = code
		}
	}
	for _, id := range snap.ReferredUsers {
		s.referred[id] = struct{}{}
	}

	logger.Info(logger.Background(), component, "rehydrate",
		slog.Int("codes", len(s.byCode)),
		slog.Int("referred", len(s.referred)),
	)
	return s
}

// Export writes the referral section into snap.
func (s *Store) Export(snap *storage.Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]storage.ReferralEntry, 0, len(s.order))
	for _, code := range s.order {
		refs = append(refs, storage.ReferralEntryFrom(*s.byCode[code]))
	}
	owners := make(map[int64]string, len(s.byOwner))
	for owner, code := range s.byOwner {
		owners[owner] = code
	}
	referred := make([]int64, 0, len(s.referred))
	for id := range s.referred {
		referred = append(referred, id)
	}
	sort.Slice(referred, func(i, j int) bool { return referred[i] < referred[j] })

	snap.Referrals = refs
	snap.UserReferrals = owners
	snap.ReferredUsers = referred
}

// CreateReferralLink issues a code for ownerID. ok is false when the owner
// already has one. A persistence error comes back with ok=true because the
// code is already live in memory.
func (s *Store) CreateReferralLink(ctx context.Context, ownerID int64, username, firstName string) (string, bool, error) {
	s.mu.Lock()
	if _, exists := s.byOwner[ownerID]; exists {
		s.mu.Unlock()
		return "", false, nil
	}

	code, err := s.freeCodeLocked()
	if err != nil {
		s.mu.Unlock()
		logger.Error(ctx, component, "code.generate_fail",
			slog.Int64("owner_id", ownerID),
			slog.String("err", err.Error()),
		)
		return "", false, err
	}

	rec := &domain.ReferralRecord{
		Code:           code,
		OwnerID:        ownerID,
		OwnerUsername:  username,
		OwnerFirstName: firstName,
		CreatedAt:      s.now(),
	}
	s.byCode[code] = rec
	s.byOwner[ownerID] = code
	s.order = append(s.order, code)
	s.mu.Unlock()

	logger.Info(ctx, component, "code.created",
		slog.Int64("owner_id", ownerID),
		slog.String("code", code),
	)
	if err := s.persist(ctx); err != nil {
		return code, true, err
	}
	return code, true, nil
}

func (s *Store) freeCodeLocked() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return "", fmt.Errorf("referral: generate code: %w", err)
		}
		if _, taken := s.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// ProcessReferral credits the owner of code with newUserID. It returns false
// for an unknown code, a self-referral or a user that was already credited.
func (s *Store) ProcessReferral(ctx context.Context, code string, newUserID int64) (bool, error) {
	s.mu.Lock()
	rec, ok := s.byCode[code]
	if !ok {
		s.mu.Unlock()
		logger.Debug(ctx, component, "referral.unknown_code", slog.String("code", code))
		return false, nil
	}
	if rec.OwnerID == newUserID {
		s.mu.Unlock()
		logger.Debug(ctx, component, "referral.self", slog.Int64("user_id", newUserID))
		return false, nil
	}
	if _, done := s.referred[newUserID]; done {
		s.mu.Unlock()
		logger.Debug(ctx, component, "referral.already_credited", slog.Int64("user_id", newUserID))
		return false, nil
	}
	rec.ReferralCount++
	s.referred[newUserID] = struct{}{}
	owner, count := rec.OwnerID, rec.ReferralCount
	s.mu.Unlock()

	logger.Info(ctx, component, "referral.credited",
		slog.String("code", code),
		slog.Int64("owner_id", owner),
		slog.Int64("referred_id", newUserID),
		slog.Int("count", count),
	)
	if err := s.persist(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Leaderboard returns up to limit records by count, highest first. Ties keep
// creation order.
func (s *Store) Leaderboard(limit int) []domain.ReferralRecord {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	all := s.ranked()
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Rank is the 1-based leaderboard position of userID's code, 0 without one.
func (s *Store) Rank(userID int64) int {
	s.mu.RLock()
	code, ok := s.byOwner[userID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	for i, rec := range s.ranked() {
		if rec.Code == code {
			return i + 1
		}
	}
	return 0
}

func (s *Store) ranked() []domain.ReferralRecord {
	s.mu.RLock()
	out := make([]domain.ReferralRecord, 0, len(s.order))
	for _, code := range s.order {
		out = append(out, *s.byCode[code])
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReferralCount > out[j].ReferralCount
	})
	return out
}

// Stats sums counters over all records.
func (s *Store) Stats() domain.ReferralStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := domain.ReferralStats{TotalCodes: len(s.byCode)}
	for _, rec := range s.byCode {
		st.TotalReferrals += rec.ReferralCount
		if rec.ReferralCount > 0 {
			st.ActiveReferrers++
		}
	}
	return st
}

// UserReferralCode returns the code owned by userID.
func (s *Store) UserReferralCode(userID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.byOwner[userID]
	return code, ok
}

// UserReferralCount returns the count on userID's code, 0 without one.
func (s *Store) UserReferralCount(userID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.byOwner[userID]
	if !ok {
		return 0
	}
	return s.byCode[code].ReferralCount
}

// IsReferredUser reports whether userID was ever credited.
func (s *Store) IsReferredUser(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.referred[userID]
	return ok
}

// Lookup returns a copy of the record for code.
func (s *Store) Lookup(code string) (domain.ReferralRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byCode[code]
	if !ok {
		return domain.ReferralRecord{}, false
	}
	return *rec, true
}

func (s *Store) persist(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Persist(ctx); err != nil {
		logger.Error(ctx, component, "persist.fail", slog.String("err", err.Error()))
		return fmt.Errorf("referral: persist: %w", err)
	}
	return nil
}

// GenerateCode draws CodeLength uniform characters from [A-Z0-9].
func GenerateCode() (string, error) {
	base := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, CodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// ValidCode reports whether s has the shape of a generated code.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(codeAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
