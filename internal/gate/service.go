// Package gate holds the use cases behind the bot commands: registration with
// an optional referral code, subscription checks, referral links and stats.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/gatebot/core/logger"
	"github.com/m3rciful/gatebot/internal/domain"
	"github.com/m3rciful/gatebot/internal/membership"
	"github.com/m3rciful/gatebot/internal/metrics"
	"github.com/m3rciful/gatebot/internal/referral"
	"github.com/m3rciful/gatebot/internal/storage"
)

const component = "service.gate"

// Users is the part of the user store the service needs.
type Users interface {
	GetOrCreate(ctx context.Context, id int64) (domain.UserRecord, error)
	Get(id int64) (domain.UserRecord, bool)
	UpdateSubscriptionStatus(ctx context.Context, id int64, subscribed bool) error
	SetReferralCode(ctx context.Context, id int64, code string) (bool, error)
	SetReferredBy(ctx context.Context, id int64, code string) error
	SetReferralCount(ctx context.Context, id int64, n int) (bool, error)
	Count() int
	FilterBySubscription(subscribed bool) []domain.UserRecord
}

// Referrals is the part of the referral store the service needs.
type Referrals interface {
	CreateReferralLink(ctx context.Context, ownerID int64, username, firstName string) (string, bool, error)
	ProcessReferral(ctx context.Context, code string, newUserID int64) (bool, error)
	Leaderboard(limit int) []domain.ReferralRecord
	Rank(userID int64) int
	Stats() domain.ReferralStats
	UserReferralCode(userID int64) (string, bool)
	UserReferralCount(userID int64) int
	Lookup(code string) (domain.ReferralRecord, bool)
}

// Prober reports channel membership.
type Prober interface {
	Status(ctx context.Context, userID int64) (domain.MembershipStatus, error)
}

// SnapshotInfo describes the data file for the admin report.
type SnapshotInfo interface {
	FileInfo() storage.FileInfo
}

// Options wires a Service.
type Options struct {
	Users     Users
	Referrals Referrals
	Prober    Prober
	Snapshot  SnapshotInfo
	Metrics   *metrics.Collectors

	LeaderboardLimit int
}

// Profile is the Telegram identity of the caller.
type Profile struct {
	ID        int64
	Username  string
	FirstName string
}

// StartResult describes what /start did.
type StartResult struct {
	NewUser    bool
	Subscribed bool
	// Credited is true when this start credited a referral.
	Credited bool
	Referrer domain.ReferralRecord
}

// LinkResult is the caller's referral code.
type LinkResult struct {
	Code    string
	Created bool
	Count   int
}

// PersonalStats is the /mystats view.
type PersonalStats struct {
	Code  string
	Count int
	// Rank is the 1-based position within the shown leaderboard, 0 when
	// the caller is outside it.
	Rank  int
	Total domain.ReferralStats
}

// AdminStats is the /stats view.
type AdminStats struct {
	Users      int
	Subscribed int
	Referrals  domain.ReferralStats
	Snapshot   storage.FileInfo
}

// Service is safe for concurrent use; all state lives in the stores.
type Service struct {
	users     Users
	referrals Referrals
	prober    Prober
	snapshot  SnapshotInfo
	metrics   *metrics.Collectors
	limit     int
}

// New builds a Service.
func New(opts Options) *Service {
	limit := opts.LeaderboardLimit
	if limit <= 0 {
		limit = referral.DefaultLeaderboardLimit
	}
	return &Service{
		users:     opts.Users,
		referrals: opts.Referrals,
		prober:    opts.Prober,
		snapshot:  opts.Snapshot,
		metrics:   opts.Metrics,
		limit:     limit,
	}
}

// Start registers the caller, credits payload as a referral code when this is
// the caller's first start, and refreshes the subscription status.
func (s *Service) Start(ctx context.Context, p Profile, payload string) (StartResult, error) {
	var res StartResult

	_, existed := s.users.Get(p.ID)
	if _, err := s.users.GetOrCreate(ctx, p.ID); err != nil {
		logger.Warn(ctx, component, "start.persist_fail", slog.String("err", err.Error()))
	}
	res.NewUser = !existed

	if code := NormalizeCode(payload); code != "" {
		if res.NewUser {
			res.Credited, res.Referrer = s.credit(ctx, code, p.ID)
		} else {
			logger.Debug(ctx, component, "referral.ignored_existing_user", slog.String("code", code))
		}
	}

	subscribed, err := s.Check(ctx, p.ID)
	res.Subscribed = subscribed
	logger.Info(ctx, component, "start",
		slog.Bool("new_user", res.NewUser),
		slog.Bool("credited", res.Credited),
		slog.Bool("subscribed", subscribed),
	)
	return res, err
}

func (s *Service) credit(ctx context.Context, code string, userID int64) (bool, domain.ReferralRecord) {
	credited, err := s.referrals.ProcessReferral(ctx, code, userID)
	if err != nil {
		logger.Warn(ctx, component, "referral.persist_fail", slog.String("err", err.Error()))
	}
	s.metrics.ReferralProcessed(credited)
	if !credited {
		return false, domain.ReferralRecord{}
	}

	owner, _ := s.referrals.Lookup(code)
	if err := s.users.SetReferredBy(ctx, userID, code); err != nil {
		logger.Warn(ctx, component, "referral.persist_fail", slog.String("err", err.Error()))
	}
	// Owners removed as blocked stay removed; only the referral store counts them.
	if _, err := s.users.SetReferralCount(ctx, owner.OwnerID, owner.ReferralCount); err != nil {
		logger.Warn(ctx, component, "referral.persist_fail", slog.String("err", err.Error()))
	}
	return true, owner
}

// Check probes the caller's membership and stores the result. A failed probe
// counts as not subscribed. The returned error is a persistence error only.
func (s *Service) Check(ctx context.Context, userID int64) (bool, error) {
	status, err := s.prober.Status(ctx, userID)
	if err != nil {
		logger.Warn(ctx, component, "check.probe_fail", slog.String("err", err.Error()))
	}
	status = membership.FailClosed(status, err)
	subscribed := status.Subscribed()

	if err := s.users.UpdateSubscriptionStatus(ctx, userID, subscribed); err != nil {
		return subscribed, fmt.Errorf("gate: check: %w", err)
	}
	logger.Debug(ctx, component, "check",
		slog.String("status", string(status)),
		slog.Bool("subscribed", subscribed),
	)
	return subscribed, nil
}

// IsSubscribed reads the stored status without probing.
func (s *Service) IsSubscribed(userID int64) bool {
	u, ok := s.users.Get(userID)
	return ok && u.IsSubscribed
}

// ReferralLink returns the caller's code, issuing one on first use.
func (s *Service) ReferralLink(ctx context.Context, p Profile) (LinkResult, error) {
	if code, ok := s.referrals.UserReferralCode(p.ID); ok {
		return LinkResult{Code: code, Count: s.referrals.UserReferralCount(p.ID)}, nil
	}

	firstName := strings.TrimSpace(p.FirstName)
	if firstName == "" {
		firstName = "User"
	}
	code, created, err := s.referrals.CreateReferralLink(ctx, p.ID, p.Username, firstName)
	switch {
	case err != nil && !created:
		return LinkResult{}, fmt.Errorf("gate: referral link: %w", err)
	case err != nil:
		logger.Warn(ctx, component, "referral.persist_fail", slog.String("err", err.Error()))
	case !created:
		// Lost a race with a concurrent request from the same user.
		code, _ = s.referrals.UserReferralCode(p.ID)
		return LinkResult{Code: code, Count: s.referrals.UserReferralCount(p.ID)}, nil
	}

	s.metrics.CodeCreated()
	if _, err := s.users.SetReferralCode(ctx, p.ID, code); err != nil {
		logger.Warn(ctx, component, "referral.persist_fail", slog.String("err", err.Error()))
	}
	return LinkResult{Code: code, Created: true}, nil
}

// Leaderboard returns the top referrers and the global counters.
func (s *Service) Leaderboard() ([]domain.ReferralRecord, domain.ReferralStats) {
	return s.referrals.Leaderboard(s.limit), s.referrals.Stats()
}

// MyStats returns the caller's referral numbers. ok is false without a code.
func (s *Service) MyStats(userID int64) (PersonalStats, bool) {
	code, ok := s.referrals.UserReferralCode(userID)
	if !ok {
		return PersonalStats{}, false
	}
	rank := s.referrals.Rank(userID)
	if rank > s.limit {
		rank = 0
	}
	return PersonalStats{
		Code:  code,
		Count: s.referrals.UserReferralCount(userID),
		Rank:  rank,
		Total: s.referrals.Stats(),
	}, true
}

// AdminStats gathers the operator report.
func (s *Service) AdminStats() AdminStats {
	st := AdminStats{
		Users:      s.users.Count(),
		Subscribed: len(s.users.FilterBySubscription(true)),
		Referrals:  s.referrals.Stats(),
	}
	if s.snapshot != nil {
		st.Snapshot = s.snapshot.FileInfo()
	}
	s.metrics.SetUsers(st.Users, st.Subscribed)
	return st
}

// NormalizeCode turns a /start payload into a referral code, or "" when the
// payload cannot be one.
func NormalizeCode(payload string) string {
	code := strings.ToUpper(strings.TrimSpace(payload))
	if !referral.ValidCode(code) {
		return ""
	}
	return code
}
