// Package domain holds the records shared by the referral and user stores and
// the snapshot that persists them.
package domain

import "time"

// UserRecord is the per-user subscription and referral state.
type UserRecord struct {
	ID            int64
	IsSubscribed  bool
	LastCheck     time.Time
	ReferralCode  string
	ReferredBy    string
	ReferralCount int
	JoinDate      time.Time
}

// ReferralRecord describes one issued referral code.
type ReferralRecord struct {
	Code           string
	OwnerID        int64
	OwnerUsername  string
	OwnerFirstName string
	ReferralCount  int
	CreatedAt      time.Time
}

// DisplayName prefers @username and falls back to the first name.
func (r ReferralRecord) DisplayName() string {
	if r.OwnerUsername != "" {
		return "@" + r.OwnerUsername
	}
	return r.OwnerFirstName
}

// ReferralStats aggregates counters over all referral records.
type ReferralStats struct {
	TotalReferrals  int
	ActiveReferrers int
	TotalCodes      int
}

// MembershipStatus is the role of a user in the gating channel.
type MembershipStatus string

const (
	MembershipOwner   MembershipStatus = "owner"
	MembershipAdmin   MembershipStatus = "admin"
	MembershipMember  MembershipStatus = "member"
	MembershipLeft    MembershipStatus = "left"
	MembershipKicked  MembershipStatus = "kicked"
	MembershipUnknown MembershipStatus = "unknown"
)

// Subscribed reports whether the status counts as a channel subscription.
func (s MembershipStatus) Subscribed() bool {
	switch s {
	case MembershipOwner, MembershipAdmin, MembershipMember:
		return true
	}
	return false
}

// Now returns the current time in UTC truncated to milliseconds, the
// resolution timestamps are persisted with.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
