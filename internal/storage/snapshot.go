package storage

import (
	"time"

	"github.com/m3rciful/gatebot/internal/domain"
)

// Snapshot is the persisted union of the referral and user stores.
// Field names match the on-disk layout of bot_data.json.
type Snapshot struct {
	Referrals     []ReferralEntry     `json:"referrals"`
	UserReferrals map[int64]string    `json:"userReferrals"`
	ReferredUsers []int64             `json:"referredUsers"`
	Users         map[int64]UserEntry `json:"users"`
	LastUpdated   int64               `json:"lastUpdated"`
}

// ReferralEntry is the stored form of domain.ReferralRecord.
type ReferralEntry struct {
	Code          string `json:"code"`
	UserID        int64  `json:"userId"`
	Username      string `json:"username,omitempty"`
	FirstName     string `json:"firstName"`
	ReferralCount int    `json:"referralCount"`
	CreatedAt     int64  `json:"createdAt"`
}

// UserEntry is the stored form of domain.UserRecord.
type UserEntry struct {
	ID            int64  `json:"id"`
	IsSubscribed  bool   `json:"isSubscribed"`
	LastCheck     int64  `json:"lastCheck"`
	ReferralCode  string `json:"referralCode,omitempty"`
	ReferredBy    string `json:"referredBy,omitempty"`
	ReferralCount int    `json:"referralCount"`
	JoinDate      int64  `json:"joinDate"`
}

// NewSnapshot returns a snapshot with every collection present and empty.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Referrals:     []ReferralEntry{},
		UserReferrals: map[int64]string{},
		ReferredUsers: []int64{},
		Users:         map[int64]UserEntry{},
	}
}

// Validate reports whether all four collections are present.
// Load does not call it; callers that want to reject partial data do.
func Validate(snap *Snapshot) bool {
	if snap == nil {
		return false
	}
	return snap.Referrals != nil &&
		snap.UserReferrals != nil &&
		snap.ReferredUsers != nil &&
		snap.Users != nil
}

// ReferralEntryFrom converts a record into its stored form.
func ReferralEntryFrom(r domain.ReferralRecord) ReferralEntry {
	return ReferralEntry{
		Code:          r.Code,
		UserID:        r.OwnerID,
		Username:      r.OwnerUsername,
		FirstName:     r.OwnerFirstName,
		ReferralCount: r.ReferralCount,
		CreatedAt:     toMillis(r.CreatedAt),
	}
}

// Record converts the stored form back into a domain record.
func (e ReferralEntry) Record() domain.ReferralRecord {
	return domain.ReferralRecord{
		Code:           e.Code,
		OwnerID:        e.UserID,
		OwnerUsername:  e.Username,
		OwnerFirstName: e.FirstName,
		ReferralCount:  e.ReferralCount,
		CreatedAt:      fromMillis(e.CreatedAt),
	}
}

// UserEntryFrom converts a record into its stored form.
func UserEntryFrom(u domain.UserRecord) UserEntry {
	return UserEntry{
		ID:            u.ID,
		IsSubscribed:  u.IsSubscribed,
		LastCheck:     toMillis(u.LastCheck),
		ReferralCode:  u.ReferralCode,
		ReferredBy:    u.ReferredBy,
		ReferralCount: u.ReferralCount,
		JoinDate:      toMillis(u.JoinDate),
	}
}

// Record converts the stored form back into a domain record.
func (e UserEntry) Record() domain.UserRecord {
	return domain.UserRecord{
		ID:            e.ID,
		IsSubscribed:  e.IsSubscribed,
		LastCheck:     fromMillis(e.LastCheck),
		ReferralCode:  e.ReferralCode,
		ReferredBy:    e.ReferredBy,
		ReferralCount: e.ReferralCount,
		JoinDate:      fromMillis(e.JoinDate),
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
