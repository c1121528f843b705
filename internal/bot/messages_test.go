package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/gatebot/internal/domain"
	"github.com/m3rciful/gatebot/internal/gate"
	"github.com/m3rciful/gatebot/internal/storage"
)

func TestLinks(t *testing.T) {
	assert.Equal(t, "https://t.me/gatebot?start=AB12CD34", ReferralLink("@gatebot", "AB12CD34"))
	assert.Equal(t, "https://t.me/news", ChannelURL("@news"))
	assert.Equal(t, "https://t.me/news", ChannelURL("news"))
}

func TestWelcomeMessage(t *testing.T) {
	sub := WelcomeMessage("Ann", "news", gate.StartResult{Subscribed: true})
	assert.Contains(t, sub, "Hello, Ann!")
	assert.Contains(t, sub, "unlocked")

	notSub := WelcomeMessage("<Ann>", "news", gate.StartResult{
		Credited: true,
		Referrer: domain.ReferralRecord{OwnerUsername: "bob"},
	})
	assert.Contains(t, notSub, "&lt;Ann&gt;")
	assert.Contains(t, notSub, "@bob's invitation")
	assert.Contains(t, notSub, "subscribe to @news first")

	assert.Contains(t, WelcomeMessage("", "news", gate.StartResult{}), "Hello, User!")
}

func TestLeaderboardMessage(t *testing.T) {
	assert.Equal(t, msgEmptyBoard, LeaderboardMessage(nil, domain.ReferralStats{}))

	board := []domain.ReferralRecord{
		{OwnerUsername: "a", ReferralCount: 5},
		{OwnerFirstName: "B&B", ReferralCount: 3},
		{OwnerFirstName: "C", ReferralCount: 2},
		{OwnerFirstName: "D", ReferralCount: 1},
	}
	msg := LeaderboardMessage(board, domain.ReferralStats{TotalReferrals: 11, ActiveReferrers: 4})
	lines := strings.Split(msg, "\n")
	assert.Equal(t, "🥇 1. @a - 5", lines[2])
	assert.Equal(t, "🥈 2. B&amp;B - 3", lines[3])
	assert.Equal(t, "🥉 3. C - 2", lines[4])
	assert.Equal(t, "🏅 4. D - 1", lines[5])
	assert.Contains(t, msg, "Invited: 11")
	assert.Contains(t, msg, "Active referrers: 4")
}

func TestMyStatsMessage(t *testing.T) {
	msg := MyStatsMessage(gate.PersonalStats{Code: "AB12CD34", Count: 2, Rank: 3})
	assert.Contains(t, msg, "<code>AB12CD34</code>")
	assert.Contains(t, msg, "Position: #3")

	assert.Contains(t, MyStatsMessage(gate.PersonalStats{Code: "X"}), "not in top")
}

func TestReferralMessage(t *testing.T) {
	url := ReferralLink("gatebot", "AB12CD34")
	created := ReferralMessage(gate.LinkResult{Code: "AB12CD34", Created: true}, url)
	assert.Contains(t, created, "ready")
	assert.Contains(t, created, "<code>"+url+"</code>")

	existing := ReferralMessage(gate.LinkResult{Code: "AB12CD34", Count: 4}, url)
	assert.Contains(t, existing, "already have")
	assert.Contains(t, existing, "Invited: 4")
}

func TestAdminStatsMessage(t *testing.T) {
	st := gate.AdminStats{Users: 10, Subscribed: 7, Referrals: domain.ReferralStats{TotalCodes: 3}}
	assert.Contains(t, AdminStatsMessage(st), "not written yet")

	st.Snapshot = storage.FileInfo{Exists: true, Size: 512, LastModified: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	msg := AdminStatsMessage(st)
	assert.Contains(t, msg, "Users: 10")
	assert.Contains(t, msg, "Subscribed: 7")
	assert.Contains(t, msg, "512 bytes, updated 2026-01-02 03:04:05 UTC")
}

func TestKeyboards(t *testing.T) {
	kb := SubscribeKeyboard("news")
	assert.Equal(t, "https://t.me/news", kb.InlineKeyboard[0][0].URL)
	assert.Equal(t, CbCheckSubscription, kb.InlineKeyboard[1][0].Unique)

	ref := ReferralKeyboard("https://t.me/gatebot?start=AB12CD34", "AB12CD34")
	assert.Equal(t, CbCopyLink, ref.InlineKeyboard[0][1].Unique)
	assert.Equal(t, "AB12CD34", ref.InlineKeyboard[0][1].Data)
	assert.Equal(t, CbBackToMain, ref.InlineKeyboard[1][0].Unique)

	assert.Len(t, MainMenu().InlineKeyboard, 3)
}
