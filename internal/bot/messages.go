package bot

import (
	"fmt"
	"strings"

	"github.com/m3rciful/gatebot/core/telegram/format"
	"github.com/m3rciful/gatebot/internal/domain"
	"github.com/m3rciful/gatebot/internal/gate"
)

const (
	msgAdminOnly       = "⛔ This command is for administrators only."
	msgRateLimited     = "⏳ Too many requests. Please wait a moment."
	msgUnknownCallback = "Unsupported action"
	msgLinkFailed      = "❌ Could not create a referral link. Please try again later."
	msgNoCode          = "❌ You have no referral link yet. Use /referral to create one."
	msgEmptyBoard      = "📊 No referrals yet. Be the first: /referral"
	msgUnexpectedDoc   = "📎 Files are not supported. Use /help to see what I can do."
)

// ChannelURL is the public link of @channel.
func ChannelURL(channel string) string {
	return "https://t.me/" + strings.TrimPrefix(channel, "@")
}

// ReferralLink is the deep link that starts the bot with code as payload.
func ReferralLink(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", strings.TrimPrefix(botUsername, "@"), code)
}

func channelMention(channel string) string {
	return "@" + format.EscapeHTML(strings.TrimPrefix(channel, "@"))
}

// WelcomeMessage greets the caller after /start.
func WelcomeMessage(firstName, channel string, res gate.StartResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👋 Hello, %s!\n\n", format.EscapeHTML(nameOr(firstName)))
	if res.Credited {
		fmt.Fprintf(&b, "🤝 You joined via %s's invitation.\n\n", format.EscapeHTML(nameOr(res.Referrer.DisplayName())))
	}
	if res.Subscribed {
		b.WriteString("✅ You are subscribed to " + channelMention(channel) + ". All features are unlocked.\n\n")
		b.WriteString("Use the menu below or /help to get started.")
		return b.String()
	}
	b.WriteString("To use this bot, subscribe to " + channelMention(channel) + " first.\n\n")
	b.WriteString("After subscribing, tap <b>Check subscription</b>.")
	return b.String()
}

// CheckMessage reports the result of a subscription check.
func CheckMessage(subscribed bool, channel string) string {
	if subscribed {
		return "✅ Subscription confirmed! All features are available."
	}
	return "❌ You are not subscribed to " + channelMention(channel) + " yet.\n\nSubscribe and check again."
}

// SubscribePrompt asks the caller to join the channel.
func SubscribePrompt(channel string) string {
	return "📢 Subscribe to " + channelMention(channel) + " to unlock the bot, then tap <b>Check subscription</b>."
}

// UnsubscribedMessage is sent when the loop notices the user left the channel.
func UnsubscribedMessage(channel string) string {
	return "⚠️ You have unsubscribed from " + channelMention(channel) + ".\n\n" +
		"Subscribe again to keep using the bot, then tap <b>Check subscription</b> or send /start."
}

// HelpMessage lists the commands.
func HelpMessage() string {
	return strings.Join([]string{
		"📖 <b>Commands</b>",
		"",
		"/start - start the bot",
		"/check - check your channel subscription",
		"/subscribe - get the channel link",
		"/referral - get your referral link",
		"/leaderboard - top referrers",
		"/mystats - your referral stats",
		"/help - this message",
	}, "\n")
}

// ReferralMessage shows the caller's referral link.
func ReferralMessage(link gate.LinkResult, url string) string {
	var b strings.Builder
	if link.Created {
		b.WriteString("🎉 Your referral link is ready!\n\n")
	} else {
		b.WriteString("🔗 You already have a referral link.\n\n")
		fmt.Fprintf(&b, "👥 Invited: %d\n\n", link.Count)
	}
	b.WriteString("Your link:\n")
	b.WriteString(format.Code(url))
	b.WriteString("\n\n💡 Share it with friends. Everyone who joins through it moves you up the leaderboard.")
	return b.String()
}

// CopyLinkMessage carries only the link so it is easy to copy.
func CopyLinkMessage(url string) string {
	return format.Code(url)
}

var medals = []string{"🥇", "🥈", "🥉"}

// LeaderboardMessage renders the top referrers followed by the totals.
func LeaderboardMessage(board []domain.ReferralRecord, total domain.ReferralStats) string {
	if len(board) == 0 {
		return msgEmptyBoard
	}
	var b strings.Builder
	b.WriteString("🏆 <b>Top referrers</b>\n\n")
	for i, rec := range board {
		medal := "🏅"
		if i < len(medals) {
			medal = medals[i]
		}
		fmt.Fprintf(&b, "%s %d. %s - %d\n", medal, i+1, format.EscapeHTML(nameOr(rec.DisplayName())), rec.ReferralCount)
	}
	b.WriteString("\n")
	b.WriteString(totalsBlock(total))
	return b.String()
}

// MyStatsMessage renders the caller's referral numbers.
func MyStatsMessage(st gate.PersonalStats) string {
	rank := "not in top"
	if st.Rank > 0 {
		rank = fmt.Sprintf("#%d", st.Rank)
	}
	var b strings.Builder
	b.WriteString("📊 <b>Your referral stats</b>\n\n")
	fmt.Fprintf(&b, "🔗 Code: %s\n", format.Code(st.Code))
	fmt.Fprintf(&b, "👥 Invited: %d\n", st.Count)
	fmt.Fprintf(&b, "🏆 Position: %s\n\n", rank)
	b.WriteString(totalsBlock(st.Total))
	return b.String()
}

// AdminStatsMessage renders the operator report.
func AdminStatsMessage(st gate.AdminStats) string {
	var b strings.Builder
	b.WriteString("🛠 <b>Bot stats</b>\n\n")
	fmt.Fprintf(&b, "👤 Users: %d\n", st.Users)
	fmt.Fprintf(&b, "✅ Subscribed: %d\n", st.Subscribed)
	fmt.Fprintf(&b, "🔗 Codes: %d\n", st.Referrals.TotalCodes)
	fmt.Fprintf(&b, "👥 Referrals: %d\n", st.Referrals.TotalReferrals)
	fmt.Fprintf(&b, "🎯 Active referrers: %d\n\n", st.Referrals.ActiveReferrers)
	if !st.Snapshot.Exists {
		b.WriteString("💾 Data file: not written yet")
		return b.String()
	}
	fmt.Fprintf(&b, "💾 Data file: %d bytes, updated %s",
		st.Snapshot.Size,
		st.Snapshot.LastModified.UTC().Format("2006-01-02 15:04:05 UTC"),
	)
	return b.String()
}

func totalsBlock(total domain.ReferralStats) string {
	return fmt.Sprintf("📈 <b>Overall</b>\n👥 Invited: %d\n🎯 Active referrers: %d",
		total.TotalReferrals, total.ActiveReferrers)
}

func nameOr(name string) string {
	if strings.TrimSpace(name) == "" {
		return "User"
	}
	return name
}
