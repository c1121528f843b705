package bot

import (
	"github.com/m3rciful/gatebot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// Callback keys.
const (
	CbCheckSubscription = "check_subscription"
	CbHelp              = "help"
	CbBackToMain        = "back_to_main"
	CbCopyLink          = "copy_link"
	CbReferral          = "referral"
	CbLeaderboard       = "leaderboard"
	CbMyStats           = "mystats"
)

var (
	btnCheck       = keyboard.InlineBtn{Text: "✅ Check subscription", Unique: CbCheckSubscription}
	btnHelp        = keyboard.InlineBtn{Text: "📖 Help", Unique: CbHelp}
	btnBack        = keyboard.InlineBtn{Text: "🔙 Back to menu", Unique: CbBackToMain}
	btnReferral    = keyboard.InlineBtn{Text: "🔗 Referral link", Unique: CbReferral}
	btnLeaderboard = keyboard.InlineBtn{Text: "🏆 Leaderboard", Unique: CbLeaderboard}
	btnMyStats     = keyboard.InlineBtn{Text: "📊 My stats", Unique: CbMyStats}
)

func subscribeBtn(channel string) keyboard.InlineBtn {
	return keyboard.InlineBtn{Text: "📢 Subscribe to channel", URL: ChannelURL(channel)}
}

// MainMenu is shown to subscribed users.
func MainMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{btnReferral},
		[]keyboard.InlineBtn{btnMyStats, btnLeaderboard},
		[]keyboard.InlineBtn{btnCheck, btnHelp},
	)
}

// SubscribeKeyboard links the channel and offers a re-check.
func SubscribeKeyboard(channel string) *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{subscribeBtn(channel), btnCheck})
}

// HelpKeyboard returns to the main menu.
func HelpKeyboard() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{btnBack})
}

// ReferralKeyboard opens or copies the link.
func ReferralKeyboard(url, code string) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "🔗 Open link", URL: url},
			{Text: "📋 Copy link", Unique: CbCopyLink, Data: code},
		},
		[]keyboard.InlineBtn{btnBack},
	)
}
