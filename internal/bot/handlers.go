// Package bot is the Telegram surface of the gate: commands, callbacks,
// message texts, keyboards and the unsubscribe notifier.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/m3rciful/gatebot/core/logger"
	tg "github.com/m3rciful/gatebot/core/telegram"
	"github.com/m3rciful/gatebot/core/telegram/callbacks"
	"github.com/m3rciful/gatebot/core/telegram/commands"
	tghelpers "github.com/m3rciful/gatebot/core/telegram/helpers"
	"github.com/m3rciful/gatebot/internal/gate"
	"github.com/m3rciful/gatebot/internal/referral"

	tele "gopkg.in/telebot.v4"
)

const component = "bot"

// Options configures Handlers.
type Options struct {
	Gate        *gate.Service
	Channel     string
	BotUsername string
}

// Handlers binds gate use cases to Telegram updates.
type Handlers struct {
	gate        *gate.Service
	channel     string
	botUsername atomic.Pointer[string]
}

// NewHandlers builds the handler set.
func NewHandlers(opts Options) *Handlers {
	h := &Handlers{gate: opts.Gate, channel: strings.TrimPrefix(opts.Channel, "@")}
	h.SetBotUsername(opts.BotUsername)
	return h
}

// SetBotUsername sets the username used in referral links. Empty names are ignored.
func (h *Handlers) SetBotUsername(name string) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	if name == "" {
		return
	}
	h.botUsername.Store(&name)
}

// BotUsername returns the username used in referral links.
func (h *Handlers) BotUsername() string {
	if p := h.botUsername.Load(); p != nil {
		return *p
	}
	return ""
}

// Register adds every command and callback to reg and sets the text fallback.
func (h *Handlers) Register(reg *tg.Registry) error {
	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: h.Start, Description: "Start the bot"}},
		{"/check", commands.Command{Handler: h.Check, Description: "Check channel subscription"}},
		{"/subscribe", commands.Command{Handler: h.Subscribe, Description: "Get the channel link"}},
		{"/referral", commands.Command{Handler: h.Referral, Description: "Your referral link"}},
		{"/leaderboard", commands.Command{Handler: h.Leaderboard, Description: "Top referrers"}},
		{"/mystats", commands.Command{Handler: h.MyStats, Description: "Your referral stats"}},
		{"/help", commands.Command{Handler: h.Help, Description: "Show help"}},
		{"/stats", commands.Command{Handler: h.AdminStats, Description: "Bot statistics", AdminOnly: true}},
	}
	var errs []error
	for _, c := range cmds {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			errs = append(errs, err)
		}
	}
	for key, fn := range map[string]tele.HandlerFunc{
		CbCheckSubscription: h.Check,
		CbHelp:              h.Help,
		CbBackToMain:        h.BackToMain,
		CbCopyLink:          h.CopyLink,
		CbReferral:          h.Referral,
		CbLeaderboard:       h.Leaderboard,
		CbMyStats:           h.MyStats,
	} {
		if err := reg.RegisterCallback(key, fn); err != nil {
			errs = append(errs, err)
		}
	}
	reg.SetTextFallback(h.Help)
	reg.SetCallbackNotFound(func(c tele.Context) error {
		_ = c.Respond(&tele.CallbackResponse{Text: msgUnknownCallback})
		return nil
	})
	return errors.Join(errs...)
}

func profileOf(c tele.Context) (gate.Profile, bool) {
	u := c.Sender()
	if u == nil {
		return gate.Profile{}, false
	}
	return gate.Profile{ID: u.ID, Username: u.Username, FirstName: u.FirstName}, true
}

// Start handles /start [code].
func (h *Handlers) Start(c tele.Context) error {
	p, ok := profileOf(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	var payload string
	if m := c.Message(); m != nil {
		payload = m.Payload
	}

	res, err := h.gate.Start(ctx, p, payload)
	if err != nil {
		logger.Warn(ctx, component, "start.degraded", slog.String("err", err.Error()))
	}
	text := WelcomeMessage(p.FirstName, h.channel, res)
	if res.Subscribed {
		return tghelpers.SendHTML(c, text, MainMenu())
	}
	return tghelpers.SendHTML(c, text, SubscribeKeyboard(h.channel))
}

// Check handles /check and the check_subscription button.
func (h *Handlers) Check(c tele.Context) error {
	p, ok := profileOf(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	subscribed, err := h.gate.Check(ctx, p.ID)
	if err != nil {
		logger.Warn(ctx, component, "check.degraded", slog.String("err", err.Error()))
	}
	if subscribed {
		return tghelpers.EditOrSendHTML(c, CheckMessage(true, h.channel), MainMenu())
	}
	return tghelpers.EditOrSendHTML(c, CheckMessage(false, h.channel), SubscribeKeyboard(h.channel))
}

// Subscribe handles /subscribe.
func (h *Handlers) Subscribe(c tele.Context) error {
	return tghelpers.SendHTML(c, SubscribePrompt(h.channel), SubscribeKeyboard(h.channel))
}

// Help handles /help, the help button and unknown text.
func (h *Handlers) Help(c tele.Context) error {
	return tghelpers.EditOrSendHTML(c, HelpMessage(), HelpKeyboard())
}

// BackToMain shows the menu that matches the stored subscription status.
func (h *Handlers) BackToMain(c tele.Context) error {
	p, ok := profileOf(c)
	if !ok {
		return nil
	}
	if !h.gate.IsSubscribed(p.ID) {
		return tghelpers.EditOrSendHTML(c, SubscribePrompt(h.channel), SubscribeKeyboard(h.channel))
	}
	return tghelpers.EditOrSendHTML(c, WelcomeMessage(p.FirstName, h.channel, gate.StartResult{Subscribed: true}), MainMenu())
}

// Referral handles /referral and the referral button.
func (h *Handlers) Referral(c tele.Context) error {
	return h.subscribed(c, func(ctx context.Context, p gate.Profile) error {
		link, err := h.gate.ReferralLink(ctx, p)
		if err != nil {
			_ = tghelpers.SendHTML(c, msgLinkFailed)
			return err
		}
		url := ReferralLink(h.BotUsername(), link.Code)
		return tghelpers.SendHTML(c, ReferralMessage(link, url), ReferralKeyboard(url, link.Code))
	})
}

// CopyLink sends the referral link alone so it can be copied.
func (h *Handlers) CopyLink(c tele.Context) error {
	code := strings.ToUpper(callbacks.CallbackPayload(c))
	if !referral.ValidCode(code) {
		_ = c.Respond(&tele.CallbackResponse{Text: msgUnknownCallback})
		return nil
	}
	return tghelpers.SendHTML(c, CopyLinkMessage(ReferralLink(h.BotUsername(), code)))
}

// Leaderboard handles /leaderboard.
func (h *Handlers) Leaderboard(c tele.Context) error {
	return h.subscribed(c, func(context.Context, gate.Profile) error {
		board, total := h.gate.Leaderboard()
		return tghelpers.SendHTML(c, LeaderboardMessage(board, total), HelpKeyboard())
	})
}

// MyStats handles /mystats.
func (h *Handlers) MyStats(c tele.Context) error {
	return h.subscribed(c, func(_ context.Context, p gate.Profile) error {
		st, ok := h.gate.MyStats(p.ID)
		if !ok {
			return tghelpers.SendHTML(c, msgNoCode)
		}
		return tghelpers.SendHTML(c, MyStatsMessage(st), HelpKeyboard())
	})
}

// AdminStats handles the admin-only /stats.
func (h *Handlers) AdminStats(c tele.Context) error {
	return tghelpers.SendHTML(c, AdminStatsMessage(h.gate.AdminStats()))
}

// AdminReject answers non-admins calling an admin command.
func (h *Handlers) AdminReject(c tele.Context) error {
	return tghelpers.SendHTML(c, msgAdminOnly)
}

// RateLimited answers throttled updates.
func (h *Handlers) RateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: msgRateLimited})
	}
	return tghelpers.SendHTML(c, msgRateLimited)
}

// UnknownDocument answers files.
func (h *Handlers) UnknownDocument(c tele.Context) error {
	return tghelpers.SendHTML(c, msgUnexpectedDoc)
}

// subscribed runs fn only for callers whose stored status is subscribed;
// others get the subscribe prompt.
func (h *Handlers) subscribed(c tele.Context, fn func(ctx context.Context, p gate.Profile) error) error {
	p, ok := profileOf(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	if !h.gate.IsSubscribed(p.ID) {
		logger.Debug(ctx, component, "gate.blocked")
		return tghelpers.SendHTML(c, SubscribePrompt(h.channel), SubscribeKeyboard(h.channel))
	}
	return fn(ctx, p)
}
