// Package membership asks the Bot API whether a user is in the gating channel
// and whether the bot can still reach them.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gatebot/internal/domain"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 10 * time.Second

// API is the subset of *tele.Bot used by the prober.
type API interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
	Notify(to tele.Recipient, action tele.ChatAction, threadID ...int) error
}

// Channel addresses a public channel by username.
type Channel string

// Recipient implements tele.Recipient.
func (c Channel) Recipient() string {
	return "@" + strings.TrimPrefix(string(c), "@")
}

// Prober probes channel membership and reachability.
type Prober struct {
	api     API
	channel Channel
	timeout time.Duration
}

// NewProber builds a prober for channel. A non-positive timeout uses
// DefaultTimeout.
func NewProber(api API, channel string, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		api:     api,
		channel: Channel(strings.TrimPrefix(strings.TrimSpace(channel), "@")),
		timeout: timeout,
	}
}

// Channel returns the channel username without '@'.
func (p *Prober) Channel() string { return string(p.channel) }

// Status returns the user's role in the channel.
func (p *Prober) Status(ctx context.Context, userID int64) (domain.MembershipStatus, error) {
	var member *tele.ChatMember
	err := p.call(ctx, func() error {
		m, err := p.api.ChatMemberOf(p.channel, &tele.User{ID: userID})
		member = m
		return err
	})
	if err != nil {
		return domain.MembershipUnknown, fmt.Errorf("membership: get chat member %d: %w", userID, err)
	}
	if member == nil {
		return domain.MembershipUnknown, nil
	}
	return MapRole(member.Role), nil
}

// Blocked reports whether the user blocked the bot or is otherwise
// unreachable. It sends a typing action as the probe.
func (p *Prober) Blocked(ctx context.Context, userID int64) (bool, error) {
	err := p.call(ctx, func() error {
		return p.api.Notify(tele.ChatID(userID), tele.Typing)
	})
	if err == nil {
		return false, nil
	}
	if IsBlockedError(err) {
		return true, nil
	}
	return false, fmt.Errorf("membership: chat action %d: %w", userID, err)
}

// call runs fn with the probe timeout. telebot calls take no context, so a
// timed out call keeps running in the background and its result is dropped.
func (p *Prober) call(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MapRole converts a Bot API member role.
func MapRole(role tele.MemberStatus) domain.MembershipStatus {
	switch role {
	case tele.Creator:
		return domain.MembershipOwner
	case tele.Administrator:
		return domain.MembershipAdmin
	case tele.Member:
		return domain.MembershipMember
	case tele.Left:
		return domain.MembershipLeft
	case tele.Kicked:
		return domain.MembershipKicked
	}
	return domain.MembershipUnknown
}

var blockedMarkers = []string{
	"bot was blocked",
	"user is deactivated",
	"chat not found",
}

// IsBlockedError reports whether err means the user cannot be reached.
func IsBlockedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, tele.ErrBlockedByUser) ||
		errors.Is(err, tele.ErrUserIsDeactivated) ||
		errors.Is(err, tele.ErrChatNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range blockedMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// FailClosed resolves a probe outcome for gating decisions: any error counts
// as unknown, and unknown never counts as subscribed.
func FailClosed(status domain.MembershipStatus, err error) domain.MembershipStatus {
	if err != nil {
		return domain.MembershipUnknown
	}
	if status == "" {
		return domain.MembershipUnknown
	}
	return status
}
