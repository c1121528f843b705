package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gatebot/internal/domain"
)

type fakeAPI struct {
	role      tele.MemberStatus
	memberErr error
	notifyErr error
	delay     time.Duration

	gotChat string
	gotUser string
	gotTo   string
}

func (f *fakeAPI) ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error) {
	f.gotChat = chat.Recipient()
	f.gotUser = user.Recipient()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	return &tele.ChatMember{Role: f.role}, nil
}

func (f *fakeAPI) Notify(to tele.Recipient, _ tele.ChatAction, _ ...int) error {
	f.gotTo = to.Recipient()
	return f.notifyErr
}

func TestMapRole(t *testing.T) {
	cases := []struct {
		role tele.MemberStatus
		want domain.MembershipStatus
	}{
		{tele.Creator, domain.MembershipOwner},
		{tele.Administrator, domain.MembershipAdmin},
		{tele.Member, domain.MembershipMember},
		{tele.Left, domain.MembershipLeft},
		{tele.Kicked, domain.MembershipKicked},
		{tele.Restricted, domain.MembershipUnknown},
		{"", domain.MembershipUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MapRole(tc.role), "role %q", tc.role)
	}
}

func TestStatusQueriesChannel(t *testing.T) {
	api := &fakeAPI{role: tele.Member}
	p := NewProber(api, "@mychannel", time.Second)

	status, err := p.Status(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipMember, status)
	assert.Equal(t, "@mychannel", api.gotChat)
	assert.Equal(t, "42", api.gotUser)
	assert.Equal(t, "mychannel", p.Channel())
}

func TestStatusErrorIsUnknown(t *testing.T) {
	boom := errors.New("telegram: internal error")
	p := NewProber(&fakeAPI{memberErr: boom}, "chan", time.Second)

	status, err := p.Status(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.MembershipUnknown, status)
}

func TestStatusTimeout(t *testing.T) {
	p := NewProber(&fakeAPI{role: tele.Member, delay: 200 * time.Millisecond}, "chan", 10*time.Millisecond)

	status, err := p.Status(context.Background(), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.MembershipUnknown, status)
}

func TestBlocked(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		blocked bool
		wantErr bool
	}{
		{"reachable", nil, false, false},
		{"blocked sentinel", tele.ErrBlockedByUser, true, false},
		{"deactivated sentinel", tele.ErrUserIsDeactivated, true, false},
		{"chat not found text", errors.New("telegram: Bad Request: chat not found (400)"), true, false},
		{"blocked text", errors.New("Forbidden: bot was blocked by the user"), true, false},
		{"other error", errors.New("telegram: too many requests"), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{notifyErr: tc.err}
			p := NewProber(api, "chan", time.Second)

			blocked, err := p.Blocked(context.Background(), 77)
			assert.Equal(t, tc.blocked, blocked)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, "77", api.gotTo)
		})
	}
}

func TestFailClosed(t *testing.T) {
	assert.Equal(t, domain.MembershipUnknown, FailClosed(domain.MembershipMember, errors.New("x")))
	assert.Equal(t, domain.MembershipUnknown, FailClosed("", nil))
	assert.Equal(t, domain.MembershipLeft, FailClosed(domain.MembershipLeft, nil))
	assert.False(t, FailClosed(domain.MembershipAdmin, errors.New("x")).Subscribed())
}
