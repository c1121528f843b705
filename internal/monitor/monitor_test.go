package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/gatebot/internal/domain"
	"github.com/m3rciful/gatebot/internal/metrics"
	"github.com/m3rciful/gatebot/internal/users"
)

type fakeProber struct {
	mu         sync.Mutex
	status     map[int64]domain.MembershipStatus
	statusErr  map[int64]error
	blocked    map[int64]bool
	blockedErr map[int64]error
	probes     int
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		status:     map[int64]domain.MembershipStatus{},
		statusErr:  map[int64]error{},
		blocked:    map[int64]bool{},
		blockedErr: map[int64]error{},
	}
}

func (p *fakeProber) Status(_ context.Context, id int64) (domain.MembershipStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	if err := p.statusErr[id]; err != nil {
		return domain.MembershipUnknown, err
	}
	return p.status[id], nil
}

func (p *fakeProber) Blocked(_ context.Context, id int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	if err := p.blockedErr[id]; err != nil {
		return false, err
	}
	return p.blocked[id], nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []int64
	err  error
}

func (n *fakeNotifier) NotifyUnsubscribed(_ context.Context, id int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, id)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func setup(t *testing.T) (*users.Store, *fakeProber, *fakeNotifier, *Monitor) {
	t.Helper()
	store := users.New(nil, users.Options{})
	prober := newFakeProber()
	notifier := &fakeNotifier{}
	m := New(Options{
		Users:           store,
		Prober:          prober,
		Notifier:        notifier,
		Metrics:         metrics.New(prometheus.NewRegistry()),
		ProbesPerSecond: 10_000,
	})
	return store, prober, notifier, m
}

func TestRunOnceNotifiesOnLeave(t *testing.T) {
	ctx := context.Background()
	store, prober, notifier, m := setup(t)

	require.NoError(t, store.UpdateSubscriptionStatus(ctx, 42, true))
	prober.status[42] = domain.MembershipLeft

	rep := m.RunOnce(ctx)
	assert.Equal(t, 1, rep.Checked)
	assert.Equal(t, 1, rep.Unsubscribed)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, []int64{42}, notifier.sent)

	u, ok := store.Get(42)
	require.True(t, ok)
	assert.False(t, u.IsSubscribed)

	// Steady state: no further notices or transitions.
	rep = m.RunOnce(ctx)
	assert.Equal(t, 0, rep.Unsubscribed)
	assert.Equal(t, 1, notifier.count())
}

func TestRunOnceMarksSubscribedSilently(t *testing.T) {
	ctx := context.Background()
	store, prober, notifier, m := setup(t)

	require.NoError(t, store.UpdateSubscriptionStatus(ctx, 7, false))
	prober.status[7] = domain.MembershipAdmin

	rep := m.RunOnce(ctx)
	assert.Equal(t, 1, rep.Subscribed)
	assert.Zero(t, notifier.count())

	u, _ := store.Get(7)
	assert.True(t, u.IsSubscribed)
}

func TestRunOnceRemovesBlockedUsers(t *testing.T) {
	ctx := context.Background()
	store, prober, notifier, m := setup(t)

	require.NoError(t, store.UpdateSubscriptionStatus(ctx, 1, true))
	require.NoError(t, store.UpdateSubscriptionStatus(ctx, 2, true))
	prober.blocked[1] = true
	prober.status[2] = domain.MembershipMember

	rep := m.RunOnce(ctx)
	assert.Equal(t, 2, rep.Checked)
	assert.Equal(t, 1, rep.Removed)
	assert.Zero(t, notifier.count())

	_, ok := store.Get(1)
	assert.False(t, ok)
	_, ok = store.Get(2)
	assert.True(t, ok)
}

func TestRunOnceSkipsUsersCutShortByCancel(t *testing.T) {
	store := users.New(nil, users.Options{})
	prober := newFakeProber()
	m := New(Options{
		Users:           store,
		Prober:          prober,
		Metrics:         metrics.New(prometheus.NewRegistry()),
		ProbesPerSecond: 0.01,
	})
	require.NoError(t, store.UpdateSubscriptionStatus(context.Background(), 5, true))
	prober.status[5] = domain.MembershipMember

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// The blocked probe takes the only token; the status probe never runs.
	rep := m.RunOnce(ctx)
	assert.Zero(t, rep.Checked)
	assert.Equal(t, 1, prober.probes)
}

func TestRunOnceFailsClosedOnProbeError(t *testing.T) {
	ctx := context.Background()
	store, prober, notifier, m := setup(t)

	require.NoError(t, store.UpdateSubscriptionStatus(ctx, 5, true))
	prober.statusErr[5] = errors.New("telegram: internal error")

	rep := m.RunOnce(ctx)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 1, rep.Unsubscribed)
	assert.Equal(t, 1, notifier.count())

	u, _ := store.Get(5)
	assert.False(t, u.IsSubscribed)
}

func TestRunOnceBlockedProbeErrorMeansReachable(t *testing.T) {
	ctx := context.Background()
	store, prober, _, m := setup(t)

	require.NoError(t, store.UpdateSubscriptionStatus(ctx, 9, true))
	prober.blockedErr[9] = errors.New("timeout")
	prober.status[9] = domain.MembershipMember

	rep := m.RunOnce(ctx)
	assert.Equal(t, 1, rep.Errors)
	assert.Zero(t, rep.Removed)
	_, ok := store.Get(9)
	assert.True(t, ok)
}

func TestRunOnceNotifyErrorStillUpdates(t *testing.T) {
	ctx := context.Background()
	store, prober, notifier, m := setup(t)
	notifier.err = errors.New("queue full")

	require.NoError(t, store.UpdateSubscriptionStatus(ctx, 3, true))
	prober.status[3] = domain.MembershipKicked

	rep := m.RunOnce(ctx)
	assert.Equal(t, 1, rep.Errors)
	u, _ := store.Get(3)
	assert.False(t, u.IsSubscribed)
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	store := users.New(nil, users.Options{})
	require.NoError(t, store.UpdateSubscriptionStatus(ctx, 1, true))

	prober := newFakeProber()
	prober.status[1] = domain.MembershipMember
	m := New(Options{
		Users:           store,
		Prober:          prober,
		Interval:        5 * time.Millisecond,
		ProbesPerSecond: 10_000,
	})

	m.Start(ctx)
	m.Start(ctx)
	assert.Eventually(t, func() bool {
		prober.mu.Lock()
		defer prober.mu.Unlock()
		return prober.probes >= 4
	}, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()

	prober.mu.Lock()
	after := prober.probes
	prober.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	prober.mu.Lock()
	defer prober.mu.Unlock()
	assert.Equal(t, after, prober.probes, "no ticks after Stop")
}
