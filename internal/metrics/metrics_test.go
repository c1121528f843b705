package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveUpdate(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveUpdate("/start", nil, 10*time.Millisecond)
	c.ObserveUpdate("/start", errors.New("boom"), time.Millisecond)
	c.ObserveUpdate("", nil, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.updates.WithLabelValues("/start", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.updates.WithLabelValues("/start", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.updates.WithLabelValues("unknown", "ok")))
}

func TestReferralCounters(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.CodeCreated()
	c.ReferralProcessed(true)
	c.ReferralProcessed(false)
	c.ReferralProcessed(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.codesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.referrals.WithLabelValues("credited")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.referrals.WithLabelValues("rejected")))
}

func TestTickCompleted(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.TickCompleted(TickReport{Checked: 5, Removed: 1, Unsubscribed: 2, Subscribed: 1, Errors: 1, Duration: time.Second})
	c.TickCompleted(TickReport{Checked: 3})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ticks))
	assert.Equal(t, 8.0, testutil.ToFloat64(c.checked))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.removed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probeErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("unsubscribed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("subscribed")))
}

func TestGaugesAndSnapshot(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.SetUsers(10, 7)
	c.SnapshotWritten(nil, time.Millisecond)
	c.SnapshotWritten(errors.New("disk"), time.Millisecond)
	c.NotificationQueued(nil)
	c.MessageSent("notify.unsubscribed", nil)
	c.MessageSent("notify.unsubscribed", errors.New("blocked"))

	assert.Equal(t, 10.0, testutil.ToFloat64(c.users))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.subscribed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshotWrites.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshotWrites.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.notifications.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sent.WithLabelValues("notify.unsubscribed", "error")))
}

func TestNilCollectorsAreNoop(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.ObserveUpdate("x", nil, 0)
		c.CodeCreated()
		c.ReferralProcessed(true)
		c.NotificationQueued(nil)
		c.MessageSent("send.html", nil)
		c.SnapshotWritten(nil, 0)
		c.TickCompleted(TickReport{})
		c.SetUsers(1, 1)
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.SetUsers(3, 2)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "gatebot_subscribed_users 2"))

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestListenAndShutdown(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := Listen("127.0.0.1:0", reg)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
