package relay

import (
	"sync"
	"testing"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/dkeye/LiveCall/internal/metrics"
	"github.com/dkeye/LiveCall/internal/signal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	err    error
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// last returns the newest frame carrying ev.
func (c *fakeConn) last(ev signal.Event) (gjson.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if r := gjson.ParseBytes(c.frames[i]); r.Get("event").String() == string(ev) {
			return r, true
		}
	}
	return gjson.Result{}, false
}

func (c *fakeConn) count(ev signal.Event) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if gjson.GetBytes(f, "event").String() == string(ev) {
			n++
		}
	}
	return n
}

func frame(t *testing.T, msg signal.Message) core.Frame {
	t.Helper()
	b, err := signal.Encode(msg)
	require.NoError(t, err)
	return b
}

func setup(t *testing.T) (*Orchestrator, *fakeConn, *fakeConn) {
	t.Helper()
	o := NewOrchestrator(NewRegistry(), SimplePolicy{}, metrics.NewRelay(prometheus.NewRegistry()))
	a, b := &fakeConn{}, &fakeConn{}
	o.Connect("ch-a", a, func() {})
	o.Connect("ch-b", b, func() {})
	o.OnFrame("ch-a", frame(t, signal.UserOnline{UserID: "u-a", Name: "alice"}))
	o.OnFrame("ch-b", frame(t, signal.UserOnline{UserID: "u-b", Name: "bob"}))
	return o, a, b
}

func TestConnectSendsChannelID(t *testing.T) {
	o := NewOrchestrator(nil, nil, nil)
	c := &fakeConn{}
	o.Connect("ch-1", c, func() {})

	r, ok := c.last(signal.EventConnected)
	require.True(t, ok)
	assert.Equal(t, "ch-1", r.Get("data.channelId").String())
	_, ok = c.last(signal.EventOnlineUsers)
	assert.True(t, ok)
}

func TestAnnounceBroadcastsRoster(t *testing.T) {
	o, a, _ := setup(t)

	r, ok := a.last(signal.EventOnlineUsers)
	require.True(t, ok)
	users := r.Get("data").Array()
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Get("name").String())
	assert.Equal(t, "ch-a", users[0].Get("channelId").String())
	assert.Equal(t, "ch-b", users[1].Get("channelId").String())
	assert.Equal(t, 2.0, testutil.ToFloat64(o.Metrics.Online))
}

func TestAnnounceRejectsInvalidUser(t *testing.T) {
	o, a, _ := setup(t)
	o.OnFrame("ch-a", frame(t, signal.UserOnline{UserID: "u-a"}))
	r, ok := a.last(signal.EventError)
	require.True(t, ok)
	assert.Equal(t, domain.ErrUsernameEmpty.Error(), r.Get("data.error").String())
}

func TestRouteStampsSenderAndCaller(t *testing.T) {
	o, _, b := setup(t)

	o.OnFrame("ch-a", frame(t, signal.CallRequest{To: "ch-b"}))

	r, ok := b.last(signal.EventCallRequest)
	require.True(t, ok)
	assert.Equal(t, "ch-a", r.Get("from").String())
	assert.False(t, r.Get("data.to").Exists())
	assert.Equal(t, "u-a", r.Get("data.caller.userId").String())
	assert.Equal(t, "ch-a", r.Get("data.caller.channelId").String())

	in, err := signal.Decode([]byte(r.Raw))
	require.NoError(t, err)
	req := in.Msg.(signal.CallRequest)
	require.NotNil(t, req.Caller)
	assert.Equal(t, "alice", req.Caller.Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(o.Metrics.Routed.WithLabelValues("call-request")))
}

func TestRouteWithoutCaller(t *testing.T) {
	o, a, _ := setup(t)
	o.OnFrame("ch-b", frame(t, signal.CallEnded{To: "ch-a"}))

	r, ok := a.last(signal.EventCallEnded)
	require.True(t, ok)
	assert.Equal(t, "ch-b", r.Get("from").String())
	assert.False(t, r.Get("data.caller").Exists())
}

func TestRouteToOfflineChannel(t *testing.T) {
	o, a, _ := setup(t)
	o.OnFrame("ch-a", frame(t, signal.CallRequest{To: "ch-gone"}))

	r, ok := a.last(signal.EventError)
	require.True(t, ok)
	assert.Equal(t, "recipient offline", r.Get("data.error").String())
	assert.Equal(t, 1.0, testutil.ToFloat64(o.Metrics.Dropped.WithLabelValues("no_recipient")))
}

func TestCallerMustAnnounce(t *testing.T) {
	o, _, b := setup(t)
	anon := &fakeConn{}
	o.Connect("ch-x", anon, func() {})

	o.OnFrame("ch-x", frame(t, signal.CallRequest{To: "ch-b"}))
	assert.Equal(t, 0, b.count(signal.EventCallRequest))
	_, ok := anon.last(signal.EventError)
	assert.True(t, ok)
}

func TestUnknownEvent(t *testing.T) {
	o, a, _ := setup(t)
	o.OnFrame("ch-a", core.Frame(`{"event":"dance"}`))
	_, ok := a.last(signal.EventError)
	assert.True(t, ok)
}

func TestDisconnectUpdatesRoster(t *testing.T) {
	o, a, _ := setup(t)
	o.Disconnect("ch-b")

	r, ok := a.last(signal.EventOnlineUsers)
	require.True(t, ok)
	assert.Len(t, r.Get("data").Array(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(o.Metrics.Channels))

	// twice is harmless
	before := a.count(signal.EventOnlineUsers)
	o.Disconnect("ch-b")
	assert.Equal(t, before, a.count(signal.EventOnlineUsers))
}

func TestReannounceSupersedesOldChannel(t *testing.T) {
	o, a, _ := setup(t)
	b2 := &fakeConn{}
	o.Connect("ch-b2", b2, func() {})
	o.OnFrame("ch-b2", frame(t, signal.UserOnline{UserID: "u-b", Name: "bob"}))

	r, ok := a.last(signal.EventOnlineUsers)
	require.True(t, ok)
	users := r.Get("data").Array()
	require.Len(t, users, 2)
	assert.Equal(t, "ch-b2", users[1].Get("channelId").String())
}

func TestBackpressureKicksSlowChannel(t *testing.T) {
	o, _, b := setup(t)
	canceled := false
	slow := &fakeConn{}
	o.Connect("ch-s", slow, func() { canceled = true })
	o.OnFrame("ch-s", frame(t, signal.UserOnline{UserID: "u-s", Name: "slow"}))
	slow.mu.Lock()
	slow.err = core.ErrBackpressure
	slow.mu.Unlock()

	o.OnFrame("ch-a", frame(t, signal.CallRequest{To: "ch-s"}))

	assert.True(t, canceled)
	assert.True(t, slow.closed)
	_, ok := o.Registry.Conn("ch-s")
	assert.False(t, ok)
	r, ok := b.last(signal.EventOnlineUsers)
	require.True(t, ok)
	assert.Len(t, r.Get("data").Array(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(o.Metrics.Kicked))
}
