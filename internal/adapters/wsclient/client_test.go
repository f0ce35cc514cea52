package wsclient_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	router "github.com/dkeye/LiveCall/internal/adapters/http"
	"github.com/dkeye/LiveCall/internal/adapters/wsclient"
	"github.com/dkeye/LiveCall/internal/app/relay"
	"github.com/dkeye/LiveCall/internal/config"
	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/dkeye/LiveCall/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	inbound  []signal.Inbound
	lostWith []error
}

func (r *recorder) OnMessage(in signal.Inbound) {
	r.mu.Lock()
	r.inbound = append(r.inbound, in)
	r.mu.Unlock()
}

func (r *recorder) OnDisconnected(err error) {
	r.mu.Lock()
	r.lostWith = append(r.lostWith, err)
	r.mu.Unlock()
}

func (r *recorder) channels() []domain.ChannelID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ChannelID
	for _, in := range r.inbound {
		if c, ok := in.Msg.(signal.Connected); ok {
			out = append(out, c.ChannelID)
		}
	}
	return out
}

func (r *recorder) losses() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.lostWith...)
}

func startRelay(t *testing.T) (string, *relay.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	orch := relay.NewOrchestrator(nil, relay.SimplePolicy{}, nil)
	cfg := &config.Config{Mode: "release", Secret: "test", PingPeriod: time.Second}
	srv := httptest.NewServer(router.SetupRouter(ctx, cfg, orch, nil))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal", orch
}

func TestSendWithoutConnection(t *testing.T) {
	c := wsclient.New("ws://127.0.0.1:1/none", time.Millisecond)
	err := c.Send(signal.CallEnded{To: "x"})
	assert.ErrorIs(t, err, core.ErrTransportDisconnected)
}

func TestAnnounceAndReconnect(t *testing.T) {
	url, orch := startRelay(t)
	c := wsclient.New(url, 20*time.Millisecond)
	h := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, h) }()

	require.Eventually(t, func() bool { return len(h.channels()) == 1 }, 3*time.Second, 10*time.Millisecond)
	first := h.channels()[0]

	require.Eventually(t, func() bool {
		return c.Send(signal.UserOnline{UserID: "u-alice", Name: "Alice"}) == nil
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(orch.Registry.Online()) == 1 }, 3*time.Second, 10*time.Millisecond)

	orch.Kick(first)

	require.Eventually(t, func() bool { return len(h.channels()) == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, first, h.channels()[1], "channel ids are re-issued on reconnect")
	require.NotEmpty(t, h.losses())
	assert.True(t, errors.Is(h.losses()[0], core.ErrTransportDisconnected))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
