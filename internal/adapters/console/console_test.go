package console

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/LiveCall/internal/app/call"
	"github.com/dkeye/LiveCall/internal/app/recording"
	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePhone struct {
	invited    domain.UserID
	autoRecord bool
	calls      []string
	muted      bool
	snap       domain.CallSession
	err        error
}

func (p *fakePhone) Invite(_ context.Context, id domain.UserID, autoRecord bool) error {
	p.invited, p.autoRecord = id, autoRecord
	p.calls = append(p.calls, "invite")
	return p.err
}

func (p *fakePhone) Accept(_ context.Context, autoRecord bool) error {
	p.autoRecord = autoRecord
	p.calls = append(p.calls, "accept")
	return p.err
}

func (p *fakePhone) Reject(context.Context) error {
	p.calls = append(p.calls, "reject")
	return p.err
}

func (p *fakePhone) End(context.Context) error {
	p.calls = append(p.calls, "end")
	return p.err
}

func (p *fakePhone) ToggleMute(context.Context) (bool, error) {
	p.muted = !p.muted
	return p.muted, p.err
}

func (p *fakePhone) StartRecording(context.Context) error {
	p.calls = append(p.calls, "rec start")
	return p.err
}

func (p *fakePhone) StopRecording(context.Context) error {
	p.calls = append(p.calls, "rec stop")
	return p.err
}

func (p *fakePhone) Snapshot() domain.CallSession { return p.snap }

type fakeRoster []domain.User

func (fakeRoster) Self() domain.User         { return domain.User{UserID: "u-alice", Name: "Alice"} }
func (r fakeRoster) Snapshot() []domain.User { return r }

var roster = fakeRoster{
	{UserID: "u-bob", Name: "Bob", ChannelID: "ch-b"},
	{UserID: "u-carol", Name: "Carol", ChannelID: "ch-c"},
}

func newConsole(t *testing.T) (*Console, *fakePhone, *bytes.Buffer) {
	t.Helper()
	p := &fakePhone{}
	out := &bytes.Buffer{}
	return New(p, roster, strings.NewReader(""), out, t.TempDir()), p, out
}

func TestCallByNumberNameAndID(t *testing.T) {
	cases := []struct {
		line string
		want domain.UserID
		rec  bool
	}{
		{"call 1", "u-bob", false},
		{"call carol +rec", "u-carol", true},
		{"call u-bob", "u-bob", false},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			c, p, _ := newConsole(t)
			require.NoError(t, c.Exec(context.Background(), tc.line))
			assert.Equal(t, tc.want, p.invited)
			assert.Equal(t, tc.rec, p.autoRecord)
		})
	}
}

func TestCallUnknownUser(t *testing.T) {
	c, p, _ := newConsole(t)
	assert.Error(t, c.Exec(context.Background(), "call dave"))
	assert.Error(t, c.Exec(context.Background(), "call 3"))
	assert.Empty(t, p.calls)
}

func TestCommandsForwardErrors(t *testing.T) {
	c, p, _ := newConsole(t)
	p.err = core.ErrNotIdle
	assert.ErrorIs(t, c.Exec(context.Background(), "accept"), core.ErrNotIdle)
	assert.ErrorIs(t, c.Exec(context.Background(), "rec start"), core.ErrNotIdle)
	assert.Equal(t, []string{"accept", "rec start"}, p.calls)
}

func TestSimpleCommands(t *testing.T) {
	c, p, out := newConsole(t)
	ctx := context.Background()
	for _, line := range []string{"accept +rec", "reject", "end", "rec stop", "mute", "mute", ""} {
		require.NoError(t, c.Exec(ctx, line), line)
	}
	assert.Equal(t, []string{"accept", "reject", "end", "rec stop"}, p.calls)
	assert.True(t, p.autoRecord)
	assert.Contains(t, out.String(), "microphone muted")
	assert.Contains(t, out.String(), "microphone live")

	assert.ErrorIs(t, c.Exec(ctx, "quit"), ErrQuit)
	assert.Error(t, c.Exec(ctx, "dance"))
	assert.Error(t, c.Exec(ctx, "rec"))
}

func TestStatusAndUsers(t *testing.T) {
	c, p, out := newConsole(t)
	require.NoError(t, c.Exec(context.Background(), "status"))
	assert.Contains(t, out.String(), "idle")

	started := time.Now()
	p.snap = domain.CallSession{
		Partner: roster[0], Direction: domain.Outbound, State: domain.CallActive,
		StartedAt: &started, ElapsedSeconds: 65, Muted: true,
	}
	require.NoError(t, c.Exec(context.Background(), "status"))
	assert.Contains(t, out.String(), "outbound call with Bob: active 1:05 [muted]")

	require.NoError(t, c.Exec(context.Background(), "users"))
	assert.Contains(t, out.String(), " 1. Bob (u-bob)")
	assert.Contains(t, out.String(), " 2. Carol (u-carol)")
}

func TestRecordingNoticeSavesArtifact(t *testing.T) {
	c, _, out := newConsole(t)
	c.show(call.Notice{
		Kind: call.NoticeRecordingReady,
		Artifact: &recording.Artifact{
			Name:     "call-recording-2024-05-01T10-00-00Z.webm",
			MimeType: recording.MimeType,
			Data:     []byte("webm-bytes"),
		},
	})

	data, err := os.ReadFile(filepath.Join(c.dir, "call-recording-2024-05-01T10-00-00Z.webm"))
	require.NoError(t, err)
	assert.Equal(t, "webm-bytes", string(data))
	assert.Contains(t, out.String(), "recording saved")
}

func TestRunPrintsNotices(t *testing.T) {
	p := &fakePhone{}
	out := &syncBuffer{}
	in, w := io.Pipe()
	defer w.Close()
	c := New(p, roster, in, out, t.TempDir())
	c.Notify(call.Notice{Kind: call.NoticeIncomingCall, Partner: roster[1]})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "incoming call from Carol")
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
