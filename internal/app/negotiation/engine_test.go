package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/core/coretest"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(i int) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d 1 udp 1 10.0.0.%d 5000 typ host", i, i)}
}

var remoteOffer = webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}

func attached(t *testing.T, hooks Hooks) (*Engine, *coretest.Media) {
	t.Helper()
	media := &coretest.Media{}
	e := New(media, hooks)
	require.NoError(t, e.Attach(context.Background(), nil))
	return e, media
}

func TestCandidatesFlushInArrivalOrder(t *testing.T) {
	media := &coretest.Media{}
	e := New(media, Hooks{})

	// queued before the engine is even attached
	require.NoError(t, e.EnqueueOrApplyCandidate(cand(1)))
	require.NoError(t, e.Attach(context.Background(), nil))
	require.NoError(t, e.EnqueueOrApplyCandidate(cand(2)))
	require.NoError(t, e.EnqueueOrApplyCandidate(cand(3)))
	assert.Equal(t, 3, e.Pending())

	peer := media.LastPeer()
	assert.Empty(t, peer.Applied())

	answer, err := e.ApplyRemoteOffer(remoteOffer)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Equal(t, []webrtc.ICECandidateInit{cand(1), cand(2), cand(3)}, peer.Applied())
	assert.Equal(t, 0, e.Pending())

	// applied immediately once a remote description exists
	require.NoError(t, e.EnqueueOrApplyCandidate(cand(4)))
	assert.Len(t, peer.Applied(), 4)
}

func TestOfferAnswerFlow(t *testing.T) {
	e, media := attached(t, Hooks{})
	peer := media.LastPeer()
	assert.Equal(t, 1, peer.Tracks())

	require.NoError(t, e.EnqueueOrApplyCandidate(cand(7)))
	offer, err := e.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	require.NotNil(t, peer.Local())

	_, err = e.CreateOffer()
	assert.ErrorIs(t, err, core.ErrInvalidState)

	require.NoError(t, e.ApplyRemoteAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a"}))
	assert.Equal(t, []webrtc.ICECandidateInit{cand(7)}, peer.Applied())

	err = e.ApplyRemoteAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "b"})
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestRemoteOfferOnlyOnce(t *testing.T) {
	e, _ := attached(t, Hooks{})
	_, err := e.ApplyRemoteOffer(remoteOffer)
	require.NoError(t, err)
	_, err = e.ApplyRemoteOffer(remoteOffer)
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestAnswerWithoutOffer(t *testing.T) {
	e, _ := attached(t, Hooks{})
	err := e.ApplyRemoteAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer})
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestOperationsBeforeAttach(t *testing.T) {
	e := New(&coretest.Media{}, Hooks{})
	_, err := e.CreateOffer()
	assert.ErrorIs(t, err, core.ErrInvalidState)
	_, err = e.ApplyRemoteOffer(remoteOffer)
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestMediaUnavailable(t *testing.T) {
	media := &coretest.Media{AcquireErr: errors.New("permission denied")}
	e := New(media, Hooks{})
	err := e.Attach(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrMediaUnavailable)
	assert.Equal(t, Unattached, e.State())
	assert.Empty(t, media.Peers())
}

func TestRemoteDescriptionRejected(t *testing.T) {
	media := &coretest.Media{Prepare: func(p *coretest.Peer) { p.RemoteErr = errors.New("bad sdp") }}
	e := New(media, Hooks{})
	require.NoError(t, e.Attach(context.Background(), nil))
	require.NoError(t, e.EnqueueOrApplyCandidate(cand(1)))

	_, err := e.ApplyRemoteOffer(remoteOffer)
	assert.ErrorIs(t, err, core.ErrNegotiationFailure)
	assert.Empty(t, media.LastPeer().Applied())
}

func TestCandidateRejected(t *testing.T) {
	media := &coretest.Media{Prepare: func(p *coretest.Peer) { p.CandidateErr = errors.New("bad candidate") }}
	e := New(media, Hooks{})
	require.NoError(t, e.Attach(context.Background(), nil))
	_, err := e.ApplyRemoteOffer(remoteOffer)
	require.NoError(t, err)
	assert.ErrorIs(t, e.EnqueueOrApplyCandidate(cand(1)), core.ErrNegotiationFailure)
}

func TestCloseIsIdempotentFromAnyState(t *testing.T) {
	unattached := New(&coretest.Media{}, Hooks{})
	require.NoError(t, unattached.Close())
	require.NoError(t, unattached.Close())
	assert.Equal(t, Closed, unattached.State())
	assert.ErrorIs(t, unattached.Attach(context.Background(), nil), core.ErrEngineClosed)

	e, media := attached(t, Hooks{})
	stream := media.LastStream()
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.True(t, media.LastPeer().Closed())
	assert.True(t, stream.Closed())
	assert.Nil(t, e.Stream())
	assert.ErrorIs(t, e.EnqueueOrApplyCandidate(cand(1)), core.ErrEngineClosed)
}

func TestCloseWhileAcquiring(t *testing.T) {
	media := &coretest.Media{Gate: make(chan struct{})}
	e := New(media, Hooks{})

	done := make(chan error, 1)
	go func() { done <- e.Attach(context.Background(), nil) }()

	require.NoError(t, e.Close())
	close(media.Gate)

	assert.ErrorIs(t, <-done, core.ErrEngineClosed)
	for _, s := range media.Streams() {
		assert.True(t, s.Closed())
	}
	assert.Empty(t, media.Peers())
}

func TestHooks(t *testing.T) {
	var mu sync.Mutex
	var local []webrtc.ICECandidateInit
	var tracks, failures int
	e, media := attached(t, Hooks{
		OnLocalCandidate: func(c webrtc.ICECandidateInit) {
			mu.Lock()
			local = append(local, c)
			mu.Unlock()
		},
		OnRemoteTrack: func(core.RemoteTrack) { tracks++ },
		OnFailed:      func() { failures++ },
	})
	peer := media.LastPeer()

	peer.GatherCandidate(cand(1))
	peer.DeliverTrack(coretest.RemoteTrack{Name: "remote"})
	peer.Fail()
	assert.Len(t, local, 1)
	assert.Equal(t, 1, tracks)
	assert.Equal(t, 1, failures)

	require.NoError(t, e.Close())
	peer.GatherCandidate(cand(2))
	peer.DeliverTrack(coretest.RemoteTrack{Name: "late"})
	assert.Len(t, local, 1)
	assert.Equal(t, 1, tracks)
}
