// Package negotiation drives one peer connection through offer/answer and
// buffers remote ICE candidates until a remote description exists.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type State int

const (
	Unattached State = iota
	Attached
	Closed
)

func (s State) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Attached:
		return "attached"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Hooks are fixed for the lifetime of an Engine. They run on engine
// goroutines and must not block.
type Hooks struct {
	OnLocalCandidate func(webrtc.ICECandidateInit)
	OnRemoteTrack    func(core.RemoteTrack)
	OnFailed         func()
}

// Engine owns exactly one peer connection and one local stream. It is never
// reused: a new call gets a new Engine.
type Engine struct {
	media  core.MediaEngine
	hooks  Hooks
	log    zerolog.Logger
	closed atomic.Bool

	mu        sync.Mutex
	state     State
	pc        core.PeerConnection
	stream    core.LocalStream
	hasLocal  bool
	hasRemote bool
	pending   []webrtc.ICECandidateInit
}

func New(media core.MediaEngine, hooks Hooks) *Engine {
	return &Engine{
		media: media,
		hooks: hooks,
		log:   log.With().Str("module", "app.negotiation").Logger(),
	}
}

// Attach creates the peer connection and adds every track of stream. When
// stream is nil local audio is acquired from the media engine first.
func (e *Engine) Attach(ctx context.Context, stream core.LocalStream) error {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	switch st {
	case Closed:
		return core.ErrEngineClosed
	case Attached:
		return fmt.Errorf("attach twice: %w", core.ErrInvalidState)
	}

	if stream == nil {
		s, err := e.media.AcquireLocalAudio(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrMediaUnavailable, err)
		}
		if s == nil {
			return core.ErrMediaUnavailable
		}
		stream = s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Unattached {
		// closed while the device was being opened
		_ = stream.Close()
		return core.ErrEngineClosed
	}

	pc, err := e.media.NewPeerConnection()
	if err != nil {
		_ = stream.Close()
		return fmt.Errorf("%w: new peer connection: %w", core.ErrNegotiationFailure, err)
	}
	for _, tr := range stream.AudioTracks() {
		if err := pc.AddTrack(tr.Local()); err != nil {
			_ = pc.Close()
			_ = stream.Close()
			return fmt.Errorf("%w: add track %s: %w", core.ErrNegotiationFailure, tr.ID(), err)
		}
	}
	pc.OnICECandidate(e.localCandidate)
	pc.OnTrack(e.remoteTrack)
	pc.OnFailed(e.failed)

	e.pc = pc
	e.stream = stream
	e.state = Attached
	e.log.Info().Int("tracks", len(stream.AudioTracks())).Int("pending", len(e.pending)).Msg("attached")
	return nil
}

func (e *Engine) localCandidate(c webrtc.ICECandidateInit) {
	if e.closed.Load() || e.hooks.OnLocalCandidate == nil {
		return
	}
	e.hooks.OnLocalCandidate(c)
}

func (e *Engine) remoteTrack(t core.RemoteTrack) {
	e.log.Info().Str("track_id", t.ID()).Str("kind", t.Kind().String()).Msg("remote track")
	if e.closed.Load() || e.hooks.OnRemoteTrack == nil {
		return
	}
	e.hooks.OnRemoteTrack(t)
}

func (e *Engine) failed() {
	if e.closed.Load() || e.hooks.OnFailed == nil {
		return
	}
	e.hooks.OnFailed()
}

// CreateOffer creates the local offer and applies it.
func (e *Engine) CreateOffer() (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAttached(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if e.hasLocal {
		return webrtc.SessionDescription{}, fmt.Errorf("offer after local description: %w", core.ErrInvalidState)
	}
	offer, err := e.pc.CreateOffer()
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create offer: %w", core.ErrNegotiationFailure, err)
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set local offer: %w", core.ErrNegotiationFailure, err)
	}
	e.hasLocal = true
	return offer, nil
}

// ApplyRemoteOffer applies offer, flushes queued candidates and returns the
// local answer.
func (e *Engine) ApplyRemoteOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.setRemote(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := e.pc.CreateAnswer()
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create answer: %w", core.ErrNegotiationFailure, err)
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set local answer: %w", core.ErrNegotiationFailure, err)
	}
	e.hasLocal = true
	return answer, nil
}

// ApplyRemoteAnswer applies the answer to an offer created here.
func (e *Engine) ApplyRemoteAnswer(answer webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Attached && !e.hasLocal {
		return fmt.Errorf("answer without offer: %w", core.ErrInvalidState)
	}
	return e.setRemote(answer)
}

// setRemote must be called with e.mu held.
func (e *Engine) setRemote(desc webrtc.SessionDescription) error {
	if err := e.requireAttached(); err != nil {
		return err
	}
	if e.hasRemote {
		return fmt.Errorf("second remote description: %w", core.ErrInvalidState)
	}
	if err := e.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: set remote %s: %w", core.ErrNegotiationFailure, desc.Type, err)
	}
	e.hasRemote = true

	pending := e.pending
	e.pending = nil
	for i, c := range pending {
		if err := e.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("%w: flush candidate %d/%d: %w", core.ErrNegotiationFailure, i+1, len(pending), err)
		}
	}
	if len(pending) > 0 {
		e.log.Debug().Int("candidates", len(pending)).Msg("flushed pending candidates")
	}
	return nil
}

// EnqueueOrApplyCandidate applies c when a remote description is set and
// queues it otherwise. Candidates for a closed engine are dropped.
func (e *Engine) EnqueueOrApplyCandidate(c webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.state == Closed:
		return core.ErrEngineClosed
	case e.state == Unattached || !e.hasRemote:
		e.pending = append(e.pending, c)
		return nil
	}
	if err := e.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("%w: add candidate: %w", core.ErrNegotiationFailure, err)
	}
	return nil
}

func (e *Engine) requireAttached() error {
	switch e.state {
	case Closed:
		return core.ErrEngineClosed
	case Unattached:
		return fmt.Errorf("not attached: %w", core.ErrInvalidState)
	}
	return nil
}

// Stream is the attached local stream, nil before Attach and after Close.
func (e *Engine) Stream() core.LocalStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pending is the number of buffered remote candidates.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close releases the peer connection and local media. Safe from any state
// and safe to call more than once.
func (e *Engine) Close() error {
	e.closed.Store(true)
	e.mu.Lock()
	if e.state == Closed {
		e.mu.Unlock()
		return nil
	}
	e.state = Closed
	pc, stream := e.pc, e.stream
	e.pc, e.stream, e.pending = nil, nil, nil
	e.mu.Unlock()

	var errs []error
	if pc != nil {
		if err := pc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close peer: %w", err))
		}
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream: %w", err))
		}
	}
	e.log.Info().Msg("closed")
	return errors.Join(errs...)
}
