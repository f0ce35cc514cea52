package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/LiveCall/internal/app/calltimer"
	"github.com/dkeye/LiveCall/internal/app/mute"
	"github.com/dkeye/LiveCall/internal/app/negotiation"
	"github.com/dkeye/LiveCall/internal/app/recording"
	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/dkeye/LiveCall/internal/signal"
	"github.com/pion/webrtc/v4"
)

type session struct {
	gen       uint64
	partner   domain.User
	dir       domain.Direction
	state     domain.CallState
	startedAt *time.Time

	wantRecord   bool
	attached     bool
	offered      bool
	pendingOffer *webrtc.SessionDescription

	// ctx lives as long as the session; it bounds media acquisition,
	// the tick loop and remote playback.
	ctx    context.Context
	cancel context.CancelFunc
	ring   *time.Timer

	engine   *negotiation.Engine
	timer    *calltimer.Timer
	recorder *recording.Controller
	mute     *mute.Controller
}

func (m *Machine) newSession(partner domain.User, dir domain.Direction, state domain.CallState) *session {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		gen:      gen,
		partner:  partner,
		dir:      dir,
		state:    state,
		ctx:      ctx,
		cancel:   cancel,
		timer:    calltimer.New(),
		recorder: recording.New(m.muxer),
		mute:     mute.New(),
	}
	s.engine = negotiation.New(m.media, negotiation.Hooks{
		OnLocalCandidate: func(c webrtc.ICECandidateInit) { m.post(localCandidateEvent{gen: gen, candidate: c}) },
		OnRemoteTrack:    func(t core.RemoteTrack) { m.post(remoteTrackEvent{gen: gen, track: t}) },
		OnFailed:         func() { m.post(peerFailedEvent{gen: gen}) },
	})
	if m.cfg.RingTimeout > 0 {
		s.ring = time.AfterFunc(m.cfg.RingTimeout, func() { m.post(ringTimeoutEvent{gen: gen}) })
	}
	m.sess = s
	m.log.Info().
		Uint64("gen", gen).
		Str("partner", string(partner.UserID)).
		Str("channel", string(partner.ChannelID)).
		Str("direction", dir.String()).
		Str("state", state.String()).
		Msg("session created")
	return s
}

// current returns the live session if it still has generation gen.
func (m *Machine) current(gen uint64) *session {
	if m.sess != nil && m.sess.gen == gen {
		return m.sess
	}
	return nil
}

// activate moves a ringing session to Active and starts its timer.
func (m *Machine) activate(s *session) {
	if s.ring != nil {
		s.ring.Stop()
	}
	now := m.now()
	s.startedAt = &now
	s.state = domain.CallActive
	s.timer.Start()
	m.startTicks(s)
	m.log.Info().Uint64("gen", s.gen).Str("partner", string(s.partner.UserID)).Msg("call active")
	m.notice(Notice{Kind: NoticeActive, Partner: s.partner})
}

func (m *Machine) startTicks(s *session) {
	if m.cfg.TickInterval <= 0 {
		return
	}
	gen, ctx, every := s.gen, s.ctx, m.cfg.TickInterval
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.post(tickEvent{gen: gen})
			}
		}
	}()
}

// attach acquires local audio and attaches the engine off the machine
// goroutine. The outbound side also creates its offer there.
func (m *Machine) attach(s *session, withOffer bool) {
	gen, ctx, engine := s.gen, s.ctx, s.engine
	go func() {
		ev := attachedEvent{gen: gen}
		ev.err = engine.Attach(ctx, nil)
		if ev.err == nil && withOffer {
			offer, err := engine.CreateOffer()
			ev.offer, ev.err = &offer, err
		}
		m.post(ev)
	}()
}

// answer applies a remote offer off the machine goroutine.
func (m *Machine) answer(s *session, offer webrtc.SessionDescription) {
	s.offered = true
	gen, engine := s.gen, s.engine
	go func() {
		answer, err := engine.ApplyRemoteOffer(offer)
		m.post(answeredEvent{gen: gen, answer: answer, err: err})
	}()
}

func (m *Machine) applyAnswer(s *session, answer webrtc.SessionDescription) {
	gen, engine := s.gen, s.engine
	go func() {
		m.post(answerAppliedEvent{gen: gen, err: engine.ApplyRemoteAnswer(answer)})
	}()
}

// startRecording honours a pending record request once local audio exists.
func (m *Machine) startRecording(s *session) {
	if !s.wantRecord || s.recorder.Recording() {
		return
	}
	stream := s.engine.Stream()
	if stream == nil {
		return
	}
	if err := s.recorder.Start(stream); err != nil {
		m.log.Error().Err(err).Uint64("gen", s.gen).Msg("start recording")
	}
}

// fail ends s after an error. The partner is still told when the channel
// allows it: a media failure is a rejection, anything else an end.
func (m *Machine) fail(s *session, err error) {
	var farewell signal.Message = signal.CallEnded{To: s.partner.ChannelID}
	if errors.Is(err, core.ErrMediaUnavailable) {
		farewell = signal.CallRejected{To: s.partner.ChannelID}
	}
	m.log.Error().Err(err).Uint64("gen", s.gen).Str("state", s.state.String()).Msg("session failed")
	m.end(s, farewell, Notice{Kind: NoticeFailed, Err: err})
}

// end tears s down. farewell, when non-nil, is sent to the partner first.
// Calling it for a session that is already gone does nothing.
func (m *Machine) end(s *session, farewell signal.Message, n Notice) {
	if m.sess != s {
		return
	}
	if farewell != nil {
		m.send(farewell)
	}
	art := m.teardown(s)
	n.Partner = s.partner
	m.notice(n)
	if art != nil {
		m.notice(Notice{Kind: NoticeRecordingReady, Partner: s.partner, Artifact: art})
	}
}

func (m *Machine) teardown(s *session) *recording.Artifact {
	if s.ring != nil {
		s.ring.Stop()
	}
	s.cancel()
	s.timer.Stop()
	art, err := s.recorder.Stop()
	if err != nil {
		m.log.Error().Err(err).Uint64("gen", s.gen).Msg("stop recording")
	}
	if err := s.engine.Close(); err != nil {
		m.log.Warn().Err(err).Uint64("gen", s.gen).Msg("close engine")
	}
	s.mute.Reset()
	prev := s.state
	s.state = domain.CallIdle
	m.sess = nil
	m.log.Info().Uint64("gen", s.gen).Str("from", prev.String()).Msg("session ended")
	return art
}

func stale(what string) error { return fmt.Errorf("%s: %w", what, core.ErrInvalidState) }
