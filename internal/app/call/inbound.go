package call

import (
	"errors"
	"fmt"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/dkeye/LiveCall/internal/signal"
)

func (m *Machine) onSignal(in signal.Inbound) {
	switch msg := in.Msg.(type) {
	case signal.Connected:
		m.onConnected(msg.ChannelID)
	case signal.OnlineUsers:
		m.presence.OnRosterUpdate(msg)
	case signal.CallRequest:
		m.onCallRequest(in.From, msg)
	case signal.CallAccepted:
		m.onCallAccepted(in.From)
	case signal.CallRejected:
		m.onCallRejected(in.From, msg)
	case signal.Offer:
		m.onOffer(in.From, msg)
	case signal.Answer:
		m.onAnswer(in.From, msg)
	case signal.Candidate:
		m.onRemoteCandidate(in.From, msg)
	case signal.CallEnded:
		m.onCallEnded(in.From)
	case signal.Error:
		m.log.Warn().Str("error", msg.Message).Msg("relay error")
	default:
		m.log.Warn().Type("msg", in.Msg).Msg("unexpected inbound event")
	}
}

// fromPartner reports whether an event stamped with from belongs to s.
func (m *Machine) fromPartner(s *session, from domain.ChannelID) bool {
	if from == "" || from == s.partner.ChannelID {
		return true
	}
	m.log.Warn().Str("from", string(from)).Str("partner", string(s.partner.ChannelID)).Msg("event from stranger ignored")
	return false
}

// sessionFor returns the live session when the event comes from its partner.
func (m *Machine) sessionFor(from domain.ChannelID, ev signal.Event) *session {
	s := m.sess
	if s == nil {
		m.log.Debug().Str("event", string(ev)).Msg("no session, ignored")
		return nil
	}
	if !m.fromPartner(s, from) {
		return nil
	}
	return s
}

func (m *Machine) onConnected(ch domain.ChannelID) {
	m.connected = true
	m.channel = ch
	if err := m.presence.Announce(ch); err != nil {
		m.log.Error().Err(err).Msg("announce")
	}
}

func (m *Machine) onDisconnected(err error) {
	m.log.Warn().Err(err).Str("channel", string(m.channel)).Msg("signaling disconnected")
	m.connected = false
	m.channel = ""
	m.presence.Reset()
	if s := m.sess; s != nil {
		m.end(s, nil, Notice{Kind: NoticeEnded, Err: core.ErrTransportDisconnected})
	}
}

func (m *Machine) onCallRequest(from domain.ChannelID, msg signal.CallRequest) {
	if msg.Caller == nil || !msg.Caller.Valid() {
		m.log.Warn().Str("from", string(from)).Msg("call request without caller")
		return
	}
	caller := *msg.Caller
	if caller.ChannelID == "" {
		caller = caller.WithChannel(from)
	}
	if m.sess != nil {
		m.log.Info().Str("caller", string(caller.UserID)).Str("state", m.sess.state.String()).Msg("busy, rejecting")
		m.send(signal.CallRejected{To: caller.ChannelID, Reason: signal.RejectBusy})
		m.notice(Notice{Kind: NoticeBusyRejected, Partner: caller, Err: core.ErrBusy})
		return
	}
	m.newSession(caller, domain.Inbound, domain.CallInboundRinging)
	m.notice(Notice{Kind: NoticeIncomingCall, Partner: caller})
}

func (m *Machine) onCallAccepted(from domain.ChannelID) {
	s := m.sessionFor(from, signal.EventCallAccepted)
	if s == nil || s.state != domain.CallOutboundRinging {
		return
	}
	m.activate(s)
	m.attach(s, true)
}

func (m *Machine) onCallRejected(from domain.ChannelID, msg signal.CallRejected) {
	s := m.sessionFor(from, signal.EventCallRejected)
	if s == nil {
		return
	}
	switch s.state {
	case domain.CallOutboundRinging:
		n := Notice{Kind: NoticeRejected, Reason: msg.Reason}
		if msg.Reason == signal.RejectBusy {
			n.Err = core.ErrBusy
		}
		m.end(s, nil, n)
	case domain.CallActive:
		// the partner accepted but could not open its media
		m.end(s, nil, Notice{Kind: NoticeEnded, Reason: ReasonAborted})
	}
}

func (m *Machine) onCallEnded(from domain.ChannelID) {
	s := m.sessionFor(from, signal.EventCallEnded)
	if s == nil {
		return
	}
	reason := ReasonRemote
	if s.state == domain.CallInboundRinging {
		reason = ReasonCanceled
	}
	m.end(s, nil, Notice{Kind: NoticeEnded, Reason: reason})
}

func (m *Machine) onOffer(from domain.ChannelID, msg signal.Offer) {
	s := m.sessionFor(from, signal.EventOffer)
	if s == nil || s.state != domain.CallActive {
		return
	}
	if s.dir != domain.Inbound || s.offered || s.pendingOffer != nil {
		m.log.Warn().Uint64("gen", s.gen).Str("direction", s.dir.String()).Msg("unexpected offer ignored")
		return
	}
	if !s.attached {
		offer := msg.Offer
		s.pendingOffer = &offer
		return
	}
	m.answer(s, msg.Offer)
}

func (m *Machine) onAnswer(from domain.ChannelID, msg signal.Answer) {
	s := m.sessionFor(from, signal.EventAnswer)
	if s == nil || s.state != domain.CallActive {
		return
	}
	if s.dir != domain.Outbound || !s.attached {
		m.log.Warn().Uint64("gen", s.gen).Msg("unexpected answer ignored")
		return
	}
	m.applyAnswer(s, msg.Answer)
}

func (m *Machine) onRemoteCandidate(from domain.ChannelID, msg signal.Candidate) {
	s := m.sessionFor(from, signal.EventCandidate)
	if s == nil {
		return
	}
	err := s.engine.EnqueueOrApplyCandidate(msg.Candidate)
	switch {
	case err == nil, errors.Is(err, core.ErrEngineClosed):
	default:
		m.fail(s, err)
	}
}

func (m *Machine) onAttached(ev attachedEvent) {
	s := m.current(ev.gen)
	if s == nil || s.state != domain.CallActive {
		m.log.Debug().Uint64("gen", ev.gen).Msg("stale attach result dropped")
		return
	}
	if ev.err != nil {
		m.fail(s, ev.err)
		return
	}
	s.attached = true
	if ev.offer != nil {
		m.send(signal.Offer{Offer: *ev.offer, To: s.partner.ChannelID})
	} else {
		m.send(signal.CallAccepted{To: s.partner.ChannelID})
	}
	m.startRecording(s)
	if offer := s.pendingOffer; offer != nil {
		s.pendingOffer = nil
		m.answer(s, *offer)
	}
}

func (m *Machine) onAnswered(ev answeredEvent) {
	s := m.current(ev.gen)
	if s == nil {
		return
	}
	if ev.err != nil {
		m.fail(s, ev.err)
		return
	}
	m.send(signal.Answer{Answer: ev.answer, To: s.partner.ChannelID})
}

func (m *Machine) onAnswerApplied(ev answerAppliedEvent) {
	if s := m.current(ev.gen); s != nil && ev.err != nil {
		m.fail(s, ev.err)
	}
}

func (m *Machine) onLocalCandidate(ev localCandidateEvent) {
	s := m.current(ev.gen)
	if s == nil {
		return
	}
	m.send(signal.Candidate{Candidate: ev.candidate, To: s.partner.ChannelID})
}

func (m *Machine) onRemoteTrack(ev remoteTrackEvent) {
	s := m.current(ev.gen)
	if s == nil || s.state != domain.CallActive {
		return
	}
	if m.sink != nil {
		go m.sink.Play(s.ctx, ev.track)
	}
	m.startRecording(s)
}

func (m *Machine) onPeerFailed(ev peerFailedEvent) {
	if s := m.current(ev.gen); s != nil {
		m.fail(s, fmt.Errorf("%w: peer connection failed", core.ErrNegotiationFailure))
	}
}

func (m *Machine) onRingTimeout(ev ringTimeoutEvent) {
	s := m.current(ev.gen)
	if s == nil || !s.state.Ringing() {
		return
	}
	var farewell signal.Message = signal.CallEnded{To: s.partner.ChannelID}
	if s.state == domain.CallInboundRinging {
		farewell = signal.CallRejected{To: s.partner.ChannelID}
	}
	m.end(s, farewell, Notice{Kind: NoticeTimedOut})
}
