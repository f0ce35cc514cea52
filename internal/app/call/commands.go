package call

import (
	"context"
	"fmt"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/dkeye/LiveCall/internal/signal"
)

// Invite calls an online user. autoRecord starts recording once the call
// is active.
func (m *Machine) Invite(ctx context.Context, id domain.UserID, autoRecord bool) error {
	return m.do(ctx, func() error {
		if m.sess != nil {
			return core.ErrNotIdle
		}
		if !m.connected {
			return core.ErrTransportDisconnected
		}
		partner, ok := m.presence.Lookup(id)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrUnknownUser, id)
		}
		if err := m.tr.Send(signal.CallRequest{To: partner.ChannelID}); err != nil {
			return fmt.Errorf("call request: %w", err)
		}
		s := m.newSession(partner, domain.Outbound, domain.CallOutboundRinging)
		s.wantRecord = autoRecord
		return nil
	})
}

// Accept answers the ringing inbound call.
func (m *Machine) Accept(ctx context.Context, autoRecord bool) error {
	return m.do(ctx, func() error {
		s := m.sess
		if s == nil || s.state != domain.CallInboundRinging {
			return stale("accept")
		}
		s.wantRecord = autoRecord
		m.activate(s)
		m.attach(s, false)
		return nil
	})
}

// Reject declines the ringing inbound call.
func (m *Machine) Reject(ctx context.Context) error {
	return m.do(ctx, func() error {
		s := m.sess
		if s == nil || s.state != domain.CallInboundRinging {
			return stale("reject")
		}
		m.reject(s)
		return nil
	})
}

// reject declines s. Teardown stops any recording and delivers its artifact.
func (m *Machine) reject(s *session) {
	m.end(s, signal.CallRejected{To: s.partner.ChannelID}, Notice{Kind: NoticeEnded, Reason: ReasonDeclined})
}

// End hangs up, cancels an outbound invitation or declines an inbound one.
// It is a no-op when idle.
func (m *Machine) End(ctx context.Context) error {
	return m.do(ctx, func() error {
		s := m.sess
		if s == nil {
			return nil
		}
		m.hangUp(s, ReasonLocal)
		return nil
	})
}

// hangUp ends s from this side with the farewell its state calls for: a
// ringing inbound call is rejected, anything else gets call-ended. reason
// applies to an active call.
func (m *Machine) hangUp(s *session, reason string) {
	switch s.state {
	case domain.CallInboundRinging:
		m.reject(s)
	case domain.CallOutboundRinging:
		m.end(s, signal.CallEnded{To: s.partner.ChannelID}, Notice{Kind: NoticeEnded, Reason: ReasonCanceled})
	default:
		m.end(s, signal.CallEnded{To: s.partner.ChannelID}, Notice{Kind: NoticeEnded, Reason: reason})
	}
}

// ToggleMute flips local track transmission and reports the new state.
// Without local audio it changes nothing.
func (m *Machine) ToggleMute(ctx context.Context) (bool, error) {
	var muted bool
	err := m.do(ctx, func() error {
		s := m.sess
		if s == nil {
			return nil
		}
		muted = s.mute.Toggle(s.engine.Stream())
		m.log.Info().Bool("muted", muted).Msg("mute toggled")
		return nil
	})
	return muted, err
}

// StartRecording records local audio of the active call. When local audio
// is not attached yet the request is kept and honoured later.
func (m *Machine) StartRecording(ctx context.Context) error {
	return m.do(ctx, func() error {
		s := m.sess
		if s == nil || s.state != domain.CallActive {
			return stale("start recording")
		}
		if s.recorder.Recording() {
			return core.ErrAlreadyRecording
		}
		s.wantRecord = true
		m.startRecording(s)
		return nil
	})
}

// StopRecording finishes the recording. A resulting artifact is delivered
// as NoticeRecordingReady.
func (m *Machine) StopRecording(ctx context.Context) error {
	return m.do(ctx, func() error {
		s := m.sess
		if s == nil {
			return stale("stop recording")
		}
		s.wantRecord = false
		art, err := s.recorder.Stop()
		if err != nil {
			return err
		}
		if art != nil {
			m.notice(Notice{Kind: NoticeRecordingReady, Partner: s.partner, Artifact: art})
		}
		return nil
	})
}
