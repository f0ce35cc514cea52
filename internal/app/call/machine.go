// Package call implements the call-session state machine.
//
// A Machine owns at most one session. Every input (signaling events, user
// commands, timer ticks and the results of asynchronous media steps) is
// serialized onto the goroutine running Run, so session state is only ever
// touched from there.
package call

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dkeye/LiveCall/internal/app/presence"
	"github.com/dkeye/LiveCall/internal/app/recording"
	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/dkeye/LiveCall/internal/signal"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const inboxSize = 64

type Config struct {
	// RingTimeout ends an unanswered invitation. Zero disables it.
	RingTimeout time.Duration
	// TickInterval drives the call timer while active.
	TickInterval time.Duration
}

func DefaultConfig() Config {
	return Config{RingTimeout: 45 * time.Second, TickInterval: time.Second}
}

type Deps struct {
	Transport core.Transport
	Media     core.MediaEngine
	Presence  *presence.Registry
	// Sink plays the partner's audio. Optional.
	Sink  core.AudioSink
	Muxer recording.Muxer
	// Notify receives notices on the machine goroutine. It must not block
	// and must not call back into the machine synchronously.
	Notify func(Notice)
}

type Machine struct {
	cfg      Config
	tr       core.Transport
	media    core.MediaEngine
	presence *presence.Registry
	sink     core.AudioSink
	muxer    recording.Muxer
	notify   func(Notice)
	now      func() time.Time
	log      zerolog.Logger

	inbox chan event
	done  chan struct{}
	snap  atomic.Pointer[domain.CallSession]

	// loop-owned
	sess      *session
	gen       uint64
	connected bool
	channel   domain.ChannelID
}

func New(cfg Config, deps Deps) *Machine {
	m := &Machine{
		cfg:      cfg,
		tr:       deps.Transport,
		media:    deps.Media,
		presence: deps.Presence,
		sink:     deps.Sink,
		muxer:    deps.Muxer,
		notify:   deps.Notify,
		now:      time.Now,
		log:      log.With().Str("module", "app.call").Logger(),
		inbox:    make(chan event, inboxSize),
		done:     make(chan struct{}),
	}
	m.snap.Store(&domain.CallSession{})
	return m
}

// Run processes events until ctx is done. It must be called exactly once.
func (m *Machine) Run(ctx context.Context) error {
	defer close(m.done)
	m.log.Info().Msg("call machine started")
	for {
		select {
		case <-ctx.Done():
			if s := m.sess; s != nil {
				m.hangUp(s, ReasonShutdown)
			}
			m.publish()
			m.log.Info().Msg("call machine stopped")
			return nil
		case ev := <-m.inbox:
			m.handle(ev)
			m.publish()
		}
	}
}

// Snapshot is safe to call from any goroutine.
func (m *Machine) Snapshot() domain.CallSession {
	return *m.snap.Load()
}

// OnMessage feeds one inbound signaling frame to the machine.
func (m *Machine) OnMessage(in signal.Inbound) {
	m.post(inboundEvent{in: in})
}

// OnDisconnected reports that the signaling channel is gone.
func (m *Machine) OnDisconnected(err error) {
	m.post(disconnectedEvent{err: err})
}

func (m *Machine) post(ev event) {
	select {
	case m.inbox <- ev:
	case <-m.done:
	}
}

// do runs fn on the machine goroutine and waits for its result.
func (m *Machine) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case m.inbox <- commandEvent{fn: fn, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return core.ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return core.ErrStopped
	}
}

func (m *Machine) handle(ev event) {
	switch ev := ev.(type) {
	case commandEvent:
		ev.reply <- ev.fn()
	case inboundEvent:
		m.onSignal(ev.in)
	case disconnectedEvent:
		m.onDisconnected(ev.err)
	case attachedEvent:
		m.onAttached(ev)
	case answeredEvent:
		m.onAnswered(ev)
	case answerAppliedEvent:
		m.onAnswerApplied(ev)
	case localCandidateEvent:
		m.onLocalCandidate(ev)
	case remoteTrackEvent:
		m.onRemoteTrack(ev)
	case peerFailedEvent:
		m.onPeerFailed(ev)
	case tickEvent:
		if s := m.current(ev.gen); s != nil && s.state == domain.CallActive {
			s.timer.Tick()
		}
	case ringTimeoutEvent:
		m.onRingTimeout(ev)
	default:
		m.log.Warn().Type("event", ev).Msg("unknown event")
	}
}

func (m *Machine) publish() {
	s := m.sess
	if s == nil {
		m.snap.Store(&domain.CallSession{})
		return
	}
	m.snap.Store(&domain.CallSession{
		Partner:        s.partner,
		Direction:      s.dir,
		State:          s.state,
		StartedAt:      s.startedAt,
		ElapsedSeconds: s.timer.Elapsed(),
		Muted:          s.mute.Muted(),
		Recording:      s.recorder.Recording(),
	})
}

func (m *Machine) notice(n Notice) {
	if m.notify != nil {
		m.notify(n)
	}
}

// send delivers msg and logs failures. Used for best-effort notifications.
func (m *Machine) send(msg signal.Message) {
	if !m.connected {
		m.log.Debug().Str("event", string(msg.Event())).Msg("not connected, dropped")
		return
	}
	if err := m.tr.Send(msg); err != nil {
		m.log.Warn().Err(err).Str("event", string(msg.Event())).Msg("send failed")
	}
}
