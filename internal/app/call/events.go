package call

import (
	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/signal"
	"github.com/pion/webrtc/v4"
)

type event interface{}

type commandEvent struct {
	fn    func() error
	reply chan error
}

type inboundEvent struct{ in signal.Inbound }

type disconnectedEvent struct{ err error }

// The events below carry the generation of the session that started the
// step. A result for an older generation is stale and discarded.

type attachedEvent struct {
	gen   uint64
	offer *webrtc.SessionDescription
	err   error
}

type answeredEvent struct {
	gen    uint64
	answer webrtc.SessionDescription
	err    error
}

type answerAppliedEvent struct {
	gen uint64
	err error
}

type localCandidateEvent struct {
	gen       uint64
	candidate webrtc.ICECandidateInit
}

type remoteTrackEvent struct {
	gen   uint64
	track core.RemoteTrack
}

type peerFailedEvent struct{ gen uint64 }

type tickEvent struct{ gen uint64 }

type ringTimeoutEvent struct{ gen uint64 }
