package core

import (
	"context"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// MediaEngine gives access to local capture and peer connections.
type MediaEngine interface {
	// AcquireLocalAudio opens the microphone. It may block on device access.
	AcquireLocalAudio(ctx context.Context) (LocalStream, error)
	// NewPeerConnection creates a connection using the configured ICE servers.
	NewPeerConnection() (PeerConnection, error)
}

type PeerConnection interface {
	AddTrack(webrtc.TrackLocal) error
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback invoked when a remote track arrives.
	OnTrack(func(RemoteTrack))
	// OnFailed sets a callback invoked once the connection can no longer recover.
	OnFailed(func())
	Close() error
}

// AudioChunk is one encoded audio frame from the local capture.
type AudioChunk struct {
	Data     []byte
	Duration time.Duration
}

// LocalStream is a captured local audio source.
type LocalStream interface {
	AudioTracks() []AudioTrack
	// Tap registers fn for every chunk sent to the peer. The returned func
	// removes the tap.
	Tap(fn func(AudioChunk)) (untap func())
	// Close stops capture and releases the device. Safe to call repeatedly.
	Close() error
}

type AudioTrack interface {
	ID() string
	SetEnabled(bool)
	Enabled() bool
	Local() webrtc.TrackLocal
}

// RemoteTrack is satisfied by *webrtc.TrackRemote.
type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// AudioSink consumes the partner's audio until ctx is done or the track ends.
type AudioSink interface {
	Play(ctx context.Context, track RemoteTrack)
}
