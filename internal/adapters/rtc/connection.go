// Package rtc adapts pion/webrtc to the core media ports.
package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Connection wraps one *webrtc.PeerConnection.
type Connection struct {
	pc *webrtc.PeerConnection

	mu       sync.Mutex
	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(core.RemoteTrack)
	onFailed func()
	failOnce sync.Once
}

func ICEConfig(urls []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(urls) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: urls}}
	}
	return cfg
}

func NewConnection(cfg webrtc.Configuration) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{pc: pc}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed {
			c.failOnce.Do(func() {
				if fn := c.callbacks().onFailed; fn != nil {
					fn()
				}
			})
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if fn := c.callbacks().onICE; fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("codec", track.Codec().MimeType).
			Msg("OnTrack received")
		if fn := c.callbacks().onTrack; fn != nil {
			fn(track)
		}
	})

	return c, nil
}

type callbacks struct {
	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(core.RemoteTrack)
	onFailed func()
}

func (c *Connection) callbacks() callbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return callbacks{onICE: c.onICE, onTrack: c.onTrack, onFailed: c.onFailed}
}

// AddTrack attaches a local track and drains its RTCP so interceptors keep
// running.
func (c *Connection) AddTrack(t webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(t)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *Connection) SetLocalDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sd)
}

func (c *Connection) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sd)
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Connection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Connection) OnFailed(fn func()) {
	c.mu.Lock()
	c.onFailed = fn
	c.mu.Unlock()
}

func (c *Connection) Close() error {
	err := c.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Msg("close error")
	} else {
		log.Debug().Str("module", "webrtc").Msg("closed")
	}
	return err
}

// CaptureFunc opens the local microphone.
type CaptureFunc func(ctx context.Context) (core.LocalStream, error)

// Engine implements core.MediaEngine on pion/webrtc.
type Engine struct {
	cfg     webrtc.Configuration
	capture CaptureFunc
}

func NewEngine(iceServers []string, capture CaptureFunc) *Engine {
	return &Engine{cfg: ICEConfig(iceServers), capture: capture}
}

func (e *Engine) AcquireLocalAudio(ctx context.Context) (core.LocalStream, error) {
	if e.capture == nil {
		return nil, core.ErrMediaUnavailable
	}
	return e.capture(ctx)
}

func (e *Engine) NewPeerConnection() (core.PeerConnection, error) {
	return NewConnection(e.cfg)
}
