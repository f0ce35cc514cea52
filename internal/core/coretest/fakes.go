// Package coretest provides in-memory doubles for the core ports.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/signal"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var ErrNoRemoteDescription = errors.New("remote description not set")

// Transport records every sent message.
type Transport struct {
	mu   sync.Mutex
	sent []signal.Message
	Err  error
}

func (t *Transport) Send(msg signal.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *Transport) Sent() []signal.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]signal.Message(nil), t.sent...)
}

func (t *Transport) Events() []signal.Event {
	var out []signal.Event
	for _, m := range t.Sent() {
		out = append(out, m.Event())
	}
	return out
}

// Count returns how many messages of kind ev were sent.
func (t *Transport) Count(ev signal.Event) int {
	n := 0
	for _, m := range t.Sent() {
		if m.Event() == ev {
			n++
		}
	}
	return n
}

// Last returns the most recent message of kind ev.
func (t *Transport) Last(ev signal.Event) (signal.Message, bool) {
	sent := t.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Event() == ev {
			return sent[i], true
		}
	}
	return nil, false
}

// Track is an AudioTrack with no backing media.
type Track struct {
	id       string
	disabled atomic.Bool
}

func NewTrack(id string) *Track { return &Track{id: id} }

func (t *Track) ID() string               { return t.id }
func (t *Track) SetEnabled(on bool)       { t.disabled.Store(!on) }
func (t *Track) Enabled() bool            { return !t.disabled.Load() }
func (t *Track) Local() webrtc.TrackLocal { return nil }

// Stream is a LocalStream whose chunks are pushed by the test.
type Stream struct {
	mu     sync.Mutex
	tracks []core.AudioTrack
	taps   map[int]func(core.AudioChunk)
	next   int
	closed int
}

func NewStream(tracks ...core.AudioTrack) *Stream {
	if len(tracks) == 0 {
		tracks = []core.AudioTrack{NewTrack("audio-0")}
	}
	return &Stream{tracks: tracks, taps: make(map[int]func(core.AudioChunk))}
}

func (s *Stream) AudioTracks() []core.AudioTrack { return s.tracks }

func (s *Stream) Tap(fn func(core.AudioChunk)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.taps[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.taps, id)
		s.mu.Unlock()
	}
}

// Emit delivers a chunk to every tap.
func (s *Stream) Emit(data []byte, d time.Duration) {
	s.mu.Lock()
	taps := make([]func(core.AudioChunk), 0, len(s.taps))
	for _, fn := range s.taps {
		taps = append(taps, fn)
	}
	s.mu.Unlock()
	for _, fn := range taps {
		fn(core.AudioChunk{Data: data, Duration: d})
	}
}

func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed > 0
}

func (s *Stream) Taps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.taps)
}

// Peer is a PeerConnection that mimics description ordering rules.
type Peer struct {
	mu          sync.Mutex
	tracks      int
	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	applied     []webrtc.ICECandidateInit
	closed      bool
	onCandidate func(webrtc.ICECandidateInit)
	onTrack     func(core.RemoteTrack)
	onFailed    func()

	RemoteErr    error
	CandidateErr error
}

func (p *Peer) AddTrack(webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks++
	return nil
}

func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "fake-offer"}, nil
}

func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return webrtc.SessionDescription{}, ErrNoRemoteDescription
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "fake-answer"}, nil
}

func (p *Peer) SetLocalDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &d
	return nil
}

func (p *Peer) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RemoteErr != nil {
		return p.RemoteErr
	}
	p.remote = &d
	return nil
}

func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return ErrNoRemoteDescription
	}
	if p.CandidateErr != nil {
		return p.CandidateErr
	}
	p.applied = append(p.applied, c)
	return nil
}

func (p *Peer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onCandidate = fn
	p.mu.Unlock()
}

func (p *Peer) OnTrack(fn func(core.RemoteTrack)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *Peer) OnFailed(fn func()) {
	p.mu.Lock()
	p.onFailed = fn
	p.mu.Unlock()
}

func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// GatherCandidate fires the local candidate callback.
func (p *Peer) GatherCandidate(c webrtc.ICECandidateInit) {
	p.mu.Lock()
	fn := p.onCandidate
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// DeliverTrack fires the remote track callback.
func (p *Peer) DeliverTrack(t core.RemoteTrack) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

// Fail fires the failure callback.
func (p *Peer) Fail() {
	p.mu.Lock()
	fn := p.onFailed
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *Peer) Applied() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.applied...)
}

func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) Tracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracks
}

func (p *Peer) Local() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *Peer) Remote() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

// Media is a MediaEngine handing out fake streams and peers.
type Media struct {
	mu      sync.Mutex
	peers   []*Peer
	streams []*Stream

	// AcquireErr fails every acquisition.
	AcquireErr error
	// Gate, when set, blocks acquisition until it is closed.
	Gate chan struct{}
	// Prepare is applied to each new peer before it is returned.
	Prepare func(*Peer)
}

func (m *Media) AcquireLocalAudio(ctx context.Context) (core.LocalStream, error) {
	m.mu.Lock()
	gate := m.Gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.AcquireErr != nil {
		return nil, m.AcquireErr
	}
	s := NewStream()
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

func (m *Media) NewPeerConnection() (core.PeerConnection, error) {
	p := &Peer{}
	if m.Prepare != nil {
		m.Prepare(p)
	}
	m.mu.Lock()
	m.peers = append(m.peers, p)
	m.mu.Unlock()
	return p, nil
}

func (m *Media) Peers() []*Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Peer(nil), m.peers...)
}

func (m *Media) Streams() []*Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Stream(nil), m.streams...)
}

// LastPeer returns the newest peer or nil.
func (m *Media) LastPeer() *Peer {
	peers := m.Peers()
	if len(peers) == 0 {
		return nil
	}
	return peers[len(peers)-1]
}

// LastStream returns the newest stream or nil.
func (m *Media) LastStream() *Stream {
	streams := m.Streams()
	if len(streams) == 0 {
		return nil
	}
	return streams[len(streams)-1]
}

// RemoteTrack is a RemoteTrack that ends immediately.
type RemoteTrack struct{ Name string }

func (r RemoteTrack) ID() string                { return r.Name }
func (r RemoteTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeAudio }
func (r RemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, fmt.Errorf("track %s ended", r.Name)
}

// Sink counts played tracks.
type Sink struct {
	played atomic.Int32
}

func (s *Sink) Play(ctx context.Context, track core.RemoteTrack) {
	s.played.Add(1)
	<-ctx.Done()
}

func (s *Sink) Played() int { return int(s.played.Load()) }
