// Package mic turns an encoded capture reader into a core.LocalStream.
package mic

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// FrameDuration is the Opus frame length produced by the encoder.
const FrameDuration = 20 * time.Millisecond

// silence is an Opus frame the decoder renders as silence. It replaces
// captured audio while the track is disabled.
var silence = []byte{0xf8, 0xff, 0xfe}

// EncodedReader is satisfied by mediadevices.EncodedReadCloser.
type EncodedReader interface {
	Read() (mediadevices.EncodedBuffer, func(), error)
	Close() error
}

type Track struct {
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
}

func (t *Track) ID() string               { return t.local.ID() }
func (t *Track) SetEnabled(on bool)       { t.enabled.Store(on) }
func (t *Track) Enabled() bool            { return t.enabled.Load() }
func (t *Track) Local() webrtc.TrackLocal { return t.local }

type Stream struct {
	track   *Track
	reader  EncodedReader
	release func()

	mu      sync.Mutex
	taps    map[int]func(core.AudioChunk)
	nextTap int

	closeOnce sync.Once
	done      chan struct{}
}

// NewStream starts pumping reader into a fresh Opus track. release is
// called once on Close to free the capture device.
func NewStream(reader EncodedReader, release func()) (*Stream, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "livecall")
	if err != nil {
		return nil, err
	}
	s := &Stream{
		track:   &Track{local: local},
		reader:  reader,
		release: release,
		taps:    make(map[int]func(core.AudioChunk)),
		done:    make(chan struct{}),
	}
	s.track.SetEnabled(true)
	go s.pump()
	return s, nil
}

func (s *Stream) AudioTracks() []core.AudioTrack { return []core.AudioTrack{s.track} }

func (s *Stream) Tap(fn func(core.AudioChunk)) func() {
	s.mu.Lock()
	id := s.nextTap
	s.nextTap++
	s.taps[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.taps, id)
		s.mu.Unlock()
	}
}

func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.reader.Close()
		if s.release != nil {
			s.release()
		}
		<-s.done
		log.Info().Str("module", "mic").Msg("capture stopped")
	})
	return err
}

func (s *Stream) pump() {
	defer close(s.done)
	for {
		buf, release, err := s.reader.Read()
		if err != nil {
			if release != nil {
				release()
			}
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Str("module", "mic").Msg("capture read ended")
			}
			return
		}
		if buf.Samples == 0 {
			release()
			continue
		}
		data := silence
		if s.track.Enabled() {
			data = append([]byte(nil), buf.Data...)
		}
		release()

		if err := s.track.local.WriteSample(media.Sample{Data: data, Duration: FrameDuration}); err != nil {
			log.Warn().Err(err).Str("module", "mic").Msg("failed to write sample to track")
		}
		s.emit(core.AudioChunk{Data: data, Duration: FrameDuration})
	}
}

func (s *Stream) emit(ch core.AudioChunk) {
	s.mu.Lock()
	taps := make([]func(core.AudioChunk), 0, len(s.taps))
	for _, fn := range s.taps {
		taps = append(taps, fn)
	}
	s.mu.Unlock()
	for _, fn := range taps {
		fn(ch)
	}
}
