// Package webm muxes recorded Opus frames into an audio/webm container.
package webm

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/webm"
	"github.com/dkeye/LiveCall/internal/app/recording"
)

const opusTrack = 1

// Muxer implements recording.Muxer.
type Muxer struct {
	SampleRate float64
	Channels   uint64
}

func New() Muxer {
	return Muxer{SampleRate: 48000, Channels: 2}
}

// closeWait bounds how long Mux waits for the writer goroutine to flush.
const closeWait = 5 * time.Second

var errFlushTimeout = errors.New("webm writer did not flush")

// bufCloser keeps the bytes after the block writer closes its sink. The
// writer flushes on its own goroutine, so done marks the end of output.
type bufCloser struct {
	bytes.Buffer
	once sync.Once
	done chan struct{}
}

func (b *bufCloser) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

func (m Muxer) Mux(chunks []recording.Chunk) ([]byte, error) {
	out := &bufCloser{done: make(chan struct{})}
	ws, err := webm.NewSimpleBlockWriter(out, []webm.TrackEntry{{
		Name:            "Audio",
		TrackNumber:     opusTrack,
		TrackUID:        12345,
		CodecID:         "A_OPUS",
		TrackType:       2,
		DefaultDuration: 20000000,
		Audio: &webm.Audio{
			SamplingFrequency: m.SampleRate,
			Channels:          m.Channels,
		},
	}})
	if err != nil {
		return nil, fmt.Errorf("webm header: %w", err)
	}
	w := ws[0]

	var ts int64
	for i, ch := range chunks {
		if _, err := w.Write(true, ts, ch.Data); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("webm block %d: %w", i, err)
		}
		ts += ch.Duration.Milliseconds()
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("webm close: %w", err)
	}
	select {
	case <-out.done:
	case <-time.After(closeWait):
		return nil, errFlushTimeout
	}
	return out.Bytes(), nil
}
