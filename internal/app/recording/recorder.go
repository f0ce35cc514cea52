// Package recording captures the local audio of a call into one artifact.
package recording

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/rs/zerolog/log"
)

const MimeType = "audio/webm"

// Chunk is one captured frame stamped with its capture time.
type Chunk struct {
	core.AudioChunk
	At time.Time
}

// Muxer packs captured chunks into a single container.
type Muxer interface {
	Mux(chunks []Chunk) ([]byte, error)
}

// MuxFunc adapts a plain function to Muxer.
type MuxFunc func(chunks []Chunk) ([]byte, error)

func (f MuxFunc) Mux(chunks []Chunk) ([]byte, error) { return f(chunks) }

// Concat joins raw chunk payloads. Useful when no container is needed.
var Concat = MuxFunc(func(chunks []Chunk) ([]byte, error) {
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c.Data)
	}
	return buf.Bytes(), nil
})

// Artifact is a finished recording handed to the presentation layer.
type Artifact struct {
	Name      string
	MimeType  string
	Data      []byte
	Chunks    []Chunk
	StartedAt time.Time
}

// Controller is Idle until Start and returns to Idle on Stop.
type Controller struct {
	muxer Muxer
	now   func() time.Time

	mu        sync.Mutex
	recording bool
	chunks    []Chunk
	untap     func()
	startedAt time.Time
}

func New(muxer Muxer) *Controller {
	if muxer == nil {
		muxer = Concat
	}
	return &Controller{muxer: muxer, now: time.Now}
}

// Start taps stream. Calling it without a stream is a contract violation.
func (c *Controller) Start(stream core.LocalStream) error {
	if stream == nil {
		return core.ErrNoLocalStream
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording {
		return core.ErrAlreadyRecording
	}
	c.recording = true
	c.chunks = nil
	c.startedAt = c.now()
	c.untap = stream.Tap(c.capture)
	log.Info().Str("module", "app.recording").Msg("recording started")
	return nil
}

func (c *Controller) capture(ch core.AudioChunk) {
	data := append([]byte(nil), ch.Data...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return
	}
	c.chunks = append(c.chunks, Chunk{AudioChunk: core.AudioChunk{Data: data, Duration: ch.Duration}, At: c.now()})
}

// Stop finalizes the capture. It returns a nil artifact when nothing was
// recorded or the controller was idle.
func (c *Controller) Stop() (*Artifact, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return nil, nil
	}
	c.recording = false
	untap := c.untap
	chunks := c.chunks
	started := c.startedAt
	c.untap = nil
	c.chunks = nil
	c.mu.Unlock()

	if untap != nil {
		untap()
	}
	log.Info().Str("module", "app.recording").Int("chunks", len(chunks)).Msg("recording stopped")
	if len(chunks) == 0 {
		return nil, nil
	}
	data, err := c.muxer.Mux(chunks)
	if err != nil {
		return nil, fmt.Errorf("mux recording: %w", err)
	}
	return &Artifact{
		Name:      FileName(started),
		MimeType:  MimeType,
		Data:      data,
		Chunks:    chunks,
		StartedAt: started,
	}, nil
}

func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// FileName is the suggested download name for a recording started at t.
func FileName(t time.Time) string {
	return "call-recording-" + t.UTC().Format("2006-01-02T15-04-05Z") + ".webm"
}
