package rtc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

// Sink consumes remote audio. With a directory it writes each track to an
// Ogg/Opus file, otherwise it only drains the track.
type Sink struct {
	Dir string
	now func() time.Time
}

func NewSink(dir string) *Sink {
	return &Sink{Dir: dir, now: time.Now}
}

type packetWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

type discard struct{}

func (discard) WriteRTP(*rtp.Packet) error { return nil }
func (discard) Close() error               { return nil }

func (s *Sink) Play(ctx context.Context, track core.RemoteTrack) {
	w, err := s.writer(track)
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("track_id", track.ID()).Msg("open remote audio file")
		w = discard{}
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Warn().Err(err).Str("module", "webrtc").Msg("close remote audio writer")
		}
	}()

	packets := 0
	for ctx.Err() == nil {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			break
		}
		packets++
		if err := w.WriteRTP(pkt); err != nil {
			log.Warn().Err(err).Str("module", "webrtc").Msg("write remote audio")
			w = discard{}
		}
	}
	log.Info().Str("module", "webrtc").Str("track_id", track.ID()).Int("packets", packets).Msg("remote track ended")
}

func (s *Sink) writer(track core.RemoteTrack) (packetWriter, error) {
	if s.Dir == "" {
		return discard{}, nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("call-remote-%s.ogg", s.now().UTC().Format("2006-01-02T15-04-05Z"))
	path := filepath.Join(s.Dir, name)
	w, err := oggwriter.New(path, 48000, 2)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "webrtc").Str("track_id", track.ID()).Str("file", path).Msg("saving remote audio")
	return w, nil
}
