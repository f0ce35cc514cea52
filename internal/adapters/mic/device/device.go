// Package device opens the system microphone through pion/mediadevices.
// It needs cgo with libopus and a platform audio backend.
package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/LiveCall/internal/adapters/mic"
	"github.com/dkeye/LiveCall/internal/core"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errNoAudioTrack = errors.New("no audio track found in microphone stream")

// Capture opens the default microphone as an Opus LocalStream.
func Capture(ctx context.Context) (core.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("%w: opus params: %w", core.ErrMediaUnavailable, err)
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(48000)
			c.ChannelCount = prop.Int(1)
			c.SampleSize = prop.Int(16)
		},
		Codec: mediadevices.NewCodecSelector(
			mediadevices.WithAudioEncoders(&opusParams),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMediaUnavailable, err)
	}
	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrMediaUnavailable, errNoAudioTrack)
	}
	track := tracks[0]
	release := func() {
		for _, t := range stream.GetTracks() {
			_ = t.Close()
		}
	}

	reader, err := track.NewEncodedReader(webrtc.MimeTypeOpus)
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: %w", core.ErrMediaUnavailable, err)
	}
	log.Info().Str("module", "mic").Str("track_id", track.ID()).Msg("microphone stream obtained")
	s, err := mic.NewStream(reader, release)
	if err != nil {
		_ = reader.Close()
		release()
		return nil, err
	}
	return s, nil
}
