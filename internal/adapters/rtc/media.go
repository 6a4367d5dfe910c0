package rtc

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type codecSelector = *mediadevices.CodecSelector

// newMediaAPI builds the codec selector (VP8 + Opus) and a webrtc API
// whose media engine knows those codecs, so captured tracks can be added
// to peer connections.
func newMediaAPI() (codecSelector, *webrtc.API, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, nil, err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, nil, err
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := &webrtc.MediaEngine{}
	selector.Populate(mediaEngine)
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	return selector, api, nil
}

// captureStream owns a set of captured local tracks. Closing it releases
// the underlying devices.
type captureStream struct {
	id     string
	tracks []mediadevices.Track
}

func (s *captureStream) ID() string { return s.id }

func (s *captureStream) Close() error {
	var first error
	for _, t := range s.tracks {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *captureStream) webrtcTracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

// ProbeMediaAccess is the dummy acquire-then-release permission check:
// open default inputs, then immediately release them.
func (e *Engine) ProbeMediaAccess(ctx context.Context) error {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Video: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: e.codecs,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}
	for _, t := range stream.GetTracks() {
		_ = t.Close()
	}
	return nil
}

func (e *Engine) AudioInputs(ctx context.Context) ([]domain.Device, error) {
	return enumerate(mediadevices.AudioInput, domain.MediaKindAudio), nil
}

func (e *Engine) VideoInputs(ctx context.Context) ([]domain.Device, error) {
	return enumerate(mediadevices.VideoInput, domain.MediaKindVideo), nil
}

func enumerate(kind mediadevices.MediaDeviceType, mk domain.MediaKind) []domain.Device {
	var out []domain.Device
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != kind {
			continue
		}
		out = append(out, domain.Device{ID: d.DeviceID, Label: d.Label, Kind: mk})
	}
	return out
}

// captureUserMedia opens the selected (or default) inputs.
func (e *Engine) captureUserMedia(c core.MediaConstraints) (*captureStream, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: e.codecs}
	if c.Audio {
		constraints.Audio = func(mt *mediadevices.MediaTrackConstraints) {
			if c.AudioDeviceID != "" {
				mt.DeviceID = prop.String(c.AudioDeviceID)
			}
		}
	}
	if c.Video {
		constraints.Video = func(mt *mediadevices.MediaTrackConstraints) {
			if c.VideoDeviceID != "" {
				mt.DeviceID = prop.String(c.VideoDeviceID)
			}
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}
	return &captureStream{id: uuid.NewString(), tracks: stream.GetTracks()}, nil
}

// CaptureDisplay acquires a display-capture stream for screen share.
func (e *Engine) CaptureDisplay(ctx context.Context) (core.RawStream, error) {
	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: e.codecs,
	})
	if err != nil {
		return nil, fmt.Errorf("get display media: %w", err)
	}
	return &captureStream{id: uuid.NewString(), tracks: stream.GetTracks()}, nil
}
