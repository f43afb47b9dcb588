//go:build linux

package media

import (
	"fmt"

	"github.com/avelin/peercall/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers the V4L2 camera adapter
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the malgo microphone adapter
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Source captures camera/microphone through pion/mediadevices, encoding video
// as VP8 and audio as Opus. The PeerConnections carrying these tracks must be
// built from API() so the codec parameters match.
type Source struct {
	selector *mediadevices.CodecSelector
	api      *webrtc.API
}

var _ core.MediaSource = (*Source)(nil)

func NewSource() (*Source, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := &webrtc.MediaEngine{}
	selector.Populate(mediaEngine)

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	return &Source{selector: selector, api: api}, nil
}

// API returns the webrtc API negotiators must build their PeerConnections
// from; it carries the VP8/Opus codec registrations of this source.
func (s *Source) API() *webrtc.API { return s.api }

func (s *Source) Acquire(video, audio bool) (core.MediaStream, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: s.selector}
	if video {
		constraints.Video = videoConstraints("")
	}
	if audio {
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	}
	return s.getUserMedia(constraints)
}

func (s *Source) AcquireCamera(deviceID string, audio bool) (core.MediaStream, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: s.selector}
	constraints.Video = videoConstraints(deviceID)
	if audio {
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	}
	return s.getUserMedia(constraints)
}

func (s *Source) getUserMedia(constraints mediadevices.MediaStreamConstraints) (core.MediaStream, error) {
	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCaptureFailed, err)
	}

	tracks := stream.GetTracks()
	wrapped := make([]core.LocalTrack, 0, len(tracks))
	for _, track := range tracks {
		track.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "media").Str("track_id", track.ID()).Msg("local track ended")
			}
		})
		wrapped = append(wrapped, NewTrack(track, func() { track.Close() }))
	}
	log.Info().Str("module", "media").Int("tracks", len(wrapped)).Msg("local media captured")
	return NewStream(wrapped...), nil
}

func (s *Source) VideoInputs() ([]core.DeviceInfo, error) {
	var out []core.DeviceInfo
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		out = append(out, core.DeviceInfo{ID: d.DeviceID, Label: d.Label})
	}
	return out, nil
}

// videoConstraints excludes MJPEG capture nodes (malformed JPEG frames poison
// the VP8 encoder) and caps the resolution to keep encoding latency low.
func videoConstraints(deviceID string) mediadevices.MediaOption {
	return func(c *mediadevices.MediaTrackConstraints) {
		if deviceID != "" {
			c.DeviceID = prop.String(deviceID)
		}
		c.FrameFormat = prop.FrameFormatOneOf{
			frame.FormatYUYV,
			frame.FormatI420,
			frame.FormatI444,
			frame.FormatRGBA,
		}
		c.Width = prop.IntRanged{Max: 640}
		c.Height = prop.IntRanged{Max: 480}
	}
}
