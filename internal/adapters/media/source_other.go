//go:build !linux

package media

import (
	"github.com/avelin/peercall/internal/core"
	"github.com/pion/webrtc/v4"
)

// Source is a stub on non-Linux platforms: pion/mediadevices capture needs
// the V4L2/malgo drivers. Sessions can still run receive-only with a stream
// built from static tracks.
type Source struct{}

var _ core.MediaSource = (*Source)(nil)

func NewSource() (*Source, error) {
	return &Source{}, nil
}

// API returns nil: without capture codecs the default webrtc API serves.
func (s *Source) API() *webrtc.API { return nil }

func (s *Source) Acquire(video, audio bool) (core.MediaStream, error) {
	return nil, core.ErrCaptureUnsupported
}

func (s *Source) AcquireCamera(deviceID string, audio bool) (core.MediaStream, error) {
	return nil, core.ErrCaptureUnsupported
}

func (s *Source) VideoInputs() ([]core.DeviceInfo, error) {
	return nil, core.ErrCaptureUnsupported
}
