package core

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

var (
	ErrNoDevice           = errors.New("no capture device available")
	ErrCaptureFailed      = errors.New("media capture failed")
	ErrCaptureUnsupported = errors.New("media capture not supported on this platform")
)

// DeviceInfo describes one enumerated video input. Order within the
// enumeration result is stable per platform and drives camera cycling.
type DeviceInfo struct {
	ID    string
	Label string
}

// LocalTrack is one captured track owned by the session. SetEnabled mutes or
// unmutes in place without touching negotiation state.
type LocalTrack interface {
	Kind() webrtc.RTPCodecType
	ID() string
	Enabled() bool
	SetEnabled(bool)
	Stop()
	// Unwrap returns the underlying track to attach to a PeerConnection.
	Unwrap() webrtc.TrackLocal
}

// MediaStream groups the tracks of one capture. The session owns it and may
// keep it alive across negotiator rebuilds.
type MediaStream interface {
	Tracks() []LocalTrack
	AudioTracks() []LocalTrack
	VideoTracks() []LocalTrack
}

// MediaSource acquires capture streams and enumerates camera devices.
// Both operations may fail (permission denied, no device) and such failures
// must surface to the caller.
type MediaSource interface {
	// Acquire opens mic and/or camera per the requested flags.
	Acquire(video, audio bool) (MediaStream, error)
	// AcquireCamera opens a specific camera by device id, plus audio when
	// requested. Used by camera cycling.
	AcquireCamera(deviceID string, audio bool) (MediaStream, error)
	// VideoInputs lists camera devices in a stable order.
	VideoInputs() ([]DeviceInfo, error)
}

// RemoteStream collects inbound remote tracks as they arrive. It belongs to
// one negotiated connection and is discarded with it.
type RemoteStream struct {
	mu     sync.RWMutex
	tracks []*webrtc.TrackRemote
}

func NewRemoteStream() *RemoteStream {
	return &RemoteStream{}
}

func (s *RemoteStream) AddTrack(t *webrtc.TrackRemote) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *RemoteStream) Tracks() []*webrtc.TrackRemote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*webrtc.TrackRemote, len(s.tracks))
	copy(out, s.tracks)
	return out
}
