// Package media implements the capture contract on pion/mediadevices.
package media

import (
	"sync"

	"github.com/avelin/peercall/internal/core"
	"github.com/pion/webrtc/v4"
)

// Stream is a plain core.MediaStream over wrapped local tracks.
type Stream struct {
	tracks []core.LocalTrack
}

func NewStream(tracks ...core.LocalTrack) *Stream {
	return &Stream{tracks: tracks}
}

func (s *Stream) Tracks() []core.LocalTrack { return s.tracks }

func (s *Stream) AudioTracks() []core.LocalTrack { return s.byKind(webrtc.RTPCodecTypeAudio) }

func (s *Stream) VideoTracks() []core.LocalTrack { return s.byKind(webrtc.RTPCodecTypeVideo) }

func (s *Stream) byKind(kind webrtc.RTPCodecType) []core.LocalTrack {
	var out []core.LocalTrack
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// Track wraps any webrtc.TrackLocal with the enabled flag and stop hook the
// session mutates. Capture adapters provide the stop function; wrapping a
// static sample track with a nil stop is how tests build streams.
type Track struct {
	inner webrtc.TrackLocal
	stop  func()

	mu      sync.Mutex
	enabled bool
	stopped bool
}

var _ core.LocalTrack = (*Track)(nil)

func NewTrack(inner webrtc.TrackLocal, stop func()) *Track {
	return &Track{inner: inner, stop: stop, enabled: true}
}

func (t *Track) Kind() webrtc.RTPCodecType { return t.inner.Kind() }

func (t *Track) ID() string { return t.inner.ID() }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *Track) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	stop := t.stop
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (t *Track) Unwrap() webrtc.TrackLocal { return t.inner }
