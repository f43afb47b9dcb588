package app

import (
	"sync"

	"github.com/avelin/peercall/internal/core"
	"github.com/avelin/peercall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// fakeTrack is a minimal core.LocalTrack for session-level tests.
type fakeTrack struct {
	kind    webrtc.RTPCodecType
	id      string
	mu      sync.Mutex
	enabled bool
	stopped bool
}

func newFakeTrack(kind webrtc.RTPCodecType, id string) *fakeTrack {
	return &fakeTrack{kind: kind, id: id, enabled: true}
}

func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *fakeTrack) ID() string                { return t.id }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTrack) Unwrap() webrtc.TrackLocal { return nil }

type fakeStream struct {
	tracks []core.LocalTrack
}

func newFakeStream(tracks ...core.LocalTrack) *fakeStream {
	return &fakeStream{tracks: tracks}
}

func (s *fakeStream) Tracks() []core.LocalTrack { return s.tracks }

func (s *fakeStream) AudioTracks() []core.LocalTrack { return s.byKind(webrtc.RTPCodecTypeAudio) }
func (s *fakeStream) VideoTracks() []core.LocalTrack { return s.byKind(webrtc.RTPCodecTypeVideo) }

func (s *fakeStream) byKind(kind webrtc.RTPCodecType) []core.LocalTrack {
	var out []core.LocalTrack
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// fakeMediaSource hands out fresh fake streams and counts acquisitions.
type fakeMediaSource struct {
	mu             sync.Mutex
	acquires       int
	cameraAcquires []string
	devices        []core.DeviceInfo
	err            error
}

func (m *fakeMediaSource) Acquire(video, audio bool) (core.MediaStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.acquires++
	var tracks []core.LocalTrack
	if audio {
		tracks = append(tracks, newFakeTrack(webrtc.RTPCodecTypeAudio, "mic"))
	}
	if video {
		tracks = append(tracks, newFakeTrack(webrtc.RTPCodecTypeVideo, "cam"))
	}
	return newFakeStream(tracks...), nil
}

func (m *fakeMediaSource) AcquireCamera(deviceID string, audio bool) (core.MediaStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.cameraAcquires = append(m.cameraAcquires, deviceID)
	tracks := []core.LocalTrack{newFakeTrack(webrtc.RTPCodecTypeVideo, "cam-"+deviceID)}
	if audio {
		tracks = append(tracks, newFakeTrack(webrtc.RTPCodecTypeAudio, "mic"))
	}
	return newFakeStream(tracks...), nil
}

func (m *fakeMediaSource) VideoInputs() ([]core.DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices, nil
}

func (m *fakeMediaSource) acquireCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquires
}

// fakeNegotiator records every call and produces canned offers/answers.
type fakeNegotiator struct {
	local domain.PeerName

	mu         sync.Mutex
	opened     bool
	closed     bool
	attached   []core.MediaStream
	offers     int
	answers    int
	remoteAns  int
	candidates int
	replaced   []core.LocalTrack
	onState    func(webrtc.PeerConnectionState)
	onRemote   func(*core.RemoteStream)
}

func (n *fakeNegotiator) Open([]string) error {
	n.mu.Lock()
	n.opened = true
	n.mu.Unlock()
	return nil
}

func (n *fakeNegotiator) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
}

func (n *fakeNegotiator) AttachLocalTracks(s core.MediaStream) error {
	n.mu.Lock()
	n.attached = append(n.attached, s)
	n.mu.Unlock()
	return nil
}

func (n *fakeNegotiator) CreateOffer() (*domain.SignalingMessage, error) {
	n.mu.Lock()
	n.offers++
	n.mu.Unlock()
	return &domain.SignalingMessage{
		Type: domain.MessageOffer,
		From: n.local,
		SDP:  &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 fake offer"},
	}, nil
}

func (n *fakeNegotiator) HandleOffer(*domain.SignalingMessage) (*domain.SignalingMessage, error) {
	n.mu.Lock()
	n.answers++
	n.mu.Unlock()
	return &domain.SignalingMessage{
		Type: domain.MessageAnswer,
		From: n.local,
		SDP:  &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 fake answer"},
	}, nil
}

func (n *fakeNegotiator) HandleAnswer(*domain.SignalingMessage) error {
	n.mu.Lock()
	n.remoteAns++
	n.mu.Unlock()
	return nil
}

func (n *fakeNegotiator) HandleCandidate(*domain.SignalingMessage) error {
	n.mu.Lock()
	n.candidates++
	n.mu.Unlock()
	return nil
}

func (n *fakeNegotiator) ReplaceVideoTrack(t core.LocalTrack) error {
	n.mu.Lock()
	n.replaced = append(n.replaced, t)
	n.mu.Unlock()
	return nil
}

func (n *fakeNegotiator) OnConnectionState(fn func(webrtc.PeerConnectionState)) {
	n.mu.Lock()
	n.onState = fn
	n.mu.Unlock()
}

func (n *fakeNegotiator) OnRemoteStream(fn func(*core.RemoteStream)) {
	n.mu.Lock()
	n.onRemote = fn
	n.mu.Unlock()
}

func (n *fakeNegotiator) fireState(s webrtc.PeerConnectionState) {
	n.mu.Lock()
	fn := n.onState
	n.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (n *fakeNegotiator) offerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offers
}

func (n *fakeNegotiator) answerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.answers
}

func (n *fakeNegotiator) remoteAnswerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.remoteAns
}

func (n *fakeNegotiator) candidateCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.candidates
}

func (n *fakeNegotiator) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// negotiatorRecorder builds fakes and remembers them in creation order.
type negotiatorRecorder struct {
	mu      sync.Mutex
	created []*fakeNegotiator
}

func (r *negotiatorRecorder) factory(local domain.PeerName, _ core.SendFunc) core.Negotiator {
	n := &fakeNegotiator{local: local}
	r.mu.Lock()
	r.created = append(r.created, n)
	r.mu.Unlock()
	return n
}

func (r *negotiatorRecorder) last() *fakeNegotiator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.created) == 0 {
		return nil
	}
	return r.created[len(r.created)-1]
}

func (r *negotiatorRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created)
}

// frameSink collects outbound frames.
type frameSink struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (s *frameSink) send(f core.Frame) error {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	return nil
}

func (s *frameSink) messages(t testingT) []*domain.SignalingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.SignalingMessage, 0, len(s.frames))
	for _, f := range s.frames {
		msg, err := domain.ParseSignalingMessage(f)
		if err != nil {
			t.Fatalf("sink holds malformed frame: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

type testingT interface {
	Fatalf(format string, args ...any)
}
