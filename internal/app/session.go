package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/avelin/peercall/internal/core"
	"github.com/avelin/peercall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNotInitialized = errors.New("session not initialized")

// SessionConfig carries the immutable identity pair and the ICE hints for
// every negotiator the session builds.
type SessionConfig struct {
	Local       domain.PeerName
	Remote      domain.PeerName
	STUNServers []string
}

// Session orchestrates one two-party call. It owns a single negotiator at a
// time, replaced wholesale on reconnect, and the local capture stream, which
// survives reconnects. The remote stream belongs to the negotiated connection
// and is discarded with it.
//
// A connection state of failed or disconnected triggers an unconditional
// rebuild: close the negotiator, keep the local stream, open a fresh
// negotiator, re-offer. There is no backoff and no retry cap.
type Session struct {
	cfg           SessionConfig
	send          core.SendFunc
	media         core.MediaSource
	newNegotiator core.NegotiatorFactory
	bus           *EventBus

	mu           sync.Mutex
	neg          core.Negotiator
	localStream  core.MediaStream
	remoteStream *core.RemoteStream
	micEnabled   bool
	videoEnabled bool
	camera       string
	initialized  bool
	reusedStream bool
}

func NewSession(cfg SessionConfig, send core.SendFunc, media core.MediaSource, factory core.NegotiatorFactory) *Session {
	return &Session{
		cfg:           cfg,
		send:          send,
		media:         media,
		newNegotiator: factory,
		bus:           NewEventBus(),
		micEnabled:    true,
		videoEnabled:  true,
	}
}

// Events exposes the bus observers subscribe on.
func (s *Session) Events() *EventBus { return s.bus }

// Init builds and opens a fresh negotiator and brings up local media. When a
// local stream already exists (reconnect path) its tracks are reattached
// instead of re-captured; that is what preserves the camera across rebuilds.
func (s *Session) Init() error {
	s.mu.Lock()
	err := s.initLocked()
	emitLocal := err == nil && s.localStream != nil && !s.reusedStream
	stream := s.localStream
	s.mu.Unlock()
	if emitLocal {
		s.bus.Emit(EventLocalStream, stream)
	}
	return err
}

func (s *Session) initLocked() error {
	neg := s.newNegotiator(s.cfg.Local, s.send)

	neg.OnConnectionState(func(state webrtc.PeerConnectionState) {
		s.bus.Emit(EventConnectionState, state)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateDisconnected {
			go s.reconnect(neg)
		}
	})

	neg.OnRemoteStream(func(stream *core.RemoteStream) {
		s.mu.Lock()
		s.remoteStream = stream
		s.mu.Unlock()
		s.bus.Emit(EventRemoteStream, stream)
	})

	if err := neg.Open(s.cfg.STUNServers); err != nil {
		return fmt.Errorf("open negotiator: %w", err)
	}

	if s.localStream == nil {
		stream, err := s.media.Acquire(s.videoEnabled, s.micEnabled)
		if err != nil {
			neg.Close()
			return fmt.Errorf("acquire local media: %w", err)
		}
		s.localStream = stream
		s.reusedStream = false
	} else {
		s.reusedStream = true
	}

	if err := neg.AttachLocalTracks(s.localStream); err != nil {
		neg.Close()
		return fmt.Errorf("attach local tracks: %w", err)
	}

	s.neg = neg
	s.initialized = true
	return nil
}

// StartCall produces and sends an offer. Init must have completed first.
// Calling it again while already in a call re-offers; callers that need to
// guard against that must do so themselves.
func (s *Session) StartCall() error {
	s.mu.Lock()
	neg := s.neg
	initialized := s.initialized
	s.mu.Unlock()
	if !initialized || neg == nil {
		return ErrNotInitialized
	}
	offer, err := neg.CreateOffer()
	if err != nil {
		return fmt.Errorf("start call: %w", err)
	}
	return s.sendMessage(offer)
}

// OnSignalingMessage is the inbound intake the transport calls once per
// received payload, in arrival order. Traffic from any sender other than the
// configured remote peer is discarded without touching the negotiator, as are
// malformed envelopes; the relay fans out to everyone.
func (s *Session) OnSignalingMessage(data core.Frame) {
	msg, err := domain.ParseSignalingMessage(data)
	if err != nil {
		return
	}
	if msg.From != s.cfg.Remote {
		return
	}

	s.mu.Lock()
	neg := s.neg
	s.mu.Unlock()
	if neg == nil {
		return
	}

	switch msg.Type {
	case domain.MessageOffer:
		answer, err := neg.HandleOffer(msg)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.session").Msg("handle offer")
			return
		}
		if err := s.sendMessage(answer); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Msg("send answer")
		}
	case domain.MessageAnswer:
		if err := neg.HandleAnswer(msg); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Msg("handle answer")
		}
	case domain.MessageCandidate:
		if err := neg.HandleCandidate(msg); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Msg("handle candidate")
		}
	}
}

// ToggleMic flips the enabled state of every local audio track in place.
// Local-only: no signaling, no renegotiation; media simply stops flowing.
func (s *Session) ToggleMic(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.micEnabled = enabled
	if s.localStream == nil {
		return
	}
	for _, t := range s.localStream.AudioTracks() {
		t.SetEnabled(enabled)
	}
}

// ToggleVideo is ToggleMic for the video tracks.
func (s *Session) ToggleVideo(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoEnabled = enabled
	if s.localStream == nil {
		return
	}
	for _, t := range s.localStream.VideoTracks() {
		t.SetEnabled(enabled)
	}
}

// FlipCamera switches capture to the next enumerated camera, wrapping around,
// and swaps the outbound video track without renegotiation. With fewer than
// two cameras it is a no-op. An unknown current device counts as index -1 so
// the first camera comes next.
func (s *Session) FlipCamera() error {
	s.mu.Lock()

	cameras, err := s.media.VideoInputs()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("enumerate cameras: %w", err)
	}
	if len(cameras) < 2 {
		s.mu.Unlock()
		return nil
	}

	current := -1
	for i, c := range cameras {
		if c.ID == s.camera {
			current = i
			break
		}
	}
	next := cameras[(current+1)%len(cameras)]

	stream, err := s.media.AcquireCamera(next.ID, s.micEnabled)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("acquire camera %s: %w", next.ID, err)
	}

	videos := stream.VideoTracks()
	if len(videos) == 0 {
		s.mu.Unlock()
		return core.ErrCaptureFailed
	}
	if s.neg != nil {
		if err := s.neg.ReplaceVideoTrack(videos[0]); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	s.camera = next.ID
	s.localStream = stream
	s.mu.Unlock()

	s.bus.Emit(EventLocalStream, stream)
	return nil
}

// reconnect rebuilds the session after a terminal connection state while
// preserving the local capture stream. The stale negotiator pointer guards
// against a late state callback from an instance that was already replaced.
func (s *Session) reconnect(from core.Negotiator) {
	s.mu.Lock()
	if s.neg != from || s.neg == nil {
		s.mu.Unlock()
		return
	}
	log.Info().Str("module", "app.session").Str("peer", string(s.cfg.Local)).Msg("reconnecting")

	s.leaveLocked(false)
	if err := s.initLocked(); err != nil {
		s.mu.Unlock()
		log.Error().Err(err).Str("module", "app.session").Msg("reconnect init")
		return
	}
	stream := s.localStream
	s.mu.Unlock()

	if err := s.StartCall(); err != nil {
		log.Error().Err(err).Str("module", "app.session").Msg("reconnect offer")
		return
	}
	// Observers may have dropped the stream on disconnect; let them rebind.
	if stream != nil {
		s.bus.Emit(EventLocalStream, stream)
	}
}

// Leave tears the session down. Idempotent. With stopMedia the local capture
// tracks are stopped and released; without it the stream stays alive for a
// following Init. The remote stream reference is always dropped.
func (s *Session) Leave(stopMedia bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked(stopMedia)
}

func (s *Session) leaveLocked(stopMedia bool) {
	if s.neg != nil {
		s.neg.Close()
		s.neg = nil
	}
	if stopMedia && s.localStream != nil {
		for _, t := range s.localStream.Tracks() {
			t.Stop()
		}
		s.localStream = nil
	}
	s.remoteStream = nil
	s.initialized = false
}

func (s *Session) sendMessage(msg *domain.SignalingMessage) error {
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	if err := s.send(data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}
