package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/avelin/peercall/internal/core"
	"github.com/avelin/peercall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNotOpen = errors.New("negotiator not open")

// Negotiator wraps one pion PeerConnection and drives the offer/answer and
// trickle ICE exchange for a single negotiated connection.
//
// Remote candidates arriving before the remote description is committed are
// buffered and flushed in arrival order once it is; pion would reject them
// otherwise.
type Negotiator struct {
	local domain.PeerName
	send  core.SendFunc
	api   *webrtc.API

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	remote  *core.RemoteStream
	pending []webrtc.ICECandidateInit
	closed  bool

	onState        func(webrtc.PeerConnectionState)
	onRemoteStream func(*core.RemoteStream)
}

var _ core.Negotiator = (*Negotiator)(nil)

func New(local domain.PeerName, send core.SendFunc) *Negotiator {
	return &Negotiator{local: local, send: send}
}

// NewWithAPI builds a negotiator whose PeerConnections come from a custom
// webrtc API, carrying the codec registrations of a capture source.
func NewWithAPI(api *webrtc.API, local domain.PeerName, send core.SendFunc) *Negotiator {
	return &Negotiator{local: local, send: send, api: api}
}

// Factory adapts New to the core.NegotiatorFactory signature.
func Factory(local domain.PeerName, send core.SendFunc) core.Negotiator {
	return New(local, send)
}

// FactoryWithAPI returns a core.NegotiatorFactory bound to the given API.
func FactoryWithAPI(api *webrtc.API) core.NegotiatorFactory {
	return func(local domain.PeerName, send core.SendFunc) core.Negotiator {
		return NewWithAPI(api, local, send)
	}
}

func (n *Negotiator) Open(stunServers []string) error {
	cfg := webrtc.Configuration{}
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if n.api != nil {
		pc, err = n.api.NewPeerConnection(cfg)
	} else {
		pc, err = webrtc.NewPeerConnection(cfg)
	}
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", string(n.local)).Str("state", s.String()).Msg("peer state")
		n.mu.Lock()
		cb := n.onState
		n.mu.Unlock()
		if cb != nil {
			cb(s)
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		n.sendMessage(&domain.SignalingMessage{
			Type:      domain.MessageCandidate,
			Candidate: &ci,
		})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("peer", string(n.local)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		n.mu.Lock()
		if n.remote == nil {
			n.remote = core.NewRemoteStream()
		}
		n.remote.AddTrack(track)
		stream := n.remote
		cb := n.onRemoteStream
		n.mu.Unlock()
		if cb != nil {
			cb(stream)
		}
	})

	n.mu.Lock()
	n.pc = pc
	n.closed = false
	n.mu.Unlock()
	return nil
}

func (n *Negotiator) AttachLocalTracks(stream core.MediaStream) error {
	n.mu.Lock()
	pc := n.pc
	n.mu.Unlock()
	if pc == nil {
		return ErrNotOpen
	}
	for _, t := range stream.Tracks() {
		if _, err := pc.AddTrack(t.Unwrap()); err != nil {
			return fmt.Errorf("add track %s: %w", t.ID(), err)
		}
	}
	return nil
}

func (n *Negotiator) CreateOffer() (*domain.SignalingMessage, error) {
	n.mu.Lock()
	pc := n.pc
	n.mu.Unlock()
	if pc == nil {
		return nil, ErrNotOpen
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	// Local description commits before the offer is sent; candidates trickle
	// separately so there is no wait for gathering here.
	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return &domain.SignalingMessage{Type: domain.MessageOffer, From: n.local, SDP: &offer}, nil
}

func (n *Negotiator) HandleOffer(msg *domain.SignalingMessage) (*domain.SignalingMessage, error) {
	n.mu.Lock()
	pc := n.pc
	n.mu.Unlock()
	if pc == nil {
		return nil, ErrNotOpen
	}
	if err := pc.SetRemoteDescription(*msg.SDP); err != nil {
		return nil, fmt.Errorf("set remote offer: %w", err)
	}
	n.flushPending(pc)
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local answer: %w", err)
	}
	return &domain.SignalingMessage{Type: domain.MessageAnswer, From: n.local, SDP: &answer}, nil
}

func (n *Negotiator) HandleAnswer(msg *domain.SignalingMessage) error {
	n.mu.Lock()
	pc := n.pc
	n.mu.Unlock()
	if pc == nil {
		return ErrNotOpen
	}
	if err := pc.SetRemoteDescription(*msg.SDP); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	n.flushPending(pc)
	return nil
}

func (n *Negotiator) HandleCandidate(msg *domain.SignalingMessage) error {
	n.mu.Lock()
	pc := n.pc
	if pc == nil {
		n.mu.Unlock()
		return ErrNotOpen
	}
	if pc.RemoteDescription() == nil {
		n.pending = append(n.pending, *msg.Candidate)
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()
	if err := pc.AddICECandidate(*msg.Candidate); err != nil {
		// A single bad candidate never aborts the session.
		log.Warn().Err(err).Str("module", "rtc").Str("peer", string(n.local)).Msg("add ice candidate")
	}
	return nil
}

// flushPending applies candidates buffered before the remote description was
// committed, preserving arrival order. Caller must not hold n.mu.
func (n *Negotiator) flushPending(pc *webrtc.PeerConnection) {
	n.mu.Lock()
	pending := n.pending
	n.pending = nil
	n.mu.Unlock()
	for _, ci := range pending {
		if err := pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("peer", string(n.local)).Msg("flush ice candidate")
		}
	}
}

func (n *Negotiator) ReplaceVideoTrack(track core.LocalTrack) error {
	n.mu.Lock()
	pc := n.pc
	n.mu.Unlock()
	if pc == nil {
		return ErrNotOpen
	}
	for _, sender := range pc.GetSenders() {
		t := sender.Track()
		if t == nil || t.Kind() != webrtc.RTPCodecTypeVideo {
			continue
		}
		// In-place swap on the RTPSender, no renegotiation round trip.
		if err := sender.ReplaceTrack(track.Unwrap()); err != nil {
			return fmt.Errorf("replace video track: %w", err)
		}
		return nil
	}
	return errors.New("no outbound video sender")
}

func (n *Negotiator) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	pc := n.pc
	n.pc = nil
	n.pending = nil
	n.mu.Unlock()

	if pc != nil {
		if err := pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("peer", string(n.local)).Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Str("peer", string(n.local)).Msg("closed")
		}
	}
}

func (n *Negotiator) OnConnectionState(fn func(webrtc.PeerConnectionState)) {
	n.mu.Lock()
	n.onState = fn
	n.mu.Unlock()
}

func (n *Negotiator) OnRemoteStream(fn func(*core.RemoteStream)) {
	n.mu.Lock()
	n.onRemoteStream = fn
	n.mu.Unlock()
}

func (n *Negotiator) sendMessage(msg *domain.SignalingMessage) {
	msg.From = n.local
	data, err := msg.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("encode signaling message")
		return
	}
	if err := n.send(data); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("peer", string(n.local)).Msg("send signaling message")
	}
}

// PendingCandidates reports how many remote candidates wait for the remote
// description. Used by health logging.
func (n *Negotiator) PendingCandidates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}
