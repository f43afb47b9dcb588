package core

import (
	"github.com/avelin/peercall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Negotiator owns one underlying peer connection and translates between
// call-control intents and signaling traffic. A negotiator never outlives a
// single Open/Close cycle; the session replaces it wholesale on reconnect.
type Negotiator interface {
	// Open creates the underlying connection configured with the given STUN
	// servers and registers state/candidate/track observation before any
	// media is attached.
	Open(stunServers []string) error
	// Close terminates the underlying connection. Idempotent.
	Close()
	// AttachLocalTracks adds every track of the capture stream. Safe to call
	// either right after Open or once capture completes asynchronously.
	AttachLocalTracks(MediaStream) error
	// CreateOffer generates and commits a local offer. Requires Open.
	CreateOffer() (*domain.SignalingMessage, error)
	// HandleOffer commits the remote offer and returns the matching answer.
	// This is the only path that produces an answer message.
	HandleOffer(*domain.SignalingMessage) (*domain.SignalingMessage, error)
	// HandleAnswer commits the remote answer. No response is produced.
	HandleAnswer(*domain.SignalingMessage) error
	// HandleCandidate applies a remote ICE candidate, buffering it until the
	// remote description is committed.
	HandleCandidate(*domain.SignalingMessage) error
	// ReplaceVideoTrack swaps the outbound video sender's track in place,
	// with no renegotiation.
	ReplaceVideoTrack(LocalTrack) error
	// OnConnectionState sets a callback for peer connection state changes.
	OnConnectionState(func(webrtc.PeerConnectionState))
	// OnRemoteStream sets a callback fired each time a remote track is added
	// to the (lazily created) remote stream.
	OnRemoteStream(func(*RemoteStream))
}

// NegotiatorFactory builds a fresh negotiator wired to an outbound sender.
// The session calls it on init and again on every reconnect.
type NegotiatorFactory func(local domain.PeerName, send SendFunc) Negotiator
