package domain

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	MessageOffer     MessageType = "offer"
	MessageAnswer    MessageType = "answer"
	MessageCandidate MessageType = "candidate"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedMessage   = errors.New("malformed signaling message")
)

// SignalingMessage is the wire envelope exchanged over the relay.
// Exactly one of SDP/Candidate is set, matching Type: offer and answer carry
// a session description, candidate carries a trickled ICE candidate.
type SignalingMessage struct {
	Type      MessageType                `json:"type"`
	From      PeerName                   `json:"from"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

func (m *SignalingMessage) Validate() error {
	switch m.Type {
	case MessageOffer, MessageAnswer:
		if m.SDP == nil || m.Candidate != nil {
			return ErrMalformedMessage
		}
	case MessageCandidate:
		if m.Candidate == nil || m.SDP != nil {
			return ErrMalformedMessage
		}
	default:
		return ErrUnknownMessageType
	}
	return nil
}

// ParseSignalingMessage decodes a raw relay frame. The envelope is validated;
// the SDP and candidate payloads stay opaque until the negotiator applies them.
func ParseSignalingMessage(data []byte) (*SignalingMessage, error) {
	var m SignalingMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ErrMalformedMessage
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *SignalingMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}
