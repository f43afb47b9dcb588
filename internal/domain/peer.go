// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxPeerNameLen = 36

var (
	ErrPeerNameEmpty   = errors.New("peer name empty")
	ErrPeerNameTooLong = errors.New("peer name too long")
)

// PeerName identifies one participant of a call. Names are chosen by the
// participants themselves; the relay never inspects them.
type PeerName string

func NewPeerName(name string) (PeerName, error) {
	if len(name) == 0 {
		return "", ErrPeerNameEmpty
	}
	if len(name) > MaxPeerNameLen {
		return "", ErrPeerNameTooLong
	}
	return PeerName(name), nil
}
