package core

// Frame is a raw binary payload (a serialized signaling envelope).
type Frame []byte

// SignalConnection is one relay-side client socket. TrySend never blocks;
// the owning adapter drains the queue and must Close it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SendFunc delivers one serialized signaling message to the paired endpoint.
// Delivery is fire-and-forget: the core never consumes an acknowledgment,
// only submission order matters.
type SendFunc func(Frame) error
