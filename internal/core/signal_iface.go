package core

import "github.com/dkeye/LiveCall/internal/signal"

// Frame is a raw encoded signaling envelope.
type Frame []byte

// SignalConnection abstracts one relay-side client connection.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Transport is the softphone's side of the signaling channel.
// Delivery is at-most-once; per-peer order is preserved.
type Transport interface {
	Send(signal.Message) error
}
