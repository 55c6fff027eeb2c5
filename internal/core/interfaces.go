// Package core holds the interfaces between the call logic and its
// transport/media adapters. It has no transport or lifecycle logic.
package core

// Frame is a raw signaling payload.
type Frame []byte

// SignalConnection abstracts a participant's transport connection.
// Owned by the adapter; the adapter must Close() it. The presence
// registry only holds it, it never closes it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
