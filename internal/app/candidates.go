package app

import "encoding/json"

// candidateBuffer holds ICE candidates that arrived before the remote
// description was set. Single-owner per session, so no locking here;
// the session serializes access. Order is preserved: candidates must be
// applied after the remote description but in arrival order.
type candidateBuffer struct {
	pending []json.RawMessage
}

func (b *candidateBuffer) push(candidate json.RawMessage) {
	b.pending = append(b.pending, candidate)
}

// flush returns the buffered candidates in arrival order and clears the
// buffer.
func (b *candidateBuffer) flush() []json.RawMessage {
	out := b.pending
	b.pending = nil
	return out
}

func (b *candidateBuffer) len() int { return len(b.pending) }
