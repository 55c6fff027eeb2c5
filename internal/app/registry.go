package app

import (
	"sync"

	"github.com/medline/teleconsult/internal/core"
	"github.com/medline/teleconsult/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry maps a participant to its single live transport connection.
// It only holds handles; closing them is the transport adapter's job.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ParticipantID]core.SignalConnection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ParticipantID]core.SignalConnection)}
}

// Register binds id to conn, replacing any prior handle. The replaced
// handle is not closed here; its own read loop will notice and clean up.
func (r *Registry) Register(id domain.ParticipantID, conn core.SignalConnection) {
	r.mu.Lock()
	_, replaced := r.conns[id]
	r.conns[id] = conn
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Bool("replaced", replaced).Msg("registered")
}

// Lookup returns the live connection for id. A miss is a normal outcome
// (participant offline), not a failure.
func (r *Registry) Lookup(id domain.ParticipantID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Unregister removes the mapping for id, but only while it still points
// at conn. A disconnect of an already-replaced handle must not evict the
// fresh registration.
func (r *Registry) Unregister(id domain.ParticipantID, conn core.SignalConnection) {
	r.mu.Lock()
	cur, ok := r.conns[id]
	if ok && cur == conn {
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if ok && cur == conn {
		log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("unregistered")
	}
}

// Online reports whether id currently has a live connection.
func (r *Registry) Online(id domain.ParticipantID) bool {
	_, ok := r.Lookup(id)
	return ok
}
