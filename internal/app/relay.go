package app

import (
	"encoding/json"

	"github.com/medline/teleconsult/internal/core"
	"github.com/medline/teleconsult/internal/domain"
	"github.com/rs/zerolog"
)

// Relay is the stateless signaling router. It resolves the destination
// through the presence registry and forwards the envelope unmodified.
// There is no buffering, no retry and no acknowledgment: reliability
// under loss belongs to the call session, not to this layer.
type Relay struct {
	registry *Registry
	logger   zerolog.Logger
}

func NewRelay(registry *Registry, logger *zerolog.Logger) *Relay {
	return &Relay{
		registry: registry,
		logger:   logger.With().Str("module", "app.relay").Logger(),
	}
}

// Route delivers env to env.To if that participant is online, else drops
// it silently. env.From must already carry the transport-level sender
// identity; Route never derives it from client-supplied payload.
func (rl *Relay) Route(env domain.Envelope) {
	conn, ok := rl.registry.Lookup(env.To)
	if !ok {
		rl.logger.Debug().
			Str("to", string(env.To)).
			Str("type", string(env.Data.Type)).
			Msg("destination offline, envelope dropped")
		return
	}

	frame, err := json.Marshal(env)
	if err != nil {
		rl.logger.Error().Err(err).Str("to", string(env.To)).Msg("failed to marshal envelope")
		return
	}
	if err := conn.TrySend(core.Frame(frame)); err != nil {
		// Slow or dead endpoint; same contract as offline, no feedback
		// to the sender.
		rl.logger.Debug().
			Err(err).
			Str("to", string(env.To)).
			Str("type", string(env.Data.Type)).
			Msg("delivery failed, envelope dropped")
	}
}
