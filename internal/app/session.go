package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/medline/teleconsult/internal/core"
	"github.com/medline/teleconsult/internal/domain"
	"github.com/rs/zerolog"
)

var (
	ErrSessionNotIdle = errors.New("session already started")
	ErrNoPendingOffer = errors.New("no pending offer to accept")
	ErrAttemptActive  = errors.New("call attempt already active")
)

// CallState is the lifecycle of one call attempt. Ended is terminal and
// reachable from every other state.
type CallState string

const (
	StateIdle      CallState = "idle"
	StateOffering  CallState = "offering"
	StateAnswering CallState = "answering"
	StateConnected CallState = "connected"
	StateEnded     CallState = "ended"
)

// StatusPreparing is shown while local media is being acquired; once ICE
// starts the raw ICE connection state takes over the status line.
const StatusPreparing = "preparing"

// SessionEvents receives user-visible outcomes. Implementations must not
// call back into the session from OnEnded.
type SessionEvents interface {
	OnStatus(attempt domain.CallAttemptID, status string)
	OnEnded(attempt domain.CallAttemptID, reason domain.EndReason)
}

// Session is one call attempt's aggregate state. It exclusively owns the
// local media handle and the peer connection and releases both on every
// exit path. All mutation is serialized through mu; the only concurrent
// actors are the inbound signaling pump and local UI actions.
type Session struct {
	attempt domain.CallAttemptID
	self    domain.ParticipantID
	remote  domain.ParticipantID
	offerer bool

	devices core.MediaDevices
	peers   core.PeerFactory
	send    func(domain.Envelope)
	events  SessionEvents
	logger  zerolog.Logger

	mu            sync.Mutex
	state         CallState
	media         core.LocalMedia
	peer          core.MediaConnection
	buf           candidateBuffer
	remoteDescSet bool
	pendingOffer  json.RawMessage
	wasEngaged    bool
}

type sessionConfig struct {
	Attempt domain.CallAttemptID
	Self    domain.ParticipantID
	Remote  domain.ParticipantID
	Devices core.MediaDevices
	Peers   core.PeerFactory
	Send    func(domain.Envelope)
	Events  SessionEvents
	Logger  *zerolog.Logger
}

func newSession(cfg sessionConfig, offerer bool) *Session {
	return &Session{
		attempt: cfg.Attempt,
		self:    cfg.Self,
		remote:  cfg.Remote,
		offerer: offerer,
		devices: cfg.Devices,
		peers:   cfg.Peers,
		send:    cfg.Send,
		events:  cfg.Events,
		logger: cfg.Logger.With().
			Str("module", "app.session").
			Str("attempt", string(cfg.Attempt)).
			Bool("offerer", offerer).
			Logger(),
		state: StateIdle,
	}
}

func (s *Session) Attempt() domain.CallAttemptID { return s.attempt }
func (s *Session) Remote() domain.ParticipantID  { return s.remote }

func (s *Session) State() CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartOffer drives the offerer entry: acquire media, create the peer
// connection, send the offer. Media failure is fatal for the attempt and
// nothing is ever sent to the relay in that case.
func (s *Session) StartOffer(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionNotIdle
	}
	s.wasEngaged = true
	s.events.OnStatus(s.attempt, StatusPreparing)

	if err := s.setupMediaLocked(ctx); err != nil {
		reason := s.endLocked(domain.EndMediaFailure)
		s.mu.Unlock()
		s.fireEnded(reason)
		return err
	}

	offer, err := s.peer.CreateOffer(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("create offer failed")
		reason := s.endLocked(domain.EndMediaFailure)
		s.mu.Unlock()
		s.fireEnded(reason)
		return err
	}

	s.state = StateOffering
	s.mu.Unlock()

	s.send(domain.NewOffer(s.remote, s.attempt, s.self, offer))
	s.logger.Info().Str("to", string(s.remote)).Msg("offer sent")
	return nil
}

// Accept drives the answerer entry after the user takes the call: media,
// peer connection, remote description from the buffered offer, flush of
// early candidates, then the answer.
func (s *Session) Accept(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle || s.pendingOffer == nil {
		s.mu.Unlock()
		return ErrNoPendingOffer
	}
	s.state = StateAnswering
	s.wasEngaged = true
	s.events.OnStatus(s.attempt, StatusPreparing)

	if err := s.setupMediaLocked(ctx); err != nil {
		reason := s.endLocked(domain.EndMediaFailure)
		s.mu.Unlock()
		s.fireEnded(reason)
		return err
	}

	answer, err := s.peer.AcceptOffer(ctx, s.pendingOffer)
	if err != nil {
		s.logger.Error().Err(err).Msg("accept offer failed")
		reason := s.endLocked(domain.EndMediaFailure)
		s.mu.Unlock()
		s.fireEnded(reason)
		return err
	}
	s.pendingOffer = nil
	s.remoteDescSet = true
	s.applyBufferedLocked()
	s.state = StateConnected
	s.mu.Unlock()

	s.send(domain.NewAnswer(s.remote, answer))
	s.logger.Info().Str("to", string(s.remote)).Msg("answer sent")
	return nil
}

// Reject declines a not-yet-accepted incoming call and terminates the
// session locally.
func (s *Session) Reject() {
	s.send(domain.NewReject(s.remote))
	s.mu.Lock()
	reason := s.endLocked(domain.EndLocalHangUp)
	s.mu.Unlock()
	s.fireEnded(reason)
}

// HangUp is the sole cancellation primitive. Safe to call in any state,
// any number of times; the EndCall signal is fire-and-forget.
func (s *Session) HangUp() {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.send(domain.NewEndCall(s.remote))

	s.mu.Lock()
	reason := s.endLocked(domain.EndLocalHangUp)
	s.mu.Unlock()
	s.fireEnded(reason)
}

// ToggleMic flips the microphone track and reports the new enabled
// state. Pure side effect: no state transition, no renegotiation, no-op
// without a media handle.
func (s *Session) ToggleMic() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.media == nil {
		return false
	}
	on := !s.media.AudioEnabled()
	s.media.SetAudioEnabled(on)
	return on
}

// ToggleCam flips the camera track, same contract as ToggleMic.
func (s *Session) ToggleCam() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.media == nil {
		return false
	}
	on := !s.media.VideoEnabled()
	s.media.SetVideoEnabled(on)
	return on
}

// HandleSignal processes one inbound envelope for this attempt. Stale
// messages (ended session) and envelopes whose sender does not match the
// expected counterpart are discarded without error.
func (s *Session) HandleSignal(env domain.Envelope) {
	if env.From != s.remote {
		s.logger.Debug().Str("from", string(env.From)).Msg("sender mismatch, discarded")
		return
	}

	switch env.Data.Type {
	case domain.SignalAnswer:
		s.handleAnswer(env.Data.Answer)
	case domain.SignalCandidate:
		s.handleCandidate(env.Data.Candidate)
	case domain.SignalReject, domain.SignalEndCall:
		s.handleRemoteEnd()
	default:
		s.logger.Debug().Str("type", string(env.Data.Type)).Msg("unexpected signal, discarded")
	}
}

// handleAnswer is only valid in Offering; duplicate or late answers are
// ignored so they cannot disturb an established or ended session.
func (s *Session) handleAnswer(answer json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOffering {
		s.logger.Debug().Str("state", string(s.state)).Msg("answer outside offering, ignored")
		return
	}
	if err := s.peer.ApplyAnswer(answer); err != nil {
		s.logger.Error().Err(err).Msg("apply answer failed")
		return
	}
	s.remoteDescSet = true
	s.applyBufferedLocked()
	s.state = StateConnected
	s.logger.Info().Msg("connected")
}

func (s *Session) handleCandidate(candidate json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return
	}
	if !s.remoteDescSet {
		s.buf.push(candidate)
		s.logger.Debug().Int("pending", s.buf.len()).Msg("candidate buffered")
		return
	}
	if err := s.peer.AddICECandidate(candidate); err != nil {
		// Bad candidates are not fatal; the ICE agent keeps probing with
		// the rest.
		s.logger.Error().Err(err).Msg("add candidate failed")
	}
}

func (s *Session) handleRemoteEnd() {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	reason := s.endLocked(domain.EndRemote)
	s.mu.Unlock()
	s.fireEnded(reason)
}

// setupMediaLocked acquires local media and builds the peer connection,
// wiring candidate gathering and status callbacks.
func (s *Session) setupMediaLocked(ctx context.Context) error {
	media, err := s.devices.Acquire(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("media acquisition failed")
		return err
	}
	peer, err := s.peers.NewConnection(ctx, media)
	if err != nil {
		s.logger.Error().Err(err).Msg("peer connection failed")
		media.Stop()
		return err
	}
	s.media = media
	s.peer = peer

	// Local candidates go out as soon as they are gathered; buffering is
	// only ever for the inbound direction. Late candidates after an end
	// are harmless, the remote discards them as stale.
	peer.OnICECandidate(func(candidate json.RawMessage) {
		s.send(domain.NewCandidate(s.remote, candidate))
	})
	peer.OnICEStateChange(func(state string) {
		s.events.OnStatus(s.attempt, state)
	})
	return nil
}

func (s *Session) applyBufferedLocked() {
	for _, candidate := range s.buf.flush() {
		if err := s.peer.AddICECandidate(candidate); err != nil {
			s.logger.Error().Err(err).Msg("add buffered candidate failed")
		}
	}
}

// endLocked performs the idempotent terminal transition: stop media,
// close the peer connection, drop buffered candidates. Returns the empty
// reason when the session was already Ended so callers can skip the
// notification.
func (s *Session) endLocked(reason domain.EndReason) domain.EndReason {
	if s.state == StateEnded {
		return ""
	}
	s.state = StateEnded
	if s.media != nil {
		s.media.Stop()
		s.media = nil
	}
	if s.peer != nil {
		s.peer.Close()
		s.peer = nil
	}
	s.buf.flush()
	s.pendingOffer = nil
	s.logger.Info().Str("reason", string(reason)).Msg("session ended")
	return reason
}

// engaged reports whether this session ever left Idle; never-accepted
// incoming attempts end without a feedback prompt.
func (s *Session) engaged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wasEngaged
}

// abandon terminates a superseded ringing session without notifying
// anyone; the replacing offer takes over the dialog.
func (s *Session) abandon() {
	s.mu.Lock()
	s.endLocked(domain.EndLocalHangUp)
	s.mu.Unlock()
}

// fireEnded notifies the orchestrator exactly once, outside the lock.
func (s *Session) fireEnded(reason domain.EndReason) {
	if reason == "" {
		return
	}
	s.events.OnEnded(s.attempt, reason)
}
