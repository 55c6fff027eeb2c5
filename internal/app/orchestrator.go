package app

import (
	"context"
	"sync"

	"github.com/medline/teleconsult/internal/core"
	"github.com/medline/teleconsult/internal/domain"
	"github.com/rs/zerolog"
)

// Sender delivers envelopes toward the relay. Fire-and-forget: delivery
// is never confirmed and failures are not reported back.
type Sender interface {
	Send(domain.Envelope) error
}

// IncomingCall is handed to the UI when an offer arrives. Accept and
// Reject are one-shot; whichever runs first decides the session.
type IncomingCall struct {
	Attempt domain.CallAttemptID
	Doctor  domain.ParticipantID
	Accept  func(ctx context.Context) error
	Reject  func()
}

// Events is the orchestrator's UI surface.
type Events interface {
	// OnIncoming fires when a doctor's offer arrives.
	OnIncoming(call *IncomingCall)
	// OnStatus carries the connection status line (preparing, then ICE
	// connection states).
	OnStatus(attempt domain.CallAttemptID, status string)
	// OnRemoteEnded is the distinct "the other party ended the call"
	// notice; a local hang-up closes silently without it.
	OnRemoteEnded(attempt domain.CallAttemptID)
	// OnFeedbackPrompt fires exactly once per session that actually got
	// under way.
	OnFeedbackPrompt(attempt domain.CallAttemptID)
}

// Orchestrator binds UI intent to call sessions and inbound envelopes to
// the right session. One instance runs on each side of a call; the roles
// are symmetric apart from who offers.
type Orchestrator struct {
	Self     domain.ParticipantID
	Devices  core.MediaDevices
	Peers    core.PeerFactory
	Sender   Sender
	Events   Events
	Feedback *FeedbackCapture
	Logger   *zerolog.Logger

	mu       sync.Mutex
	sessions map[domain.CallAttemptID]*Session
	byRemote map[domain.ParticipantID]domain.CallAttemptID
}

func (o *Orchestrator) init() {
	if o.sessions == nil {
		o.sessions = make(map[domain.CallAttemptID]*Session)
		o.byRemote = make(map[domain.ParticipantID]domain.CallAttemptID)
	}
}

// StartCall begins an outbound (offerer) attempt toward the patient.
func (o *Orchestrator) StartCall(ctx context.Context, attempt domain.CallAttemptID, to domain.ParticipantID) error {
	if err := attempt.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}

	sess := newSession(o.sessionConfig(attempt, to), true)

	o.mu.Lock()
	o.init()
	if cur, ok := o.sessions[attempt]; ok && cur.State() != StateEnded {
		o.mu.Unlock()
		return ErrAttemptActive
	}
	o.sessions[attempt] = sess
	o.byRemote[to] = attempt
	o.mu.Unlock()

	return sess.StartOffer(ctx)
}

// OnEnvelope dispatches one inbound relay message. Offers open a new
// incoming session; everything else is routed to the session of the
// sending counterpart or silently discarded as stale.
func (o *Orchestrator) OnEnvelope(ctx context.Context, env domain.Envelope) {
	if env.Data.Type == domain.SignalOffer {
		o.onOffer(ctx, env)
		return
	}

	o.mu.Lock()
	o.init()
	var sess *Session
	if attempt, ok := o.byRemote[env.From]; ok {
		sess = o.sessions[attempt]
	}
	o.mu.Unlock()

	if sess == nil {
		o.Logger.Debug().
			Str("module", "app.orchestrator").
			Str("from", string(env.From)).
			Str("type", string(env.Data.Type)).
			Msg("no session for sender, envelope discarded")
		return
	}
	sess.HandleSignal(env)
}

func (o *Orchestrator) onOffer(ctx context.Context, env domain.Envelope) {
	attempt := env.Data.AppointmentID
	if attempt.Validate() != nil || env.From.Validate() != nil {
		return
	}
	// The transport-level sender must be the doctor the offer claims;
	// mismatches are dropped, not surfaced.
	if env.Data.DoctorID != env.From {
		o.Logger.Warn().
			Str("module", "app.orchestrator").
			Str("from", string(env.From)).
			Str("doctor", string(env.Data.DoctorID)).
			Msg("offer sender mismatch, discarded")
		return
	}

	sess := newSession(o.sessionConfig(attempt, env.From), false)
	sess.pendingOffer = env.Data.Offer

	o.mu.Lock()
	o.init()
	if prevAttempt, ok := o.byRemote[env.From]; ok {
		prev := o.sessions[prevAttempt]
		if prev != nil && prev.State() != StateEnded && prev.engaged() {
			// Busy in a live attempt with this counterpart; a fresh
			// offer cannot supersede it.
			o.mu.Unlock()
			o.Logger.Debug().
				Str("module", "app.orchestrator").
				Str("attempt", string(attempt)).
				Msg("offer while busy, discarded")
			return
		}
		if prev != nil {
			// A still-ringing earlier offer is superseded, as in the
			// source: the new offer replaces it and clears its buffer.
			prev.abandon()
			delete(o.sessions, prevAttempt)
		}
	}
	o.sessions[attempt] = sess
	o.byRemote[env.From] = attempt
	o.mu.Unlock()

	o.Events.OnIncoming(&IncomingCall{
		Attempt: attempt,
		Doctor:  env.From,
		Accept:  sess.Accept,
		Reject:  sess.Reject,
	})
}

// HangUp terminates the attempt locally; safe in any state.
func (o *Orchestrator) HangUp(attempt domain.CallAttemptID) {
	if sess := o.session(attempt); sess != nil {
		sess.HangUp()
	}
}

// CloseDialog is the UI dismissal path. The dialog must never close over
// a live peer connection or open media tracks, so a non-terminal session
// is hung up before the dismissal completes.
func (o *Orchestrator) CloseDialog(attempt domain.CallAttemptID) {
	if sess := o.session(attempt); sess != nil && sess.State() != StateEnded {
		sess.HangUp()
	}
}

func (o *Orchestrator) ToggleMic(attempt domain.CallAttemptID) bool {
	if sess := o.session(attempt); sess != nil {
		return sess.ToggleMic()
	}
	return false
}

func (o *Orchestrator) ToggleCam(attempt domain.CallAttemptID) bool {
	if sess := o.session(attempt); sess != nil {
		return sess.ToggleCam()
	}
	return false
}

// SubmitFeedback forwards the post-call rating to the capture step.
func (o *Orchestrator) SubmitFeedback(attempt domain.CallAttemptID, rating int, comment string) error {
	return o.Feedback.Capture(attempt, o.Self, rating, comment)
}

func (o *Orchestrator) session(attempt domain.CallAttemptID) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.init()
	return o.sessions[attempt]
}

func (o *Orchestrator) sessionConfig(attempt domain.CallAttemptID, remote domain.ParticipantID) sessionConfig {
	return sessionConfig{
		Attempt: attempt,
		Self:    o.Self,
		Remote:  remote,
		Devices: o.Devices,
		Peers:   o.Peers,
		Send:    o.sendEnvelope,
		Events:  (*orchestratorEvents)(o),
		Logger:  o.Logger,
	}
}

func (o *Orchestrator) sendEnvelope(env domain.Envelope) {
	if err := o.Sender.Send(env); err != nil {
		// Fire-and-forget by contract; the relay has no ack channel
		// either way.
		o.Logger.Debug().
			Str("module", "app.orchestrator").
			Str("type", string(env.Data.Type)).
			Err(err).
			Msg("send failed")
	}
}

// orchestratorEvents adapts the orchestrator to SessionEvents without
// exporting those methods on Orchestrator itself.
type orchestratorEvents Orchestrator

func (e *orchestratorEvents) OnStatus(attempt domain.CallAttemptID, status string) {
	(*Orchestrator)(e).Events.OnStatus(attempt, status)
}

func (e *orchestratorEvents) OnEnded(attempt domain.CallAttemptID, reason domain.EndReason) {
	o := (*Orchestrator)(e)

	o.mu.Lock()
	sess := o.sessions[attempt]
	if sess != nil {
		delete(o.sessions, attempt)
		if o.byRemote[sess.Remote()] == attempt {
			delete(o.byRemote, sess.Remote())
		}
	}
	o.mu.Unlock()

	if reason == domain.EndRemote {
		o.Events.OnRemoteEnded(attempt)
	}
	if sess != nil && sess.engaged() {
		o.Events.OnFeedbackPrompt(attempt)
	}
}
