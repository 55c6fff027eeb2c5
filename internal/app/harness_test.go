package app

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/medline/teleconsult/internal/core"
	"github.com/medline/teleconsult/internal/domain"
	"github.com/rs/zerolog"
)

var nopLogger = zerolog.Nop()

type fakeMedia struct {
	audio, video bool
	stops        int
}

func newFakeMedia() *fakeMedia { return &fakeMedia{audio: true, video: true} }

func (m *fakeMedia) SetAudioEnabled(on bool) { m.audio = on }
func (m *fakeMedia) SetVideoEnabled(on bool) { m.video = on }
func (m *fakeMedia) AudioEnabled() bool      { return m.audio }
func (m *fakeMedia) VideoEnabled() bool      { return m.video }
func (m *fakeMedia) Stop()                   { m.stops++ }

type fakeDevices struct {
	media *fakeMedia
	err   error
}

func (d *fakeDevices) Acquire(ctx context.Context) (core.LocalMedia, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.media, nil
}

type fakePeer struct {
	offerErr  error
	acceptErr error
	applyErr  error

	remoteOffer  json.RawMessage
	remoteAnswer json.RawMessage
	applies      int
	candidates   []json.RawMessage
	closes       int

	onCandidate func(json.RawMessage)
	onState     func(string)
}

func (p *fakePeer) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	if p.offerErr != nil {
		return nil, p.offerErr
	}
	return json.RawMessage(`{"type":"offer","sdp":"v=0 local"}`), nil
}

func (p *fakePeer) AcceptOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error) {
	if p.acceptErr != nil {
		return nil, p.acceptErr
	}
	p.remoteOffer = offer
	return json.RawMessage(`{"type":"answer","sdp":"v=0 local"}`), nil
}

func (p *fakePeer) ApplyAnswer(answer json.RawMessage) error {
	if p.applyErr != nil {
		return p.applyErr
	}
	p.remoteAnswer = answer
	p.applies++
	return nil
}

func (p *fakePeer) AddICECandidate(candidate json.RawMessage) error {
	p.candidates = append(p.candidates, candidate)
	return nil
}

func (p *fakePeer) OnICECandidate(cb func(json.RawMessage)) { p.onCandidate = cb }
func (p *fakePeer) OnICEStateChange(cb func(string))        { p.onState = cb }
func (p *fakePeer) Close()                                  { p.closes++ }

type fakePeers struct {
	peer *fakePeer
	err  error
}

func (f *fakePeers) NewConnection(ctx context.Context, media core.LocalMedia) (core.MediaConnection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.peer, nil
}

// sentLog collects outbound envelopes for inspection.
type sentLog struct {
	mu   sync.Mutex
	envs []domain.Envelope
}

func (l *sentLog) send(env domain.Envelope) {
	l.mu.Lock()
	l.envs = append(l.envs, env)
	l.mu.Unlock()
}

func (l *sentLog) Send(env domain.Envelope) error {
	l.send(env)
	return nil
}

func (l *sentLog) all() []domain.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Envelope(nil), l.envs...)
}

func (l *sentLog) ofType(t domain.SignalType) []domain.Envelope {
	var out []domain.Envelope
	for _, env := range l.all() {
		if env.Data.Type == t {
			out = append(out, env)
		}
	}
	return out
}

type endedEvent struct {
	attempt domain.CallAttemptID
	reason  domain.EndReason
}

type fakeSessionEvents struct {
	statuses []string
	ended    []endedEvent
}

func (e *fakeSessionEvents) OnStatus(attempt domain.CallAttemptID, status string) {
	e.statuses = append(e.statuses, status)
}

func (e *fakeSessionEvents) OnEnded(attempt domain.CallAttemptID, reason domain.EndReason) {
	e.ended = append(e.ended, endedEvent{attempt, reason})
}

// fakeUI implements Events for orchestrator tests.
type fakeUI struct {
	incoming    []*IncomingCall
	statuses    []string
	remoteEnded []domain.CallAttemptID
	prompts     []domain.CallAttemptID
}

func (u *fakeUI) OnIncoming(call *IncomingCall) { u.incoming = append(u.incoming, call) }
func (u *fakeUI) OnStatus(attempt domain.CallAttemptID, status string) {
	u.statuses = append(u.statuses, status)
}
func (u *fakeUI) OnRemoteEnded(attempt domain.CallAttemptID) {
	u.remoteEnded = append(u.remoteEnded, attempt)
}
func (u *fakeUI) OnFeedbackPrompt(attempt domain.CallAttemptID) {
	u.prompts = append(u.prompts, attempt)
}

// memSink implements FeedbackSink in memory.
type memSink struct {
	saved []domain.Feedback
	err   error
}

func (s *memSink) SaveFeedback(ctx context.Context, fb domain.Feedback) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, fb)
	return nil
}
