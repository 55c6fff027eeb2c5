package domain

import "encoding/json"

// SignalType tags the payload union of a signaling envelope.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
	SignalReject    SignalType = "reject"
	SignalEndCall   SignalType = "end_call"
)

// Signal is the tagged payload of an envelope. SDP and candidate bodies
// are opaque to this subsystem; they are produced and consumed by the
// media engine and pass through as raw JSON.
type Signal struct {
	Type          SignalType      `json:"type"`
	Offer         json.RawMessage `json:"offer,omitempty"`
	Answer        json.RawMessage `json:"answer,omitempty"`
	Candidate     json.RawMessage `json:"candidate,omitempty"`
	AppointmentID CallAttemptID   `json:"appointmentId,omitempty"`
	DoctorID      ParticipantID   `json:"doctorId,omitempty"`
}

// Envelope is one relay-routed signaling message. From is assigned by
// the relay from the authenticated connection; a value supplied by the
// sending client is discarded.
type Envelope struct {
	To   ParticipantID `json:"to"`
	From ParticipantID `json:"from,omitempty"`
	Data Signal        `json:"data"`
}

func NewOffer(to ParticipantID, attempt CallAttemptID, doctor ParticipantID, sdp json.RawMessage) Envelope {
	return Envelope{To: to, Data: Signal{
		Type:          SignalOffer,
		Offer:         sdp,
		AppointmentID: attempt,
		DoctorID:      doctor,
	}}
}

func NewAnswer(to ParticipantID, sdp json.RawMessage) Envelope {
	return Envelope{To: to, Data: Signal{Type: SignalAnswer, Answer: sdp}}
}

func NewCandidate(to ParticipantID, candidate json.RawMessage) Envelope {
	return Envelope{To: to, Data: Signal{Type: SignalCandidate, Candidate: candidate}}
}

func NewReject(to ParticipantID) Envelope {
	return Envelope{To: to, Data: Signal{Type: SignalReject}}
}

func NewEndCall(to ParticipantID) Envelope {
	return Envelope{To: to, Data: Signal{Type: SignalEndCall}}
}
