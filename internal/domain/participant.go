// Package domain contains entity types without logic, just meta-data.
package domain

import "errors"

const MaxParticipantIDLen = 64

var ErrParticipantIDEmpty = errors.New("participant id empty")
var ErrParticipantIDTooLong = errors.New("participant id too long")

// ParticipantID is the stable application-level identity of a doctor or
// patient. It is supplied by the identity layer and never generated here.
type ParticipantID string

func (id ParticipantID) Validate() error {
	if len(id) == 0 {
		return ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return ErrParticipantIDTooLong
	}
	return nil
}

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)
