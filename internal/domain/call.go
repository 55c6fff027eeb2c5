package domain

import "errors"

var ErrAttemptIDEmpty = errors.New("call attempt id empty")

// CallAttemptID correlates one signaling exchange with one appointment.
// It is derived from the appointment id by the scheduling layer and is
// unique per attempt; retries get a fresh one.
type CallAttemptID string

func (id CallAttemptID) Validate() error {
	if len(id) == 0 {
		return ErrAttemptIDEmpty
	}
	return nil
}

// EndReason says which exit path terminated a call session.
type EndReason string

const (
	// EndLocalHangUp is the silent local close.
	EndLocalHangUp EndReason = "local_hangup"
	// EndRemote covers reject and end_call from the counterpart and is
	// surfaced to the user distinctly from a local hang-up.
	EndRemote EndReason = "remote_ended"
	// EndMediaFailure is the fatal local path: camera/mic denied or lost.
	EndMediaFailure EndReason = "media_failure"
)
