package domain

import (
	"errors"
	"time"
)

const (
	MinRating     = 1
	MaxRating     = 5
	MaxCommentLen = 2000
)

var (
	ErrRatingOutOfRange = errors.New("rating out of range")
	ErrCommentTooLong   = errors.New("comment too long")
)

// Feedback is the post-call rating a participant leaves after a session
// reaches its terminal state.
type Feedback struct {
	Appointment CallAttemptID `json:"appointmentId"`
	Author      ParticipantID `json:"authorId"`
	Rating      int           `json:"rating"`
	Comment     string        `json:"comment"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// NewFeedback validates and stamps a feedback entry; it keeps ad-hoc
// struct literals out of the adapters.
func NewFeedback(attempt CallAttemptID, author ParticipantID, rating int, comment string) (Feedback, error) {
	if err := attempt.Validate(); err != nil {
		return Feedback{}, err
	}
	if rating < MinRating || rating > MaxRating {
		return Feedback{}, ErrRatingOutOfRange
	}
	if len(comment) > MaxCommentLen {
		return Feedback{}, ErrCommentTooLong
	}
	return Feedback{
		Appointment: attempt,
		Author:      author,
		Rating:      rating,
		Comment:     comment,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
