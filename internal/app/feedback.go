package app

import (
	"context"
	"errors"
	"sync"

	"github.com/medline/teleconsult/internal/domain"
	"github.com/rs/zerolog"
)

var ErrFeedbackSubmitted = errors.New("feedback already submitted for this call")

// FeedbackSink is the external persistence collaborator.
type FeedbackSink interface {
	SaveFeedback(ctx context.Context, fb domain.Feedback) error
}

// FeedbackCapture is the terminal step after a session ends: it
// validates the rating, guards against duplicate submission for the same
// attempt, and hands the entry to the sink. Delivery is fire-and-forget;
// a sink failure is logged, never surfaced to the user.
type FeedbackCapture struct {
	sink   FeedbackSink
	logger zerolog.Logger

	mu        sync.Mutex
	submitted map[domain.CallAttemptID]bool
}

func NewFeedbackCapture(sink FeedbackSink, logger *zerolog.Logger) *FeedbackCapture {
	return &FeedbackCapture{
		sink:      sink,
		logger:    logger.With().Str("module", "app.feedback").Logger(),
		submitted: make(map[domain.CallAttemptID]bool),
	}
}

func (c *FeedbackCapture) Capture(attempt domain.CallAttemptID, author domain.ParticipantID, rating int, comment string) error {
	fb, err := domain.NewFeedback(attempt, author, rating, comment)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.submitted[attempt] {
		c.mu.Unlock()
		return ErrFeedbackSubmitted
	}
	c.submitted[attempt] = true
	c.mu.Unlock()

	if err := c.sink.SaveFeedback(context.Background(), fb); err != nil {
		c.logger.Error().Err(err).Str("attempt", string(attempt)).Msg("feedback delivery failed")
	}
	return nil
}
