package app

import (
	"errors"
	"strings"
	"testing"

	"github.com/medline/teleconsult/internal/domain"
)

func TestFeedbackRatingBounds(t *testing.T) {
	for _, rating := range []int{0, -1, 6, 100} {
		sink := &memSink{}
		c := NewFeedbackCapture(sink, &nopLogger)
		if err := c.Capture("apt-1", "doc-1", rating, ""); !errors.Is(err, domain.ErrRatingOutOfRange) {
			t.Errorf("rating %d: err = %v, want ErrRatingOutOfRange", rating, err)
		}
		if len(sink.saved) != 0 {
			t.Errorf("rating %d reached the sink", rating)
		}
	}
}

func TestFeedbackCommentTooLong(t *testing.T) {
	c := NewFeedbackCapture(&memSink{}, &nopLogger)
	comment := strings.Repeat("x", domain.MaxCommentLen+1)
	if err := c.Capture("apt-1", "doc-1", 3, comment); !errors.Is(err, domain.ErrCommentTooLong) {
		t.Fatalf("err = %v, want ErrCommentTooLong", err)
	}
}

func TestFeedbackRejectedRatingDoesNotBurnTheAttempt(t *testing.T) {
	sink := &memSink{}
	c := NewFeedbackCapture(sink, &nopLogger)

	if err := c.Capture("apt-1", "doc-1", 0, ""); err == nil {
		t.Fatal("invalid rating accepted")
	}
	// The user corrects the rating and resubmits.
	if err := c.Capture("apt-1", "doc-1", 5, ""); err != nil {
		t.Fatalf("corrected submission: %v", err)
	}
	if len(sink.saved) != 1 {
		t.Fatalf("sink holds %d entries, want 1", len(sink.saved))
	}
}

func TestFeedbackSinkFailureSwallowed(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	c := NewFeedbackCapture(sink, &nopLogger)

	// Delivery is fire-and-forget; a broken sink never surfaces to the
	// user who just finished the call.
	if err := c.Capture("apt-1", "doc-1", 2, "video froze twice"); err != nil {
		t.Fatalf("Capture surfaced sink error: %v", err)
	}
}
