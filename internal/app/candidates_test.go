package app

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestCandidateBufferPreservesOrder(t *testing.T) {
	var buf candidateBuffer
	for i := 0; i < 3; i++ {
		buf.push(json.RawMessage(fmt.Sprintf(`{"candidate":"c%d"}`, i)))
	}
	if buf.len() != 3 {
		t.Fatalf("len = %d, want 3", buf.len())
	}

	out := buf.flush()
	if len(out) != 3 {
		t.Fatalf("flush returned %d candidates, want 3", len(out))
	}
	for i, c := range out {
		want := fmt.Sprintf(`{"candidate":"c%d"}`, i)
		if string(c) != want {
			t.Errorf("candidate[%d] = %s, want %s", i, c, want)
		}
	}

	if buf.len() != 0 {
		t.Errorf("buffer not cleared after flush, len = %d", buf.len())
	}
	if again := buf.flush(); again != nil {
		t.Errorf("second flush = %v, want nil", again)
	}
}
