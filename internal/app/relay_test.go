package app

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/medline/teleconsult/internal/domain"
)

func TestRelayRoutesToDestination(t *testing.T) {
	reg := NewRegistry()
	conn := &stubConn{}
	reg.Register("patient-1", conn)

	rl := NewRelay(reg, &nopLogger)
	env := domain.NewCandidate("patient-1", json.RawMessage(`{"candidate":"c0"}`))
	env.From = "doctor-1"
	rl.Route(env)

	if len(conn.frames) != 1 {
		t.Fatalf("delivered %d frames, want 1", len(conn.frames))
	}

	var got domain.Envelope
	if err := json.Unmarshal(conn.frames[0], &got); err != nil {
		t.Fatalf("unmarshal delivered frame: %v", err)
	}
	if got.From != "doctor-1" || got.To != "patient-1" {
		t.Errorf("routing fields = from %q to %q", got.From, got.To)
	}
	if got.Data.Type != domain.SignalCandidate {
		t.Errorf("signal type = %q, want candidate", got.Data.Type)
	}
}

func TestRelayDropsWhenOffline(t *testing.T) {
	reg := NewRegistry()
	rl := NewRelay(reg, &nopLogger)

	// Nobody registered; the drop is silent.
	rl.Route(domain.NewEndCall("ghost"))

	if reg.Online("ghost") {
		t.Fatal("drop must not register anything")
	}
}

func TestRelayDropsOnBackpressure(t *testing.T) {
	reg := NewRegistry()
	conn := &stubConn{err: errors.New("send buffer full")}
	reg.Register("patient-1", conn)

	rl := NewRelay(reg, &nopLogger)
	rl.Route(domain.NewEndCall("patient-1"))

	if len(conn.frames) != 0 {
		t.Fatalf("delivered %d frames through a failing connection", len(conn.frames))
	}
	if !reg.Online("patient-1") {
		t.Error("delivery failure must not unregister the participant")
	}
}
