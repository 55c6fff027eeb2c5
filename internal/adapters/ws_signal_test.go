package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/medline/teleconsult/internal/app"
	"github.com/medline/teleconsult/internal/core"
	"github.com/medline/teleconsult/internal/domain"
)

var testLogger = zerolog.Nop()

func newSignalServer(t *testing.T) (wsURL string, reg *app.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg = app.NewRegistry()
	relay := app.NewRelay(reg, &testLogger)
	ctl := &SignalWSController{Registry: reg, Relay: relay, ReadLimit: 32768}

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/api/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal", reg
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRelayRoutesEnvelopesBetweenClients(t *testing.T) {
	url, reg := newSignalServer(t)
	ctx := context.Background()

	received := make(chan domain.Envelope, 8)

	alice, err := DialRelay(ctx, url, "alice", func(domain.Envelope) {}, &testLogger)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer alice.Close()

	bob, err := DialRelay(ctx, url, "bob", func(env domain.Envelope) {
		received <- env
	}, &testLogger)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bob.Close()

	waitFor(t, func() bool { return reg.Online("alice") && reg.Online("bob") }, "clients never joined")

	offer := domain.NewOffer("bob", "apt-1", "alice", json.RawMessage(`{"type":"offer","sdp":"v=0"}`))
	if err := alice.Send(offer); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case env := <-received:
		// From is stamped by the relay from alice's joined identity; the
		// client never put it on the wire.
		if env.From != "alice" || env.To != "bob" {
			t.Errorf("routing fields = from %q to %q", env.From, env.To)
		}
		if env.Data.Type != domain.SignalOffer || env.Data.AppointmentID != "apt-1" {
			t.Errorf("payload = %+v", env.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bob never received the offer")
	}
}

func TestSignalBeforeJoinRejected(t *testing.T) {
	url, _ := newSignalServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	frame := []byte(`{"type":"signal","to":"bob","data":{"type":"end_call"}}`)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var reply struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Type != "error" || reply.Error != "join first" {
		t.Errorf("reply = %+v, want join first error", reply)
	}
}

func TestPresenceFollowsConnectionLifetime(t *testing.T) {
	url, reg := newSignalServer(t)

	client, err := DialRelay(context.Background(), url, "alice", func(domain.Envelope) {}, &testLogger)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitFor(t, func() bool { return reg.Online("alice") }, "alice never came online")

	client.Close()
	waitFor(t, func() bool { return !reg.Online("alice") }, "alice still online after close")
}

func TestSendAfterConnectionLossReturnsError(t *testing.T) {
	url, reg := newSignalServer(t)

	alice, err := DialRelay(context.Background(), url, "alice", func(domain.Envelope) {}, &testLogger)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer alice.Close()
	waitFor(t, func() bool { return reg.Online("alice") }, "alice never joined")

	// Kill the connection from the server side, as network loss would.
	srvConn, ok := reg.Lookup("alice")
	if !ok {
		t.Fatal("alice not in registry")
	}
	srvConn.Close()

	// Once the client notices, a late hang-up must surface an error and
	// never panic.
	waitFor(t, func() bool {
		return errors.Is(alice.Send(domain.NewEndCall("bob")), ErrConnClosed)
	}, "send never surfaced the closed connection")

	if err := alice.Send(domain.NewEndCall("bob")); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("send on a torn-down connection: err = %v, want ErrConnClosed", err)
	}
}

func TestTrySendAfterCloseReturnsError(t *testing.T) {
	url, reg := newSignalServer(t)

	client, err := DialRelay(context.Background(), url, "bob", func(domain.Envelope) {}, &testLogger)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	waitFor(t, func() bool { return reg.Online("bob") }, "bob never joined")

	conn, ok := reg.Lookup("bob")
	if !ok {
		t.Fatal("bob not in registry")
	}
	conn.Close()

	// A route racing the disconnect sees an error, not a panic.
	if err := conn.TrySend(core.Frame(`{"type":"joined"}`)); err == nil {
		t.Fatal("TrySend succeeded on a closed connection")
	}
	conn.Close()
	if err := conn.TrySend(core.Frame(`{}`)); err == nil {
		t.Fatal("TrySend succeeded after repeated close")
	}
}

func TestOfflineDestinationDroppedSilently(t *testing.T) {
	url, reg := newSignalServer(t)
	ctx := context.Background()

	alice, err := DialRelay(ctx, url, "alice", func(domain.Envelope) {}, &testLogger)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer alice.Close()
	waitFor(t, func() bool { return reg.Online("alice") }, "alice never joined")

	// No ack, no error frame; the connection just stays healthy.
	if err := alice.Send(domain.NewEndCall("nobody-home")); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := alice.Send(domain.NewEndCall("nobody-home")); err != nil {
		t.Fatalf("connection unusable after routing to an offline peer: %v", err)
	}
	if !reg.Online("alice") {
		t.Error("sender dropped from presence after an offline route")
	}
}
