// Command client is a terminal participant for the teleconsult relay.
// Doctors and patients run the same binary; the doctor side places the
// call, the patient side accepts or rejects it.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/medline/teleconsult/internal/adapters"
	"github.com/medline/teleconsult/internal/adapters/media"
	"github.com/medline/teleconsult/internal/adapters/rtc"
	"github.com/medline/teleconsult/internal/app"
	"github.com/medline/teleconsult/internal/domain"
)

// httpSink posts feedback to the relay's ingestion endpoint.
type httpSink struct {
	base   string
	client *http.Client
}

func (s *httpSink) SaveFeedback(ctx context.Context, fb domain.Feedback) error {
	body, err := json.Marshal(map[string]any{
		"appointmentId": fb.Appointment,
		"authorId":      fb.Author,
		"rating":        fb.Rating,
		"comment":       fb.Comment,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/api/feedback", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("feedback endpoint returned %s", resp.Status)
	}
	return nil
}

// consoleUI renders orchestrator events and holds the ringing call and
// the current attempt for the command loop.
type consoleUI struct {
	mu      sync.Mutex
	ring    *app.IncomingCall
	current domain.CallAttemptID
}

func (u *consoleUI) OnIncoming(call *app.IncomingCall) {
	u.mu.Lock()
	u.ring = call
	u.current = call.Attempt
	u.mu.Unlock()
	fmt.Printf("incoming call from %s (attempt %s) -- accept | reject\n", call.Doctor, call.Attempt)
}

func (u *consoleUI) OnStatus(attempt domain.CallAttemptID, status string) {
	fmt.Printf("[%s] %s\n", attempt, status)
}

func (u *consoleUI) OnRemoteEnded(attempt domain.CallAttemptID) {
	fmt.Printf("[%s] the other party ended the call\n", attempt)
}

func (u *consoleUI) OnFeedbackPrompt(attempt domain.CallAttemptID) {
	fmt.Printf("[%s] call finished -- rate %s <1-5> [comment]\n", attempt, attempt)
}

func (u *consoleUI) takeRing() *app.IncomingCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	ring := u.ring
	u.ring = nil
	return ring
}

func (u *consoleUI) setCurrent(attempt domain.CallAttemptID) {
	u.mu.Lock()
	u.current = attempt
	u.mu.Unlock()
}

func (u *consoleUI) currentAttempt() domain.CallAttemptID {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.current
}

func main() {
	relayURL := pflag.String("relay-url", "ws://localhost:3005/api/ws/signal", "relay websocket endpoint")
	apiURL := pflag.String("api-url", "http://localhost:3005", "relay HTTP base url")
	id := pflag.String("id", "", "participant id (required)")
	stun := pflag.StringSlice("stun", nil, "STUN server URLs")
	logLevel := pflag.String("log-level", "warn", "zerolog level: debug, info, warn, error")
	pflag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if lvl, err := zerolog.ParseLevel(*logLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	self := domain.ParticipantID(*id)
	if err := self.Validate(); err != nil {
		log.Fatal().Err(err).Msg("--id is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ui := &consoleUI{}
	orch := &app.Orchestrator{
		Self:    self,
		Devices: &media.Devices{Logger: &log.Logger},
		Peers:   &rtc.Factory{Config: rtc.ConfigFor(*stun), Logger: &log.Logger},
		Events:  ui,
		Feedback: app.NewFeedbackCapture(&httpSink{
			base:   *apiURL,
			client: &http.Client{Timeout: 10 * time.Second},
		}, &log.Logger),
		Logger: &log.Logger,
	}

	client, err := adapters.DialRelay(ctx, *relayURL, self, func(env domain.Envelope) {
		orch.OnEnvelope(ctx, env)
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("url", *relayURL).Msg("relay dial failed")
	}
	defer client.Close()
	orch.Sender = client

	fmt.Printf("joined relay as %s\n", self)
	fmt.Println("commands: call <attempt> <participant> | accept | reject | hangup | mic | cam | rate <attempt> <1-5> [comment] | quit")

	go commandLoop(ctx, cancel, orch, ui)
	<-ctx.Done()
}

func commandLoop(ctx context.Context, cancel context.CancelFunc, orch *app.Orchestrator, ui *consoleUI) {
	defer cancel()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "call":
			if len(fields) != 3 {
				fmt.Println("usage: call <attempt> <participant>")
				continue
			}
			attempt := domain.CallAttemptID(fields[1])
			ui.setCurrent(attempt)
			if err := orch.StartCall(ctx, attempt, domain.ParticipantID(fields[2])); err != nil {
				fmt.Printf("call failed: %v\n", err)
			}
		case "accept":
			ring := ui.takeRing()
			if ring == nil {
				fmt.Println("no call ringing")
				continue
			}
			if err := ring.Accept(ctx); err != nil {
				fmt.Printf("accept failed: %v\n", err)
			}
		case "reject":
			ring := ui.takeRing()
			if ring == nil {
				fmt.Println("no call ringing")
				continue
			}
			ring.Reject()
		case "hangup":
			orch.HangUp(ui.currentAttempt())
		case "mic":
			fmt.Printf("mic on: %v\n", orch.ToggleMic(ui.currentAttempt()))
		case "cam":
			fmt.Printf("cam on: %v\n", orch.ToggleCam(ui.currentAttempt()))
		case "rate":
			if len(fields) < 3 {
				fmt.Println("usage: rate <attempt> <1-5> [comment]")
				continue
			}
			rating, err := strconv.Atoi(fields[2])
			if err != nil {
				fmt.Println("rating must be a number")
				continue
			}
			comment := strings.Join(fields[3:], " ")
			if err := orch.SubmitFeedback(domain.CallAttemptID(fields[1]), rating, comment); err != nil {
				fmt.Printf("feedback rejected: %v\n", err)
			} else {
				fmt.Println("thank you")
			}
		case "quit":
			orch.HangUp(ui.currentAttempt())
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}
