package adapters

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/medline/teleconsult/internal/core"
	"github.com/medline/teleconsult/internal/domain"
)

// clientFrame covers both shapes the relay writes: routed envelopes
// ({to, from, data}) and control frames ({type}).
type clientFrame struct {
	Type string               `json:"type"`
	To   domain.ParticipantID `json:"to"`
	From domain.ParticipantID `json:"from"`
	Data domain.Signal        `json:"data"`
}

// RelayClient is the participant's transport connection to the relay.
// It joins with the identity supplied by the identity layer and pumps
// inbound envelopes to the orchestrator. Implements app.Sender; sends
// are fire-and-forget through the buffered channel.
type RelayClient struct {
	conn   *websocket.Conn
	self   domain.ParticipantID
	send   chan core.Frame
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

// DialRelay connects, joins as self, and starts the pumps. onEnvelope is
// invoked from the read loop for every routed signaling message.
func DialRelay(ctx context.Context, url string, self domain.ParticipantID, onEnvelope func(domain.Envelope), logger *zerolog.Logger) (*RelayClient, error) {
	if err := self.Validate(); err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := &RelayClient{
		conn:   conn,
		self:   self,
		send:   make(chan core.Frame, 32),
		done:   make(chan struct{}),
		logger: logger.With().Str("module", "adapters.relay_client").Str("participant", string(self)).Logger(),
	}

	join, err := json.Marshal(map[string]any{"type": "join", "participantId": self})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		conn.Close()
		return nil, err
	}

	go c.writePump(ctx)
	go c.readPump(ctx, onEnvelope)
	return c, nil
}

// Send queues one envelope for the relay. A full buffer drops the frame,
// matching the no-ack contract of the relay itself. After the connection
// is torn down (locally or by network loss) Send keeps returning an
// error rather than panicking, so a late hang-up stays safe.
func (c *RelayClient) Send(env domain.Envelope) error {
	frame, err := json.Marshal(map[string]any{"type": "signal", "to": env.To, "data": env.Data})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- core.Frame(frame):
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrBackpressure
	}
}

func (c *RelayClient) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *RelayClient) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}
		}
	}
}

func (c *RelayClient) readPump(ctx context.Context, onEnvelope func(domain.Envelope)) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				c.logger.Debug().Err(err).Msg("read loop closed")
				return
			}

			var f clientFrame
			if err := json.Unmarshal(data, &f); err != nil {
				c.logger.Debug().Err(err).Msg("bad frame from relay")
				continue
			}
			switch {
			case f.Type == "error":
				c.logger.Warn().RawJSON("frame", data).Msg("relay error frame")
			case f.Type != "":
				// joined/pong control frames need no action.
			case f.Data.Type != "":
				onEnvelope(domain.Envelope{To: f.To, From: f.From, Data: f.Data})
			}
		}
	}
}
