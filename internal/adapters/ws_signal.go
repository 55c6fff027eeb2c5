package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/medline/teleconsult/internal/app"
	"github.com/medline/teleconsult/internal/core"
	"github.com/medline/teleconsult/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const writeDeadline = 5 * time.Second

// SignalWSController owns the relay-side websocket endpoint: one
// connection per participant, bound into the presence registry on join
// and routed through the relay on signal.
type SignalWSController struct {
	Registry   *app.Registry
	Relay      *app.Relay
	ReadLimit  int64
	PingPeriod time.Duration
}

func (ctl *SignalWSController) pingPeriod() time.Duration {
	if ctl.PingPeriod > 0 {
		return ctl.PingPeriod
	}
	return 54 * time.Second
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame
	done chan struct{}
	once sync.Once
}

// TrySend queues a frame unless the connection is closed or the buffer
// is full. The send channel is never closed; done gates it, so a route
// racing a disconnect gets an error instead of a panic.
func (c *wsSignalConn) TrySend(f core.Frame) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrBackpressure
	}
}

func (c *wsSignalConn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade failed")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
		done: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cancel, conn)
	go ctl.readPump(ctx, cancel, conn)
}

func (ctl *SignalWSController) writePump(ctx context.Context, cancel context.CancelFunc, c *wsSignalConn) {
	defer cancel()
	ping := time.NewTicker(ctl.pingPeriod())
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ping.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Msg("ping failed")
				return
			}
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("set write deadline failed")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Msg("write failed")
				return
			}
		}
	}
}

// readPump reads frames until the connection dies, keeping track of the
// participant bound by join so the registration can be released on exit.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, c *wsSignalConn) {
	var bound domain.ParticipantID

	defer func() {
		cancel()
		if bound != "" {
			ctl.Registry.Unregister(bound, c)
		}
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Str("participant", string(bound)).Msg("read loop closed")
				return
			}
			ctl.handleFrame(c, &bound, data)
		}
	}
}

func (ctl *SignalWSController) handleFrame(c *wsSignalConn, bound *domain.ParticipantID, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "adapters.ws").Msg("bad json frame")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(c, bound, data)
	case "signal":
		ctl.handleRoute(c, *bound, data)
	case "ping":
		ctl.sendJSON(c, map[string]string{"type": "pong"})
	default:
		log.Debug().Str("module", "adapters.ws").Str("type", env.Type).Msg("unknown frame type")
	}
}

// handleJoin binds the connection to a participant identity. The id is
// issued by the identity layer; here it only has to be well-formed.
func (ctl *SignalWSController) handleJoin(c *wsSignalConn, bound *domain.ParticipantID, data []byte) {
	var p struct {
		Type          string               `json:"type"`
		ParticipantID domain.ParticipantID `json:"participantId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "adapters.ws").Msg("bad join payload")
		return
	}
	if err := p.ParticipantID.Validate(); err != nil {
		ctl.sendJSON(c, map[string]string{"type": "error", "error": err.Error()})
		return
	}

	if *bound != "" && *bound != p.ParticipantID {
		ctl.Registry.Unregister(*bound, c)
	}
	*bound = p.ParticipantID
	ctl.Registry.Register(p.ParticipantID, c)
	ctl.sendJSON(c, map[string]string{"type": "joined"})
}

// handleRoute forwards a signaling envelope. The from field is stamped
// from the joined identity; whatever the client put there is ignored.
func (ctl *SignalWSController) handleRoute(c *wsSignalConn, bound domain.ParticipantID, data []byte) {
	if bound == "" {
		ctl.sendJSON(c, map[string]string{"type": "error", "error": "join first"})
		return
	}

	var p struct {
		Type string               `json:"type"`
		To   domain.ParticipantID `json:"to"`
		Data domain.Signal        `json:"data"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "adapters.ws").Msg("bad signal payload")
		return
	}
	if p.To.Validate() != nil {
		return
	}

	ctl.Relay.Route(domain.Envelope{To: p.To, From: bound, Data: p.Data})
}

func (ctl *SignalWSController) sendJSON(c *wsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("marshal failed")
		return
	}
	_ = c.TrySend(b)
}
