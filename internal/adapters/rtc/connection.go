package rtc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/medline/teleconsult/internal/core"
)

// TrackSource is implemented by media captures that can attach their
// local tracks to a pion peer connection.
type TrackSource interface {
	Attach(pc *webrtc.PeerConnection) error
}

// APISource lets a capture supply the pion API configured with its own
// codec engine; without it the default engine is used.
type APISource interface {
	WebRTCAPI() (*webrtc.API, error)
}

func DefaultConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// ConfigFor builds a configuration from STUN server URLs; an empty list
// falls back to the default.
func ConfigFor(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		return DefaultConfig()
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	}
}

// Factory builds pion-backed peer connections for call sessions.
type Factory struct {
	Config webrtc.Configuration
	Logger *zerolog.Logger
}

func (f *Factory) NewConnection(_ context.Context, media core.LocalMedia) (core.MediaConnection, error) {
	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if src, ok := media.(APISource); ok {
		api, apiErr := src.WebRTCAPI()
		if apiErr != nil {
			return nil, apiErr
		}
		pc, err = api.NewPeerConnection(f.Config)
	} else {
		pc, err = webrtc.NewPeerConnection(f.Config)
	}
	if err != nil {
		return nil, err
	}

	// Captures that produce tracks attach them; anything else still gets
	// valid m-lines so negotiation can proceed receive-only.
	if src, ok := media.(TrackSource); ok {
		if err := src.Attach(pc); err != nil {
			_ = pc.Close()
			return nil, err
		}
	} else if err := addRecvOnlyTransceivers(pc); err != nil {
		_ = pc.Close()
		return nil, err
	}

	return &Connection{
		pc:     pc,
		logger: f.Logger.With().Str("module", "adapters.rtc").Logger(),
	}, nil
}

func addRecvOnlyTransceivers(pc *webrtc.PeerConnection) error {
	recv := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recv); err != nil {
		return err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recv); err != nil {
		return err
	}
	return nil
}

// Connection wraps a pion PeerConnection behind core.MediaConnection.
// SDP and candidates cross the boundary as the same JSON the browser
// engine produces, so payloads stay opaque to the session.
type Connection struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger
	once   sync.Once
}

func (c *Connection) CreateOffer(_ context.Context) (json.RawMessage, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	// Trickle ICE: the local description goes out immediately and
	// candidates follow through OnICECandidate.
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return json.Marshal(offer)
}

func (c *Connection) AcceptOffer(_ context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &offer); err != nil {
		return nil, err
	}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return json.Marshal(answer)
}

func (c *Connection) ApplyAnswer(raw json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &answer); err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(answer)
}

func (c *Connection) AddICECandidate(raw json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return err
	}
	return c.pc.AddICECandidate(candidate)
}

func (c *Connection) OnICECandidate(fn func(json.RawMessage)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		raw, err := json.Marshal(cand.ToJSON())
		if err != nil {
			c.logger.Error().Err(err).Msg("marshal candidate failed")
			return
		}
		fn(raw)
	})
}

func (c *Connection) OnICEStateChange(fn func(state string)) {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		fn(s.String())
	})
}

func (c *Connection) Close() {
	c.once.Do(func() {
		if err := c.pc.Close(); err != nil {
			c.logger.Error().Err(err).Msg("close error")
			return
		}
		c.logger.Info().Msg("closed")
	})
}
