//go:build linux && cgo

package media

import (
	"context"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/medline/teleconsult/internal/core"
)

// Devices implements core.MediaDevices via pion/mediadevices (V4L2 +
// malgo capture).
type Devices struct {
	Logger *zerolog.Logger
}

// Acquire opens camera and microphone. Failure is fatal for the call
// attempt; there is no partial fallback, mirroring the browser's
// getUserMedia({video, audio}) all-or-nothing contract.
func (d *Devices) Acquire(_ context.Context) (core.LocalMedia, error) {
	logger := d.Logger.With().Str("module", "adapters.media").Logger()

	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Codec: selector,
		Video: func(c *mediadevices.MediaTrackConstraints) {
			// Cap resolution; higher settings hurt VP8 encode latency.
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		},
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
	})
	if err != nil {
		logger.Error().Err(err).Msg("GetUserMedia failed")
		return nil, err
	}

	tracks := stream.GetTracks()
	for _, track := range tracks {
		track.OnEnded(func(err error) {
			if err != nil {
				logger.Debug().Err(err).Msg("local track ended")
			}
		})
	}
	logger.Info().Int("tracks", len(tracks)).Msg("local media captured")

	return &Capture{
		tracks:   tracks,
		selector: selector,
		audioOn:  true,
		videoOn:  true,
		logger:   logger,
	}, nil
}

type boundTrack struct {
	kind   webrtc.RTPCodecType
	track  mediadevices.Track
	sender *webrtc.RTPSender
}

// Capture owns the captured tracks. It implements core.LocalMedia and
// the rtc attach/API hooks. Toggling swaps the sender's track out and
// back with ReplaceTrack, so no renegotiation happens.
type Capture struct {
	mu       sync.Mutex
	tracks   []mediadevices.Track
	bound    []boundTrack
	selector *mediadevices.CodecSelector
	audioOn  bool
	videoOn  bool
	stopped  bool
	logger   zerolog.Logger
}

// WebRTCAPI builds a pion API whose media engine knows the encoders the
// captured tracks use.
func (c *Capture) WebRTCAPI() (*webrtc.API, error) {
	engine := &webrtc.MediaEngine{}
	c.selector.Populate(engine)

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(engine, registry); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(engine),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

// Attach adds the captured tracks to pc, keeping the senders for mute
// toggling.
func (c *Capture) Attach(pc *webrtc.PeerConnection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, track := range c.tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			return err
		}
		c.bound = append(c.bound, boundTrack{kind: track.Kind(), track: track, sender: sender})
	}
	return nil
}

func (c *Capture) SetAudioEnabled(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioOn = on
	c.setKindLocked(webrtc.RTPCodecTypeAudio, on)
}

func (c *Capture) SetVideoEnabled(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videoOn = on
	c.setKindLocked(webrtc.RTPCodecTypeVideo, on)
}

func (c *Capture) setKindLocked(kind webrtc.RTPCodecType, on bool) {
	if c.stopped {
		return
	}
	for _, b := range c.bound {
		if b.kind != kind {
			continue
		}
		var next webrtc.TrackLocal
		if on {
			next = b.track
		}
		if err := b.sender.ReplaceTrack(next); err != nil {
			c.logger.Error().Err(err).Str("kind", kind.String()).Msg("toggle failed")
		}
	}
}

func (c *Capture) AudioEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioOn
}

func (c *Capture) VideoEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoOn
}

// Stop closes all capture devices. Idempotent.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	for _, track := range c.tracks {
		if err := track.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("track close error")
		}
	}
	c.logger.Info().Msg("local media released")
}
