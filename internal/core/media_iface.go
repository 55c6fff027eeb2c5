package core

import (
	"context"
	"encoding/json"
)

// LocalMedia is the camera+microphone handle a call session exclusively
// owns. Toggling mutates track enabled flags only; it never renegotiates.
type LocalMedia interface {
	SetAudioEnabled(bool)
	SetVideoEnabled(bool)
	AudioEnabled() bool
	VideoEnabled() bool
	// Stop releases the underlying capture devices. Idempotent.
	Stop()
}

// MediaDevices acquires local media. An error is fatal for the call
// attempt (permission denied, device unavailable); there is no retry at
// this layer.
type MediaDevices interface {
	Acquire(ctx context.Context) (LocalMedia, error)
}

// MediaConnection is the peer-connection surface the session drives.
// SDP and ICE payloads are opaque JSON produced by the media engine;
// the session never inspects them.
type MediaConnection interface {
	// CreateOffer generates and installs the local offer.
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	// AcceptOffer installs the remote offer and returns the local answer.
	AcceptOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)
	// ApplyAnswer installs the remote answer on the offering side.
	ApplyAnswer(answer json.RawMessage) error
	AddICECandidate(candidate json.RawMessage) error
	// OnICECandidate sets the callback for locally gathered candidates.
	OnICECandidate(func(json.RawMessage))
	// OnICEStateChange reports ICE connection state transitions for the
	// status line.
	OnICEStateChange(func(state string))
	// Close releases the peer connection. Idempotent.
	Close()
}

// PeerFactory builds a peer connection with the given local media
// attached. Implemented by the pion adapter; faked in tests.
type PeerFactory interface {
	NewConnection(ctx context.Context, media LocalMedia) (MediaConnection, error)
}
