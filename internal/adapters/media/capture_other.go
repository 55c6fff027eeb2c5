//go:build !linux || !cgo

package media

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/medline/teleconsult/internal/core"
)

// Devices implements core.MediaDevices on platforms without camera
// drivers wired in; acquisition always fails, which ends the call
// attempt the same way a denied permission does.
type Devices struct {
	Logger *zerolog.Logger
}

func (d *Devices) Acquire(_ context.Context) (core.LocalMedia, error) {
	d.Logger.Warn().Str("module", "adapters.media").Msg("no media capture support on this platform")
	return nil, ErrNoMediaSupport
}
