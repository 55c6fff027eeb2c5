// Package media acquires the local camera and microphone for a call
// session. Capture runs through pion/mediadevices on platforms that
// support it; elsewhere acquisition fails fatally, which the session
// treats the same as a denied camera permission.
package media

import "errors"

var ErrNoMediaSupport = errors.New("local media capture not supported on this platform")
