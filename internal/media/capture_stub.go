//go:build !mediadevices

package media

import (
	"context"

	"github.com/tasteshift/live/internal/domain"
)

// HardwareCapturer reports that this build carries no device drivers.
// Build with -tags mediadevices for camera and microphone support.
func HardwareCapturer() Capturer {
	return CapturerFunc(func(context.Context) (*Bundle, error) {
		return nil, domain.ErrNoDevice
	})
}

// DefaultFrameEncoder is nil without the vpx bindings.
func DefaultFrameEncoder() FrameEncoder { return nil }
