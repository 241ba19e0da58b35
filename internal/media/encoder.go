package media

import "image"

// FrameEncoder compresses rendered frames into VP8 samples for the
// synthetic video track.
type FrameEncoder interface {
	Encode(img image.Image) ([]byte, error)
	Close() error
}
