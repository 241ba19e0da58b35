//go:build mediadevices

package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers camera adapter
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers microphone adapter
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func HardwareCapturer() Capturer { return CapturerFunc(captureDevices) }

func codecSelector() (*mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 500_000
	vpxParams.KeyFrameInterval = 60

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	opusParams.BitRate = 32_000
	opusParams.Latency = opus.Latency20ms

	return mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	), nil
}

func captureDevices(ctx context.Context) (*Bundle, error) {
	selector, err := codecSelector()
	if err != nil {
		return nil, err
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(FrameWidth)
			c.Height = prop.Int(FrameHeight)
			c.FrameRate = prop.Float(FrameRate)
		},
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(48000)
			c.Latency = prop.Duration(audioFrame)
		},
		Codec: selector,
	})
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", permissionDenied(err))
	}

	sources := stream.GetTracks()
	if ctx.Err() != nil {
		for _, src := range sources {
			_ = src.Close()
		}
		return nil, ctx.Err()
	}

	tracks := make([]*Track, 0, len(sources))
	for _, src := range sources {
		capability := videoCodec
		if src.Kind() == webrtc.RTPCodecTypeAudio {
			capability = audioCodec
		}
		t, err := NewTrack(src.Kind(), capability, func() { _ = src.Close() })
		if err != nil {
			for _, s := range sources {
				_ = s.Close()
			}
			return nil, err
		}
		tracks = append(tracks, t)
	}

	b, bctx := newBundle(false, tracks...)
	for i, src := range sources {
		dst := tracks[i]
		frame := time.Second / FrameRate
		if src.Kind() == webrtc.RTPCodecTypeAudio {
			frame = audioFrame
		}
		b.goProduce(func() { pumpEncoded(bctx, src, dst, frame) })
	}

	log.Info().Str("module", "media.capture").Int("tracks", len(tracks)).Msg("hardware capture started")
	return b, nil
}

func pumpEncoded(ctx context.Context, src mediadevices.Track, dst *Track, frame time.Duration) {
	name := dst.Codec().MimeType
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	r, err := src.NewEncodedReader(name)
	if err != nil {
		log.Error().Err(err).Str("module", "media.capture").Str("codec", name).Msg("encoded reader")
		return
	}
	defer r.Close()

	for ctx.Err() == nil {
		buf, release, err := r.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Str("module", "media.capture").Str("kind", src.Kind().String()).Msg("read encoded")
			}
			return
		}
		err = dst.WriteSample(buf.Data, frame)
		release()
		if err != nil {
			return
		}
	}
}

// vpxEncoder feeds one frame at a time through the pull based vpx encoder.
type vpxEncoder struct {
	next image.Image
	rc   codec.ReadCloser
}

func DefaultFrameEncoder() FrameEncoder {
	params, err := vpx.NewVP8Params()
	if err != nil {
		log.Error().Err(err).Str("module", "media.capture").Msg("vp8 params")
		return nil
	}
	params.BitRate = 300_000

	e := &vpxEncoder{}
	reader := video.ReaderFunc(func() (image.Image, func(), error) {
		if e.next == nil {
			return nil, func() {}, io.EOF
		}
		return e.next, func() {}, nil
	})
	rc, err := params.BuildVideoEncoder(reader, prop.Media{
		Video: prop.Video{Width: FrameWidth, Height: FrameHeight, FrameRate: FrameRate},
	})
	if err != nil {
		log.Error().Err(err).Str("module", "media.capture").Msg("vp8 encoder")
		return nil
	}
	e.rc = rc
	return e
}

func (e *vpxEncoder) Encode(img image.Image) ([]byte, error) {
	e.next = img
	data, release, err := e.rc.Read()
	if err != nil {
		return nil, err
	}
	defer release()
	return append([]byte(nil), data...), nil
}

func (e *vpxEncoder) Close() error { return e.rc.Close() }
