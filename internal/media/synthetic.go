package media

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	FrameWidth  = 640
	FrameHeight = 480
	FrameRate   = 30

	audioFrame = 20 * time.Millisecond
)

// opusSilence is a single 20ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

var (
	videoCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	audioCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}

	background = color.RGBA{0x11, 0x11, 0x11, 0xff}
	captionDim = color.RGBA{0xaa, 0xaa, 0xaa, 0xff}
	orbColors  = [3]color.RGBA{
		{0xff, 0x6b, 0x35, 0xff},
		{0x4c, 0xb9, 0x44, 0xff},
		{0x25, 0x63, 0xeb, 0xff},
	}
)

const (
	headline = "Simulated Live Stream"
	caption  = "Camera not detected"
	orbAlpha = 0.6
)

// Renderer draws the placeholder shown when no camera is available.
type Renderer struct {
	Width, Height int
	face          font.Face
}

func NewRenderer(w, h int) *Renderer {
	return &Renderer{Width: w, Height: h, face: basicfont.Face7x13}
}

func (r *Renderer) NewFrame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
}

// Render paints the frame for wall clock at into dst.
func (r *Renderer) Render(dst *image.RGBA, at time.Time) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	t := float64(at.UnixMilli()) / 2000
	cx, cy := float64(r.Width)/2, float64(r.Height)/2
	for i, c := range orbColors {
		fi := float64(i)
		orb := &circle{
			x: cx + math.Sin(t+fi)*100,
			y: cy + math.Cos(t*1.5+fi)*50,
			r: 50 + math.Sin(t*2+fi)*20,
			a: uint8(orbAlpha * 255),
		}
		draw.DrawMask(dst, orb.Bounds(), image.NewUniform(c), image.Point{}, orb, orb.Bounds().Min, draw.Over)
	}

	r.text(dst, headline, color.White, int(cy)-20)
	r.text(dst, caption, captionDim, int(cy)+20)
}

func (r *Renderer) text(dst *image.RGBA, s string, c color.Color, baseline int) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: r.face}
	width := d.MeasureString(s).Round()
	d.Dot = fixed.P((r.Width-width)/2, baseline)
	d.DrawString(s)
}

// circle is an alpha mask of a filled disc.
type circle struct {
	x, y, r float64
	a       uint8
}

func (c *circle) ColorModel() color.Model { return color.AlphaModel }

func (c *circle) Bounds() image.Rectangle {
	return image.Rect(int(c.x-c.r), int(c.y-c.r), int(c.x+c.r)+1, int(c.y+c.r)+1)
}

func (c *circle) At(x, y int) color.Color {
	dx, dy := float64(x)+0.5-c.x, float64(y)+0.5-c.y
	if dx*dx+dy*dy <= c.r*c.r {
		return color.Alpha{A: c.a}
	}
	return color.Alpha{}
}

// Synthesize builds the placeholder bundle: the animated frame at FrameRate
// and a silent audio track. Video samples are only produced when enc is
// set; without an encoder the track is published but stays blank.
func Synthesize(enc FrameEncoder) (*Bundle, error) {
	video, err := NewTrack(webrtc.RTPCodecTypeVideo, videoCodec, nil)
	if err != nil {
		return nil, err
	}
	audio, err := NewTrack(webrtc.RTPCodecTypeAudio, audioCodec, nil)
	if err != nil {
		return nil, err
	}

	b, ctx := newBundle(true, video, audio)
	b.goProduce(func() { produceVideo(ctx, video, enc) })
	b.goProduce(func() { produceSilence(ctx, audio) })

	log.Info().Str("module", "media.synthetic").Bool("encoder", enc != nil).Msg("synthetic feed started")
	return b, nil
}

func produceVideo(ctx context.Context, track *Track, enc FrameEncoder) {
	if enc != nil {
		defer func() {
			if err := enc.Close(); err != nil {
				log.Warn().Err(err).Str("module", "media.synthetic").Msg("encoder close")
			}
		}()
	}

	r := NewRenderer(FrameWidth, FrameHeight)
	frame := r.NewFrame()
	interval := time.Second / FrameRate
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Render(frame, now)
			if enc == nil {
				continue
			}
			data, err := enc.Encode(frame)
			if err != nil {
				log.Error().Err(err).Str("module", "media.synthetic").Msg("encode frame")
				return
			}
			if len(data) == 0 {
				continue
			}
			if err := track.WriteSample(data, interval); err != nil {
				return
			}
		}
	}
}

func produceSilence(ctx context.Context, track *Track) {
	ticker := time.NewTicker(audioFrame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := track.WriteSample(opusSilence, audioFrame); err != nil {
				return
			}
		}
	}
}
