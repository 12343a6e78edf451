// Package capture bridges a playing video to the still raster zones are drawn on.
package capture

import (
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/menta2k/zone-annotator/pkg/media"
	"github.com/menta2k/zone-annotator/pkg/types"
)

// Config holds configuration for frame capture
type Config struct {
	TargetWidth     int
	SnapshotFormat  string
	SnapshotQuality int
	Now             func() time.Time
}

// DefaultConfig returns the capture defaults.
func DefaultConfig() Config {
	return Config{
		TargetWidth:     media.DefaultTargetWidth,
		SnapshotFormat:  "jpeg",
		SnapshotQuality: DefaultSnapshotQuality,
		Now:             time.Now,
	}
}

// Capturer keeps an off-screen buffer at native resolution and a display
// raster scaled to the target width. Image sources are drawn once; video
// sources are redrawn on every metadata-loaded and time-update.
type Capturer struct {
	cfg     Config
	decoder VideoDecoder
	log     *slog.Logger

	mu      sync.Mutex
	kind    media.Kind
	still   *media.Frame
	stream  VideoStream
	player  *Player
	buffer  *image.RGBA
	display image.Image
	dims    types.Dimensions
}

// New creates a Capturer. decoder may be nil when only images are used; log may be nil.
func New(cfg Config, decoder VideoDecoder, log *slog.Logger) *Capturer {
	def := DefaultConfig()
	if cfg.TargetWidth <= 0 {
		cfg.TargetWidth = def.TargetWidth
	}
	if cfg.SnapshotFormat == "" {
		cfg.SnapshotFormat = def.SnapshotFormat
	}
	if cfg.SnapshotQuality <= 0 {
		cfg.SnapshotQuality = def.SnapshotQuality
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Capturer{cfg: cfg, decoder: decoder, log: log}
}

// AttachImage shows a decoded still image. Any open video is closed.
func (c *Capturer) AttachImage(frame *media.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeStreamLocked()
	c.kind = media.KindImage
	c.still = frame
	c.display = frame.Raster
	c.dims = frame.Dimensions
	c.buffer = nil
}

// AttachVideo opens src for playback and draws its first frame.
func (c *Capturer) AttachVideo(src string) (Metadata, error) {
	stream, err := c.OpenVideo(src)
	if err != nil {
		return Metadata{}, err
	}
	return c.SetStream(stream), nil
}

// OpenVideo opens src without touching the attached media. The caller owns
// the stream until it is handed to SetStream.
func (c *Capturer) OpenVideo(src string) (VideoStream, error) {
	if c.decoder == nil {
		return nil, ErrNoDecoder
	}
	return c.decoder.Open(src)
}

// SetStream replaces the attached media with an opened stream and draws its
// first frame.
func (c *Capturer) SetStream(stream VideoStream) Metadata {
	meta := stream.Metadata()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeStreamLocked()
	c.kind = media.KindVideo
	c.still = nil
	c.stream = stream
	c.player = NewPlayer(meta.Duration, c.cfg.Now)
	c.dims = media.ScaleToWidth(meta.Width, meta.Height, c.cfg.TargetWidth)
	c.buffer = nil
	c.display = nil

	if err := c.drawCurrentLocked(); err != nil {
		c.log.Warn("initial video frame unavailable", slog.String("error", err.Error()))
	}
	return meta
}

// Detach drops the current media.
func (c *Capturer) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeStreamLocked()
	c.kind = media.KindNone
	c.still = nil
	c.buffer = nil
	c.display = nil
	c.dims = types.Dimensions{}
}

// Close releases the video stream, if any.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeStreamLocked()
}

// Kind returns the attached media kind.
func (c *Capturer) Kind() media.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind
}

// Display returns the raster to draw zones on and its render dimensions.
func (c *Capturer) Display() (image.Image, types.Dimensions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.display, c.dims
}

// OnMetadataLoaded redraws the buffer once video metadata is known.
func (c *Capturer) OnMetadataLoaded() error {
	return c.redraw()
}

// OnTimeUpdate redraws the buffer at the current playback position so the
// annotation background follows playback.
func (c *Capturer) OnTimeUpdate() error {
	return c.redraw()
}

func (c *Capturer) redraw() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kind != media.KindVideo {
		return nil
	}
	return c.drawCurrentLocked()
}

// Play starts playback.
func (c *Capturer) Play() error {
	p, err := c.videoPlayer()
	if err != nil {
		return err
	}
	p.Play()
	return nil
}

// Pause stops playback.
func (c *Capturer) Pause() error {
	p, err := c.videoPlayer()
	if err != nil {
		return err
	}
	p.Pause()
	return c.OnTimeUpdate()
}

// Seek moves playback to t (clamped to the video length) and redraws.
func (c *Capturer) Seek(t time.Duration) (time.Duration, error) {
	p, err := c.videoPlayer()
	if err != nil {
		return 0, err
	}
	pos := p.Seek(t)
	return pos, c.OnTimeUpdate()
}

// PlaybackState reports position, duration and whether video is playing.
func (c *Capturer) PlaybackState() (pos, duration time.Duration, playing bool, ok bool) {
	p, err := c.videoPlayer()
	if err != nil {
		return 0, 0, false, false
	}
	return p.CurrentTime(), p.Duration(), p.Playing(), true
}

func (c *Capturer) videoPlayer() (*Player, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kind != media.KindVideo || c.player == nil {
		return nil, ErrNoMedia
	}
	return c.player, nil
}

// CaptureSnapshot draws the current frame (or the loaded image) into the
// off-screen buffer and exports it as a still-image data URI.
func (c *Capturer) CaptureSnapshot() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.kind {
	case media.KindVideo:
		if err := c.drawCurrentLocked(); err != nil {
			return "", fmt.Errorf("snapshot failed: %w", err)
		}
	case media.KindImage:
		if c.still == nil || c.still.Original == nil {
			return "", ErrNoMedia
		}
		c.drawIntoBufferLocked(c.still.Original)
	default:
		return "", ErrNoMedia
	}

	return EncodeSnapshot(c.buffer, c.cfg.SnapshotFormat, c.cfg.SnapshotQuality)
}

func (c *Capturer) drawCurrentLocked() error {
	if c.stream == nil || c.player == nil {
		return ErrNoMedia
	}
	img, err := c.stream.FrameAt(c.player.CurrentTime())
	if err != nil {
		return err
	}
	c.drawIntoBufferLocked(img)

	if !c.dims.Valid() {
		b := c.buffer.Bounds()
		c.dims = media.ScaleToWidth(b.Dx(), b.Dy(), c.cfg.TargetWidth)
	}
	display := image.NewRGBA(image.Rect(0, 0, c.dims.Width, c.dims.Height))
	xdraw.ApproxBiLinear.Scale(display, display.Bounds(), c.buffer, c.buffer.Bounds(), draw.Src, nil)
	c.display = display
	return nil
}

func (c *Capturer) drawIntoBufferLocked(img image.Image) {
	b := img.Bounds()
	if c.buffer == nil || c.buffer.Bounds().Dx() != b.Dx() || c.buffer.Bounds().Dy() != b.Dy() {
		c.buffer = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(c.buffer, c.buffer.Bounds(), img, b.Min, draw.Src)
}

func (c *Capturer) closeStreamLocked() error {
	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	c.player = nil
	return err
}
