package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/zone-annotator/pkg/types"
)

// DefaultTargetWidth is the logical width media is rendered at.
const DefaultTargetWidth = 600

var (
	// ErrSuperseded is returned when a newer load started before this one finished.
	ErrSuperseded = errors.New("media load superseded by a newer request")
	// ErrNoSource is returned when loading an empty source.
	ErrNoSource = errors.New("no media source")
)

// Config holds configuration for the media loader
type Config struct {
	TargetWidth  int
	FetchTimeout time.Duration
	MaxBytes     int64
	UserAgent    string
}

// DefaultConfig returns the loader defaults.
func DefaultConfig() Config {
	return Config{
		TargetWidth:  DefaultTargetWidth,
		FetchTimeout: 30 * time.Second,
		MaxBytes:     MaxUploadBytes,
		UserAgent:    "Zone-Annotator/1.0",
	}
}

// Frame is a decoded media frame ready to draw on.
type Frame struct {
	Source Source
	// Original is the decoded image at native resolution (nil for video).
	Original image.Image
	// Raster is Original scaled to Dimensions (nil for video).
	Raster     image.Image
	Dimensions types.Dimensions
	// Generation is the load request that produced this frame.
	Generation uint64
}

// Loader resolves source references into frames.
type Loader struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger

	mu         sync.Mutex
	generation uint64
}

// NewLoader creates a loader with default configuration
func NewLoader() *Loader {
	return NewLoaderWithConfig(DefaultConfig(), nil)
}

// NewLoaderWithConfig creates a loader with custom configuration. log may be nil.
func NewLoaderWithConfig(cfg Config, log *slog.Logger) *Loader {
	def := DefaultConfig()
	if cfg.TargetWidth <= 0 {
		cfg.TargetWidth = def.TargetWidth
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		log:    log,
	}
}

// TargetWidth returns the configured render width.
func (l *Loader) TargetWidth() int {
	return l.cfg.TargetWidth
}

// Current returns the generation of the most recent load request.
func (l *Loader) Current() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation
}

// IsCurrent reports whether gen is still the latest load request.
func (l *Loader) IsCurrent(gen uint64) bool {
	return l.Current() == gen
}

func (l *Loader) begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	return l.generation
}

// Load classifies src and, for images, decodes it and computes render
// dimensions. Video sources come back without a raster; frame capture owns
// their decoding. A load that finishes after a newer one started returns
// ErrSuperseded.
func (l *Loader) Load(ctx context.Context, src string) (*Frame, error) {
	gen := l.begin()
	source := Classify(src)

	switch source.Kind {
	case KindNone:
		return nil, ErrNoSource
	case KindVideo:
		return &Frame{Source: source, Generation: gen}, nil
	}

	img, err := l.decodeSource(ctx, source.Ref)
	if err != nil {
		l.log.Warn("media decode failed", slog.String("source", describe(source.Ref)), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	if !l.IsCurrent(gen) {
		l.log.Debug("discarding stale decode", slog.Uint64("generation", gen))
		return nil, ErrSuperseded
	}

	return l.frameFromImage(source, img, gen), nil
}

// LoadImage decodes raw image bytes as a new load request.
func (l *Loader) LoadImage(data []byte, ref string) (*Frame, error) {
	gen := l.begin()
	img, err := decodeImageFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if !l.IsCurrent(gen) {
		return nil, ErrSuperseded
	}
	return l.frameFromImage(Source{Kind: KindImage, Ref: ref}, img, gen), nil
}

// Invalidate bumps the generation so any in-flight load is discarded.
func (l *Loader) Invalidate() uint64 {
	return l.begin()
}

func (l *Loader) frameFromImage(source Source, img image.Image, gen uint64) *Frame {
	b := img.Bounds()
	dims := ScaleToWidth(b.Dx(), b.Dy(), l.cfg.TargetWidth)
	return &Frame{
		Source:     source,
		Original:   img,
		Raster:     Fit(img, dims),
		Dimensions: dims,
		Generation: gen,
	}
}

// ScaleToWidth computes render dimensions with the given width that keep the
// source aspect ratio.
func ScaleToWidth(srcW, srcH, targetW int) types.Dimensions {
	if srcW <= 0 || srcH <= 0 || targetW <= 0 {
		return types.Dimensions{}
	}
	h := int(float64(targetW)*float64(srcH)/float64(srcW) + 0.5)
	if h < 1 {
		h = 1
	}
	return types.Dimensions{Width: targetW, Height: h}
}

// Fit resizes img to exactly dims. Images already at that size are returned as-is.
func Fit(img image.Image, dims types.Dimensions) image.Image {
	b := img.Bounds()
	if b.Dx() == dims.Width && b.Dy() == dims.Height {
		return img
	}
	return imaging.Resize(img, dims.Width, dims.Height, imaging.Lanczos)
}

func (l *Loader) decodeSource(ctx context.Context, ref string) (image.Image, error) {
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "data:"):
		mediaType, data, err := ParseDataURI(ref)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(mediaType, "image/") {
			return nil, fmt.Errorf("data URI is not an image (%s)", mediaType)
		}
		return decodeImageFromBytes(data)
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return l.loadImageFromURL(ctx, ref)
	default:
		return loadImageFile(ref)
	}
}

// loadImageFromURL downloads and decodes an image
func (l *Loader) loadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.cfg.UserAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	imageData, err := io.ReadAll(io.LimitReader(resp.Body, l.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(imageData)) > l.cfg.MaxBytes {
		return nil, ErrFileTooLarge
	}

	return decodeImageFromBytes(imageData)
}

// loadImageFile loads an image from a file path with WebP support
func loadImageFile(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeImageFromBytes(data)
}

// decodeImageFromBytes tries the registered decoders, then an explicit WebP decode.
func decodeImageFromBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// describe shortens data URIs for logging.
func describe(ref string) string {
	if strings.HasPrefix(strings.ToLower(ref), "data:") {
		if i := strings.IndexByte(ref, ','); i > 0 {
			return ref[:i] + ",..."
		}
	}
	return ref
}
