package capture

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/menta2k/zone-annotator/internal/utils"
	"github.com/menta2k/zone-annotator/pkg/media"
)

// GoCVDecoder decodes video with OpenCV. Video data URIs are spooled to a
// temporary file first because OpenCV only opens paths and URLs.
type GoCVDecoder struct {
	TempDir string
}

// NewGoCVDecoder creates a decoder that spools into the system temp dir.
func NewGoCVDecoder() *GoCVDecoder {
	return &GoCVDecoder{TempDir: os.TempDir()}
}

// Open implements VideoDecoder.
func (d *GoCVDecoder) Open(src string) (VideoStream, error) {
	path := src
	var spooled string
	if strings.HasPrefix(strings.ToLower(src), "data:") {
		p, err := d.spool(src)
		if err != nil {
			return nil, err
		}
		path, spooled = p, p
	}

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		removeQuietly(spooled)
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		removeQuietly(spooled)
		return nil, fmt.Errorf("failed to open video: %s", utils.SanitizeFilename(filepath.Base(path)))
	}

	fps := vc.Get(gocv.VideoCaptureFPS)
	frames := vc.Get(gocv.VideoCaptureFrameCount)
	var duration time.Duration
	if fps > 0 && frames > 0 {
		duration = time.Duration(frames / fps * float64(time.Second))
	}

	return &gocvStream{
		vc:      vc,
		spooled: spooled,
		meta: Metadata{
			Width:    int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:   int(vc.Get(gocv.VideoCaptureFrameHeight)),
			Duration: duration,
			FPS:      fps,
		},
	}, nil
}

func (d *GoCVDecoder) spool(uri string) (string, error) {
	mediaType, data, err := media.ParseDataURI(uri)
	if err != nil {
		return "", err
	}
	ext := ".mp4"
	if mediaType == "video/webm" {
		ext = ".webm"
	}
	f, err := os.CreateTemp(d.TempDir, "zone-video-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to spool video: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		removeQuietly(f.Name())
		return "", fmt.Errorf("failed to spool video: %w", err)
	}
	return f.Name(), nil
}

type gocvStream struct {
	mu      sync.Mutex
	vc      *gocv.VideoCapture
	meta    Metadata
	spooled string
}

func (s *gocvStream) Metadata() Metadata {
	return s.meta
}

func (s *gocvStream) FrameAt(t time.Duration) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vc.Set(gocv.VideoCapturePosMsec, float64(t.Milliseconds()))
	mat := gocv.NewMat()
	defer mat.Close()

	if ok := s.vc.Read(&mat); !ok || mat.Empty() {
		return nil, fmt.Errorf("no frame at %s", t)
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("frame conversion failed: %w", err)
	}
	return img, nil
}

func (s *gocvStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.vc.Close()
	removeQuietly(s.spooled)
	return err
}

func removeQuietly(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
