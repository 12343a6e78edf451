package capture

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/menta2k/zone-annotator/pkg/media"
	"github.com/menta2k/zone-annotator/pkg/types"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeStream renders a solid frame whose red channel encodes the second requested.
type fakeStream struct {
	meta     Metadata
	requests []time.Duration
	closed   bool
}

func (s *fakeStream) Metadata() Metadata { return s.meta }

func (s *fakeStream) FrameAt(t time.Duration) (image.Image, error) {
	s.requests = append(s.requests, t)
	img := image.NewRGBA(image.Rect(0, 0, s.meta.Width, s.meta.Height))
	c := color.RGBA{R: uint8(int(t.Seconds()) * 20), G: 40, B: 200, A: 255}
	for y := 0; y < s.meta.Height; y++ {
		for x := 0; x < s.meta.Width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeDecoder struct {
	stream *fakeStream
	err    error
}

func (d *fakeDecoder) Open(string) (VideoStream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

func newVideoCapturer(t *testing.T, clock *fakeClock) (*Capturer, *fakeStream) {
	t.Helper()
	stream := &fakeStream{meta: Metadata{Width: 1280, Height: 720, Duration: 10 * time.Second, FPS: 25}}
	c := New(Config{Now: clock.Now}, &fakeDecoder{stream: stream}, nil)
	if _, err := c.AttachVideo("data:video/mp4;base64,AAAA"); err != nil {
		t.Fatalf("AttachVideo failed: %v", err)
	}
	return c, stream
}

func decodeSnapshot(t *testing.T, uri string) image.Image {
	t.Helper()
	mt, data, err := media.ParseDataURI(uri)
	if err != nil {
		t.Fatalf("snapshot is not a data URI: %v", err)
	}
	if mt != "image/jpeg" {
		t.Fatalf("Expected image/jpeg snapshot, got %s", mt)
	}
	img, err := jpeg.Decode(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("snapshot decode failed: %v", err)
	}
	return img
}

func TestPlayerSeekClamps(t *testing.T) {
	p := NewPlayer(10*time.Second, newFakeClock().Now)

	if got := p.Seek(-time.Second); got != 0 {
		t.Errorf("Expected seek clamped to 0, got %v", got)
	}
	if got := p.Seek(42 * time.Second); got != 10*time.Second {
		t.Errorf("Expected seek clamped to 10s, got %v", got)
	}
	if got := p.Seek(3 * time.Second); got != 3*time.Second {
		t.Errorf("Expected seek to 3s, got %v", got)
	}
}

func TestPlayerAdvancesWithClock(t *testing.T) {
	clock := newFakeClock()
	p := NewPlayer(10*time.Second, clock.Now)

	p.Play()
	clock.Advance(4 * time.Second)
	if got := p.CurrentTime(); got != 4*time.Second {
		t.Errorf("Expected 4s, got %v", got)
	}

	p.Pause()
	clock.Advance(4 * time.Second)
	if got := p.CurrentTime(); got != 4*time.Second {
		t.Errorf("Expected paused position 4s, got %v", got)
	}

	p.Play()
	clock.Advance(30 * time.Second)
	if got := p.CurrentTime(); got != 10*time.Second {
		t.Errorf("Expected position to stop at the end, got %v", got)
	}
	if p.Playing() {
		t.Error("Expected player to stop at the end")
	}

	p.Play()
	if got := p.CurrentTime(); got != 0 {
		t.Errorf("Expected replay from start, got %v", got)
	}
}

func TestAttachVideoScalesDisplay(t *testing.T) {
	c, stream := newVideoCapturer(t, newFakeClock())

	img, dims := c.Display()
	if dims.Width != 600 || dims.Height != 338 {
		t.Errorf("Expected 600x338, got %+v", dims)
	}
	if img == nil || img.Bounds().Dx() != 600 {
		t.Fatal("Expected a display raster at render width")
	}
	if len(stream.requests) != 1 || stream.requests[0] != 0 {
		t.Errorf("Expected first frame drawn at 0, got %v", stream.requests)
	}
	if c.Kind() != media.KindVideo {
		t.Errorf("Expected video kind, got %s", c.Kind())
	}
}

func TestTimeUpdateFollowsPlayback(t *testing.T) {
	clock := newFakeClock()
	c, stream := newVideoCapturer(t, clock)

	if err := c.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	clock.Advance(2 * time.Second)
	if err := c.OnTimeUpdate(); err != nil {
		t.Fatalf("OnTimeUpdate failed: %v", err)
	}
	if last := stream.requests[len(stream.requests)-1]; last != 2*time.Second {
		t.Errorf("Expected redraw at 2s, got %v", last)
	}

	pos, err := c.Seek(7 * time.Second)
	if err != nil || pos != 7*time.Second {
		t.Fatalf("Seek = %v, %v", pos, err)
	}
	if last := stream.requests[len(stream.requests)-1]; last != 7*time.Second {
		t.Errorf("Expected redraw at 7s after seek, got %v", last)
	}
}

func TestSnapshotCapturesCurrentFrameAtNativeResolution(t *testing.T) {
	clock := newFakeClock()
	c, _ := newVideoCapturer(t, clock)

	if _, err := c.Seek(5 * time.Second); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	uri, err := c.CaptureSnapshot()
	if err != nil {
		t.Fatalf("CaptureSnapshot failed: %v", err)
	}
	img := decodeSnapshot(t, uri)
	if img.Bounds().Dx() != 1280 || img.Bounds().Dy() != 720 {
		t.Errorf("Expected native 1280x720 snapshot, got %v", img.Bounds())
	}
	r, _, _, _ := img.At(640, 360).RGBA()
	if got := int(r >> 8); got < 90 || got > 110 {
		t.Errorf("Expected red channel ~100 for the 5s frame, got %d", got)
	}
}

func TestSnapshotFromImage(t *testing.T) {
	original := image.NewRGBA(image.Rect(0, 0, 800, 600))
	frame := &media.Frame{
		Source:     media.Source{Kind: media.KindImage, Ref: "frame.png"},
		Original:   original,
		Raster:     media.Fit(original, types.Dimensions{Width: 600, Height: 450}),
		Dimensions: types.Dimensions{Width: 600, Height: 450},
	}

	c := New(Config{}, nil, nil)
	c.AttachImage(frame)

	_, dims := c.Display()
	if dims.Width != 600 || dims.Height != 450 {
		t.Errorf("Expected 600x450, got %+v", dims)
	}

	uri, err := c.CaptureSnapshot()
	if err != nil {
		t.Fatalf("CaptureSnapshot failed: %v", err)
	}
	if img := decodeSnapshot(t, uri); img.Bounds().Dx() != 800 {
		t.Errorf("Expected snapshot at original width 800, got %d", img.Bounds().Dx())
	}
	if err := c.Play(); !errors.Is(err, ErrNoMedia) {
		t.Errorf("Expected ErrNoMedia for playback on an image, got %v", err)
	}
}

func TestSnapshotWithoutMedia(t *testing.T) {
	c := New(Config{}, nil, nil)
	if _, err := c.CaptureSnapshot(); !errors.Is(err, ErrNoMedia) {
		t.Errorf("Expected ErrNoMedia, got %v", err)
	}
	if _, err := c.AttachVideo("clip.mp4"); !errors.Is(err, ErrNoDecoder) {
		t.Errorf("Expected ErrNoDecoder, got %v", err)
	}
}

func TestDetachClosesStream(t *testing.T) {
	c, stream := newVideoCapturer(t, newFakeClock())
	c.Detach()
	if !stream.closed {
		t.Error("Expected stream to be closed on detach")
	}
	if img, dims := c.Display(); img != nil || dims.Valid() {
		t.Error("Expected empty display after detach")
	}
}

func TestEncodeSnapshotFormats(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for _, tc := range []struct{ format, prefix string }{
		{"", "data:image/jpeg;base64,"},
		{"png", "data:image/png;base64,"},
		{"webp", "data:image/webp;base64,"},
	} {
		uri, err := EncodeSnapshot(img, tc.format, 0)
		if err != nil {
			t.Fatalf("EncodeSnapshot(%q) failed: %v", tc.format, err)
		}
		if !strings.HasPrefix(uri, tc.prefix) {
			t.Errorf("EncodeSnapshot(%q) = %.30s..., want prefix %s", tc.format, uri, tc.prefix)
		}
	}
}
