package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			img.Set(x, y, color.RGBA{r, g, 128, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestClassify(t *testing.T) {
	cases := []struct {
		ref  string
		want Kind
	}{
		{"", KindNone},
		{"   ", KindNone},
		{"/placeholder.svg", KindImage},
		{"https://cdn.example.com/frame.jpg", KindImage},
		{"data:image/png;base64,iVBORw0KGgo=", KindImage},
		{"data:video/mp4;base64,AAAAIGZ0eXA=", KindVideo},
		{"https://cdn.example.com/lobby.mp4", KindVideo},
		{"https://cdn.example.com/lobby.WEBM?token=abc", KindVideo},
		{"/streams/video/cam-001", KindVideo},
	}
	for _, c := range cases {
		if got := Classify(c.ref).Kind; got != c.want {
			t.Errorf("Classify(%q) = %s, want %s", c.ref, got, c.want)
		}
	}
}

func TestParseDataURI(t *testing.T) {
	mt, data, err := ParseDataURI(EncodeDataURI("image/png", []byte("hello")))
	if err != nil {
		t.Fatalf("ParseDataURI failed: %v", err)
	}
	if mt != "image/png" || string(data) != "hello" {
		t.Errorf("unexpected result %q %q", mt, data)
	}

	mt, data, err = ParseDataURI("data:text/plain;charset=utf-8,zone%20a")
	if err != nil {
		t.Fatalf("ParseDataURI plain failed: %v", err)
	}
	if mt != "text/plain" || string(data) != "zone a" {
		t.Errorf("unexpected plain result %q %q", mt, data)
	}

	if _, _, err := ParseDataURI("data:image/png;base64"); !errors.Is(err, ErrInvalidDataURI) {
		t.Errorf("Expected ErrInvalidDataURI, got %v", err)
	}
	if _, _, err := ParseDataURI("https://example.com"); !errors.Is(err, ErrInvalidDataURI) {
		t.Errorf("Expected ErrInvalidDataURI for non data URI, got %v", err)
	}
}

func TestScaleToWidth(t *testing.T) {
	dims := ScaleToWidth(800, 600, 600)
	if dims.Width != 600 || dims.Height != 450 {
		t.Errorf("Expected 600x450, got %dx%d", dims.Width, dims.Height)
	}

	dims = ScaleToWidth(1920, 1080, 600)
	if dims.Width != 600 || dims.Height != 338 {
		t.Errorf("Expected 600x338, got %dx%d", dims.Width, dims.Height)
	}

	if dims := ScaleToWidth(0, 100, 600); dims.Valid() {
		t.Errorf("Expected invalid dimensions for zero width source, got %+v", dims)
	}
}

func TestLoadDataURIImage(t *testing.T) {
	loader := NewLoader()
	uri := EncodeDataURI("image/png", encodePNG(t, createTestImage(800, 600)))

	frame, err := loader.Load(context.Background(), uri)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if frame.Source.Kind != KindImage {
		t.Errorf("Expected image kind, got %s", frame.Source.Kind)
	}
	if frame.Dimensions.Width != 600 || frame.Dimensions.Height != 450 {
		t.Errorf("Expected 600x450, got %+v", frame.Dimensions)
	}
	b := frame.Raster.Bounds()
	if b.Dx() != 600 || b.Dy() != 450 {
		t.Errorf("Expected raster 600x450, got %dx%d", b.Dx(), b.Dy())
	}
	if frame.Original.Bounds().Dx() != 800 {
		t.Errorf("Expected original width 800, got %d", frame.Original.Bounds().Dx())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := os.WriteFile(path, encodePNG(t, createTestImage(300, 300)), 0o644); err != nil {
		t.Fatal(err)
	}

	frame, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if frame.Dimensions.Width != 600 || frame.Dimensions.Height != 600 {
		t.Errorf("Expected 600x600, got %+v", frame.Dimensions)
	}
}

func TestLoadURL(t *testing.T) {
	body := encodePNG(t, createTestImage(400, 200))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/not-image" {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	loader := NewLoader()
	frame, err := loader.Load(context.Background(), srv.URL+"/frame.png")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if frame.Dimensions.Height != 300 {
		t.Errorf("Expected height 300, got %d", frame.Dimensions.Height)
	}

	if _, err := loader.Load(context.Background(), srv.URL+"/not-image"); err == nil {
		t.Error("Expected error for non-image content type")
	}
}

func TestLoadErrors(t *testing.T) {
	loader := NewLoader()

	if _, err := loader.Load(context.Background(), ""); !errors.Is(err, ErrNoSource) {
		t.Errorf("Expected ErrNoSource, got %v", err)
	}
	if _, err := loader.Load(context.Background(), EncodeDataURI("image/png", []byte("garbage"))); err == nil {
		t.Error("Expected decode error for garbage payload")
	}
	if _, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadVideoDefersDecoding(t *testing.T) {
	frame, err := NewLoader().Load(context.Background(), "data:video/mp4;base64,AAAA")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if frame.Source.Kind != KindVideo {
		t.Errorf("Expected video kind, got %s", frame.Source.Kind)
	}
	if frame.Raster != nil || frame.Dimensions.Valid() {
		t.Error("Expected no raster or dimensions for video source")
	}
}

func TestStaleLoadIsSuperseded(t *testing.T) {
	release := make(chan struct{})
	body := encodePNG(t, createTestImage(100, 100))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	loader := NewLoader()
	errCh := make(chan error, 1)
	go func() {
		_, err := loader.Load(context.Background(), srv.URL+"/slow.png")
		errCh <- err
	}()

	// Wait for the slow load to register its generation.
	for loader.Current() == 0 {
		time.Sleep(time.Millisecond)
	}

	newer, err := loader.LoadImage(encodePNG(t, createTestImage(200, 100)), "upload.png")
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	close(release)

	if err := <-errCh; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Expected ErrSuperseded for stale load, got %v", err)
	}
	if !loader.IsCurrent(newer.Generation) {
		t.Error("Expected newer frame to remain current")
	}
}

func TestValidateUpload(t *testing.T) {
	limits := DefaultUploadLimits()
	const mb = 1024 * 1024

	if _, err := ValidateUpload(FileInfo{Name: "a.png", Size: 51 * mb, ContentType: "image/png"}, limits); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Expected ErrFileTooLarge for 51MB png, got %v", err)
	}
	if _, err := ValidateUpload(FileInfo{Name: "a.pdf", Size: 51 * mb, ContentType: "application/pdf"}, limits); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Expected ErrFileTooLarge for 51MB pdf, got %v", err)
	}
	if _, err := ValidateUpload(FileInfo{Name: "a.pdf", Size: 10 * mb, ContentType: "application/pdf"}, limits); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected ErrUnsupportedType for pdf, got %v", err)
	}

	kind, err := ValidateUpload(FileInfo{Name: "a.png", Size: 10 * mb, ContentType: "image/png"}, limits)
	if err != nil || kind != KindImage {
		t.Errorf("Expected 10MB png accepted as image, got %s %v", kind, err)
	}
	kind, err = ValidateUpload(FileInfo{Name: "a.webm", Size: 10 * mb, ContentType: "video/webm; codecs=vp9"}, limits)
	if err != nil || kind != KindVideo {
		t.Errorf("Expected webm accepted as video, got %s %v", kind, err)
	}
	if _, err := ValidateUpload(FileInfo{Name: "a.png", Size: 50 * mb, ContentType: "image/png"}, limits); err != nil {
		t.Errorf("Expected exactly 50MB to be accepted, got %v", err)
	}
}

func TestDetectContentType(t *testing.T) {
	data := encodePNG(t, createTestImage(4, 4))
	if got := DetectContentType("", "x.bin", data); got != "image/png" {
		t.Errorf("Expected sniffed image/png, got %s", got)
	}
	if got := DetectContentType("image/jpeg", "x.png", data); got != "image/jpeg" {
		t.Errorf("Expected declared type to win, got %s", got)
	}
	if got := DetectContentType("", "clip.mp4", nil); got != "video/mp4" {
		t.Errorf("Expected extension fallback video/mp4, got %s", got)
	}
}
