package capture

import (
	"errors"
	"image"
	"time"
)

var (
	// ErrNoMedia is returned when there is nothing to capture from.
	ErrNoMedia = errors.New("no media loaded")
	// ErrNoDecoder is returned when a video source is attached without a decoder.
	ErrNoDecoder = errors.New("no video decoder configured")
)

// Metadata describes a video stream at native resolution.
type Metadata struct {
	Width    int
	Height   int
	Duration time.Duration
	FPS      float64
}

// VideoStream is an opened video that can produce a frame at any position.
type VideoStream interface {
	Metadata() Metadata
	// FrameAt returns the frame shown at position t.
	FrameAt(t time.Duration) (image.Image, error)
	Close() error
}

// VideoDecoder opens video sources (URLs, paths or video data URIs).
type VideoDecoder interface {
	Open(src string) (VideoStream, error)
}
