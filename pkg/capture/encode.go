package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/chai2010/webp"

	"github.com/menta2k/zone-annotator/pkg/media"
)

// DefaultSnapshotQuality matches the browser canvas default for lossy export.
const DefaultSnapshotQuality = 92

// EncodeSnapshot encodes img as a data URI. format is jpeg (default), png or webp.
func EncodeSnapshot(img image.Image, format string, quality int) (string, error) {
	if img == nil {
		return "", ErrNoMedia
	}
	if quality < 1 || quality > 100 {
		quality = DefaultSnapshotQuality
	}

	var buf bytes.Buffer
	mediaType := "image/jpeg"
	switch strings.ToLower(format) {
	case "png":
		mediaType = "image/png"
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("snapshot encode failed: %w", err)
		}
	case "webp":
		mediaType = "image/webp"
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return "", fmt.Errorf("snapshot encode failed: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", fmt.Errorf("snapshot encode failed: %w", err)
		}
	}
	return media.EncodeDataURI(mediaType, buf.Bytes()), nil
}
