package media

import (
	"strings"

	"github.com/menta2k/zone-annotator/internal/utils"
)

// Kind is the media type of a source, decided once at load time.
type Kind int

const (
	// KindNone means no media: drawing starts disabled.
	KindNone Kind = iota
	// KindImage is a still image (URL, path or data URI).
	KindImage
	// KindVideo is a video handed to frame capture for playback.
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Source is a classified media reference.
type Source struct {
	Kind Kind
	Ref  string
}

// Classify tags a raw source reference. A reference is a video when it
// contains "video", ends in a known video extension, or is a video data URI.
// Everything else non-empty is an image.
func Classify(ref string) Source {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Source{Kind: KindNone}
	}

	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "data:video/"):
		return Source{Kind: KindVideo, Ref: ref}
	case strings.HasPrefix(lower, "data:"):
		// Base64 payloads can contain any substring; trust the media type.
		return Source{Kind: KindImage, Ref: ref}
	case strings.Contains(lower, "video"), utils.IsVideoFile(stripQuery(lower)):
		return Source{Kind: KindVideo, Ref: ref}
	default:
		return Source{Kind: KindImage, Ref: ref}
	}
}

func stripQuery(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}
