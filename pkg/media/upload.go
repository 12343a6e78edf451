package media

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/menta2k/zone-annotator/internal/utils"
)

// MaxUploadBytes is the largest accepted replacement media file.
const MaxUploadBytes int64 = 50 * 1024 * 1024

var (
	// ErrFileTooLarge is returned for files above the upload limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrUnsupportedType is returned for MIME types other than the accepted ones.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// AcceptedTypes maps accepted upload MIME types to their media kind.
var AcceptedTypes = map[string]Kind{
	"image/jpeg": KindImage,
	"image/png":  KindImage,
	"image/webp": KindImage,
	"video/mp4":  KindVideo,
	"video/webm": KindVideo,
}

// The builtin mime table has no video entries.
var videoTypesByExt = map[string]string{
	"mp4":  "video/mp4",
	"m4v":  "video/mp4",
	"webm": "video/webm",
}

// FileInfo describes a user-selected replacement file.
type FileInfo struct {
	Name        string
	Size        int64
	ContentType string
}

// UploadLimits bounds accepted uploads.
type UploadLimits struct {
	MaxBytes int64
}

// DefaultUploadLimits returns the 50 MB limit.
func DefaultUploadLimits() UploadLimits {
	return UploadLimits{MaxBytes: MaxUploadBytes}
}

// ValidateUpload checks size first, then type. It returns the media kind of
// an accepted file; rejections wrap ErrFileTooLarge or ErrUnsupportedType.
func ValidateUpload(info FileInfo, limits UploadLimits) (Kind, error) {
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = MaxUploadBytes
	}
	if info.Size > limits.MaxBytes {
		return KindNone, fmt.Errorf("%w: %s exceeds the %s limit",
			ErrFileTooLarge, utils.FormatFileSize(info.Size), utils.FormatFileSize(limits.MaxBytes))
	}

	mediaType := normalizeMediaType(info.ContentType)
	kind, ok := AcceptedTypes[mediaType]
	if !ok {
		return KindNone, fmt.Errorf("%w: %q (accepted: JPEG, PNG, WEBP images or MP4, WEBM videos)",
			ErrUnsupportedType, info.ContentType)
	}
	return kind, nil
}

// DetectContentType returns the declared type when present, otherwise sniffs
// the content and falls back to the file extension.
func DetectContentType(declared, name string, head []byte) string {
	if mt := normalizeMediaType(declared); mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if len(head) > 0 {
		if mt := normalizeMediaType(http.DetectContentType(head)); mt != "application/octet-stream" {
			return mt
		}
	}
	if ext := utils.GetFileExtension(name); ext != "" {
		if mt, ok := videoTypesByExt[ext]; ok {
			return mt
		}
		if mt := mime.TypeByExtension("." + ext); mt != "" {
			return normalizeMediaType(mt)
		}
	}
	return "application/octet-stream"
}

func normalizeMediaType(ct string) string {
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
