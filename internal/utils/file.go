package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

var (
	imageExts = []string{"jpg", "jpeg", "png", "gif", "bmp", "tiff", "webp"}
	videoExts = []string{"mp4", "webm", "mov", "m4v", "ogv", "avi", "mkv"}
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	return hasExt(filename, imageExts)
}

// IsVideoFile checks if a file has a video extension
func IsVideoFile(filename string) bool {
	return hasExt(filename, videoExts)
}

func hasExt(filename string, exts []string) bool {
	ext := GetFileExtension(filename)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	// Remove leading/trailing spaces and dots
	result = strings.Trim(result, " .")

	return result
}

// FormatFileSize formats file size in human-readable binary units
func FormatFileSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}
