package types

import "fmt"

// ZonePoint is a position normalized to the rendered media, both axes in [0,1].
type ZonePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PixelPoint is a position in render pixel space.
type PixelPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Mode selects what kind of zone an editing session draws.
type Mode string

const (
	// ModePolygon draws a crowd region of interest (three or more points).
	ModePolygon Mode = "polygon"
	// ModeLine draws an intrusion boundary (exactly two points).
	ModeLine Mode = "line"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePolygon, ModeLine:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown zone mode %q (use polygon or line)", s)
	}
}

// Zone is the finalized result of an editing session.
type Zone struct {
	Mode        Mode        `json:"mode"`
	Points      []ZonePoint `json:"points"`
	SnapshotURL string      `json:"snapshotUrl,omitempty"`
}

// Dimensions are render dimensions in logical pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (d Dimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// ClickTarget identifies what a pointer event landed on.
type ClickTarget string

const (
	// TargetSurface is the media background; only clicks here add points.
	TargetSurface ClickTarget = "surface"
	// TargetPoint is an existing point marker.
	TargetPoint ClickTarget = "point"
	// TargetChrome is any toolbar or other UI element.
	TargetChrome ClickTarget = "chrome"
)
