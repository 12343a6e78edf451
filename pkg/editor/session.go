package editor

import (
	"errors"
	"fmt"
	"math"

	"github.com/menta2k/zone-annotator/pkg/geometry"
	"github.com/menta2k/zone-annotator/pkg/render"
	"github.com/menta2k/zone-annotator/pkg/types"
)

var (
	// ErrPointIndex is returned when a transition names a point that does not exist.
	ErrPointIndex = errors.New("point index out of range")
	// ErrDrawingDisabled is returned by edits attempted while the session is view-only.
	ErrDrawingDisabled = errors.New("drawing is not enabled")
)

// State is the drawing progress of a session.
type State int

const (
	// StateEmpty has no points.
	StateEmpty State = iota
	// StateDrawing has points but is not yet a finished zone.
	StateDrawing
	// StateComplete is a closed polygon or a two-point line.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateDrawing:
		return "drawing"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is the drawing state machine. It is not safe for concurrent use;
// Shell serializes access to it.
type Session struct {
	mode           types.Mode
	points         []types.ZonePoint
	drawingEnabled bool
	closed         bool
	selected       int
	dims           types.Dimensions
}

// NewSession starts a session seeded with an existing zone, which may be
// empty. A seeded polygon of three or more points starts closed.
func NewSession(mode types.Mode, seed []types.ZonePoint, drawingEnabled bool) *Session {
	points := make([]types.ZonePoint, len(seed))
	for i, p := range seed {
		points[i] = geometry.Clamp(p)
	}
	return &Session{
		mode:           mode,
		points:         points,
		drawingEnabled: drawingEnabled,
		closed:         mode == types.ModePolygon && len(points) >= 3,
		selected:       -1,
	}
}

// Mode returns the zone kind being drawn.
func (s *Session) Mode() types.Mode { return s.mode }

// Points returns a copy of the stored points in insertion order.
func (s *Session) Points() []types.ZonePoint {
	out := make([]types.ZonePoint, len(s.points))
	copy(out, s.points)
	return out
}

// Len returns the number of stored points.
func (s *Session) Len() int { return len(s.points) }

// DrawingEnabled reports whether clicks and drags edit the zone.
func (s *Session) DrawingEnabled() bool { return s.drawingEnabled }

// Closed reports whether a polygon was finalized.
func (s *Session) Closed() bool { return s.closed }

// Selected returns the selected point index, or -1.
func (s *Session) Selected() int { return s.selected }

// Dimensions returns the render size points are normalized against.
func (s *Session) Dimensions() types.Dimensions { return s.dims }

// SetDimensions updates the render size points are normalized against.
// Stored points are resolution independent and are not touched.
func (s *Session) SetDimensions(d types.Dimensions) { s.dims = d }

// State derives the drawing progress from the points, mode and closed flag.
func (s *Session) State() State {
	switch {
	case len(s.points) == 0:
		return StateEmpty
	case s.mode == types.ModeLine && len(s.points) == 2:
		return StateComplete
	case s.mode == types.ModePolygon && s.closed && len(s.points) >= 3:
		return StateComplete
	default:
		return StateDrawing
	}
}

// AddPoint appends the normalized click position. It is ignored while
// drawing is disabled, for clicks that did not land on the media surface
// (including positions outside the render bounds), without render
// dimensions, and in line mode once both endpoints exist.
func (s *Session) AddPoint(pos types.PixelPoint, target types.ClickTarget) bool {
	if !s.drawingEnabled || target != types.TargetSurface || !s.dims.Valid() {
		return false
	}
	if !s.onSurface(pos) {
		return false
	}
	if s.mode == types.ModeLine && len(s.points) >= 2 {
		return false
	}
	s.points = append(s.points, geometry.Normalize(pos, float64(s.dims.Width), float64(s.dims.Height)))
	s.closed = false
	return true
}

// onSurface reports whether pos lies within the render bounds. NaN
// coordinates fail every comparison and are rejected.
func (s *Session) onSurface(pos types.PixelPoint) bool {
	return pos.X >= 0 && pos.Y >= 0 &&
		pos.X <= float64(s.dims.Width) && pos.Y <= float64(s.dims.Height)
}

// DragPoint moves points[index] to pos, clamped into the unit square.
func (s *Session) DragPoint(index int, pos types.PixelPoint) error {
	if !s.drawingEnabled {
		return ErrDrawingDisabled
	}
	if index < 0 || index >= len(s.points) {
		return fmt.Errorf("%w: %d (have %d)", ErrPointIndex, index, len(s.points))
	}
	if !s.dims.Valid() {
		return fmt.Errorf("cannot drag without media dimensions")
	}
	s.points[index] = geometry.Clamp(geometry.Normalize(pos, float64(s.dims.Width), float64(s.dims.Height)))
	s.selected = index
	return nil
}

// FinalizePolygon closes a polygon with at least three points.
func (s *Session) FinalizePolygon() bool {
	if s.mode != types.ModePolygon || len(s.points) < 3 {
		return false
	}
	s.closed = true
	return true
}

// Undo removes the most recently added point.
func (s *Session) Undo() bool {
	if len(s.points) == 0 {
		return false
	}
	s.points = s.points[:len(s.points)-1]
	if len(s.points) < 3 {
		s.closed = false
	}
	if s.selected >= len(s.points) {
		s.selected = -1
	}
	return true
}

// Clear removes every point and reopens the shape.
func (s *Session) Clear() {
	s.points = s.points[:0]
	s.closed = false
	s.selected = -1
}

// EnableDrawing switches from viewing to editing. There is no way back.
func (s *Session) EnableDrawing() {
	s.drawingEnabled = true
}

// Select marks index as the hover/drag target; -1 clears the selection.
func (s *Session) Select(index int) error {
	if index < -1 || index >= len(s.points) {
		return fmt.Errorf("%w: %d (have %d)", ErrPointIndex, index, len(s.points))
	}
	s.selected = index
	return nil
}

// HitTest returns the index of the point nearest to pos within radius render
// pixels, or -1.
func (s *Session) HitTest(pos types.PixelPoint, radius float64) int {
	if !s.dims.Valid() {
		return -1
	}
	best, bestDist := -1, math.Inf(1)
	w, h := float64(s.dims.Width), float64(s.dims.Height)
	for i, z := range s.points {
		if d := geometry.Distance(pos, geometry.Denormalize(z, w, h)); d <= radius && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Shape returns the drawable form. The ring is closed with fill only for a
// finalized polygon; otherwise it is an open polyline.
func (s *Session) Shape() render.Shape {
	var pts []types.PixelPoint
	if s.dims.Valid() {
		pts = geometry.DenormalizeAll(s.points, float64(s.dims.Width), float64(s.dims.Height))
	}
	return render.Shape{
		Points:   pts,
		Closed:   s.mode == types.ModePolygon && s.closed,
		Selected: s.selected,
	}
}

// Validate checks the save rule for the session mode.
func (s *Session) Validate() error {
	switch s.mode {
	case types.ModePolygon:
		if len(s.points) < 3 {
			return &ValidationError{Mode: s.mode, Rule: RulePolygonMinPoints, Points: len(s.points)}
		}
	case types.ModeLine:
		if len(s.points) != 2 {
			return &ValidationError{Mode: s.mode, Rule: RuleLineExactPoints, Points: len(s.points)}
		}
	default:
		return &ValidationError{Mode: s.mode, Rule: RuleUnknownMode, Points: len(s.points)}
	}
	return nil
}
