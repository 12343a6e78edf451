package editor

import (
	"errors"
	"math"
	"testing"

	"github.com/menta2k/zone-annotator/pkg/types"
)

var canvas = types.Dimensions{Width: 600, Height: 450}

func newEnabledSession(mode types.Mode) *Session {
	s := NewSession(mode, nil, true)
	s.SetDimensions(canvas)
	return s
}

func TestLineModeNeverExceedsTwoPoints(t *testing.T) {
	s := newEnabledSession(types.ModeLine)
	clicks := []types.PixelPoint{{X: 10, Y: 10}, {X: 500, Y: 400}, {X: 300, Y: 200}, {X: 1, Y: 1}}

	for i, c := range clicks {
		added := s.AddPoint(c, types.TargetSurface)
		if want := i < 2; added != want {
			t.Errorf("click %d: added=%v, want %v", i, added, want)
		}
		if s.Len() > 2 {
			t.Fatalf("line has %d points", s.Len())
		}
	}
	if s.State() != StateComplete {
		t.Errorf("Expected complete line, got %s", s.State())
	}
}

func TestAddPointIgnoredCases(t *testing.T) {
	s := NewSession(types.ModePolygon, nil, false)
	s.SetDimensions(canvas)
	if s.AddPoint(types.PixelPoint{X: 10, Y: 10}, types.TargetSurface) {
		t.Error("Expected click ignored while drawing disabled")
	}

	s.EnableDrawing()
	if s.AddPoint(types.PixelPoint{X: 10, Y: 10}, types.TargetPoint) {
		t.Error("Expected click on a marker to be ignored")
	}
	if s.AddPoint(types.PixelPoint{X: 10, Y: 10}, types.TargetChrome) {
		t.Error("Expected click on chrome to be ignored")
	}

	noMedia := NewSession(types.ModePolygon, nil, true)
	if noMedia.AddPoint(types.PixelPoint{X: 10, Y: 10}, types.TargetSurface) {
		t.Error("Expected click ignored without render dimensions")
	}
	if s.Len() != 0 || noMedia.Len() != 0 {
		t.Error("Expected no points added")
	}
}

func TestAddPointOutsideSurfaceIgnored(t *testing.T) {
	s := newEnabledSession(types.ModePolygon)
	outside := []types.PixelPoint{
		{X: 900, Y: -40},
		{X: -1, Y: 100},
		{X: 100, Y: 451},
		{X: math.NaN(), Y: 10},
	}
	for _, p := range outside {
		if s.AddPoint(p, types.TargetSurface) {
			t.Errorf("Expected click at %+v to be ignored", p)
		}
	}

	for _, p := range []types.PixelPoint{{X: 0, Y: 0}, {X: 600, Y: 0}, {X: 600, Y: 450}} {
		if !s.AddPoint(p, types.TargetSurface) {
			t.Errorf("Expected edge click at %+v to be added", p)
		}
	}
	for i, z := range s.Points() {
		if z.X < 0 || z.X > 1 || z.Y < 0 || z.Y > 1 {
			t.Errorf("point %d out of range: %+v", i, z)
		}
	}
	if s.Len() != 3 {
		t.Errorf("Expected 3 points, got %d", s.Len())
	}
}

func TestUndoOnEmptyIsNoop(t *testing.T) {
	s := newEnabledSession(types.ModePolygon)
	if s.Undo() {
		t.Error("Expected Undo on empty session to report nothing removed")
	}
	if s.State() != StateEmpty || s.Len() != 0 || s.Closed() {
		t.Errorf("Expected unchanged empty state, got %s with %d points", s.State(), s.Len())
	}
}

func TestFinalizeNeedsThreePoints(t *testing.T) {
	s := newEnabledSession(types.ModePolygon)
	for i := 0; i < 3; i++ {
		if s.FinalizePolygon() || s.Closed() {
			t.Fatalf("Expected finalize with %d points to leave polygon open", s.Len())
		}
		s.AddPoint(types.PixelPoint{X: float64(100 + i*100), Y: float64(50 + i*80)}, types.TargetSurface)
	}
	if !s.FinalizePolygon() || !s.Closed() {
		t.Fatal("Expected polygon closed with 3 points")
	}
	if s.State() != StateComplete {
		t.Errorf("Expected complete, got %s", s.State())
	}

	s.Undo()
	if s.Closed() {
		t.Error("Expected undo below 3 points to reopen the polygon")
	}
}

func TestFinalizeIgnoredInLineMode(t *testing.T) {
	s := newEnabledSession(types.ModeLine)
	s.AddPoint(types.PixelPoint{X: 1, Y: 1}, types.TargetSurface)
	s.AddPoint(types.PixelPoint{X: 2, Y: 2}, types.TargetSurface)
	if s.FinalizePolygon() || s.Closed() {
		t.Error("Expected finalize to be a no-op for lines")
	}
	if s.Shape().Closed {
		t.Error("Expected line to render open")
	}
}

func TestDragPointClampsAndKeepsOrder(t *testing.T) {
	s := newEnabledSession(types.ModePolygon)
	s.AddPoint(types.PixelPoint{X: 60, Y: 45}, types.TargetSurface)
	s.AddPoint(types.PixelPoint{X: 300, Y: 45}, types.TargetSurface)
	s.AddPoint(types.PixelPoint{X: 300, Y: 300}, types.TargetSurface)
	before := s.Points()

	if err := s.DragPoint(1, types.PixelPoint{X: 900, Y: -20}); err != nil {
		t.Fatalf("DragPoint failed: %v", err)
	}
	after := s.Points()
	if after[1] != (types.ZonePoint{X: 1, Y: 0}) {
		t.Errorf("Expected dragged point clamped to (1,0), got %+v", after[1])
	}
	if after[0] != before[0] || after[2] != before[2] {
		t.Error("Expected other points untouched")
	}
	if s.Selected() != 1 {
		t.Errorf("Expected dragged point selected, got %d", s.Selected())
	}

	if err := s.DragPoint(3, types.PixelPoint{}); !errors.Is(err, ErrPointIndex) {
		t.Errorf("Expected ErrPointIndex, got %v", err)
	}
	viewer := NewSession(types.ModePolygon, before, false)
	viewer.SetDimensions(canvas)
	if err := viewer.DragPoint(0, types.PixelPoint{}); !errors.Is(err, ErrDrawingDisabled) {
		t.Errorf("Expected ErrDrawingDisabled, got %v", err)
	}
}

func TestClearResets(t *testing.T) {
	seed := []types.ZonePoint{{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.1}, {X: 0.5, Y: 0.9}}
	s := NewSession(types.ModePolygon, seed, true)
	if !s.Closed() {
		t.Fatal("Expected seeded polygon to start closed")
	}
	s.Clear()
	if s.Len() != 0 || s.Closed() || s.State() != StateEmpty {
		t.Errorf("Expected cleared session, got %d points closed=%v", s.Len(), s.Closed())
	}
	if len(seed) != 3 || seed[0].X != 0.1 {
		t.Error("Expected seed slice untouched")
	}
}

func TestSaveValidation(t *testing.T) {
	for _, mode := range []types.Mode{types.ModePolygon, types.ModeLine} {
		for n := 0; n <= 5; n++ {
			seed := make([]types.ZonePoint, n)
			for i := range seed {
				seed[i] = types.ZonePoint{X: float64(i) / 10, Y: 0.5}
			}
			err := NewSession(mode, seed, true).Validate()

			want := (mode == types.ModePolygon && n >= 3) || (mode == types.ModeLine && n == 2)
			if (err == nil) != want {
				t.Errorf("%s with %d points: err=%v, want accept=%v", mode, n, err, want)
			}
			var verr *ValidationError
			if err != nil && !errors.As(err, &verr) {
				t.Errorf("Expected *ValidationError, got %T", err)
			}
		}
	}

	err := NewSession(types.ModeLine, nil, true).Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Rule != RuleLineExactPoints {
		t.Errorf("Expected line rule, got %v", err)
	}
}

func TestHitTestAndShape(t *testing.T) {
	s := newEnabledSession(types.ModePolygon)
	s.AddPoint(types.PixelPoint{X: 100, Y: 100}, types.TargetSurface)
	s.AddPoint(types.PixelPoint{X: 200, Y: 100}, types.TargetSurface)

	if i := s.HitTest(types.PixelPoint{X: 104, Y: 103}, DefaultHitRadius); i != 0 {
		t.Errorf("Expected hit on point 0, got %d", i)
	}
	if i := s.HitTest(types.PixelPoint{X: 150, Y: 150}, DefaultHitRadius); i != -1 {
		t.Errorf("Expected no hit, got %d", i)
	}

	shape := s.Shape()
	if len(shape.Points) != 2 || shape.Closed {
		t.Fatalf("Expected open 2-point shape, got %+v", shape)
	}
	if math.Abs(shape.Points[1].X-200) > 1e-9 {
		t.Errorf("Expected denormalized x 200, got %f", shape.Points[1].X)
	}
}

func TestPointsSurviveResize(t *testing.T) {
	s := newEnabledSession(types.ModePolygon)
	s.AddPoint(types.PixelPoint{X: 300, Y: 225}, types.TargetSurface)
	s.SetDimensions(types.Dimensions{Width: 1200, Height: 900})

	p := s.Shape().Points[0]
	if math.Abs(p.X-600) > 1e-9 || math.Abs(p.Y-450) > 1e-9 {
		t.Errorf("Expected point to follow the new size, got %+v", p)
	}
}
