package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/menta2k/zone-annotator/pkg/types"
)

var square = []types.PixelPoint{{X: 20, Y: 20}, {X: 80, Y: 20}, {X: 80, Y: 80}, {X: 20, Y: 80}}

func TestOverlayPlaceholder(t *testing.T) {
	style := DefaultStyle()
	img := Overlay(nil, types.Dimensions{Width: 120, Height: 90}, Shape{Selected: -1}, style)

	if img.Bounds().Dx() != 120 || img.Bounds().Dy() != 90 {
		t.Fatalf("Expected 120x90, got %v", img.Bounds())
	}
	if got := img.NRGBAAt(60, 45); got != style.Placeholder {
		t.Errorf("Expected placeholder color, got %v", got)
	}
}

func TestOverlayClosedPolygonIsFilled(t *testing.T) {
	style := DefaultStyle()
	dims := types.Dimensions{Width: 100, Height: 100}

	open := Overlay(nil, dims, Shape{Points: square, Selected: -1}, style)
	if got := open.NRGBAAt(50, 50); got != style.Placeholder {
		t.Errorf("Expected open polyline interior untouched, got %v", got)
	}

	closed := Overlay(nil, dims, Shape{Points: square, Closed: true, Selected: -1}, style)
	got := closed.NRGBAAt(50, 50)
	if got == style.Placeholder {
		t.Error("Expected closed polygon interior to be filled")
	}
	if got.B <= style.Placeholder.B {
		t.Errorf("Expected fill to tint toward cyan, got %v", got)
	}
}

func TestOverlayClosingEdge(t *testing.T) {
	style := DefaultStyle()
	dims := types.Dimensions{Width: 100, Height: 100}

	// The closing edge runs from (20,80) back to (20,20).
	open := Overlay(nil, dims, Shape{Points: square, Selected: -1}, style)
	if got := open.NRGBAAt(20, 50); got != style.Placeholder {
		t.Errorf("Expected no closing edge on open shape, got %v", got)
	}
	closed := Overlay(nil, dims, Shape{Points: square, Closed: true, Selected: -1}, style)
	if got := closed.NRGBAAt(20, 50); got != style.Stroke {
		t.Errorf("Expected stroke on closing edge, got %v", got)
	}
}

func TestOverlayMarkersAtEveryPoint(t *testing.T) {
	style := DefaultStyle()
	pts := []types.PixelPoint{{X: 10, Y: 10}, {X: 90, Y: 60}}
	img := Overlay(nil, types.Dimensions{Width: 100, Height: 100}, Shape{Points: pts, Selected: -1}, style)

	for _, p := range pts {
		if got := img.NRGBAAt(int(p.X), int(p.Y)); got != style.Marker {
			t.Errorf("Expected marker at %+v, got %v", p, got)
		}
	}
}

func TestOverlaySelectionCrosshair(t *testing.T) {
	style := DefaultStyle()
	pts := []types.PixelPoint{{X: 50, Y: 50}}
	img := Overlay(nil, types.Dimensions{Width: 100, Height: 100}, Shape{Points: pts, Selected: 0}, style)

	if got := img.NRGBAAt(50+int(style.MarkerRadius)+int(style.BorderWidth)+2, 50); got != style.Selection {
		t.Errorf("Expected selection crosshair beyond the marker, got %v", got)
	}
}

func TestOverlayScalesBackground(t *testing.T) {
	bg := image.NewNRGBA(image.Rect(0, 0, 200, 150))
	red := color.NRGBA{200, 10, 10, 255}
	for i := 0; i < len(bg.Pix); i += 4 {
		bg.Pix[i], bg.Pix[i+1], bg.Pix[i+2], bg.Pix[i+3] = red.R, red.G, red.B, red.A
	}

	img := Overlay(bg, types.Dimensions{Width: 100, Height: 75}, Shape{Selected: -1}, DefaultStyle())
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 75 {
		t.Fatalf("Expected background resized to 100x75, got %v", img.Bounds())
	}
	if got := img.NRGBAAt(50, 37); got != red {
		t.Errorf("Expected background color preserved, got %v", got)
	}
	if bg.NRGBAAt(10, 10) != red {
		t.Error("Expected source background untouched")
	}
}

func TestOverlayLabels(t *testing.T) {
	style := DefaultStyle()
	pts := []types.PixelPoint{{X: 30, Y: 50}}
	dims := types.Dimensions{Width: 100, Height: 100}

	labelled := Overlay(nil, dims, Shape{Points: pts, Selected: -1}, style)
	style.Labels = false
	plain := Overlay(nil, dims, Shape{Points: pts, Selected: -1}, style)

	changed := 0
	for y := 25; y < 45; y++ {
		for x := 38; x < 50; x++ {
			if labelled.NRGBAAt(x, y) != plain.NRGBAAt(x, y) {
				changed++
			}
		}
	}
	if changed == 0 {
		t.Error("Expected a label next to the marker")
	}
}
