// Package geometry maps between render pixel space and the unit square.
//
// Zones are stored normalized so the same zone renders correctly at any
// canvas size. Callers must only normalize against loaded media, so render
// dimensions are always positive here.
package geometry

import (
	"math"

	"github.com/menta2k/zone-annotator/pkg/types"
)

// Normalize converts a render-pixel position into unit-square coordinates.
func Normalize(p types.PixelPoint, renderWidth, renderHeight float64) types.ZonePoint {
	return types.ZonePoint{
		X: p.X / renderWidth,
		Y: p.Y / renderHeight,
	}
}

// Denormalize converts unit-square coordinates back into render pixels.
func Denormalize(z types.ZonePoint, renderWidth, renderHeight float64) types.PixelPoint {
	return types.PixelPoint{
		X: z.X * renderWidth,
		Y: z.Y * renderHeight,
	}
}

// Clamp forces both axes into [0,1].
func Clamp(z types.ZonePoint) types.ZonePoint {
	return types.ZonePoint{
		X: clamp(z.X, 0, 1),
		Y: clamp(z.Y, 0, 1),
	}
}

// NormalizeAll normalizes every point of a pixel path.
func NormalizeAll(ps []types.PixelPoint, renderWidth, renderHeight float64) []types.ZonePoint {
	out := make([]types.ZonePoint, len(ps))
	for i, p := range ps {
		out[i] = Normalize(p, renderWidth, renderHeight)
	}
	return out
}

// DenormalizeAll projects a stored zone onto a surface of the given size.
func DenormalizeAll(zs []types.ZonePoint, renderWidth, renderHeight float64) []types.PixelPoint {
	out := make([]types.PixelPoint, len(zs))
	for i, z := range zs {
		out[i] = Denormalize(z, renderWidth, renderHeight)
	}
	return out
}

// Distance returns the Euclidean distance between two pixel points.
func Distance(a, b types.PixelPoint) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
