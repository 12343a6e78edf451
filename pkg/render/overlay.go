// Package render draws a zone over its media frame.
package render

import (
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/menta2k/zone-annotator/pkg/types"
)

// Shape is the drawable form of a session: its points in render pixels and
// whether the ring is closed.
type Shape struct {
	Points []types.PixelPoint
	// Closed is true only for a finalized polygon; closed shapes are filled.
	Closed   bool
	Selected int
}

// Style controls overlay colors and sizes.
type Style struct {
	Stroke       color.NRGBA
	Fill         color.NRGBA
	Marker       color.NRGBA
	MarkerBorder color.NRGBA
	Selection    color.NRGBA
	Placeholder  color.NRGBA
	Label        color.NRGBA
	StrokeWidth  float64
	MarkerRadius float64
	BorderWidth  float64
	// Labels numbers each marker in insertion order.
	Labels bool
}

// DefaultStyle is the cyan editor look.
func DefaultStyle() Style {
	return Style{
		Stroke:       color.NRGBA{0, 212, 255, 255},
		Fill:         color.NRGBA{0, 212, 255, 51},
		Marker:       color.NRGBA{0, 212, 255, 255},
		MarkerBorder: color.NRGBA{255, 255, 255, 255},
		Selection:    color.NRGBA{255, 204, 0, 255},
		Placeholder:  color.NRGBA{38, 42, 51, 255},
		Label:        color.NRGBA{255, 255, 255, 255},
		StrokeWidth:  3,
		MarkerRadius: 6,
		BorderWidth:  2,
		Labels:       true,
	}
}

// Overlay draws shape over background at dims. A nil background renders the
// no-media placeholder.
func Overlay(background image.Image, dims types.Dimensions, shape Shape, style Style) *image.NRGBA {
	canvas := surface(background, dims, style.Placeholder)
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()

	if len(shape.Points) == 0 {
		return canvas
	}

	if shape.Closed && len(shape.Points) >= 3 {
		fillPolygon(canvas, shape.Points, style.Fill)
	}

	n := len(shape.Points)
	segments := n - 1
	if shape.Closed {
		segments = n
	}
	for i := 0; i < segments; i++ {
		strokeSegment(canvas, shape.Points[i], shape.Points[(i+1)%n], style.StrokeWidth, style.Stroke)
	}

	for i, p := range shape.Points {
		fillCircle(canvas, p, style.MarkerRadius+style.BorderWidth, style.MarkerBorder)
		fillCircle(canvas, p, style.MarkerRadius, style.Marker)
		if i == shape.Selected {
			cross := int(math.Max(style.MarkerRadius*2, 0.01*float64(minInt(w, h))))
			px, py := int(p.X+0.5), int(p.Y+0.5)
			drawHLine(canvas, py, px-cross, px+cross, style.Selection)
			drawVLine(canvas, px, py-cross, py+cross, style.Selection)
		}
		if style.Labels {
			drawLabel(canvas, p, style.MarkerRadius+style.BorderWidth, strconv.Itoa(i+1), style.Label)
		}
	}
	return canvas
}

func surface(background image.Image, dims types.Dimensions, placeholder color.NRGBA) *image.NRGBA {
	if !dims.Valid() {
		if background == nil {
			return imaging.New(1, 1, placeholder)
		}
		b := background.Bounds()
		dims = types.Dimensions{Width: b.Dx(), Height: b.Dy()}
	}
	if background == nil {
		return imaging.New(dims.Width, dims.Height, placeholder)
	}
	b := background.Bounds()
	if b.Dx() != dims.Width || b.Dy() != dims.Height {
		return imaging.Resize(background, dims.Width, dims.Height, imaging.Lanczos)
	}
	return imaging.Clone(background)
}

func fillPolygon(img *image.NRGBA, pts []types.PixelPoint, c color.NRGBA) {
	b := img.Bounds()
	r := vector.NewRasterizer(b.Dx(), b.Dy())
	r.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		r.LineTo(float32(p.X), float32(p.Y))
	}
	r.ClosePath()
	r.Draw(img, b, image.NewUniform(c), image.Point{})
}

// strokeSegment fills the quad around a-b plus round caps at both ends.
func strokeSegment(img *image.NRGBA, a, b types.PixelPoint, width float64, c color.NRGBA) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	half := width / 2
	if length > 0 {
		nx, ny := -dy/length*half, dx/length*half
		fillPolygon(img, []types.PixelPoint{
			{X: a.X + nx, Y: a.Y + ny},
			{X: b.X + nx, Y: b.Y + ny},
			{X: b.X - nx, Y: b.Y - ny},
			{X: a.X - nx, Y: a.Y - ny},
		}, c)
	}
	fillCircle(img, a, half, c)
	fillCircle(img, b, half, c)
}

func fillCircle(img *image.NRGBA, center types.PixelPoint, radius float64, c color.NRGBA) {
	if radius <= 0 {
		return
	}
	const steps = 24
	pts := make([]types.PixelPoint, steps)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / steps
		pts[i] = types.PixelPoint{X: center.X + radius*math.Cos(a), Y: center.Y + radius*math.Sin(a)}
	}
	fillPolygon(img, pts, c)
}

// drawLabel writes text to the upper right of a marker.
func drawLabel(img *image.NRGBA, p types.PixelPoint, offset float64, text string, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(int(p.X+offset)+2, int(p.Y-offset)),
	}
	d.DrawString(text)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	x0 = max(x0, 0)
	x1 = min(x1, img.Bounds().Dx())
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	y0 = max(y0, 0)
	y1 = min(y1, img.Bounds().Dy())
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
