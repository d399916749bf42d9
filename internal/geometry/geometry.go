// Package geometry converts rectangles between the coordinate spaces a page
// passes through: PDF points, rendered rasters, the OCR raster and the
// physical slide.
//
// Every Rect carries the Space it was measured in. Combining rects from two
// different spaces is a programming error and panics; crossing spaces always
// goes through MapRect.
package geometry

import (
	"fmt"
	"math"
)

// Kind names a family of coordinate spaces.
type Kind string

const (
	KindPDF    Kind = "pdf"
	KindRaster Kind = "raster"
	KindOCR    Kind = "ocr"
	KindSlide  Kind = "slide"
)

// Space is a coordinate system defined by its extent along each axis.
type Space struct {
	Kind   Kind    `json:"kind"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PDF returns the space of a page measured in PDF points.
func PDF(width, height float64) Space {
	return Space{Kind: KindPDF, Width: width, Height: height}
}

// Raster returns the pixel space of a rendered page image.
func Raster(width, height int) Space {
	return Space{Kind: KindRaster, Width: float64(width), Height: float64(height)}
}

// OCR returns the pixel space of the image handed to the recognizer.
func OCR(width, height int) Space {
	return Space{Kind: KindOCR, Width: float64(width), Height: float64(height)}
}

// Slide returns the physical slide space, in inches.
func Slide(width, height float64) Space {
	return Space{Kind: KindSlide, Width: width, Height: height}
}

// Valid reports whether both extents are positive and finite.
func (s Space) Valid() bool {
	return s.Width > 0 && s.Height > 0 && !math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

func (s Space) String() string {
	return fmt.Sprintf("%s(%gx%g)", s.Kind, s.Width, s.Height)
}

// Rect is an axis-aligned box with its top-left corner at (X, Y).
type Rect struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Space Space   `json:"space"`
}

// NewRect builds a rect in the given space.
func NewRect(space Space, x, y, w, h float64) Rect {
	return Rect{X: x, Y: y, W: w, H: h, Space: space}
}

// FromCorners builds a rect from its top-left and bottom-right corners.
func FromCorners(space Space, x0, y0, x1, y1 float64) Rect {
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0, Space: space}
}

// Right is the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom is the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Union returns the smallest rect containing both r and o.
func (r Rect) Union(o Rect) Rect {
	mustShareSpace(r, o)

	x0 := math.Min(r.X, o.X)
	y0 := math.Min(r.Y, o.Y)
	x1 := math.Max(r.Right(), o.Right())
	y1 := math.Max(r.Bottom(), o.Bottom())

	return FromCorners(r.Space, x0, y0, x1, y1)
}

// Contains reports whether o lies entirely inside r.
func (r Rect) Contains(o Rect) bool {
	mustShareSpace(r, o)

	return o.X >= r.X && o.Y >= r.Y && o.Right() <= r.Right() && o.Bottom() <= r.Bottom()
}

// Expand grows the rect by d on every side.
func (r Rect) Expand(d float64) Rect {
	return Rect{X: r.X - d, Y: r.Y - d, W: r.W + 2*d, H: r.H + 2*d, Space: r.Space}
}

// Approx reports whether r and o match within tol on every component.
func (r Rect) Approx(o Rect, tol float64) bool {
	if r.Space != o.Space {
		return false
	}

	return math.Abs(r.X-o.X) <= tol &&
		math.Abs(r.Y-o.Y) <= tol &&
		math.Abs(r.W-o.W) <= tol &&
		math.Abs(r.H-o.H) <= tol
}

func (r Rect) String() string {
	return fmt.Sprintf("%s[%g,%g %gx%g]", r.Space.Kind, r.X, r.Y, r.W, r.H)
}

// MapRect converts r from its own space into the target space. Each axis
// scales independently; rotation and skew are not modelled.
func MapRect(r Rect, to Space) Rect {
	sx := to.Width / r.Space.Width
	sy := to.Height / r.Space.Height

	return Rect{
		X:     r.X * sx,
		Y:     r.Y * sy,
		W:     r.W * sx,
		H:     r.H * sy,
		Space: to,
	}
}

// MapAll maps every rect into the target space.
func MapAll(rects []Rect, to Space) []Rect {
	out := make([]Rect, len(rects))
	for i, r := range rects {
		out[i] = MapRect(r, to)
	}
	return out
}

func mustShareSpace(a, b Rect) {
	if a.Space != b.Space {
		panic(fmt.Sprintf("geometry: mixing rects from %s and %s without MapRect", a.Space, b.Space))
	}
}
