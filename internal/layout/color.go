package layout

import (
	"fmt"
	"image"
	"sort"
)

const (
	// DefaultFill is used when no pixels surround a line box.
	DefaultFill = "F5F0E8"
	// DefaultTextColor is used when a line box covers no pixels.
	DefaultTextColor = "333333"
)

type rgb struct{ r, g, b uint8 }

func (c rgb) hex() string {
	return fmt.Sprintf("%02X%02X%02X", c.r, c.g, c.b)
}

func at(img image.Image, x, y int) rgb {
	r, g, b, _ := img.At(x, y).RGBA()
	return rgb{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

// SampleBackground returns the per-channel median of the strips of width
// margin lying directly above, below, left and right of box. A strip is only
// sampled when it fits entirely inside the image.
func SampleBackground(img image.Image, box image.Rectangle, margin int) (string, bool) {
	b := img.Bounds()
	box = box.Intersect(b)
	if box.Empty() {
		return DefaultFill, false
	}

	var strips []image.Rectangle
	if box.Min.Y-b.Min.Y > margin {
		strips = append(strips, image.Rect(box.Min.X, box.Min.Y-margin, box.Max.X, box.Min.Y))
	}
	if box.Max.Y+margin < b.Max.Y {
		strips = append(strips, image.Rect(box.Min.X, box.Max.Y, box.Max.X, box.Max.Y+margin))
	}
	if box.Min.X-b.Min.X > margin {
		strips = append(strips, image.Rect(box.Min.X-margin, box.Min.Y, box.Min.X, box.Max.Y))
	}
	if box.Max.X+margin < b.Max.X {
		strips = append(strips, image.Rect(box.Max.X, box.Min.Y, box.Max.X+margin, box.Max.Y))
	}

	var px []rgb
	for _, s := range strips {
		for y := s.Min.Y; y < s.Max.Y; y++ {
			for x := s.Min.X; x < s.Max.X; x++ {
				px = append(px, at(img, x, y))
			}
		}
	}
	if len(px) == 0 {
		return DefaultFill, false
	}
	return median(px).hex(), true
}

// SampleTextColor returns the per-channel median of the darkest fifth of the
// pixels inside box, ranked by channel sum.
func SampleTextColor(img image.Image, box image.Rectangle) (string, bool) {
	box = box.Intersect(img.Bounds())
	if box.Empty() {
		return DefaultTextColor, false
	}

	px := make([]rgb, 0, box.Dx()*box.Dy())
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			px = append(px, at(img, x, y))
		}
	}

	sort.Slice(px, func(i, j int) bool { return brightness(px[i]) < brightness(px[j]) })
	threshold := percentile(px, 0.2)

	dark := px[:0:0]
	for _, p := range px {
		if brightness(p) > threshold {
			break
		}
		dark = append(dark, p)
	}
	return median(dark).hex(), true
}

func brightness(c rgb) float64 {
	return float64(c.r) + float64(c.g) + float64(c.b)
}

// percentile interpolates linearly between the two closest ranks of sorted px.
func percentile(sorted []rgb, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo
	if lo+1 < len(sorted) {
		hi = lo + 1
	}
	frac := pos - float64(lo)
	return brightness(sorted[lo])*(1-frac) + brightness(sorted[hi])*frac
}

func median(px []rgb) rgb {
	ch := func(get func(rgb) uint8) uint8 {
		vals := make([]int, len(px))
		for i, p := range px {
			vals[i] = int(get(p))
		}
		sort.Ints(vals)
		n := len(vals)
		if n%2 == 1 {
			return uint8(vals[n/2])
		}
		return uint8((vals[n/2-1] + vals[n/2]) / 2)
	}
	return rgb{
		r: ch(func(c rgb) uint8 { return c.r }),
		g: ch(func(c rgb) uint8 { return c.g }),
		b: ch(func(c rgb) uint8 { return c.b }),
	}
}
