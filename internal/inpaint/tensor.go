package inpaint

import (
	"image"
	"image/color"
	"math"
)

// maskThreshold binarises mask pixels; anything brighter is removed.
const maskThreshold = 128

// imageToCHW writes tile into dst as planar RGB scaled to [0,1].
func imageToCHW(tile *image.RGBA, dst []float32) {
	b := tile.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			p := tile.Pix[tile.PixOffset(b.Min.X+x, b.Min.Y+y):]
			dst[i] = float32(p[0]) / 255
			dst[i+plane] = float32(p[1]) / 255
			dst[i+2*plane] = float32(p[2]) / 255
		}
	}
}

// maskToPlane writes mask into dst as 0 or 1.
func maskToPlane(mask *image.Gray, dst []float32) {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask.Pix[mask.PixOffset(b.Min.X+x, b.Min.Y+y)] > maskThreshold {
				dst[y*w+x] = 1
			} else {
				dst[y*w+x] = 0
			}
		}
	}
}

// chwToImage converts planar RGB output back into an opaque tile.
func chwToImage(src []float32, w, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			out.SetRGBA(x, y, color.RGBA{
				R: toByte(src[i]),
				G: toByte(src[i+plane]),
				B: toByte(src[i+2*plane]),
				A: 255,
			})
		}
	}
	return out
}

func toByte(v float32) uint8 {
	f := float64(v) * 255
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 255 {
		return 255
	}
	return uint8(f)
}
