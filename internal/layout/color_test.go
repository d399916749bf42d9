package layout

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleBackgroundNoRing(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))

	// Box fills the image: no strip fits.
	got, ok := SampleBackground(img, img.Bounds(), 5)
	assert.False(t, ok)
	assert.Equal(t, DefaultFill, got)

	got, ok = SampleBackground(img, image.Rect(50, 50, 60, 60), 5)
	assert.False(t, ok)
	assert.Equal(t, DefaultFill, got)
}

func TestSampleBackgroundMedian(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 30, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			img.Set(x, y, color.RGBA{10, 20, 30, 255})
		}
	}
	// A few outliers inside the ring do not move the median.
	img.Set(12, 8, color.RGBA{255, 255, 255, 255})
	img.Set(13, 8, color.RGBA{255, 255, 255, 255})

	got, ok := SampleBackground(img, image.Rect(10, 10, 20, 20), 5)
	assert.True(t, ok)
	assert.Equal(t, "0A141E", got)
}

func TestSampleTextColorDarkest(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			c := color.RGBA{240, 240, 240, 255}
			if y < 2 {
				c = color.RGBA{30, 40, 50, 255}
			}
			img.Set(x, y, c)
		}
	}

	got, ok := SampleTextColor(img, img.Bounds())
	assert.True(t, ok)
	assert.Equal(t, "1E2832", got)

	got, ok = SampleTextColor(img, image.Rect(20, 20, 30, 30))
	assert.False(t, ok)
	assert.Equal(t, DefaultTextColor, got)
}
