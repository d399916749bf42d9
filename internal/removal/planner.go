// Package removal erases text from a page raster: it masks the pixels under
// each text line and sends the masked regions through an inpainting model
// tile by tile.
package removal

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/geometry"
	"github.com/spherical/pdf-slides/internal/observability"
)

// Mask values.
const (
	Keep   uint8 = 0
	Remove uint8 = 255
)

// Config controls mask construction and tiling.
type Config struct {
	TileSize int `yaml:"tile_size"`
	Overlap  int `yaml:"overlap"`
	Padding  int `yaml:"mask_padding"`
}

// DefaultConfig matches the 512px LaMa export.
func DefaultConfig() Config {
	return Config{TileSize: 512, Overlap: 64, Padding: 5}
}

// Inpainter fills the Remove pixels of one square tile.
type Inpainter interface {
	Infer(ctx context.Context, tile *image.RGBA, mask *image.Gray) (*image.RGBA, error)
}

// Stats counts what happened to each tile.
type Stats struct {
	Tiles     int
	Inpainted int
	Skipped   int
	Failed    int
}

// Planner builds masks and drives tile inference.
type Planner struct {
	cfg    Config
	logger *observability.Logger
}

// NewPlanner creates a planner.
func NewPlanner(cfg Config, logger *observability.Logger) *Planner {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Planner{cfg: cfg, logger: logger.WithComponent("removal")}
}

// BuildMask returns a mask covering bounds where each box, grown by padding
// on every side, is Remove and everything else is Keep. Boxes must already be
// in the pixel space of bounds.
func BuildMask(bounds image.Rectangle, boxes []geometry.Rect, padding int) *image.Gray {
	mask := image.NewGray(bounds)
	white := &image.Uniform{C: color.Gray{Y: Remove}}

	for _, b := range boxes {
		g := b.Expand(float64(padding))
		r := image.Rect(
			int(math.Floor(g.X)),
			int(math.Floor(g.Y)),
			int(math.Ceil(g.Right())),
			int(math.Ceil(g.Bottom())),
		).Add(bounds.Min).Intersect(bounds)
		if r.Empty() {
			continue
		}
		draw.Draw(mask, r, white, image.Point{}, draw.Src)
	}
	return mask
}

// Tiles lists tile rectangles covering bounds in row-major order. Tiles start
// every size-overlap pixels; tiles at the right and bottom edges are clipped
// to bounds.
func Tiles(bounds image.Rectangle, size, overlap int) []image.Rectangle {
	stride := size - overlap
	if stride <= 0 {
		stride = size
	}

	var tiles []image.Rectangle
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
		for x := bounds.Min.X; x < bounds.Max.X; x += stride {
			tiles = append(tiles, image.Rect(x, y, x+size, y+size).Intersect(bounds))
		}
	}
	return tiles
}

// HasRemove reports whether any pixel of r in mask is marked Remove.
func HasRemove(mask *image.Gray, r image.Rectangle) bool {
	r = r.Intersect(mask.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := mask.Pix[mask.PixOffset(r.Min.X, y):mask.PixOffset(r.Max.X, y)]
		for _, v := range row {
			if v != Keep {
				return true
			}
		}
	}
	return false
}

// Remove erases the pixels under boxes. Boxes may be in any space; they are
// mapped onto the raster first.
//
// Tiles without Remove pixels are skipped and the inpainter is not called.
// Tiles are cut from the original image and pasted onto the result in
// row-major order, so later tiles win where they overlap. A tile whose
// inference fails keeps its original pixels. Only context cancellation
// aborts the pass.
func (p *Planner) Remove(ctx context.Context, img image.Image, boxes []geometry.Rect, inp Inpainter) (*image.RGBA, Stats, error) {
	bounds := img.Bounds()
	rs := geometry.Raster(bounds.Dx(), bounds.Dy())

	mask := BuildMask(bounds, geometry.MapAll(boxes, rs), p.cfg.Padding)

	src := image.NewRGBA(bounds)
	draw.Draw(src, bounds, img, bounds.Min, draw.Src)
	dst := image.NewRGBA(bounds)
	copy(dst.Pix, src.Pix)

	var stats Stats
	for i, t := range Tiles(bounds, p.cfg.TileSize, p.cfg.Overlap) {
		stats.Tiles++
		if !HasRemove(mask, t) {
			stats.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		tile, tileMask := p.cut(src, mask, t)
		out, err := inp.Infer(ctx, tile, tileMask)
		if err == nil && out.Bounds().Size() != tile.Bounds().Size() {
			err = fmt.Errorf("inpainter returned %v, want %v", out.Bounds().Size(), tile.Bounds().Size())
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, stats, ctx.Err()
			}
			stats.Failed++
			p.logger.Warn().
				Int("tile", i).
				Str("rect", t.String()).
				Err(domain.TileInferenceError("tile kept original pixels", err)).
				Msg("tile inference failed")
			continue
		}

		// Clip the padded model output back to the tile.
		draw.Draw(dst, t, out, out.Bounds().Min, draw.Src)
		stats.Inpainted++
	}

	p.logger.Debug().
		Int("tiles", stats.Tiles).
		Int("inpainted", stats.Inpainted).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Msg("text removal done")

	return dst, stats, nil
}

// cut copies tile t of the image and mask into model-sized buffers. Pixels
// past the image edge are black in the image and Keep in the mask.
func (p *Planner) cut(src *image.RGBA, mask *image.Gray, t image.Rectangle) (*image.RGBA, *image.Gray) {
	size := image.Rect(0, 0, p.cfg.TileSize, p.cfg.TileSize)

	tile := image.NewRGBA(size)
	draw.Draw(tile, size, image.Black, image.Point{}, draw.Src)
	draw.Draw(tile, size, src, t.Min, draw.Src)

	m := image.NewGray(size)
	draw.Draw(m, size, mask, t.Min, draw.Src)

	return tile, m
}
