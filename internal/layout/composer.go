package layout

import (
	"image"
	"math"
	"strconv"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/geometry"
)

// Config controls how lines become slide shapes. Lengths are in inches and
// font sizes in points.
type Config struct {
	FontRatio float64 `yaml:"font_ratio"`
	MinFont   float64 `yaml:"min_font"`
	MaxFont   float64 `yaml:"max_font"`

	TextWidthScale   float64 `yaml:"text_width_scale"`
	TextHeightScale  float64 `yaml:"text_height_scale"`
	CoverWidthScale  float64 `yaml:"cover_width_scale"`
	CoverHeightScale float64 `yaml:"cover_height_scale"`
	MinBoxWidth      float64 `yaml:"min_box_width"`
	MinBoxHeight     float64 `yaml:"min_box_height"`

	FontFace string `yaml:"font_face"`
	// TextColor overrides the sampled text colour when set (RRGGBB).
	TextColor    string `yaml:"text_color"`
	SampleMargin int    `yaml:"sample_margin"`
	PageNumbers  bool   `yaml:"page_numbers"`
}

// DefaultConfig returns the stock layout settings.
func DefaultConfig() Config {
	return Config{
		FontRatio:        0.65,
		MinFont:          8,
		MaxFont:          36,
		TextWidthScale:   1.1,
		TextHeightScale:  1.3,
		CoverWidthScale:  1.05,
		CoverHeightScale: 1.1,
		MinBoxWidth:      0.5,
		MinBoxHeight:     0.3,
		FontFace:         "Microsoft JhengHei",
		SampleMargin:     5,
	}
}

const (
	pointsPerInch   = 72
	pageNumberColor = "AAAAAA"
	pageNumberFont  = 8
)

// Composer builds one SlideSpec per page.
type Composer struct {
	cfg Config
}

// NewComposer creates a composer.
func NewComposer(cfg Config) *Composer {
	return &Composer{cfg: cfg}
}

// Input is everything the composer needs for one page.
type Input struct {
	Page  *domain.PageRecord
	Slide geometry.Space
	Mode  domain.Mode

	// Background is the image placed behind every shape.
	Background image.Image
	// Reference is sampled for cover and text colours. Defaults to Background.
	Reference image.Image
}

// Compose places each of the page's lines on the slide. Cover rectangles,
// when the mode asks for them, precede the text box of the same line.
func (c *Composer) Compose(in Input) domain.SlideSpec {
	spec := domain.SlideSpec{
		PageIndex:  in.Page.Index,
		Width:      in.Slide.Width,
		Height:     in.Slide.Height,
		Background: in.Background,
		Boxes:      []domain.TextBox{},
	}

	ref := in.Reference
	if ref == nil {
		ref = in.Background
	}

	if in.Mode != domain.ModeImage {
		for _, line := range in.Page.Lines {
			spec.Boxes = append(spec.Boxes, c.place(line, in, ref)...)
		}
	}

	if c.cfg.PageNumbers {
		spec.Boxes = append(spec.Boxes, c.pageNumber(in.Page.Index, in.Slide))
	}
	return spec
}

func (c *Composer) place(line domain.TextLine, in Input, ref image.Image) []domain.TextBox {
	anchor := geometry.MapRect(line.Box, in.Slide)

	// The size floor applies to shapes only; the font follows the line.
	w := math.Max(anchor.W, c.cfg.MinBoxWidth)
	h := math.Max(anchor.H, c.cfg.MinBoxHeight)
	fontSize := c.FontSize(anchor.H)

	fill, color := "", c.textColor()
	if !in.Mode.TransparentText() && ref != nil {
		px := pixelRect(geometry.MapRect(line.Box, rasterSpace(ref))).Add(ref.Bounds().Min)
		if in.Mode.CoversText() {
			fill, _ = SampleBackground(ref, px, c.cfg.SampleMargin)
		}
		if c.cfg.TextColor == "" {
			color, _ = SampleTextColor(ref, px)
		}
	}

	x, y, tw, th := clampBox(anchor.X, anchor.Y, w*c.cfg.TextWidthScale, h*c.cfg.TextHeightScale, in.Slide)

	var boxes []domain.TextBox
	if in.Mode.CoversText() {
		if fill == "" {
			fill = DefaultFill
		}
		// The cover shares the text box origin.
		cw := math.Min(w*c.cfg.CoverWidthScale, in.Slide.Width-x)
		ch := math.Min(h*c.cfg.CoverHeightScale, in.Slide.Height-y)
		boxes = append(boxes, domain.TextBox{
			Kind:      domain.BoxCover,
			X:         x,
			Y:         y,
			W:         cw,
			H:         ch,
			FillColor: fill,
			Anchor:    anchor,
		})
	}

	boxes = append(boxes, domain.TextBox{
		Kind:        domain.BoxText,
		X:           x,
		Y:           y,
		W:           tw,
		H:           th,
		FontSize:    fontSize,
		Text:        line.Text,
		FontFace:    c.cfg.FontFace,
		Color:       color,
		Transparent: in.Mode.TransparentText(),
		Anchor:      anchor,
	})
	return boxes
}

// FontSize derives a point size from a box height in inches.
func (c *Composer) FontSize(heightInches float64) float64 {
	size := math.Round(heightInches * pointsPerInch * c.cfg.FontRatio)
	return math.Max(c.cfg.MinFont, math.Min(size, c.cfg.MaxFont))
}

func (c *Composer) textColor() string {
	if c.cfg.TextColor != "" {
		return c.cfg.TextColor
	}
	return DefaultTextColor
}

func (c *Composer) pageNumber(index int, slide geometry.Space) domain.TextBox {
	x, y, w, h := clampBox(slide.Width-0.5, slide.Height-0.3, 0.4, 0.25, slide)
	return domain.TextBox{
		Kind:     domain.BoxText,
		X:        x,
		Y:        y,
		W:        w,
		H:        h,
		FontSize: pageNumberFont,
		Text:     strconv.Itoa(index),
		FontFace: c.cfg.FontFace,
		Color:    pageNumberColor,
		Align:    domain.AlignRight,
		Anchor:   geometry.NewRect(slide, x, y, w, h),
	}
}

// clampBox shrinks a box to fit the slide and then slides it inside.
func clampBox(x, y, w, h float64, slide geometry.Space) (float64, float64, float64, float64) {
	w = math.Min(w, slide.Width)
	h = math.Min(h, slide.Height)
	x = math.Max(0, math.Min(x, slide.Width-w))
	y = math.Max(0, math.Min(y, slide.Height-h))
	return x, y, w, h
}

func rasterSpace(img image.Image) geometry.Space {
	b := img.Bounds()
	return geometry.Raster(b.Dx(), b.Dy())
}

func pixelRect(r geometry.Rect) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)),
		int(math.Floor(r.Y)),
		int(math.Ceil(r.Right())),
		int(math.Ceil(r.Bottom())),
	)
}
