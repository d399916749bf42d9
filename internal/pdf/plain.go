package pdf

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/geometry"
)

// Glyph runs closer than this share of their font size are one fragment.
const glyphJoinRatio = 0.3

// PlainExtractor reads the text layer with a pure-Go PDF parser. It is the
// fallback when MuPDF yields no positioned text.
type PlainExtractor struct {
	path string

	once   sync.Once
	reader *lpdf.Reader
	closer interface{ Close() error }
	err    error
}

// NewPlainExtractor creates an extractor for the file at path. The file is
// opened on first use.
func NewPlainExtractor(path string) *PlainExtractor {
	return &PlainExtractor{path: path}
}

func (e *PlainExtractor) Name() string { return "ledongthuc" }

func (e *PlainExtractor) open() error {
	e.once.Do(func() {
		f, r, err := lpdf.Open(e.path)
		if err != nil {
			e.err = fmt.Errorf("open pdf %s: %w", e.path, err)
			return
		}
		e.closer = f
		e.reader = r
	})
	return e.err
}

// Extract returns the text runs of a 1-based page in PDF space, top-left
// origin.
func (e *PlainExtractor) Extract(ctx context.Context, page int) (frags []domain.TextFragment, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.open(); err != nil {
		return nil, err
	}
	if page < 1 || page > e.reader.NumPage() {
		return nil, fmt.Errorf("page %d out of range", page)
	}

	p := e.reader.Page(page)
	if p.V.IsNull() {
		return nil, nil
	}

	w, h := mediaBox(p)
	space := geometry.PDF(w, h)

	// The content stream interpreter panics on malformed operators.
	defer func() {
		if r := recover(); r != nil {
			frags, err = nil, fmt.Errorf("page %d content: %v", page, r)
		}
	}()

	return mergeGlyphs(p.Content().Text, space), nil
}

// Close releases the underlying file.
func (e *PlainExtractor) Close() error {
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}

func mediaBox(p lpdf.Page) (float64, float64) {
	box := p.V.Key("MediaBox")
	if box.Len() < 4 {
		return 612, 792
	}
	w := box.Index(2).Float64() - box.Index(0).Float64()
	h := box.Index(3).Float64() - box.Index(1).Float64()
	if w <= 0 || h <= 0 {
		return 612, 792
	}
	return w, h
}

// mergeGlyphs joins consecutive glyphs sharing a baseline and font size into
// runs and converts baselines to top-left boxes.
func mergeGlyphs(glyphs []lpdf.Text, space geometry.Space) []domain.TextFragment {
	type run struct {
		text      strings.Builder
		x, y, end float64
		size      float64
	}

	sorted := make([]lpdf.Text, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S != "" && g.FontSize > 0 {
			sorted = append(sorted, g)
		}
	}
	// Higher baselines first, then left to right.
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var runs []*run
	var cur *run
	for _, g := range sorted {
		width := g.W
		if width <= 0 {
			width = float64(len([]rune(g.S))) * g.FontSize * charWidthRatio
		}

		if cur != nil && g.Y == cur.y && g.FontSize == cur.size {
			gap := g.X - cur.end
			if gap < glyphJoinRatio*g.FontSize {
				if gap > 0.1*g.FontSize && !strings.HasSuffix(cur.text.String(), " ") {
					cur.text.WriteByte(' ')
				}
				cur.text.WriteString(g.S)
				cur.end = math.Max(cur.end, g.X+width)
				continue
			}
		}

		cur = &run{x: g.X, y: g.Y, end: g.X + width, size: g.FontSize}
		cur.text.WriteString(g.S)
		runs = append(runs, cur)
	}

	frags := make([]domain.TextFragment, 0, len(runs))
	for _, r := range runs {
		text := strings.TrimSpace(r.text.String())
		if text == "" {
			continue
		}
		top := space.Height - r.y - r.size
		frags = append(frags, domain.TextFragment{
			Text:     text,
			Box:      geometry.NewRect(space, r.x, top, r.end-r.x, r.size),
			FontSize: r.size,
			Source:   domain.SourceNative,
		})
	}
	return frags
}
