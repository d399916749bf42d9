// Package pdf opens source documents: PDFs through MuPDF, with a pure-Go
// text layer fallback, and single images as one-page documents.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/geometry"
	"github.com/spherical/pdf-slides/internal/imaging"
	"github.com/spherical/pdf-slides/internal/observability"
)

// TextExtractor is one strategy for reading a page's native text.
type TextExtractor interface {
	Name() string
	Extract(ctx context.Context, page int) ([]domain.TextFragment, error)
}

// Renderer opens PDFs with MuPDF and images with the image decoders.
type Renderer struct {
	logger *observability.Logger
}

// NewRenderer creates a renderer.
func NewRenderer(logger *observability.Logger) *Renderer {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Renderer{logger: logger.WithComponent("renderer")}
}

// Open opens the document at path.
func (r *Renderer) Open(ctx context.Context, path string) (domain.Document, error) {
	if IsImagePath(path) {
		doc, err := OpenImage(path)
		if err != nil {
			return nil, err
		}
		return doc, nil
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, domain.ParseError("failed to open PDF", err)
	}
	if doc.NumPage() == 0 {
		doc.Close()
		return nil, domain.ParseError("PDF has no pages", nil)
	}

	d := &fitzDocument{doc: doc, logger: r.logger}
	d.extractors = []TextExtractor{
		&htmlExtractor{doc: d},
		NewPlainExtractor(path),
	}
	return d, nil
}

type fitzDocument struct {
	doc        *fitz.Document
	extractors []TextExtractor
	logger     *observability.Logger
}

func (d *fitzDocument) NumPages() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) checkPage(page int) error {
	if page < 1 || page > d.doc.NumPage() {
		return domain.ValidationError(fmt.Sprintf("page %d out of range 1-%d", page, d.doc.NumPage()), nil)
	}
	return nil
}

func (d *fitzDocument) PageSize(page int) (float64, float64, error) {
	if err := d.checkPage(page); err != nil {
		return 0, 0, err
	}
	b, err := d.doc.Bound(page - 1)
	if err != nil {
		return 0, 0, domain.ParseError(fmt.Sprintf("page %d bounds", page), err)
	}
	return float64(b.Dx()), float64(b.Dy()), nil
}

func (d *fitzDocument) Render(ctx context.Context, page int, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.checkPage(page); err != nil {
		return nil, err
	}
	img, err := d.doc.ImageDPI(page-1, scale*72)
	if err != nil {
		return nil, domain.RenderError(fmt.Sprintf("failed to render page %d", page), err)
	}
	return img, nil
}

func (d *fitzDocument) ExtractTextFragments(ctx context.Context, page int) ([]domain.TextFragment, error) {
	if err := d.checkPage(page); err != nil {
		return nil, err
	}
	return extractFirst(ctx, d.extractors, page, d.logger)
}

// extractFirst tries each extractor in order. The first one that finds text
// wins; a page is empty only if some extractor succeeded without text.
func extractFirst(ctx context.Context, extractors []TextExtractor, page int, logger *observability.Logger) ([]domain.TextFragment, error) {
	var errs []error
	succeeded := false
	for _, ex := range extractors {
		frags, err := ex.Extract(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Debug().Str("extractor", ex.Name()).Int("page", page).Err(err).Msg("text extractor failed")
			errs = append(errs, fmt.Errorf("%s: %w", ex.Name(), err))
			continue
		}
		succeeded = true
		if len(frags) > 0 {
			return frags, nil
		}
	}

	if succeeded {
		return []domain.TextFragment{}, nil
	}
	return nil, errors.Join(errs...)
}

func (d *fitzDocument) Close() error {
	var errs []error
	for _, ex := range d.extractors {
		if c, ok := ex.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	errs = append(errs, d.doc.Close())
	return errors.Join(errs...)
}

// htmlExtractor reads MuPDF's positioned HTML text layer.
type htmlExtractor struct {
	doc *fitzDocument
}

func (e *htmlExtractor) Name() string { return "mupdf" }

func (e *htmlExtractor) Extract(ctx context.Context, page int) ([]domain.TextFragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h, err := e.doc.PageSize(page)
	if err != nil {
		return nil, err
	}
	html, err := e.doc.doc.HTML(page-1, false)
	if err != nil {
		return nil, err
	}
	return ParseStructuredHTML(html, geometry.PDF(w, h))
}

// ImageDocument is a single image treated as a one-page document whose page
// size is its pixel size.
type ImageDocument struct {
	img image.Image
}

// OpenImage decodes the image at path.
func OpenImage(path string) (*ImageDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.IOError("failed to open image", err)
	}
	defer f.Close()

	img, _, err := imaging.Decode(f)
	if err != nil {
		return nil, domain.ParseError("failed to decode image", err)
	}
	return NewImageDocument(img), nil
}

// NewImageDocument wraps an already decoded image.
func NewImageDocument(img image.Image) *ImageDocument {
	return &ImageDocument{img: imaging.ToRGBA(img)}
}

func (d *ImageDocument) NumPages() int { return 1 }

func (d *ImageDocument) PageSize(page int) (float64, float64, error) {
	if page != 1 {
		return 0, 0, domain.ValidationError(fmt.Sprintf("page %d out of range 1-1", page), nil)
	}
	b := d.img.Bounds()
	return float64(b.Dx()), float64(b.Dy()), nil
}

// Render returns the image at its native resolution; scale does not apply
// because page size is already measured in pixels.
func (d *ImageDocument) Render(ctx context.Context, page int, scale float64) (image.Image, error) {
	if _, _, err := d.PageSize(page); err != nil {
		return nil, err
	}
	return d.img, nil
}

func (d *ImageDocument) ExtractTextFragments(ctx context.Context, page int) ([]domain.TextFragment, error) {
	return []domain.TextFragment{}, nil
}

func (d *ImageDocument) Close() error { return nil }
