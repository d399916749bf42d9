package domain

import (
	"context"
	"image"

	"github.com/spherical/pdf-slides/internal/geometry"
)

// Renderer opens source documents.
type Renderer interface {
	Open(ctx context.Context, path string) (Document, error)
}

// Document is an opened source document. Pages are 1-based.
type Document interface {
	NumPages() int

	// PageSize returns the page extent in PDF points.
	PageSize(page int) (width, height float64, err error)

	// Render rasterises a page at scale × 72 DPI.
	Render(ctx context.Context, page int, scale float64) (image.Image, error)

	// ExtractTextFragments returns the page's native text layer in PDF space.
	ExtractTextFragments(ctx context.Context, page int) ([]TextFragment, error)

	Close() error
}

// RecognizedLine is one line reported by the recognizer, in the space of the
// image it was given.
type RecognizedLine struct {
	Text       string
	Box        geometry.Rect
	Confidence float64
}

// Recognition is the recognizer's result for one image.
type Recognition struct {
	Lines    []RecognizedLine
	FullText string
}

// Recognizer is an OCR engine. Init must succeed before Recognize is called.
type Recognizer interface {
	Init(ctx context.Context, lang string) error
	Recognize(ctx context.Context, img image.Image) (*Recognition, error)
	Close() error
}

// Inpainter fills masked pixels of a fixed-size tile.
type Inpainter interface {
	// TileSize is the square edge, in pixels, the model expects.
	TileSize() int

	// Infer returns the tile with masked (255) pixels replaced.
	Infer(ctx context.Context, tile *image.RGBA, mask *image.Gray) (*image.RGBA, error)

	Close() error
}

// DeckWriter accumulates slides and serializes the deck.
type DeckWriter interface {
	AddSlide(spec SlideSpec) error
	Len() int
	Serialize() ([]byte, error)
}

// ModelStore persists downloaded model bytes under a key.
type ModelStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// ModelSource fetches raw model bytes from one location.
type ModelSource interface {
	Name() string
	Fetch(ctx context.Context) ([]byte, error)
}
