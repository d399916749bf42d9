package pipeline

import (
	"context"
	"image"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/engine"
)

// pooledRecognizer routes recognition through the run's OCR pool.
type pooledRecognizer struct {
	pool *engine.Pool[domain.Recognizer]
}

func (p pooledRecognizer) Recognize(ctx context.Context, img image.Image) (*domain.Recognition, error) {
	var out *domain.Recognition
	err := p.pool.Use(ctx, func(r domain.Recognizer) error {
		var err error
		out, err = r.Recognize(ctx, img)
		return err
	})
	return out, err
}

// pooledInpainter routes tile inference through the run's inpainting pool.
type pooledInpainter struct {
	pool *engine.Pool[domain.Inpainter]
}

func (p pooledInpainter) Infer(ctx context.Context, tile *image.RGBA, mask *image.Gray) (*image.RGBA, error) {
	var out *image.RGBA
	err := p.pool.Use(ctx, func(inp domain.Inpainter) error {
		var err error
		out, err = inp.Infer(ctx, tile, mask)
		return err
	})
	return out, err
}

func recognizerFactory(newRecognizer func() domain.Recognizer, lang string) engine.Factory[domain.Recognizer] {
	return func(ctx context.Context) (domain.Recognizer, error) {
		if newRecognizer == nil {
			return nil, domain.RecognizerInitError("no OCR engine configured", nil)
		}
		r := newRecognizer()
		if err := r.Init(ctx, lang); err != nil {
			_ = r.Close()
			if domain.IsType(err, domain.ErrorTypeRecognizerInit) {
				return nil, err
			}
			return nil, domain.RecognizerInitError("OCR engine failed to start", err)
		}
		return r, nil
	}
}

func inpainterFactory(newInpainter func(ctx context.Context) (domain.Inpainter, error)) engine.Factory[domain.Inpainter] {
	return func(ctx context.Context) (domain.Inpainter, error) {
		if newInpainter == nil {
			return nil, domain.ModelDownloadError("no inpainting model configured", nil)
		}
		return newInpainter(ctx)
	}
}
