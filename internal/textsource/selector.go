// Package textsource decides, per page, whether a slide's text comes from
// the document's own text layer or from OCR, and produces the page's lines.
package textsource

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/geometry"
	"github.com/spherical/pdf-slides/internal/layout"
	"github.com/spherical/pdf-slides/internal/observability"
)

// DefaultMinConfidence is the exclusive lower bound on OCR line confidence.
const DefaultMinConfidence = 30

// Recognizer is the part of the OCR engine the selector needs.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (*domain.Recognition, error)
}

// RasterFunc produces the image handed to the recognizer. It is only called
// when a page actually needs OCR.
type RasterFunc func(ctx context.Context) (image.Image, error)

// Config tunes line selection.
type Config struct {
	// MinConfidence is the exclusive lower bound on OCR line confidence.
	// Nil selects DefaultMinConfidence; zero keeps every scored line.
	MinConfidence      *float64
	LineThresholdRatio float64
}

// Selector resolves the lines of each page.
type Selector struct {
	cfg           Config
	minConfidence float64
	recognizer    Recognizer
	logger        *observability.Logger
}

// NewSelector creates a selector. recognizer may be nil when no mode in the
// run needs OCR.
func NewSelector(cfg Config, recognizer Recognizer, logger *observability.Logger) *Selector {
	minConfidence := float64(DefaultMinConfidence)
	if cfg.MinConfidence != nil {
		minConfidence = *cfg.MinConfidence
	}
	if cfg.LineThresholdRatio == 0 {
		cfg.LineThresholdRatio = layout.DefaultLineThresholdRatio
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Selector{
		cfg:           cfg,
		minConfidence: minConfidence,
		recognizer:    recognizer,
		logger:        logger.WithComponent("textsource"),
	}
}

// Resolve fills page.Lines for the given mode.
//
// Native mode groups the native fragments and never falls back to OCR. OCR
// modes recognise the raster, keep confident non-blank lines and map them
// into PDF space. Image mode keeps no lines.
//
// A recognition failure leaves the page resolved with no lines and returns a
// page_recognition error for the caller to report; the run continues.
func (s *Selector) Resolve(ctx context.Context, mode domain.Mode, page *domain.PageRecord, native []domain.TextFragment, raster RasterFunc) error {
	page.HasNativeText = hasText(native)

	switch {
	case mode == domain.ModeNative:
		if !page.HasNativeText {
			return page.SetLines(nil, domain.LineSourceNone)
		}
		threshold := layout.LineThreshold(page.Height, s.cfg.LineThresholdRatio)
		return page.SetLines(layout.GroupLines(native, threshold), domain.LineSourceNative)

	case mode.NeedsOCR():
		lines, err := s.recognize(ctx, page, raster)
		if err != nil {
			if setErr := page.SetLines(nil, domain.LineSourceNone); setErr != nil {
				return setErr
			}
			s.logger.Warn().Int("page", page.Index).Err(err).Msg("recognition failed, page keeps no text")
			return domain.PageRecognitionError(fmt.Sprintf("page %d", page.Index), err)
		}
		return page.SetLines(lines, domain.LineSourceOCR)

	default:
		return page.SetLines(nil, domain.LineSourceNone)
	}
}

func (s *Selector) recognize(ctx context.Context, page *domain.PageRecord, raster RasterFunc) ([]domain.TextLine, error) {
	if s.recognizer == nil {
		return nil, fmt.Errorf("no recognizer configured")
	}
	if raster == nil {
		return nil, fmt.Errorf("no raster for page")
	}

	img, err := raster(ctx)
	if err != nil {
		return nil, fmt.Errorf("ocr raster: %w", err)
	}

	result, err := s.recognizer.Recognize(ctx, img)
	if err != nil {
		return nil, err
	}

	ocrSpace := geometry.OCR(img.Bounds().Dx(), img.Bounds().Dy())
	target := page.Space()

	lines := make([]domain.TextLine, 0, len(result.Lines))
	var dropped int
	for _, rl := range result.Lines {
		text := strings.TrimSpace(rl.Text)
		if text == "" || rl.Confidence <= s.minConfidence {
			dropped++
			continue
		}

		box := rl.Box
		if !box.Space.Valid() {
			box.Space = ocrSpace
		}
		box = geometry.MapRect(box, target)

		lines = append(lines, domain.TextLine{
			Text:     text,
			Box:      box,
			FontSize: box.H,
		})
	}

	s.logger.Debug().
		Int("page", page.Index).
		Int("kept", len(lines)).
		Int("dropped", dropped).
		Msg("ocr lines selected")

	return lines, nil
}

func hasText(frags []domain.TextFragment) bool {
	for _, f := range frags {
		if strings.TrimSpace(f.Text) != "" {
			return true
		}
	}
	return false
}
