package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spherical/pdf-slides/internal/cache"
	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/inpaint"
	"github.com/spherical/pdf-slides/internal/modelstore"
	"github.com/spherical/pdf-slides/internal/ocr"
	"github.com/spherical/pdf-slides/internal/pdf"
	"github.com/spherical/pdf-slides/internal/pipeline"
	"github.com/spherical/pdf-slides/internal/pptx"
)

// app holds the long-lived collaborators shared by every conversion.
type app struct {
	service *pipeline.Service
	fetcher *inpaint.Fetcher
	store   modelstore.Store
	cache   cache.Client
}

// newFetcher opens the model store and builds the download chain.
func newFetcher(progress inpaint.ProgressFunc) (*inpaint.Fetcher, modelstore.Store, error) {
	store, err := modelstore.New(cfg.Inpaint.Store)
	if err != nil {
		return nil, nil, err
	}
	sources := inpaint.DefaultSources(cfg.Inpaint.PrimaryURL, cfg.Inpaint.BackupURL, cfg.Inpaint.Retry, progress, logger)
	return inpaint.NewFetcher(store, sources, logger), store, nil
}

// newApp wires the conversion service from the loaded configuration.
func newApp(progress inpaint.ProgressFunc) (*app, error) {
	a := &app{}

	c, err := cache.New(cfg.Cache)
	if err != nil {
		// Recognition still works uncached.
		logger.Warn().Err(err).Str("driver", cfg.Cache.Driver).Msg("OCR cache unavailable")
		c = nil
	}
	a.cache = c

	a.fetcher, a.store, err = newFetcher(progress)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open model store: %w", err)
	}

	deckOpts := cfg.Deck()
	deps := pipeline.Deps{
		Renderer: pdf.NewRenderer(logger),
		NewRecognizer: func() domain.Recognizer {
			return ocr.NewCached(ocr.New(cfg.OCR.Config, logger), a.cache, cfg.Cache.TTL, logger)
		},
		NewInpainter: func(ctx context.Context) (domain.Inpainter, error) {
			if cfg.Inpaint.DownloadTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Inpaint.DownloadTimeout)
				defer cancel()
			}
			model, err := a.fetcher.Load(ctx)
			if err != nil {
				return nil, err
			}
			return inpaint.NewLama(model, cfg.Inpaint.LibraryPath, logger)
		},
		NewDeck: func(info domain.DeckInfo) (domain.DeckWriter, error) {
			return pptx.New(info, deckOpts)
		},
	}

	a.service = pipeline.NewService(cfg.Pipeline(), deps, logger)
	return a, nil
}

// Close releases the store and cache.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	return errors.Join(errs...)
}
