// Package pipeline turns a document into a slide deck, one page at a time,
// and reports progress as a stream of events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"iter"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/engine"
	"github.com/spherical/pdf-slides/internal/geometry"
	"github.com/spherical/pdf-slides/internal/imaging"
	"github.com/spherical/pdf-slides/internal/layout"
	"github.com/spherical/pdf-slides/internal/observability"
	"github.com/spherical/pdf-slides/internal/pdf"
	"github.com/spherical/pdf-slides/internal/pptx"
	"github.com/spherical/pdf-slides/internal/removal"
	"github.com/spherical/pdf-slides/internal/textsource"
)

// OutputSuffix is appended to the input's base name to name the deck.
const OutputSuffix = "_editable.pptx"

// DefaultMode is used when a request names no mode.
const DefaultMode = domain.ModeOverlay

// Request describes one conversion.
type Request struct {
	Path  string
	Mode  domain.Mode
	Pages string // page selection, e.g. "1-3,5"; empty selects all
	Lang  string // OCR language, e.g. chi_tra+eng
	Title string
}

// Config holds the per-run tuning knobs.
type Config struct {
	RenderScale float64 // background raster, × 72 DPI
	OCRScale    float64 // recognizer raster, × 72 DPI
	SlideWidth  float64 // inches
	SlideHeight float64 // inches

	Layout     layout.Config
	TextSource textsource.Config
	Removal    removal.Config
}

// DefaultConfig renders at 144 DPI, recognises at 108 DPI and targets a
// 13.333in × 7.5in widescreen slide.
func DefaultConfig() Config {
	return Config{
		RenderScale: 2.0,
		OCRScale:    1.5,
		SlideWidth:  13.333,
		SlideHeight: 7.5,
		Layout:      layout.DefaultConfig(),
		TextSource:  textsource.Config{LineThresholdRatio: layout.DefaultLineThresholdRatio},
		Removal:     removal.DefaultConfig(),
	}
}

// Deps are the external collaborators of a run. Engines are created per
// run through the constructors and closed when the run ends.
type Deps struct {
	Renderer      domain.Renderer
	NewRecognizer func() domain.Recognizer
	NewInpainter  func(ctx context.Context) (domain.Inpainter, error)
	NewDeck       func(info domain.DeckInfo) (domain.DeckWriter, error)
}

// Service orchestrates conversions.
type Service struct {
	cfg    Config
	deps   Deps
	logger *observability.Logger
}

// NewService creates a conversion service. A nil NewDeck writes PPTX.
func NewService(cfg Config, deps Deps, logger *observability.Logger) *Service {
	if deps.NewDeck == nil {
		deps.NewDeck = func(info domain.DeckInfo) (domain.DeckWriter, error) {
			return pptx.New(info, pptx.DefaultOptions())
		}
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{cfg: cfg, deps: deps, logger: logger.WithComponent("pipeline")}
}

// OutputName returns the deck file name for an input path.
func OutputName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + OutputSuffix
}

// Process runs a conversion. Events arrive in order; a fatal failure is
// delivered once as an EventError paired with the error, after which the
// sequence ends. EventComplete carries the *domain.Deck.
func (s *Service) Process(ctx context.Context, req Request) iter.Seq2[domain.StreamEvent, error] {
	return func(yield func(domain.StreamEvent, error) bool) {
		runID := uuid.NewString()
		ctx := observability.ContextWithRunID(ctx, runID)
		r := &run{
			svc:    s,
			req:    req,
			mode:   req.Mode,
			logger: s.logger.WithContext(ctx),
			yield:  yield,
		}
		defer r.close()
		r.execute(ctx, runID)
	}
}

// Convert runs Process to completion and returns the deck.
func (s *Service) Convert(ctx context.Context, req Request, onEvent func(domain.StreamEvent)) (*domain.Deck, error) {
	var deck *domain.Deck
	for ev, err := range s.Process(ctx, req) {
		if onEvent != nil {
			onEvent(ev)
		}
		if err != nil {
			return nil, err
		}
		if ev.Type == domain.EventComplete {
			deck, _ = ev.Payload.(*domain.Deck)
		}
	}
	if deck == nil {
		return nil, errors.New("conversion ended without a deck")
	}
	return deck, nil
}

// errStopped marks a consumer that stopped reading events.
var errStopped = errors.New("event consumer stopped")

type run struct {
	svc    *Service
	req    Request
	mode   domain.Mode
	logger *observability.Logger
	yield  func(domain.StreamEvent, error) bool

	doc       domain.Document
	ocrPool   *engine.Pool[domain.Recognizer]
	inpPool   *engine.Pool[domain.Inpainter]
	selector  *textsource.Selector
	planner   *removal.Planner
	composer  *layout.Composer
	slide     geometry.Space
	warnings  int
	startTime time.Time
}

func (r *run) emit(ev domain.StreamEvent) error {
	ev.Timestamp = time.Now()
	if !r.yield(ev, nil) {
		return errStopped
	}
	return nil
}

func (r *run) warn(page int, msg string) error {
	r.warnings++
	r.logger.Warn().Int("page", page).Msg(msg)
	return r.emit(domain.StreamEvent{Type: domain.EventWarning, PageNumber: page, Payload: msg})
}

func (r *run) fail(err error) {
	if errors.Is(err, errStopped) {
		return
	}
	r.logger.Error().Err(err).Msg("conversion failed")
	r.yield(domain.StreamEvent{Type: domain.EventError, Payload: err.Error(), Timestamp: time.Now()}, err)
}

func (r *run) close() {
	if r.inpPool != nil {
		if err := r.inpPool.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to release inpainting engine")
		}
	}
	if r.ocrPool != nil {
		if err := r.ocrPool.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to release OCR engine")
		}
	}
	if r.doc != nil {
		if err := r.doc.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close document")
		}
	}
}

func (r *run) execute(ctx context.Context, runID string) {
	if err := r.convert(ctx, runID); err != nil {
		r.fail(err)
	}
}

func (r *run) convert(ctx context.Context, runID string) error {
	r.startTime = time.Now()
	cfg := r.svc.cfg

	if r.mode == "" {
		r.mode = DefaultMode
	}
	mode, err := domain.ParseMode(string(r.mode))
	if err != nil {
		return err
	}
	r.mode = mode
	if r.svc.deps.Renderer == nil {
		return domain.ConfigError("no renderer configured", nil)
	}

	if err := r.emit(domain.StreamEvent{
		Type:    domain.EventStart,
		Payload: fmt.Sprintf("Converting %s (mode %s, run %s)", filepath.Base(r.req.Path), r.mode, runID),
	}); err != nil {
		return err
	}
	r.logger.Info().Str("path", r.req.Path).Str("mode", string(r.mode)).Msg("conversion started")

	doc, err := r.svc.deps.Renderer.Open(ctx, r.req.Path)
	if err != nil {
		return err
	}
	r.doc = doc

	pages, err := pdf.SelectPages(r.req.Pages, doc.NumPages())
	if err != nil {
		return err
	}

	if err := r.prepareEngines(ctx); err != nil {
		return err
	}

	r.slide = geometry.Slide(cfg.SlideWidth, cfg.SlideHeight)
	r.composer = layout.NewComposer(cfg.Layout)
	r.planner = removal.NewPlanner(r.removalConfig(ctx), r.logger)
	var recognizer textsource.Recognizer
	if r.ocrPool != nil {
		recognizer = pooledRecognizer{pool: r.ocrPool}
	}
	r.selector = textsource.NewSelector(cfg.TextSource, recognizer, r.logger)

	title := r.req.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(r.req.Path), filepath.Ext(r.req.Path))
	}
	deck, err := r.svc.deps.NewDeck(domain.DeckInfo{
		Title:       title,
		SlideWidth:  cfg.SlideWidth,
		SlideHeight: cfg.SlideHeight,
	})
	if err != nil {
		return domain.SerializationError("failed to create deck", err)
	}

	if err := r.emit(domain.StreamEvent{Type: domain.EventPhase, Payload: domain.PhasePages, Total: len(pages)}); err != nil {
		return err
	}

	for i, pageNo := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.emit(domain.StreamEvent{
			Type:       domain.EventPageProcessing,
			PageNumber: pageNo,
			Current:    i + 1,
			Total:      len(pages),
		}); err != nil {
			return err
		}

		spec, stats, err := r.processPage(ctx, pageNo)
		if err != nil {
			return err
		}
		if err := deck.AddSlide(spec); err != nil {
			if domain.IsType(err, domain.ErrorTypeSerialization) {
				return err
			}
			return domain.SerializationError(fmt.Sprintf("failed to add slide for page %d", pageNo), err)
		}

		if err := r.emit(domain.StreamEvent{
			Type:       domain.EventPageComplete,
			PageNumber: pageNo,
			Current:    i + 1,
			Total:      len(pages),
			Payload:    stats,
		}); err != nil {
			return err
		}
	}

	if err := r.emit(domain.StreamEvent{Type: domain.EventPhase, Payload: domain.PhaseSerialize}); err != nil {
		return err
	}
	if n := deck.Len(); n != len(pages) {
		return domain.SerializationError(fmt.Sprintf("deck holds %d slides for %d pages", n, len(pages)), nil)
	}
	data, err := deck.Serialize()
	if err != nil {
		if domain.IsType(err, domain.ErrorTypeSerialization) {
			return err
		}
		return domain.SerializationError("failed to serialize deck", err)
	}

	out := &domain.Deck{FileName: OutputName(r.req.Path), Data: data, Slides: deck.Len()}
	r.logger.Info().
		Int("slides", out.Slides).
		Int("bytes", len(data)).
		Int("warnings", r.warnings).
		Dur("took", time.Since(r.startTime)).
		Msg("conversion complete")

	return r.emit(domain.StreamEvent{Type: domain.EventComplete, Total: len(pages), Payload: out})
}

// prepareEngines starts the engines the mode needs, downgrading the mode
// when one cannot start.
func (r *run) prepareEngines(ctx context.Context) error {
	deps := r.svc.deps

	if r.mode.NeedsInpainter() {
		if err := r.emit(domain.StreamEvent{Type: domain.EventPhase, Payload: domain.PhaseModel}); err != nil {
			return err
		}
		r.inpPool = engine.NewPool(inpainterFactory(deps.NewInpainter))
		if err := r.inpPool.Warm(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn().Err(err).Msg("inpainting unavailable")
			r.mode = domain.ModeOverlay
			if err := r.warn(0, fmt.Sprintf("AI text removal unavailable, using %s mode: %v", domain.ModeOverlay, err)); err != nil {
				return err
			}
		}
	}

	if r.mode.NeedsOCR() {
		if err := r.emit(domain.StreamEvent{Type: domain.EventPhase, Payload: domain.PhaseOCRInit}); err != nil {
			return err
		}
		r.ocrPool = engine.NewPool(recognizerFactory(deps.NewRecognizer, r.req.Lang))
		if err := r.ocrPool.Warm(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn().Err(err).Msg("OCR unavailable")
			r.mode = domain.ModeImage
			if err := r.warn(0, fmt.Sprintf("OCR unavailable, using %s mode: %v", domain.ModeImage, err)); err != nil {
				return err
			}
		}
	}
	return nil
}

// removalConfig sizes tiles to what the warmed inpainter expects.
func (r *run) removalConfig(ctx context.Context) removal.Config {
	cfg := r.svc.cfg.Removal
	if r.inpPool == nil || !r.inpPool.Ready() {
		return cfg
	}
	_ = r.inpPool.Use(ctx, func(inp domain.Inpainter) error {
		if size := inp.TileSize(); size > 0 && size != cfg.TileSize {
			r.logger.Debug().Int("configured", cfg.TileSize).Int("model", size).Msg("using model tile size")
			cfg.TileSize = size
		}
		return nil
	})
	if cfg.Overlap >= cfg.TileSize {
		cfg.Overlap = cfg.TileSize / 8
	}
	return cfg
}

func (r *run) processPage(ctx context.Context, pageNo int) (domain.SlideSpec, domain.PageStats, error) {
	cfg := r.svc.cfg
	stats := domain.PageStats{}

	w, h, err := r.doc.PageSize(pageNo)
	if err != nil {
		return domain.SlideSpec{}, stats, domain.RenderError(fmt.Sprintf("page %d has no size", pageNo), err)
	}
	bg, err := r.doc.Render(ctx, pageNo, cfg.RenderScale)
	if err != nil {
		if domain.IsType(err, domain.ErrorTypeRender) {
			return domain.SlideSpec{}, stats, err
		}
		return domain.SlideSpec{}, stats, domain.RenderError(fmt.Sprintf("failed to render page %d", pageNo), err)
	}

	page := &domain.PageRecord{Index: pageNo, Width: w, Height: h, Background: bg}

	var native []domain.TextFragment
	if r.mode == domain.ModeNative {
		native, err = r.doc.ExtractTextFragments(ctx, pageNo)
		if err != nil {
			r.logger.Warn().Int("page", pageNo).Err(err).Msg("native text unavailable")
			native = nil
		}
	}

	raster := func(ctx context.Context) (image.Image, error) {
		if cfg.RenderScale <= 0 || cfg.OCRScale == cfg.RenderScale {
			return bg, nil
		}
		return imaging.ScaleBy(bg, cfg.OCRScale/cfg.RenderScale), nil
	}

	if err := r.selector.Resolve(ctx, r.mode, page, native, raster); err != nil {
		if !domain.IsType(err, domain.ErrorTypePageRecognition) {
			return domain.SlideSpec{}, stats, err
		}
		if ctx.Err() != nil {
			return domain.SlideSpec{}, stats, ctx.Err()
		}
		if err := r.warn(pageNo, fmt.Sprintf("text recognition failed on page %d: %v", pageNo, err)); err != nil {
			return domain.SlideSpec{}, stats, err
		}
	}
	stats.Lines = len(page.Lines)
	stats.Source = page.LineSource

	background := bg
	if r.mode.NeedsInpainter() && len(page.Lines) > 0 {
		boxes := make([]geometry.Rect, len(page.Lines))
		for i, l := range page.Lines {
			boxes[i] = l.Box
		}
		cleaned, rs, err := r.planner.Remove(ctx, bg, boxes, pooledInpainter{pool: r.inpPool})
		if err != nil {
			return domain.SlideSpec{}, stats, err
		}
		background = cleaned
		stats.TilesInpainted, stats.TilesSkipped, stats.TilesFailed = rs.Inpainted, rs.Skipped, rs.Failed
		if rs.Failed > 0 {
			if err := r.warn(pageNo, fmt.Sprintf("%d of %d tiles on page %d kept their text", rs.Failed, rs.Tiles, pageNo)); err != nil {
				return domain.SlideSpec{}, stats, err
			}
		}
	}

	spec := r.composer.Compose(layout.Input{
		Page:       page,
		Slide:      r.slide,
		Mode:       r.mode,
		Background: background,
		Reference:  bg,
	})

	r.logger.Debug().
		Int("page", pageNo).
		Int("lines", stats.Lines).
		Str("source", string(stats.Source)).
		Int("boxes", len(spec.Boxes)).
		Msg("page composed")

	return spec, stats, nil
}
