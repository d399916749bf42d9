// Package server exposes conversions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/observability"
	"github.com/spherical/pdf-slides/internal/pdf"
	"github.com/spherical/pdf-slides/internal/pipeline"
	"github.com/spherical/pdf-slides/internal/pptx"
)

// Converter runs one conversion to completion.
type Converter interface {
	Convert(ctx context.Context, req pipeline.Request, onEvent func(domain.StreamEvent)) (*domain.Deck, error)
}

// Config holds request handling limits.
type Config struct {
	RateLimit      float64 // requests per second, 0 disables
	RateBurst      int
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// Server handles conversion requests. Conversions run one at a time since
// the engines behind them are single instances.
type Server struct {
	conv      Converter
	cfg       Config
	logger    *observability.Logger
	validator *pdf.Validator
	limiter   *rate.Limiter
	busy      *semaphore.Weighted
}

// New creates a server.
func New(conv Converter, cfg Config, logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.Nop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 100 << 20
	}
	s := &Server{
		conv:      conv,
		cfg:       cfg,
		logger:    logger.WithComponent("server"),
		validator: pdf.NewValidator(logger),
		busy:      semaphore.NewWeighted(1),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/convert", s.convert)
	})

	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// convert handles POST /v1/convert.
func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".pdf" && !pdf.IsImagePath(header.Filename) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", ext))
		return
	}

	req := pipeline.Request{
		Mode:  domain.Mode(r.FormValue("mode")),
		Lang:  r.FormValue("lang"),
		Pages: r.FormValue("pages"),
		Title: strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename)),
	}
	if req.Mode != "" {
		mode, err := domain.ParseMode(string(req.Mode))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Mode = mode
	}

	path, cleanup, err := spool(file, ext)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer cleanup()
	req.Path = path

	if _, err := s.validator.PageCount(path); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	if err := s.busy.Acquire(ctx, 1); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting")
		return
	}
	defer s.busy.Release(1)

	s.logger.Info().
		Str("request_id", chimiddleware.GetReqID(ctx)).
		Str("file", header.Filename).
		Str("mode", string(req.Mode)).
		Str("pages", req.Pages).
		Msg("Starting conversion")

	warnings := 0
	deck, err := s.conv.Convert(ctx, req, func(ev domain.StreamEvent) {
		if ev.Type == domain.EventWarning {
			warnings++
		}
	})
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	name := strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename)) + pipeline.OutputSuffix
	w.Header().Set("Content-Type", pptx.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("X-Slide-Count", fmt.Sprint(deck.Slides))
	w.Header().Set("X-Warning-Count", fmt.Sprint(warnings))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(deck.Data); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write deck")
	}
}

// spool copies the upload to a temporary file that keeps its extension,
// since the renderer picks the decoder by extension.
func spool(src io.Reader, ext string) (string, func(), error) {
	f, err := os.CreateTemp("", "pdf-slides-upload-*"+ext)
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}

func statusFor(err error) int {
	var de *domain.DomainError
	if errors.As(err, &de) {
		switch de.Type {
		case domain.ErrorTypeValidation, domain.ErrorTypeParse:
			return http.StatusBadRequest
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
