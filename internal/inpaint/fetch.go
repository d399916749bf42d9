package inpaint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/modelstore"
	"github.com/spherical/pdf-slides/internal/observability"
)

// Model locations and the store key downloaded weights are kept under.
const (
	DefaultPrimaryURL = "https://huggingface.co/Carve/LaMa-ONNX/resolve/main/lama_fp32.onnx"
	DefaultBackupURL  = "https://cdn.jsdelivr.net/gh/nicktomlin/nicktomlin.github.io@main/model/lama_fp32.onnx"
	ModelKey          = "lama_model"
)

// ProgressFunc reports downloaded bytes. total is -1 when unknown.
type ProgressFunc func(source string, read, total int64)

// HTTPSource downloads the model from one URL.
type HTTPSource struct {
	name     string
	url      string
	client   *http.Client
	retry    RetryConfig
	progress ProgressFunc
	logger   *observability.Logger
}

// NewHTTPSource creates a source. client may be nil.
func NewHTTPSource(name, url string, client *http.Client, retry RetryConfig, progress ProgressFunc, logger *observability.Logger) *HTTPSource {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &HTTPSource{
		name:     name,
		url:      url,
		client:   client,
		retry:    retry,
		progress: progress,
		logger:   logger.WithComponent("model-fetch"),
	}
}

// Name identifies the source in logs.
func (s *HTTPSource) Name() string {
	return s.name
}

// Fetch downloads the whole body.
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	resp, err := retryWithBackoff(ctx, s.retry, s.logger, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "pdf-slides")
		return s.client.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if s.progress != nil {
		r = &progressReader{r: resp.Body, total: resp.ContentLength, report: func(n, total int64) {
			s.progress(s.name, n, total)
		}}
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("read model body: %w", err)
	}
	if buf.Len() == 0 {
		return nil, errors.New("empty model body")
	}
	return buf.Bytes(), nil
}

type progressReader struct {
	r      io.Reader
	read   int64
	total  int64
	report func(read, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.report(p.read, p.total)
	}
	return n, err
}

// Fetcher resolves model bytes: the store first, then each source in
// order. The first source that succeeds wins and is written back to the
// store.
type Fetcher struct {
	store   domain.ModelStore
	sources []domain.ModelSource
	key     string
	logger  *observability.Logger
}

// NewFetcher creates a fetcher. store may be nil.
func NewFetcher(store domain.ModelStore, sources []domain.ModelSource, logger *observability.Logger) *Fetcher {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Fetcher{
		store:   store,
		sources: sources,
		key:     ModelKey,
		logger:  logger.WithComponent("model-fetch"),
	}
}

// Load returns the model bytes, downloading them when not yet stored.
// Failing every source yields a model_download error.
func (f *Fetcher) Load(ctx context.Context) ([]byte, error) {
	if f.store != nil {
		data, err := f.store.Get(ctx, f.key)
		switch {
		case err == nil && len(data) > 0:
			f.logger.Info().Int("bytes", len(data)).Msg("model loaded from store")
			return data, nil
		case err != nil && !errors.Is(err, modelstore.ErrNotFound):
			f.logger.Warn().Err(err).Msg("model store read failed, downloading")
		}
	}

	data, err := f.Download(ctx)
	if err != nil {
		return nil, err
	}

	if f.store != nil {
		if err := f.store.Put(ctx, f.key, data); err != nil {
			f.logger.Warn().Err(err).Msg("failed to store model")
		}
	}
	return data, nil
}

// Download tries each source in order without consulting the store.
func (f *Fetcher) Download(ctx context.Context) ([]byte, error) {
	var errs []error
	for _, src := range f.sources {
		data, err := src.Fetch(ctx)
		if err == nil {
			f.logger.Info().Str("source", src.Name()).Int("bytes", len(data)).Msg("model downloaded")
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn().Str("source", src.Name()).Err(err).Msg("model source failed")
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
	}
	if len(errs) == 0 {
		return nil, domain.ModelDownloadError("no model sources configured", nil)
	}
	return nil, domain.ModelDownloadError("all model sources failed", errors.Join(errs...))
}

// Clear removes the stored model.
func (f *Fetcher) Clear(ctx context.Context) error {
	if f.store == nil {
		return nil
	}
	return f.store.Delete(ctx, f.key)
}

// DefaultSources returns the primary and backup HTTP sources for the given
// URLs, skipping empty ones.
func DefaultSources(primary, backup string, retry RetryConfig, progress ProgressFunc, logger *observability.Logger) []domain.ModelSource {
	var out []domain.ModelSource
	if primary != "" {
		out = append(out, NewHTTPSource("primary", primary, nil, retry, progress, logger))
	}
	if backup != "" {
		out = append(out, NewHTTPSource("backup", backup, nil, retry, progress, logger))
	}
	return out
}
