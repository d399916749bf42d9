package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/pipeline"
	"github.com/spherical/pdf-slides/internal/pptx"
)

type fakeConverter struct {
	mu       sync.Mutex
	requests []pipeline.Request
	contents [][]byte
	err      error
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeConverter) Convert(ctx context.Context, req pipeline.Request, onEvent func(domain.StreamEvent)) (*domain.Deck, error) {
	data, _ := os.ReadFile(req.Path)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.contents = append(f.contents, data)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	onEvent(domain.StreamEvent{Type: domain.EventWarning, Payload: "degraded"})
	return &domain.Deck{FileName: "x" + pipeline.OutputSuffix, Data: []byte("PKdeck"), Slides: 2}, nil
}

func upload(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/convert", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["error"]
}

func TestHealth(t *testing.T) {
	s := New(&fakeConverter{}, Config{}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestConvertSuccess(t *testing.T) {
	conv := &fakeConverter{}
	s := New(conv, Config{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, upload(t, "Quarterly Review.png", []byte("png-bytes"), map[string]string{
		"mode":  "AI",
		"lang":  "eng",
		"pages": "1-2",
	}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, pptx.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Quarterly Review_editable.pptx")
	assert.Equal(t, "2", rec.Header().Get("X-Slide-Count"))
	assert.Equal(t, "1", rec.Header().Get("X-Warning-Count"))
	assert.Equal(t, "PKdeck", rec.Body.String())

	require.Len(t, conv.requests, 1)
	got := conv.requests[0]
	assert.Equal(t, domain.ModeAIOverlay, got.Mode)
	assert.Equal(t, "eng", got.Lang)
	assert.Equal(t, "1-2", got.Pages)
	assert.Equal(t, "Quarterly Review", got.Title)
	assert.Equal(t, ".png", got.Path[len(got.Path)-4:])
	assert.Equal(t, []byte("png-bytes"), conv.contents[0])

	_, err := os.Stat(got.Path)
	assert.True(t, os.IsNotExist(err), "upload removed after the request")
}

func TestConvertBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		wantErr string
	}{
		{
			name:    "missing file",
			req:     func(t *testing.T) *http.Request { return upload(t, "", nil, map[string]string{"mode": "ocr"}) },
			wantErr: "file is required",
		},
		{
			name:    "unsupported type",
			req:     func(t *testing.T) *http.Request { return upload(t, "notes.docx", []byte("x"), nil) },
			wantErr: "unsupported file type",
		},
		{
			name:    "unknown mode",
			req:     func(t *testing.T) *http.Request { return upload(t, "a.pdf", []byte("x"), map[string]string{"mode": "sketch"}) },
			wantErr: "unknown mode",
		},
		{
			name:    "unreadable pdf",
			req:     func(t *testing.T) *http.Request { return upload(t, "broken.pdf", []byte("%PDF-1.7 garbage"), nil) },
			wantErr: "cannot parse",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/v1/convert", bytes.NewReader([]byte("{}")))
			},
			wantErr: "invalid multipart form",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := &fakeConverter{}
			s := New(conv, Config{}, nil)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, tt.req(t))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeError(t, rec), tt.wantErr)
			assert.Empty(t, conv.requests)
		})
	}
}

func TestConvertErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"parse", domain.ParseError("not a pdf", nil), http.StatusBadRequest},
		{"validation", domain.ValidationError("page selection matches no pages", nil), http.StatusBadRequest},
		{"render", domain.RenderError("failed to render page 2", errors.New("boom")), http.StatusInternalServerError},
		{"serialization", domain.SerializationError("disk full", nil), http.StatusInternalServerError},
		{"plain", errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&fakeConverter{err: tt.err}, Config{}, nil)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, upload(t, "a.png", []byte("png"), nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.err.Error(), decodeError(t, rec))
		})
	}
}

func TestRateLimit(t *testing.T) {
	s := New(&fakeConverter{}, Config{RateLimit: 0.001, RateBurst: 1}, nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, upload(t, "a.png", []byte("x"), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, upload(t, "a.png", []byte("x"), nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", decodeError(t, rec))

	// Health is not limited.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConversionsRunOneAtATime(t *testing.T) {
	conv := &fakeConverter{block: make(chan struct{}), started: make(chan struct{}, 2)}
	h := New(conv, Config{}, nil).Handler()

	reqs := []*http.Request{
		upload(t, "a.png", []byte("x"), nil),
		upload(t, "b.png", []byte("y"), nil),
	}

	var wg sync.WaitGroup
	codes := make([]int, len(reqs))
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}()
	}

	<-conv.started
	select {
	case <-conv.started:
		t.Fatal("second conversion started while the first was running")
	case <-time.After(100 * time.Millisecond):
	}

	conv.block <- struct{}{}
	<-conv.started
	conv.block <- struct{}{}
	wg.Wait()

	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)
}
