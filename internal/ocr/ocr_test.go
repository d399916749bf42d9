package ocr

import (
	"context"
	"errors"
	"image"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf-slides/internal/cache"
	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/geometry"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t400\t300\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t10\t20\t120\t18\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t20\t50\t18\t90\tHello\n" +
	"5\t1\t1\t1\t1\t2\t70\t22\t60\t16\t80\tworld\n" +
	"5\t1\t1\t1\t2\t1\t10\t50\t40\t15\t20\tlow\n" +
	"5\t1\t1\t1\t2\t2\t55\t50\t10\t15\t-1\t \n" +
	"5\t1\t2\t1\t1\t1\t10\t100\t30\t12\t-1\tx\n"

func TestParseTSV(t *testing.T) {
	space := geometry.OCR(400, 300)
	rec, err := ParseTSV(strings.NewReader(sampleTSV), space)
	require.NoError(t, err)
	require.Len(t, rec.Lines, 3)

	first := rec.Lines[0]
	assert.Equal(t, "Hello world", first.Text)
	assert.InDelta(t, 85, first.Confidence, 1e-9)
	assert.Equal(t, geometry.NewRect(space, 10, 20, 120, 18), first.Box)

	assert.Equal(t, "low", rec.Lines[1].Text)
	assert.InDelta(t, 20, rec.Lines[1].Confidence, 1e-9)

	// Only unknown confidences.
	assert.Equal(t, "x", rec.Lines[2].Text)
	assert.Zero(t, rec.Lines[2].Confidence)

	assert.Equal(t, "Hello world\nlow\nx", rec.FullText)
}

func TestParseTSVEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		lines   int
		wantErr bool
	}{
		{name: "empty", input: "", lines: 0},
		{name: "header only", input: "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n", lines: 0},
		{name: "trailing text column missing", input: "5\t1\t1\t1\t1\t1\t0\t0\t1\t1\t-1\n", lines: 0},
		{name: "short row", input: "5\t1\t1\n", wantErr: true},
		{name: "bad number", input: "5\t1\tX\t1\t1\t1\t0\t0\t1\t1\t50\tword\n", wantErr: true},
		{name: "bad confidence", input: "5\t1\t1\t1\t1\t1\t0\t0\t1\t1\tnope\tword\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseTSV(strings.NewReader(tt.input), geometry.OCR(10, 10))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, rec.Lines, tt.lines)
			assert.NotNil(t, rec.Lines)
		})
	}
}

type fakeExec struct {
	langs   string
	tsv     string
	runErr  error
	lastArg []string
}

func (f *fakeExec) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.lastArg = args
	if len(args) == 1 && args[0] == "--list-langs" {
		return []byte(f.langs), nil
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	if _, err := os.Stat(args[0]); err != nil {
		return nil, err
	}
	return []byte(f.tsv), nil
}

func found(string) (string, error) { return "/usr/bin/tesseract", nil }

func TestTesseractInit(t *testing.T) {
	langs := "List of available languages in \"/usr/share/tessdata/\" (3):\neng\nchi_tra\nosd\n"

	tests := []struct {
		name     string
		cfg      Config
		lang     string
		lookPath func(string) (string, error)
		wantErr  bool
	}{
		{name: "default language", lookPath: found},
		{name: "explicit language", lang: "eng", lookPath: found},
		{name: "missing language", lang: "eng+jpn", lookPath: found, wantErr: true},
		{name: "binary missing", lookPath: func(string) (string, error) { return "", errors.New("not found") }, wantErr: true},
		{name: "bad extra args", cfg: Config{ExtraArgs: `--psm "6`}, lookPath: found, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := &fakeExec{langs: langs}
			tess := New(tt.cfg, nil).WithRunner(fx.run, tt.lookPath)
			defer tess.Close()

			err := tess.Init(context.Background(), tt.lang)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsType(err, domain.ErrorTypeRecognizerInit))
				return
			}
			require.NoError(t, err)
			if tt.lang != "" {
				assert.Equal(t, tt.lang, tess.Language())
			} else {
				assert.Equal(t, DefaultLanguage, tess.Language())
			}
		})
	}
}

func TestTesseractRecognize(t *testing.T) {
	fx := &fakeExec{langs: "eng\n", tsv: sampleTSV}
	tess := New(Config{Language: "eng", ExtraArgs: "--psm 6"}, nil).WithRunner(fx.run, found)
	require.NoError(t, tess.Init(context.Background(), ""))
	defer tess.Close()

	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	rec, err := tess.Recognize(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, rec.Lines, 3)
	assert.Equal(t, geometry.OCR(400, 300), rec.Lines[0].Box.Space)

	require.Len(t, fx.lastArg, 7)
	assert.Equal(t, []string{"stdout", "-l", "eng", "--psm", "6", "tsv"}, fx.lastArg[1:])

	// Temp image removed after the run.
	_, err = os.Stat(fx.lastArg[0])
	assert.True(t, os.IsNotExist(err))
}

func TestTesseractRecognizeErrors(t *testing.T) {
	tess := New(Config{}, nil)
	_, err := tess.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.Error(t, err, "recognize before init")

	fx := &fakeExec{langs: "eng\n", runErr: errors.New("segfault")}
	tess = New(Config{Language: "eng"}, nil).WithRunner(fx.run, found)
	require.NoError(t, tess.Init(context.Background(), ""))
	defer tess.Close()

	_, err = tess.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	assert.ErrorContains(t, err, "segfault")
}

type countingEngine struct {
	calls atomic.Int32
	err   error
}

func (e *countingEngine) Init(context.Context, string) error { return nil }
func (e *countingEngine) Close() error                       { return nil }
func (e *countingEngine) Language() string                   { return "eng" }

func (e *countingEngine) Recognize(_ context.Context, img image.Image) (*domain.Recognition, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	b := img.Bounds()
	space := geometry.OCR(b.Dx(), b.Dy())
	return &domain.Recognition{
		Lines:    []domain.RecognizedLine{{Text: "cached", Box: geometry.NewRect(space, 1, 2, 3, 4), Confidence: 77}},
		FullText: "cached",
	}, nil
}

func TestCachedRecognizer(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryClient(10)
	defer mem.Close()

	eng := &countingEngine{}
	rec := NewCached(eng, mem, time.Hour, nil)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	first, err := rec.Recognize(ctx, img)
	require.NoError(t, err)
	second, err := rec.Recognize(ctx, img)
	require.NoError(t, err)

	assert.Equal(t, int32(1), eng.calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, mem.Len())

	other := image.NewRGBA(image.Rect(0, 0, 9, 9))
	_, err = rec.Recognize(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, int32(2), eng.calls.Load())
}

func TestCachedRecognizerPassThrough(t *testing.T) {
	eng := &countingEngine{}
	assert.Same(t, eng, NewCached(eng, nil, 0, nil))

	mem := cache.NewMemoryClient(10)
	defer mem.Close()
	eng.err = errors.New("boom")
	rec := NewCached(eng, mem, 0, nil)
	_, err := rec.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
	assert.Error(t, err)
	assert.Zero(t, mem.Len(), "errors are not cached")
}

func TestPurgeCache(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryClient(10)
	defer mem.Close()

	rec := NewCached(&countingEngine{}, mem, time.Hour, nil)
	_, err := rec.Recognize(ctx, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, "model:lama", []byte("x"), time.Hour))
	require.Equal(t, 2, mem.Len())

	require.NoError(t, PurgeCache(ctx, mem))
	assert.Equal(t, 1, mem.Len())
	_, err = mem.Get(ctx, "model:lama")
	assert.NoError(t, err)

	assert.NoError(t, PurgeCache(ctx, nil))
}
