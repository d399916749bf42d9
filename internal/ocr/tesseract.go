// Package ocr recognises text in page rasters with the Tesseract CLI.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/geometry"
	"github.com/spherical/pdf-slides/internal/imaging"
	"github.com/spherical/pdf-slides/internal/observability"
)

// DefaultLanguage reads Traditional Chinese and English.
const DefaultLanguage = "chi_tra+eng"

// Config configures the Tesseract binary.
type Config struct {
	Binary      string        `yaml:"binary"`
	Language    string        `yaml:"language"`
	ExtraArgs   string        `yaml:"extra_args"` // shell-quoted, e.g. "--psm 6"
	PageTimeout time.Duration `yaml:"page_timeout"`
}

// Runner executes a command and returns its stdout. Tests replace it.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, msg)
		}
		return nil, fmt.Errorf("%s: %w", filepath.Base(name), err)
	}
	return out, nil
}

// Tesseract drives the tesseract CLI.
type Tesseract struct {
	cfg      Config
	lookPath func(string) (string, error)
	run      Runner
	logger   *observability.Logger

	binary string
	lang   string
	extra  []string
	tmpDir string
}

// New creates an uninitialised Tesseract recognizer.
func New(cfg Config, logger *observability.Logger) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Tesseract{
		cfg:      cfg,
		lookPath: exec.LookPath,
		run:      execRunner,
		logger:   logger.WithComponent("ocr"),
	}
}

// WithRunner overrides process execution and binary lookup.
func (t *Tesseract) WithRunner(run Runner, lookPath func(string) (string, error)) *Tesseract {
	t.run = run
	t.lookPath = lookPath
	return t
}

// Init locates the binary and checks every requested language pack is
// installed. lang overrides the configured language when non-empty.
func (t *Tesseract) Init(ctx context.Context, lang string) error {
	if lang == "" {
		lang = t.cfg.Language
	}
	if lang == "" {
		lang = DefaultLanguage
	}

	bin, err := t.lookPath(t.cfg.Binary)
	if err != nil {
		return domain.RecognizerInitError("tesseract is not installed or not on PATH", err)
	}

	extra, err := shlex.Split(t.cfg.ExtraArgs)
	if err != nil {
		return domain.RecognizerInitError(fmt.Sprintf("invalid extra args %q", t.cfg.ExtraArgs), err)
	}

	out, err := t.run(ctx, bin, "--list-langs")
	if err != nil {
		return domain.RecognizerInitError("tesseract --list-langs failed", err)
	}
	installed := parseLangs(string(out))
	for _, l := range strings.Split(lang, "+") {
		if !installed[l] {
			return domain.RecognizerInitError(fmt.Sprintf("tesseract language %q is not installed", l), nil)
		}
	}

	dir, err := os.MkdirTemp("", "pdf-slides-ocr-*")
	if err != nil {
		return domain.RecognizerInitError("failed to create temp directory", err)
	}

	t.binary = bin
	t.lang = lang
	t.extra = extra
	t.tmpDir = dir

	t.logger.Info().Str("binary", bin).Str("lang", lang).Msg("tesseract ready")
	return nil
}

// Language returns the language Init settled on.
func (t *Tesseract) Language() string {
	return t.lang
}

func parseLangs(out string) map[string]bool {
	langs := map[string]bool{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") {
			continue
		}
		langs[line] = true
	}
	return langs
}

// Recognize runs tesseract on img and returns its lines in img's pixel space.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (*domain.Recognition, error) {
	if t.binary == "" {
		return nil, fmt.Errorf("tesseract not initialised")
	}

	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(t.tmpDir, "page-*.png")
	if err != nil {
		return nil, fmt.Errorf("create temp file for OCR: %w", err)
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write temp file for OCR: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close temp file for OCR: %w", err)
	}

	if t.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.PageTimeout)
		defer cancel()
	}

	args := append([]string{path, "stdout", "-l", t.lang}, t.extra...)
	args = append(args, "tsv")

	start := time.Now()
	out, err := t.run(ctx, t.binary, args...)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	result, err := ParseTSV(bytes.NewReader(out), geometry.OCR(b.Dx(), b.Dy()))
	if err != nil {
		return nil, err
	}

	t.logger.Debug().Int("lines", len(result.Lines)).Dur("took", time.Since(start)).Msg("page recognised")
	return result, nil
}

// Close removes the scratch directory.
func (t *Tesseract) Close() error {
	if t.tmpDir == "" {
		return nil
	}
	err := os.RemoveAll(t.tmpDir)
	t.tmpDir = ""
	t.binary = ""
	return err
}
