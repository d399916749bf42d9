// Package config provides unified configuration loading for pdf-slides.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spherical/pdf-slides/internal/cache"
	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/inpaint"
	"github.com/spherical/pdf-slides/internal/layout"
	"github.com/spherical/pdf-slides/internal/modelstore"
	"github.com/spherical/pdf-slides/internal/observability"
	"github.com/spherical/pdf-slides/internal/ocr"
	"github.com/spherical/pdf-slides/internal/pdf"
	"github.com/spherical/pdf-slides/internal/pipeline"
	"github.com/spherical/pdf-slides/internal/pptx"
	"github.com/spherical/pdf-slides/internal/removal"
	"github.com/spherical/pdf-slides/internal/textsource"
)

// Config holds all configuration for pdf-slides.
type Config struct {
	Render  RenderConfig  `yaml:"render"`
	Slide   SlideConfig   `yaml:"slide"`
	Layout  LayoutConfig  `yaml:"layout"`
	OCR     OCRConfig     `yaml:"ocr"`
	Inpaint InpaintConfig `yaml:"inpaint"`
	Cache   cache.Config  `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

// RenderConfig holds rasterisation settings. Scales are multiples of 72 DPI.
type RenderConfig struct {
	Scale       float64 `yaml:"scale"`
	OCRScale    float64 `yaml:"ocr_scale"`
	JPEGQuality int     `yaml:"jpeg_quality"`
}

// SlideConfig holds the output slide size. A non-empty preset wins over
// width and height.
type SlideConfig struct {
	Preset   string  `yaml:"preset"` // 16:9 or wide
	Width    float64 `yaml:"width"`
	Height   float64 `yaml:"height"`
	Language string  `yaml:"language"`
}

// Slide size presets in inches.
var SlidePresets = map[string][2]float64{
	"16:9": {10, 5.625},
	"wide": {13.333, 7.5},
}

// LayoutConfig holds line grouping and shape placement settings.
type LayoutConfig struct {
	layout.Config `yaml:",inline"`

	LineThresholdRatio float64 `yaml:"line_threshold_ratio"`
}

// OCRConfig holds recognizer settings.
type OCRConfig struct {
	ocr.Config `yaml:",inline"`

	MinConfidence float64 `yaml:"min_confidence"`
}

// InpaintConfig holds text removal and model settings.
type InpaintConfig struct {
	removal.Config `yaml:",inline"`

	PrimaryURL      string              `yaml:"primary_url"`
	BackupURL       string              `yaml:"backup_url"`
	LibraryPath     string              `yaml:"library_path"` // onnxruntime shared library
	Store           modelstore.Config   `yaml:"store"`
	Retry           inpaint.RetryConfig `yaml:"retry"`
	DownloadTimeout time.Duration       `yaml:"download_timeout"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	RateLimit        float64       `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst        int           `yaml:"rate_burst"`
	MaxUploadMB      int64         `yaml:"max_upload_mb"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError("read config file", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}

		if cfg.Inpaint.Store.Dir != "" {
			cfg.Inpaint.Store.Dir = ResolveRelativePath(path, cfg.Inpaint.Store.Dir)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, domain.ConfigError("validate config", err)
	}

	return cfg, nil
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		Render: RenderConfig{
			Scale:       2.0,
			OCRScale:    1.5,
			JPEGQuality: 90,
		},
		Slide: SlideConfig{
			Width:    SlidePresets["wide"][0],
			Height:   SlidePresets["wide"][1],
			Language: "zh-TW",
		},
		Layout: LayoutConfig{
			Config:             layout.DefaultConfig(),
			LineThresholdRatio: layout.DefaultLineThresholdRatio,
		},
		OCR: OCRConfig{
			Config: ocr.Config{
				Binary:      "tesseract",
				Language:    ocr.DefaultLanguage,
				PageTimeout: 2 * time.Minute,
			},
			MinConfidence: textsource.DefaultMinConfidence,
		},
		Inpaint: InpaintConfig{
			Config:     removal.DefaultConfig(),
			PrimaryURL: inpaint.DefaultPrimaryURL,
			BackupURL:  inpaint.DefaultBackupURL,
			Store: modelstore.Config{
				Driver: "dir",
				Dir:    modelstore.DefaultDir(),
			},
			Retry:           inpaint.DefaultRetryConfig(),
			DownloadTimeout: 10 * time.Minute,
		},
		Cache: cache.Config{
			Driver:   "memory",
			TTL:      24 * time.Hour,
			MaxItems: 512,
			Redis: cache.RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 4,
				Prefix:   "pdf-slides:",
			},
		},
		Server: ServerConfig{
			Addr:             ":8080",
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     10 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
			RateLimit:        1,
			RateBurst:        2,
			MaxUploadMB:      100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Render.Scale <= 0 || c.Render.OCRScale <= 0 {
		return fmt.Errorf("render scales must be positive")
	}
	if err := pdf.NewValidator(nil).ValidateQuality(c.Render.JPEGQuality); err != nil {
		return fmt.Errorf("render.jpeg_quality: %w", err)
	}

	if c.Slide.Preset != "" {
		if _, ok := SlidePresets[c.Slide.Preset]; !ok {
			return fmt.Errorf("unknown slide preset: %s", c.Slide.Preset)
		}
	}
	if w, h := c.SlideSize(); w <= 0 || h <= 0 {
		return fmt.Errorf("invalid slide size: %gx%g", w, h)
	}

	if c.Layout.LineThresholdRatio <= 0 || c.Layout.LineThresholdRatio >= 1 {
		return fmt.Errorf("line_threshold_ratio must be in (0, 1)")
	}
	if c.Layout.MinFont <= 0 || c.Layout.MinFont > c.Layout.MaxFont {
		return fmt.Errorf("font bounds invalid: min %g, max %g", c.Layout.MinFont, c.Layout.MaxFont)
	}

	if c.OCR.MinConfidence < 0 || c.OCR.MinConfidence >= 100 {
		return fmt.Errorf("min_confidence must be between 0 and 100")
	}

	if c.Inpaint.TileSize <= 0 {
		return fmt.Errorf("tile_size must be positive")
	}
	if c.Inpaint.Overlap < 0 || c.Inpaint.Overlap >= c.Inpaint.TileSize {
		return fmt.Errorf("overlap must be in [0, tile_size)")
	}
	if c.Inpaint.Padding < 0 {
		return fmt.Errorf("mask_padding must not be negative")
	}
	if c.Inpaint.Store.Driver != "dir" && c.Inpaint.Store.Driver != "sqlite" {
		return fmt.Errorf("invalid model store driver: %s", c.Inpaint.Store.Driver)
	}

	switch c.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}

	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// SlideSize returns the slide width and height in inches.
func (c *Config) SlideSize() (float64, float64) {
	if p, ok := SlidePresets[c.Slide.Preset]; ok {
		return p[0], p[1]
	}
	return c.Slide.Width, c.Slide.Height
}

// Pipeline returns the conversion settings.
func (c *Config) Pipeline() pipeline.Config {
	w, h := c.SlideSize()
	minConfidence := c.OCR.MinConfidence
	return pipeline.Config{
		RenderScale: c.Render.Scale,
		OCRScale:    c.Render.OCRScale,
		SlideWidth:  w,
		SlideHeight: h,
		Layout:      c.Layout.Config,
		TextSource: textsource.Config{
			MinConfidence:      &minConfidence,
			LineThresholdRatio: c.Layout.LineThresholdRatio,
		},
		Removal: c.Inpaint.Config,
	}
}

// Deck returns the deck writer options.
func (c *Config) Deck() pptx.Options {
	return pptx.Options{
		JPEGQuality: c.Render.JPEGQuality,
		Language:    c.Slide.Language,
		ThemeFont:   c.Layout.FontFace,
	}
}

// Logger returns the logger settings.
func (c *Config) Logger() observability.LogConfig {
	return observability.LogConfig{
		Level:       c.Log.Level,
		Format:      c.Log.Format,
		ServiceName: "pdf-slides",
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PDFSLIDES_RENDER_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Render.Scale = f
		}
	}

	if v := os.Getenv("PDFSLIDES_SLIDE_PRESET"); v != "" {
		cfg.Slide.Preset = v
	}

	if v := os.Getenv("PDFSLIDES_FONT_FACE"); v != "" {
		cfg.Layout.FontFace = v
	}

	if v := os.Getenv("PDFSLIDES_TESSERACT"); v != "" {
		cfg.OCR.Binary = v
	}

	if v := os.Getenv("PDFSLIDES_OCR_LANG"); v != "" {
		cfg.OCR.Language = v
	}

	if v := os.Getenv("PDFSLIDES_OCR_ARGS"); v != "" {
		cfg.OCR.ExtraArgs = v
	}

	if v := os.Getenv("PDFSLIDES_MODEL_URL"); v != "" {
		cfg.Inpaint.PrimaryURL = v
	}

	if v := os.Getenv("PDFSLIDES_ONNXRUNTIME_LIB"); v != "" {
		cfg.Inpaint.LibraryPath = v
	}

	if v := os.Getenv("PDFSLIDES_MODEL_STORE"); v != "" {
		// sqlite:/path or dir:/path
		driver, dir, ok := strings.Cut(v, ":")
		if ok && (driver == "sqlite" || driver == "dir") {
			cfg.Inpaint.Store.Driver = driver
			cfg.Inpaint.Store.Dir = dir
		} else {
			cfg.Inpaint.Store.Dir = v
		}
	}

	if v := os.Getenv("PDFSLIDES_CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("PDFSLIDES_ADDR"); v != "" {
		cfg.Server.Addr = v
	}

	if v := os.Getenv("PDFSLIDES_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = f
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
