package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"image"
	"time"

	"github.com/spherical/pdf-slides/internal/cache"
	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/imaging"
	"github.com/spherical/pdf-slides/internal/observability"
)

// cacheNamespace prefixes every recognition key.
const cacheNamespace = "ocr"

// Engine is a recognizer that also knows the language it was initialised with.
type Engine interface {
	domain.Recognizer
	Language() string
}

// CachedRecognizer memoises recognition results keyed by the PNG digest of
// the page raster and the OCR language.
type CachedRecognizer struct {
	Engine
	cache  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCached wraps engine. A nil cache returns engine unchanged.
func NewCached(engine Engine, c cache.Client, ttl time.Duration, logger *observability.Logger) domain.Recognizer {
	if c == nil {
		return engine
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &CachedRecognizer{
		Engine: engine,
		cache:  c,
		ttl:    ttl,
		logger: logger.WithComponent("ocr-cache"),
	}
}

// Recognize returns the cached recognition for img, running the engine on a miss.
// Cache failures are logged and never fail the page.
func (c *CachedRecognizer) Recognize(ctx context.Context, img image.Image) (*domain.Recognition, error) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return c.Engine.Recognize(ctx, img)
	}
	sum := sha256.Sum256(data)
	key := cache.CacheKey(cacheNamespace, c.Language(), hex.EncodeToString(sum[:]))

	if raw, err := c.cache.Get(ctx, key); err == nil {
		var rec domain.Recognition
		if err := json.Unmarshal(raw, &rec); err == nil {
			c.logger.Debug().Str("key", key).Msg("ocr cache hit")
			return &rec, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Msg("ocr cache read failed")
	}

	rec, err := c.Engine.Recognize(ctx, img)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(rec); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("ocr cache write failed")
		}
	}
	return rec, nil
}

// PurgeCache drops every cached recognition from c, leaving other keys alone.
func PurgeCache(ctx context.Context, c cache.Client) error {
	if c == nil {
		return nil
	}
	return c.DeleteByPrefix(ctx, cacheNamespace+":")
}
