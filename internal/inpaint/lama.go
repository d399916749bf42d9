// Package inpaint removes masked text from page tiles with the LaMa ONNX
// model and manages obtaining that model.
package inpaint

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/observability"
)

// DefaultTileSize is LaMa's fixed input edge.
const DefaultTileSize = 512

const (
	inputImage  = "image"
	inputMask   = "mask"
	outputImage = "output"
)

var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 && !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	envRefs--
	if envRefs > 0 || !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// LamaInpainter runs the LaMa model on square tiles. Calls to Infer must be
// serialised by the caller.
type LamaInpainter struct {
	size    int
	session *ort.AdvancedSession
	image   *ort.Tensor[float32]
	mask    *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	logger  *observability.Logger
	closed  bool
}

// NewLama builds a session from model bytes. libraryPath points at the
// onnxruntime shared library; empty uses the platform default.
func NewLama(model []byte, libraryPath string, logger *observability.Logger) (*LamaInpainter, error) {
	if len(model) == 0 {
		return nil, domain.ModelDownloadError("empty model data", nil)
	}
	if logger == nil {
		logger = observability.Nop()
	}
	if err := acquireEnvironment(libraryPath); err != nil {
		return nil, err
	}

	l := &LamaInpainter{size: DefaultTileSize, logger: logger.WithComponent("inpaint")}
	if err := l.build(model); err != nil {
		l.destroyTensors()
		_ = releaseEnvironment()
		return nil, err
	}

	l.logger.Info().Int("tile_size", l.size).Int("model_bytes", len(model)).Msg("inpainting model loaded")
	return l, nil
}

func (l *LamaInpainter) build(model []byte) error {
	n := int64(l.size)
	var err error

	if l.image, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, n, n)); err != nil {
		return fmt.Errorf("allocate image tensor: %w", err)
	}
	if l.mask, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, n, n)); err != nil {
		return fmt.Errorf("allocate mask tensor: %w", err)
	}
	if l.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, n, n)); err != nil {
		return fmt.Errorf("allocate output tensor: %w", err)
	}

	l.session, err = ort.NewAdvancedSessionWithONNXData(model,
		[]string{inputImage, inputMask}, []string{outputImage},
		[]ort.Value{l.image, l.mask}, []ort.Value{l.output}, nil)
	if err != nil {
		return fmt.Errorf("create onnx session: %w", err)
	}
	return nil
}

// TileSize returns the square edge the model expects.
func (l *LamaInpainter) TileSize() int {
	return l.size
}

// Infer fills the masked pixels of tile.
func (l *LamaInpainter) Infer(ctx context.Context, tile *image.RGBA, mask *image.Gray) (*image.RGBA, error) {
	if l.closed {
		return nil, fmt.Errorf("inpainter closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkTile(l.size, tile, mask); err != nil {
		return nil, err
	}

	imageToCHW(tile, l.image.GetData())
	maskToPlane(mask, l.mask.GetData())

	if err := l.session.Run(); err != nil {
		return nil, fmt.Errorf("run lama: %w", err)
	}

	return chwToImage(l.output.GetData(), l.size, l.size), nil
}

func checkTile(size int, tile *image.RGBA, mask *image.Gray) error {
	tb, mb := tile.Bounds(), mask.Bounds()
	if tb.Dx() != size || tb.Dy() != size {
		return fmt.Errorf("tile is %dx%d, model expects %dx%d", tb.Dx(), tb.Dy(), size, size)
	}
	if mb.Dx() != size || mb.Dy() != size {
		return fmt.Errorf("mask is %dx%d, model expects %dx%d", mb.Dx(), mb.Dy(), size, size)
	}
	return nil
}

// Close releases the session and, for the last user, the runtime.
func (l *LamaInpainter) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	var err error
	if l.session != nil {
		err = l.session.Destroy()
	}
	l.destroyTensors()
	if relErr := releaseEnvironment(); err == nil {
		err = relErr
	}
	return err
}

func (l *LamaInpainter) destroyTensors() {
	for _, t := range []*ort.Tensor[float32]{l.image, l.mask, l.output} {
		if t != nil {
			_ = t.Destroy()
		}
	}
}
