package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/observability"
)

// Extensions accepted as single-page image documents.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// IsImagePath reports whether path names a supported image file.
func IsImagePath(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Validator provides input validation for source documents
type Validator struct {
	logger *observability.Logger
}

// NewValidator creates a new validator instance
func NewValidator(logger *observability.Logger) *Validator {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Validator{logger: logger.WithComponent("validator")}
}

// ValidatePath validates that a file path is valid and points to a PDF or
// a supported image
func (v *Validator) ValidatePath(path string) error {
	// Check if path is empty
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	// Check if file exists
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	// Check if it's a directory
	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	// Check file extension
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" && !imageExtensions[ext] {
		return domain.ValidationError(fmt.Sprintf("unsupported file type %q (want .pdf or an image)", ext), nil)
	}

	// Check file size (warn if very large, but don't reject)
	const maxSize = 100 * 1024 * 1024 // 100MB
	if info.Size() > maxSize {
		v.logger.Warn().Int("size_mb", int(info.Size()/(1024*1024))).Msg("input is very large, processing may take a while")
	}

	// Check if file is readable
	file, err := os.Open(path)
	if err != nil {
		return domain.ValidationError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	file.Close()

	return nil
}

// PageCount parses the document structure and returns its page count. A
// document pdfcpu cannot read is a parse failure.
func (v *Validator) PageCount(path string) (int, error) {
	if IsImagePath(path) {
		return 1, nil
	}

	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, domain.ParseError(fmt.Sprintf("cannot parse %s", filepath.Base(path)), err)
	}
	if n == 0 {
		return 0, domain.ParseError("document has no pages", nil)
	}
	return n, nil
}

// ValidateQuality checks a JPEG quality used for slide backgrounds.
func (v *Validator) ValidateQuality(quality int) error {
	if quality < 1 || quality > 100 {
		return domain.ValidationError(fmt.Sprintf("JPEG quality %d outside 1..100", quality), nil)
	}
	return nil
}
