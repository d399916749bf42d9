package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"

	// Fatal: the document cannot be read at all.
	ErrorTypeParse ErrorType = "parse"

	// The OCR engine could not be started. Degrades the run to image mode.
	ErrorTypeRecognizerInit ErrorType = "recognizer_init"

	// Recognition failed for one page. That page keeps no lines.
	ErrorTypePageRecognition ErrorType = "page_recognition"

	// Inference failed for one tile. The tile keeps its original pixels.
	ErrorTypeTileInference ErrorType = "tile_inference"

	// No model source could be fetched. Degrades AI mode to overlay.
	ErrorTypeModelDownload ErrorType = "model_download"

	// Fatal: the deck could not be written.
	ErrorTypeSerialization ErrorType = "serialization"

	ErrorTypeRender ErrorType = "render"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error aborts a whole run.
func (e *DomainError) Fatal() bool {
	switch e.Type {
	case ErrorTypeParse, ErrorTypeSerialization, ErrorTypeRender, ErrorTypeValidation, ErrorTypeIO, ErrorTypeConfig:
		return true
	}
	return false
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether err wraps a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type == errType
	}
	return false
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func ParseError(message string, err error) *DomainError {
	return NewError(ErrorTypeParse, message, err)
}

func RecognizerInitError(message string, err error) *DomainError {
	return NewError(ErrorTypeRecognizerInit, message, err)
}

func PageRecognitionError(message string, err error) *DomainError {
	return NewError(ErrorTypePageRecognition, message, err)
}

func TileInferenceError(message string, err error) *DomainError {
	return NewError(ErrorTypeTileInference, message, err)
}

func ModelDownloadError(message string, err error) *DomainError {
	return NewError(ErrorTypeModelDownload, message, err)
}

func SerializationError(message string, err error) *DomainError {
	return NewError(ErrorTypeSerialization, message, err)
}

func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, err)
}
