package domain

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/spherical/pdf-slides/internal/geometry"
)

// Mode selects how text is recovered and presented on each slide.
type Mode string

const (
	// Native text layer only, drawn as invisible editable text.
	ModeNative Mode = "native"
	// OCR text, drawn as invisible editable text.
	ModeOCR Mode = "ocr"
	// Background image only.
	ModeImage Mode = "image"
	// OCR text drawn visibly over opaque cover rectangles.
	ModeOverlay Mode = "overlay"
	// OCR text drawn visibly over an inpainted background.
	ModeAIOverlay Mode = "ai-overlay"
)

// Modes lists every accepted mode in display order.
var Modes = []Mode{ModeNative, ModeOCR, ModeImage, ModeOverlay, ModeAIOverlay}

// ParseMode validates a user supplied mode name.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "ai" {
		return ModeAIOverlay, nil
	}
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", ValidationError(fmt.Sprintf("unknown mode %q", s), nil)
}

// NeedsOCR reports whether the mode recovers text through the recognizer.
func (m Mode) NeedsOCR() bool {
	return m == ModeOCR || m == ModeOverlay || m == ModeAIOverlay
}

// NeedsInpainter reports whether the mode removes text pixels from the background.
func (m Mode) NeedsInpainter() bool {
	return m == ModeAIOverlay
}

// CoversText reports whether opaque rectangles hide the original text pixels.
func (m Mode) CoversText() bool {
	return m == ModeOverlay
}

// TransparentText reports whether recovered text is kept editable but invisible.
func (m Mode) TransparentText() bool {
	return m == ModeNative || m == ModeOCR
}

// FragmentSource tags where a fragment came from.
type FragmentSource string

const (
	SourceNative FragmentSource = "pdf-native"
	SourceOCR    FragmentSource = "ocr"
)

// TextFragment is one atomic positioned text run.
type TextFragment struct {
	Text     string
	Box      geometry.Rect
	FontSize float64
	// Confidence is 0-100 and only meaningful for OCR fragments.
	Confidence float64
	Source     FragmentSource
}

// TextLine is a run of fragments judged to be one visual line.
type TextLine struct {
	Text     string
	Box      geometry.Rect
	FontSize float64
}

// LineSource records which path produced a page's lines.
type LineSource string

const (
	LineSourceNone   LineSource = "none"
	LineSourceNative LineSource = "native"
	LineSourceOCR    LineSource = "ocr"
)

// PageRecord is one source page moving through the pipeline.
type PageRecord struct {
	Index         int // 1-based
	Width         float64
	Height        float64
	Background    image.Image
	HasNativeText bool // from native fragments, which only native mode extracts
	Lines         []TextLine
	LineSource    LineSource

	resolved bool
}

// Space is the PDF-space of the page.
func (p *PageRecord) Space() geometry.Space {
	return geometry.PDF(p.Width, p.Height)
}

// Resolved reports whether the page's lines have been decided.
func (p *PageRecord) Resolved() bool {
	return p.resolved
}

// SetLines stores the page's lines. Lines are decided once per page.
func (p *PageRecord) SetLines(lines []TextLine, source LineSource) error {
	if p.resolved {
		return fmt.Errorf("page %d: lines already resolved", p.Index)
	}
	if lines == nil {
		lines = []TextLine{}
	}
	p.Lines = lines
	p.LineSource = source
	p.resolved = true
	return nil
}

// Align is a paragraph alignment.
type Align string

const (
	AlignLeft  Align = "l"
	AlignRight Align = "r"
)

// BoxKind distinguishes the shapes placed on a slide.
type BoxKind string

const (
	BoxCover BoxKind = "cover"
	BoxText  BoxKind = "text"
)

// TextBox is one positioned shape on a slide, in slide units (inches).
type TextBox struct {
	Kind        BoxKind
	X, Y, W, H  float64
	FontSize    float64
	Text        string
	FontFace    string
	Color       string // RRGGBB, text colour
	FillColor   string // RRGGBB, empty for no fill
	Transparent bool
	Align       Align

	// Anchor is the line's exact slide-space box before padding and floors.
	Anchor geometry.Rect
}

// SlideSpec is the complete description of one output slide.
type SlideSpec struct {
	PageIndex  int
	Width      float64
	Height     float64
	Background image.Image
	Boxes      []TextBox
}

// DeckInfo carries document-level metadata for the deck writer.
type DeckInfo struct {
	Title       string
	Author      string
	Subject     string
	SlideWidth  float64
	SlideHeight float64
}

// Deck is a serialized slide deck.
type Deck struct {
	FileName string
	Data     []byte
	Slides   int
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart          EventType = "start"
	EventPhase          EventType = "phase"
	EventPageProcessing EventType = "page_processing"
	EventPageComplete   EventType = "page_complete"
	EventWarning        EventType = "warning"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// Phase names the run-level stages announced through EventPhase.
type Phase string

const (
	PhaseModel     Phase = "model"
	PhaseOCRInit   Phase = "ocr-init"
	PhasePages     Phase = "pages"
	PhaseSerialize Phase = "serialize"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type       EventType   `json:"type"`
	PageNumber int         `json:"page_number,omitempty"`
	Current    int         `json:"current,omitempty"`
	Total      int         `json:"total,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// PageStats summarises how a page was processed.
type PageStats struct {
	Lines          int
	Source         LineSource
	TilesInpainted int
	TilesSkipped   int
	TilesFailed    int
}
