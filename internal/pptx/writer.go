// Package pptx writes PresentationML decks: one background picture per
// slide with editable text boxes laid over it.
package pptx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/imaging"
)

// Deck metadata defaults.
const (
	DefaultAuthor  = "PDF to PPTX Converter"
	DefaultSubject = "Converted from PDF"
	DefaultTitle   = "Converted Presentation"
)

// ContentType is the MIME type of a serialized deck.
const ContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

// Options tune serialization.
type Options struct {
	JPEGQuality int    `yaml:"jpeg_quality"`
	Language    string `yaml:"language"` // run language tag, e.g. zh-TW
	ThemeFont   string `yaml:"theme_font"`
}

// DefaultOptions matches the background quality of the browser exporter.
func DefaultOptions() Options {
	return Options{JPEGQuality: 90, Language: "zh-TW", ThemeFont: "Microsoft JhengHei"}
}

type slidePart struct {
	xml   string
	rels  string
	media []byte
	name  string
}

// Writer accumulates slides in order and serializes them as a .pptx.
type Writer struct {
	info    domain.DeckInfo
	opts    Options
	slides  []slidePart
	created time.Time
}

// New creates a writer for a deck of the given slide size in inches.
func New(info domain.DeckInfo, opts Options) (*Writer, error) {
	if info.SlideWidth <= 0 || info.SlideHeight <= 0 {
		return nil, domain.ValidationError(fmt.Sprintf("invalid slide size %gx%g", info.SlideWidth, info.SlideHeight), nil)
	}
	if info.Author == "" {
		info.Author = DefaultAuthor
	}
	if info.Subject == "" {
		info.Subject = DefaultSubject
	}
	if info.Title == "" {
		info.Title = DefaultTitle
	}
	def := DefaultOptions()
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = def.JPEGQuality
	}
	if opts.Language == "" {
		opts.Language = def.Language
	}
	if opts.ThemeFont == "" {
		opts.ThemeFont = def.ThemeFont
	}
	return &Writer{info: info, opts: opts, created: time.Now()}, nil
}

// Len returns the number of slides added so far.
func (w *Writer) Len() int {
	return len(w.slides)
}

// AddSlide appends a slide. Its size must match the deck's.
func (w *Writer) AddSlide(spec domain.SlideSpec) error {
	if math.Abs(spec.Width-w.info.SlideWidth) > 1e-6 || math.Abs(spec.Height-w.info.SlideHeight) > 1e-6 {
		return domain.SerializationError(fmt.Sprintf("slide %d is %gx%g, deck is %gx%g",
			len(w.slides)+1, spec.Width, spec.Height, w.info.SlideWidth, w.info.SlideHeight), nil)
	}

	n := len(w.slides) + 1
	part := slidePart{}

	imageRel := ""
	if spec.Background != nil {
		data, err := imaging.EncodeJPEG(spec.Background, w.opts.JPEGQuality)
		if err != nil {
			return domain.SerializationError(fmt.Sprintf("failed to encode background of slide %d", n), err)
		}
		imageRel = "rId2"
		part.media = data
		part.name = fmt.Sprintf("image%d.jpeg", n)
	}

	part.xml = slideXML(spec, imageRel, w.opts.Language)
	part.rels = slideRelsXML(imageRel, "../media/"+part.name)
	w.slides = append(w.slides, part)
	return nil
}

// Serialize writes the deck archive.
func (w *Writer) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	add := func(name string, data []byte, method uint16) error {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: w.created})
		if err != nil {
			return err
		}
		_, err = fw.Write(data)
		return err
	}
	addXML := func(name, body string) error {
		return add(name, []byte(body), zip.Deflate)
	}

	n := len(w.slides)
	cx, cy := EMU(w.info.SlideWidth), EMU(w.info.SlideHeight)

	parts := []struct{ name, body string }{
		{"[Content_Types].xml", contentTypesXML(n)},
		{"_rels/.rels", rootRelsXML()},
		{"docProps/core.xml", coreXML(w.info.Title, w.info.Author, w.info.Subject, w.created)},
		{"docProps/app.xml", appXML(n)},
		{"ppt/presentation.xml", presentationXML(n, cx, cy)},
		{"ppt/_rels/presentation.xml.rels", presentationRelsXML(n)},
		{"ppt/slideMasters/slideMaster1.xml", slideMasterXML()},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", slideMasterRelsXML()},
		{"ppt/slideLayouts/slideLayout1.xml", slideLayoutXML()},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", slideLayoutRelsXML()},
		{"ppt/theme/theme1.xml", themeXML(w.opts.ThemeFont)},
		{"ppt/presProps.xml", presPropsXML()},
		{"ppt/viewProps.xml", viewPropsXML()},
		{"ppt/tableStyles.xml", tableStylesXML()},
	}
	for _, p := range parts {
		if err := addXML(p.name, p.body); err != nil {
			return nil, domain.SerializationError("failed to write "+p.name, err)
		}
	}

	for i, s := range w.slides {
		name := fmt.Sprintf("ppt/slides/slide%d.xml", i+1)
		if err := addXML(name, s.xml); err != nil {
			return nil, domain.SerializationError("failed to write "+name, err)
		}
		rels := fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i+1)
		if err := addXML(rels, s.rels); err != nil {
			return nil, domain.SerializationError("failed to write "+rels, err)
		}
		if s.media != nil {
			// JPEG does not deflate further.
			if err := add("ppt/media/"+s.name, s.media, zip.Store); err != nil {
				return nil, domain.SerializationError("failed to write "+s.name, err)
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, domain.SerializationError("failed to finish deck archive", err)
	}
	return buf.Bytes(), nil
}
