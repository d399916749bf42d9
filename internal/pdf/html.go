package pdf

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/geometry"
)

// Width of a run whose extent is unknown, per character, as a share of its
// font size.
const charWidthRatio = 0.6

var cssLength = regexp.MustCompile(`([a-z-]+)\s*:\s*(-?[0-9.]+)pt`)

// styleLengths extracts every "name:<n>pt" declaration of a style attribute.
func styleLengths(style string) map[string]float64 {
	out := map[string]float64{}
	for _, m := range cssLength.FindAllStringSubmatch(style, -1) {
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			out[m[1]] = v
		}
	}
	return out
}

// ParseStructuredHTML reads the positioned HTML MuPDF emits for one page.
// Each <p> is one line of text placed with absolute top/left offsets in
// points; its spans carry font sizes. The page <div> carries the page size,
// which overrides the given space when present.
func ParseStructuredHTML(html string, space geometry.Space) ([]domain.TextFragment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	if page := doc.Find("div[id^=page]").First(); page.Length() > 0 {
		style, _ := page.Attr("style")
		dims := styleLengths(style)
		if w, h := dims["width"], dims["height"]; w > 0 && h > 0 {
			space = geometry.PDF(w, h)
		}
	}

	var frags []domain.TextFragment
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(strings.Join(strings.Fields(p.Text()), " "))
		if text == "" {
			return
		}

		style, _ := p.Attr("style")
		pos := styleLengths(style)
		top, hasTop := pos["top"]
		left, hasLeft := pos["left"]
		if !hasTop || !hasLeft {
			return
		}

		var size float64
		p.Find("span").Each(func(_ int, s *goquery.Selection) {
			st, _ := s.Attr("style")
			if fs := styleLengths(st)["font-size"]; fs > size {
				size = fs
			}
		})
		if size <= 0 {
			size = pos["line-height"]
		}
		if size <= 0 {
			return
		}

		height := pos["line-height"]
		if height <= 0 {
			height = size
		}
		width := float64(len([]rune(text))) * size * charWidthRatio

		frags = append(frags, domain.TextFragment{
			Text:     text,
			Box:      geometry.NewRect(space, left, top, width, height),
			FontSize: size,
			Source:   domain.SourceNative,
		})
	})

	return frags, nil
}
