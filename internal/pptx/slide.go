package pptx

import (
	"fmt"
	"math"
	"strings"

	"github.com/spherical/pdf-slides/internal/domain"
)

// EMUPerInch is the number of English Metric Units in one inch.
const EMUPerInch = 914400

// EMU converts inches to EMU.
func EMU(inches float64) int64 {
	return int64(math.Round(inches * EMUPerInch))
}

// fontSize converts points to DrawingML hundredths of a point.
func fontSize(pt float64) int {
	return int(math.Round(pt * 100))
}

func xfrm(x, y, w, h float64) string {
	return fmt.Sprintf(`<a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm>`, EMU(x), EMU(y), EMU(w), EMU(h))
}

const rectGeom = `<a:prstGeom prst="rect"><a:avLst/></a:prstGeom>`

func solidFill(hex string, alpha *int) string {
	if alpha == nil {
		return `<a:solidFill><a:srgbClr val="` + esc(hex) + `"/></a:solidFill>`
	}
	return fmt.Sprintf(`<a:solidFill><a:srgbClr val="%s"><a:alpha val="%d"/></a:srgbClr></a:solidFill>`, esc(hex), *alpha)
}

// slideXML renders one slide. imageRel is the relationship id of the
// background picture, empty when the slide has none.
func slideXML(spec domain.SlideSpec, imageRel, lang string) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	fmt.Fprintf(&b, `<p:sld xmlns:a="%s" xmlns:r="%s" xmlns:p="%s">`, nsA, nsR, nsP)
	b.WriteString(`<p:cSld><p:spTree>`)
	b.WriteString(emptyGroup)

	id := 2
	if imageRel != "" {
		fmt.Fprintf(&b, `<p:pic><p:nvPicPr><p:cNvPr id="%d" name="Background"/>`, id)
		b.WriteString(`<p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>`)
		fmt.Fprintf(&b, `<p:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>`, imageRel)
		b.WriteString(`<p:spPr>` + xfrm(0, 0, spec.Width, spec.Height) + rectGeom + `</p:spPr>`)
		b.WriteString(`</p:pic>`)
		id++
	}

	for i, box := range spec.Boxes {
		switch box.Kind {
		case domain.BoxCover:
			writeCover(&b, id, i+1, box)
		default:
			writeText(&b, id, i+1, box, lang)
		}
		id++
	}

	b.WriteString(`</p:spTree></p:cSld>`)
	b.WriteString(`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>`)
	b.WriteString(`</p:sld>`)
	return b.String()
}

func writeCover(b *strings.Builder, id, n int, box domain.TextBox) {
	fmt.Fprintf(b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Cover %d"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>`, id, n)
	b.WriteString(`<p:spPr>` + xfrm(box.X, box.Y, box.W, box.H) + rectGeom)
	fill := box.FillColor
	if fill == "" {
		fill = "FFFFFF"
	}
	b.WriteString(solidFill(fill, nil))
	b.WriteString(`<a:ln><a:noFill/></a:ln></p:spPr></p:sp>`)
}

func writeText(b *strings.Builder, id, n int, box domain.TextBox, lang string) {
	fmt.Fprintf(b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="TextBox %d"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, id, n)
	b.WriteString(`<p:spPr>` + xfrm(box.X, box.Y, box.W, box.H) + rectGeom)
	if box.FillColor != "" {
		b.WriteString(solidFill(box.FillColor, nil))
	} else {
		b.WriteString(`<a:noFill/>`)
	}
	b.WriteString(`</p:spPr>`)

	b.WriteString(`<p:txBody><a:bodyPr wrap="square" lIns="0" tIns="0" rIns="0" bIns="0" anchor="t"><a:noAutofit/></a:bodyPr><a:lstStyle/>`)
	b.WriteString(`<a:p>`)
	if box.Align != "" {
		fmt.Fprintf(b, `<a:pPr algn="%s"/>`, box.Align)
	}

	color := box.Color
	if color == "" {
		color = "000000"
	}
	var alpha *int
	if box.Transparent {
		zero := 0
		alpha = &zero
	}

	fmt.Fprintf(b, `<a:r><a:rPr lang="%s" sz="%d" dirty="0">`, esc(lang), fontSize(box.FontSize))
	b.WriteString(solidFill(color, alpha))
	if box.FontFace != "" {
		face := esc(box.FontFace)
		b.WriteString(`<a:latin typeface="` + face + `"/><a:ea typeface="` + face + `"/>`)
	}
	b.WriteString(`</a:rPr><a:t>` + esc(box.Text) + `</a:t></a:r>`)
	b.WriteString(`</a:p></p:txBody></p:sp>`)
}

func slideRelsXML(imageRel, imageTarget string) string {
	rels := []rel{{"rId1", relSlideLayout, "../slideLayouts/slideLayout1.xml"}}
	if imageRel != "" {
		rels = append(rels, rel{imageRel, relImage, imageTarget})
	}
	return relsXML(rels)
}
