package pptx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf-slides/internal/domain"
)

type element struct {
	name  string
	attrs map[string]string
	text  string
}

// elements flattens an XML document into its elements in document order.
func elements(t *testing.T, doc []byte) []element {
	t.Helper()
	dec := xml.NewDecoder(bytes.NewReader(doc))
	var out []element
	var stack []int
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		switch tk := tok.(type) {
		case xml.StartElement:
			e := element{name: tk.Name.Local, attrs: map[string]string{}}
			for _, a := range tk.Attr {
				key := a.Name.Local
				if a.Name.Space == nsR {
					key = "r:" + key
				}
				e.attrs[key] = a.Value
			}
			out = append(out, e)
			stack = append(stack, len(out)-1)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				out[stack[len(stack)-1]].text += string(tk)
			}
		}
	}
	return out
}

func named(els []element, name string) []element {
	var out []element
	for _, e := range els {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

func unzip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		files[f.Name] = b
	}
	return files
}

func wideInfo() domain.DeckInfo {
	return domain.DeckInfo{Title: "Quarterly", SlideWidth: 10, SlideHeight: 5.625}
}

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 220, B: 240, A: 255})
		}
	}
	return img
}

func TestNewValidation(t *testing.T) {
	_, err := New(domain.DeckInfo{SlideWidth: 0, SlideHeight: 5}, Options{})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestSerializeEmptyDeck(t *testing.T) {
	w, err := New(wideInfo(), Options{})
	require.NoError(t, err)

	data, err := w.Serialize()
	require.NoError(t, err)
	files := unzip(t, data)

	for _, name := range []string{
		"[Content_Types].xml", "_rels/.rels", "docProps/core.xml", "docProps/app.xml",
		"ppt/presentation.xml", "ppt/_rels/presentation.xml.rels",
		"ppt/slideMasters/slideMaster1.xml", "ppt/slideLayouts/slideLayout1.xml", "ppt/theme/theme1.xml",
	} {
		require.Contains(t, files, name)
		elements(t, files[name]) // well-formed
	}

	pres := elements(t, files["ppt/presentation.xml"])
	assert.Empty(t, named(pres, "sldId"))
	sz := named(pres, "sldSz")
	require.Len(t, sz, 1)
	assert.Equal(t, "9144000", sz[0].attrs["cx"])
	assert.Equal(t, "5143500", sz[0].attrs["cy"])

	core := elements(t, files["docProps/core.xml"])
	assert.Equal(t, "Quarterly", named(core, "title")[0].text)
	assert.Equal(t, DefaultAuthor, named(core, "creator")[0].text)
	assert.Equal(t, DefaultSubject, named(core, "subject")[0].text)
}

func TestSlidesKeepOrder(t *testing.T) {
	w, err := New(wideInfo(), Options{})
	require.NoError(t, err)

	for _, text := range []string{"first", "second", "third"} {
		require.NoError(t, w.AddSlide(domain.SlideSpec{
			Width: 10, Height: 5.625,
			Boxes: []domain.TextBox{{Kind: domain.BoxText, X: 1, Y: 1, W: 2, H: 0.5, FontSize: 12, Text: text}},
		}))
	}
	assert.Equal(t, 3, w.Len())

	data, err := w.Serialize()
	require.NoError(t, err)
	files := unzip(t, data)

	pres := elements(t, files["ppt/presentation.xml"])
	ids := named(pres, "sldId")
	require.Len(t, ids, 3)
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("%d", 256+i), id.attrs["id"])
		assert.Equal(t, fmt.Sprintf("rId%d", 6+i), id.attrs["r:id"])
	}

	rels := elements(t, files["ppt/_rels/presentation.xml.rels"])
	targets := map[string]string{}
	for _, r := range named(rels, "Relationship") {
		targets[r.attrs["Id"]] = r.attrs["Target"]
	}
	assert.Equal(t, "slides/slide1.xml", targets["rId6"])
	assert.Equal(t, "slides/slide3.xml", targets["rId8"])

	for i, want := range []string{"first", "second", "third"} {
		slide := elements(t, files[fmt.Sprintf("ppt/slides/slide%d.xml", i+1)])
		assert.Equal(t, want, named(slide, "t")[0].text)
	}

	assert.Contains(t, string(files["[Content_Types].xml"]), "/ppt/slides/slide3.xml")
}

func TestSlideContent(t *testing.T) {
	w, err := New(wideInfo(), Options{Language: "en-US"})
	require.NoError(t, err)

	spec := domain.SlideSpec{
		Width: 10, Height: 5.625,
		Background: solidImage(40, 20),
		Boxes: []domain.TextBox{
			{Kind: domain.BoxCover, X: 1, Y: 1, W: 5.25, H: 0.33, FillColor: "C8DCF0"},
			{Kind: domain.BoxText, X: 1, Y: 1, W: 5.5, H: 0.39, FontSize: 14, Text: "R&D <beta>",
				FontFace: "Microsoft JhengHei", Color: "141E28"},
			{Kind: domain.BoxText, X: 0, Y: 2, W: 1, H: 0.5, FontSize: 9.5, Text: "hidden", Transparent: true, Color: "333333"},
			{Kind: domain.BoxText, X: 9.5, Y: 5.3, W: 0.4, H: 0.25, FontSize: 8, Text: "1", Color: "AAAAAA", Align: domain.AlignRight},
		},
	}
	require.NoError(t, w.AddSlide(spec))

	data, err := w.Serialize()
	require.NoError(t, err)
	files := unzip(t, data)

	require.Contains(t, files, "ppt/media/image1.jpeg")
	_, format, err := image.DecodeConfig(bytes.NewReader(files["ppt/media/image1.jpeg"]))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	rels := elements(t, files["ppt/slides/_rels/slide1.xml.rels"])
	relTargets := named(rels, "Relationship")
	require.Len(t, relTargets, 2)
	assert.Equal(t, "../media/image1.jpeg", relTargets[1].attrs["Target"])

	slide := elements(t, files["ppt/slides/slide1.xml"])
	require.Len(t, named(slide, "pic"), 1)
	assert.Equal(t, "rId2", named(slide, "blip")[0].attrs["r:embed"])

	shapes := named(slide, "sp")
	require.Len(t, shapes, 4)

	offs := named(slide, "off")
	exts := named(slide, "ext")
	// Group, picture, then one per box.
	require.Len(t, offs, 6)
	assert.Equal(t, "914400", offs[2].attrs["x"])
	assert.Equal(t, "4800600", exts[2].attrs["cx"])
	assert.Equal(t, "301752", exts[2].attrs["cy"])

	clrs := named(slide, "srgbClr")
	require.Len(t, clrs, 4)
	assert.Equal(t, "C8DCF0", clrs[0].attrs["val"])
	assert.Equal(t, "141E28", clrs[1].attrs["val"])

	alphas := named(slide, "alpha")
	require.Len(t, alphas, 1)
	assert.Equal(t, "0", alphas[0].attrs["val"])

	rprs := named(slide, "rPr")
	require.Len(t, rprs, 3)
	assert.Equal(t, "1400", rprs[0].attrs["sz"])
	assert.Equal(t, "950", rprs[1].attrs["sz"])
	assert.Equal(t, "en-US", rprs[0].attrs["lang"])

	ppr := named(slide, "pPr")
	require.Len(t, ppr, 1)
	assert.Equal(t, "r", ppr[0].attrs["algn"])

	texts := named(slide, "t")
	assert.Equal(t, "R&D <beta>", texts[0].text)
	assert.True(t, strings.Contains(string(files["ppt/slides/slide1.xml"]), "R&amp;D &lt;beta&gt;"))
}

func TestSlideWithoutBackground(t *testing.T) {
	w, err := New(wideInfo(), Options{})
	require.NoError(t, err)
	require.NoError(t, w.AddSlide(domain.SlideSpec{Width: 10, Height: 5.625}))

	data, err := w.Serialize()
	require.NoError(t, err)
	files := unzip(t, data)

	assert.NotContains(t, files, "ppt/media/image1.jpeg")
	slide := elements(t, files["ppt/slides/slide1.xml"])
	assert.Empty(t, named(slide, "pic"))
	assert.Len(t, named(elements(t, files["ppt/slides/_rels/slide1.xml.rels"]), "Relationship"), 1)
}

func TestAddSlideSizeMismatch(t *testing.T) {
	w, err := New(wideInfo(), Options{})
	require.NoError(t, err)

	err = w.AddSlide(domain.SlideSpec{Width: 13.333, Height: 7.5})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeSerialization))
	assert.Zero(t, w.Len())
}

func TestEMU(t *testing.T) {
	assert.Equal(t, int64(914400), EMU(1))
	assert.Equal(t, int64(12192000), EMU(13.333333333))
	assert.Equal(t, 1400, fontSize(14))
	assert.Equal(t, 850, fontSize(8.5))
}
