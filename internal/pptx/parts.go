package pptx

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

const (
	nsA = `http://schemas.openxmlformats.org/drawingml/2006/main`
	nsR = `http://schemas.openxmlformats.org/officeDocument/2006/relationships`
	nsP = `http://schemas.openxmlformats.org/presentationml/2006/main`

	nsPkgRels = `http://schemas.openxmlformats.org/package/2006/relationships`
	relBase   = `http://schemas.openxmlformats.org/officeDocument/2006/relationships/`

	ctBase = `application/vnd.openxmlformats-officedocument.presentationml.`
)

// Relationship types.
const (
	relOfficeDoc   = relBase + "officeDocument"
	relCoreProps   = `http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties`
	relExtProps    = relBase + "extended-properties"
	relSlideMaster = relBase + "slideMaster"
	relSlideLayout = relBase + "slideLayout"
	relSlide       = relBase + "slide"
	relTheme       = relBase + "theme"
	relImage       = relBase + "image"
	relPresProps   = relBase + "presProps"
	relViewProps   = relBase + "viewProps"
	relTableStyles = relBase + "tableStyles"
)

// Fixed relationship ids in ppt/_rels/presentation.xml.rels. Slides follow.
const (
	ridMaster = iota + 1
	ridTheme
	ridPresProps
	ridViewProps
	ridTableStyles
	ridFirstSlide
)

func esc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

type rel struct {
	id     string
	typ    string
	target string
}

func relsXML(rels []rel) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	fmt.Fprintf(&b, `<Relationships xmlns="%s">`, nsPkgRels)
	for _, r := range rels {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="%s" Target="%s"/>`, r.id, r.typ, esc(r.target))
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func contentTypesXML(slides int) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	b.WriteString(`<Default Extension="jpeg" ContentType="image/jpeg"/>`)

	override := func(part, ct string) {
		fmt.Fprintf(&b, `<Override PartName="%s" ContentType="%s"/>`, part, ct)
	}
	override("/ppt/presentation.xml", ctBase+"presentation.main+xml")
	override("/ppt/slideMasters/slideMaster1.xml", ctBase+"slideMaster+xml")
	override("/ppt/slideLayouts/slideLayout1.xml", ctBase+"slideLayout+xml")
	override("/ppt/theme/theme1.xml", "application/vnd.openxmlformats-officedocument.theme+xml")
	override("/ppt/presProps.xml", ctBase+"presProps+xml")
	override("/ppt/viewProps.xml", ctBase+"viewProps+xml")
	override("/ppt/tableStyles.xml", ctBase+"tableStyles+xml")
	for i := 1; i <= slides; i++ {
		override(fmt.Sprintf("/ppt/slides/slide%d.xml", i), ctBase+"slide+xml")
	}
	override("/docProps/core.xml", "application/vnd.openxmlformats-package.core-properties+xml")
	override("/docProps/app.xml", "application/vnd.openxmlformats-officedocument.extended-properties+xml")
	b.WriteString(`</Types>`)
	return b.String()
}

func rootRelsXML() string {
	return relsXML([]rel{
		{"rId1", relOfficeDoc, "ppt/presentation.xml"},
		{"rId2", relCoreProps, "docProps/core.xml"},
		{"rId3", relExtProps, "docProps/app.xml"},
	})
}

func coreXML(title, author, subject string, created time.Time) string {
	ts := created.UTC().Format(time.RFC3339)
	return xmlHeader +
		`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:dcmitype="http://purl.org/dc/dcmitype/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + esc(title) + `</dc:title>` +
		`<dc:subject>` + esc(subject) + `</dc:subject>` +
		`<dc:creator>` + esc(author) + `</dc:creator>` +
		`<cp:lastModifiedBy>` + esc(author) + `</cp:lastModifiedBy>` +
		`<cp:revision>1</cp:revision>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + ts + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + ts + `</dcterms:modified>` +
		`</cp:coreProperties>`
}

func appXML(slides int) string {
	return xmlHeader +
		`<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties" ` +
		`xmlns:vt="http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes">` +
		`<Application>pdf-slides</Application>` +
		fmt.Sprintf(`<Slides>%d</Slides>`, slides) +
		`<PresentationFormat>Custom</PresentationFormat>` +
		`</Properties>`
}

func presentationXML(slides int, cx, cy int64) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	fmt.Fprintf(&b, `<p:presentation xmlns:a="%s" xmlns:r="%s" xmlns:p="%s" saveSubsetFonts="1">`, nsA, nsR, nsP)
	fmt.Fprintf(&b, `<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId%d"/></p:sldMasterIdLst>`, ridMaster)
	if slides > 0 {
		b.WriteString(`<p:sldIdLst>`)
		for i := 0; i < slides; i++ {
			fmt.Fprintf(&b, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, ridFirstSlide+i)
		}
		b.WriteString(`</p:sldIdLst>`)
	}
	fmt.Fprintf(&b, `<p:sldSz cx="%d" cy="%d"/>`, cx, cy)
	b.WriteString(`<p:notesSz cx="6858000" cy="9144000"/>`)
	b.WriteString(`</p:presentation>`)
	return b.String()
}

func presentationRelsXML(slides int) string {
	rels := []rel{
		{fmt.Sprintf("rId%d", ridMaster), relSlideMaster, "slideMasters/slideMaster1.xml"},
		{fmt.Sprintf("rId%d", ridTheme), relTheme, "theme/theme1.xml"},
		{fmt.Sprintf("rId%d", ridPresProps), relPresProps, "presProps.xml"},
		{fmt.Sprintf("rId%d", ridViewProps), relViewProps, "viewProps.xml"},
		{fmt.Sprintf("rId%d", ridTableStyles), relTableStyles, "tableStyles.xml"},
	}
	for i := 0; i < slides; i++ {
		rels = append(rels, rel{fmt.Sprintf("rId%d", ridFirstSlide+i), relSlide, fmt.Sprintf("slides/slide%d.xml", i+1)})
	}
	return relsXML(rels)
}

const emptyGroup = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`

func slideMasterXML() string {
	return xmlHeader +
		fmt.Sprintf(`<p:sldMaster xmlns:a="%s" xmlns:r="%s" xmlns:p="%s">`, nsA, nsR, nsP) +
		`<p:cSld><p:bg><p:bgRef idx="1001"><a:schemeClr val="bg1"/></p:bgRef></p:bg>` +
		`<p:spTree>` + emptyGroup + `</p:spTree></p:cSld>` +
		`<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" ` +
		`accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>` +
		`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>` +
		`</p:sldMaster>`
}

func slideMasterRelsXML() string {
	return relsXML([]rel{
		{"rId1", relSlideLayout, "../slideLayouts/slideLayout1.xml"},
		{"rId2", relTheme, "../theme/theme1.xml"},
	})
}

func slideLayoutXML() string {
	return xmlHeader +
		fmt.Sprintf(`<p:sldLayout xmlns:a="%s" xmlns:r="%s" xmlns:p="%s" type="blank" preserve="1">`, nsA, nsR, nsP) +
		`<p:cSld name="Blank"><p:spTree>` + emptyGroup + `</p:spTree></p:cSld>` +
		`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>` +
		`</p:sldLayout>`
}

func slideLayoutRelsXML() string {
	return relsXML([]rel{{"rId1", relSlideMaster, "../slideMasters/slideMaster1.xml"}})
}

func themeXML(font string) string {
	solid := func(c string) string { return `<a:solidFill><a:schemeClr val="` + c + `"/></a:solidFill>` }
	line := `<a:ln w="9525"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln>`
	return xmlHeader +
		fmt.Sprintf(`<a:theme xmlns:a="%s" name="Office Theme">`, nsA) +
		`<a:themeElements>` +
		`<a:clrScheme name="Office">` +
		`<a:dk1><a:sysClr val="windowText" lastClr="000000"/></a:dk1>` +
		`<a:lt1><a:sysClr val="window" lastClr="FFFFFF"/></a:lt1>` +
		`<a:dk2><a:srgbClr val="44546A"/></a:dk2><a:lt2><a:srgbClr val="E7E6E6"/></a:lt2>` +
		`<a:accent1><a:srgbClr val="4472C4"/></a:accent1><a:accent2><a:srgbClr val="ED7D31"/></a:accent2>` +
		`<a:accent3><a:srgbClr val="A5A5A5"/></a:accent3><a:accent4><a:srgbClr val="FFC000"/></a:accent4>` +
		`<a:accent5><a:srgbClr val="5B9BD5"/></a:accent5><a:accent6><a:srgbClr val="70AD47"/></a:accent6>` +
		`<a:hlink><a:srgbClr val="0563C1"/></a:hlink><a:folHlink><a:srgbClr val="954F72"/></a:folHlink>` +
		`</a:clrScheme>` +
		`<a:fontScheme name="Office">` +
		`<a:majorFont><a:latin typeface="` + esc(font) + `"/><a:ea typeface="` + esc(font) + `"/><a:cs typeface=""/></a:majorFont>` +
		`<a:minorFont><a:latin typeface="` + esc(font) + `"/><a:ea typeface="` + esc(font) + `"/><a:cs typeface=""/></a:minorFont>` +
		`</a:fontScheme>` +
		`<a:fmtScheme name="Office">` +
		`<a:fillStyleLst>` + solid("phClr") + solid("phClr") + solid("phClr") + `</a:fillStyleLst>` +
		`<a:lnStyleLst>` + line + line + line + `</a:lnStyleLst>` +
		`<a:effectStyleLst>` +
		`<a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle>` +
		`</a:effectStyleLst>` +
		`<a:bgFillStyleLst>` + solid("phClr") + solid("phClr") + solid("phClr") + `</a:bgFillStyleLst>` +
		`</a:fmtScheme>` +
		`</a:themeElements>` +
		`</a:theme>`
}

func presPropsXML() string {
	return xmlHeader + fmt.Sprintf(`<p:presentationPr xmlns:a="%s" xmlns:r="%s" xmlns:p="%s"/>`, nsA, nsR, nsP)
}

func viewPropsXML() string {
	return xmlHeader + fmt.Sprintf(`<p:viewPr xmlns:a="%s" xmlns:r="%s" xmlns:p="%s"/>`, nsA, nsR, nsP)
}

func tableStylesXML() string {
	return xmlHeader + fmt.Sprintf(`<a:tblStyleLst xmlns:a="%s" def="{5C22544A-7EE6-4342-B048-85BDC9FD1C3A}"/>`, nsA)
}
