// Package layout turns positioned text into slide layouts: it clusters
// fragments into lines and places each line as a text box on a slide.
package layout

import (
	"math"
	"sort"
	"strings"

	"github.com/spherical/pdf-slides/internal/domain"
)

// DefaultLineThresholdRatio is the line-join tolerance as a share of page height.
const DefaultLineThresholdRatio = 0.02

// LineThreshold returns the vertical join tolerance for a page.
func LineThreshold(pageHeight, ratio float64) float64 {
	if ratio <= 0 {
		ratio = DefaultLineThresholdRatio
	}
	return pageHeight * ratio
}

// GroupLines clusters fragments into visual lines.
//
// Fragments are walked in (y, x) order. A fragment joins the open cluster
// while its y lies strictly within threshold of the cluster's first member;
// the anchor never moves, so a slowly drifting baseline eventually splits.
// Each cluster becomes one line: texts joined left to right by single
// spaces, box the union of members, font size the members' mean. Lines whose
// text is blank are dropped.
//
// All fragments must share one coordinate space.
func GroupLines(frags []domain.TextFragment, threshold float64) []domain.TextLine {
	if len(frags) == 0 {
		return []domain.TextLine{}
	}

	sorted := make([]domain.TextFragment, len(frags))
	copy(sorted, frags)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Box.Y != sorted[j].Box.Y {
			return sorted[i].Box.Y < sorted[j].Box.Y
		}
		return sorted[i].Box.X < sorted[j].Box.X
	})

	var clusters [][]domain.TextFragment
	var current []domain.TextFragment
	for _, f := range sorted {
		if len(current) > 0 && math.Abs(f.Box.Y-current[0].Box.Y) < threshold {
			current = append(current, f)
			continue
		}
		if len(current) > 0 {
			clusters = append(clusters, current)
		}
		current = []domain.TextFragment{f}
	}
	clusters = append(clusters, current)

	lines := make([]domain.TextLine, 0, len(clusters))
	for _, c := range clusters {
		if line, ok := mergeLine(c); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

func mergeLine(members []domain.TextFragment) (domain.TextLine, bool) {
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Box.X < members[j].Box.X
	})

	texts := make([]string, 0, len(members))
	box := members[0].Box
	var fontSum float64
	for _, m := range members {
		if t := strings.TrimSpace(m.Text); t != "" {
			texts = append(texts, t)
		}
		box = box.Union(m.Box)
		fontSum += m.FontSize
	}

	text := strings.TrimSpace(strings.Join(texts, " "))
	if text == "" {
		return domain.TextLine{}, false
	}

	return domain.TextLine{
		Text:     text,
		Box:      box,
		FontSize: fontSum / float64(len(members)),
	}, true
}
