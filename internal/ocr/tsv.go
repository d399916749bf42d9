package ocr

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/geometry"
)

// Tesseract TSV columns.
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	numCols
)

const wordLevel = 5

type lineKey struct{ block, par, line int }

type lineAcc struct {
	words   []string
	box     geometry.Rect
	confSum float64
	confN   int
}

// ParseTSV converts Tesseract's TSV output into recognized lines. Words are
// grouped by (block, paragraph, line) in the order Tesseract reports them;
// a line's box is the union of its words and its confidence is their mean.
// Boxes are tagged with space, the pixel space of the recognised image.
func ParseTSV(r io.Reader, space geometry.Space) (*domain.Recognition, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var order []lineKey
	lines := map[lineKey]*lineAcc{}

	header := true
	for sc.Scan() {
		row := sc.Text()
		if header {
			header = false
			if strings.HasPrefix(row, "level") {
				continue
			}
		}
		if row == "" {
			continue
		}

		cols := strings.Split(row, "\t")
		if len(cols) < numCols {
			// Empty text drops the trailing column.
			if len(cols) == numCols-1 {
				cols = append(cols, "")
			} else {
				return nil, fmt.Errorf("tsv row has %d columns: %q", len(cols), row)
			}
		}

		ints, err := atoiAll(cols[:colConf])
		if err != nil {
			return nil, fmt.Errorf("tsv row %q: %w", row, err)
		}
		if ints[colLevel] != wordLevel {
			continue
		}
		text := strings.TrimSpace(strings.Join(cols[colText:], "\t"))
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[colConf]), 64)
		if err != nil {
			return nil, fmt.Errorf("tsv confidence %q: %w", cols[colConf], err)
		}

		box := geometry.NewRect(space,
			float64(ints[colLeft]), float64(ints[colTop]),
			float64(ints[colWidth]), float64(ints[colHeight]))

		key := lineKey{ints[colBlock], ints[colPar], ints[colLine]}
		acc, ok := lines[key]
		if !ok {
			acc = &lineAcc{box: box}
			lines[key] = acc
			order = append(order, key)
		}
		acc.words = append(acc.words, text)
		acc.box = acc.box.Union(box)
		if conf >= 0 {
			acc.confSum += conf
			acc.confN++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tsv: %w", err)
	}

	out := &domain.Recognition{Lines: make([]domain.RecognizedLine, 0, len(order))}
	texts := make([]string, 0, len(order))
	for _, k := range order {
		acc := lines[k]
		var conf float64
		if acc.confN > 0 {
			conf = acc.confSum / float64(acc.confN)
		}
		text := strings.Join(acc.words, " ")
		out.Lines = append(out.Lines, domain.RecognizedLine{
			Text:       text,
			Box:        acc.box,
			Confidence: conf,
		})
		texts = append(texts, text)
	}
	out.FullText = strings.Join(texts, "\n")
	return out, nil
}

func atoiAll(cols []string) ([]int, error) {
	out := make([]int, len(cols))
	for i, c := range cols {
		v, err := strconv.Atoi(strings.TrimSpace(c))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
