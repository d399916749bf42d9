package pdf

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/spherical/pdf-slides/internal/domain"
)

// SelectPages resolves a page selection such as "1-3,5" against a document
// of pageCount pages. An empty selection means every page. The result is
// ascending and free of duplicates.
func SelectPages(selection string, pageCount int) ([]int, error) {
	if pageCount <= 0 {
		return nil, domain.ValidationError("document has no pages", nil)
	}

	selection = strings.TrimSpace(selection)
	if selection == "" {
		pages := make([]int, pageCount)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil
	}

	parsed, err := api.ParsePageSelection(selection)
	if err != nil {
		return nil, domain.ValidationError(fmt.Sprintf("invalid page selection %q", selection), err)
	}

	set, err := api.PagesForPageSelection(pageCount, parsed, true, false)
	if err != nil {
		return nil, domain.ValidationError(fmt.Sprintf("invalid page selection %q", selection), err)
	}

	var pages []int
	for p, on := range set {
		if on && p >= 1 && p <= pageCount {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		return nil, domain.ValidationError(fmt.Sprintf("page selection %q matches no pages of %d", selection, pageCount), nil)
	}

	sort.Ints(pages)
	return pages, nil
}
