package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const DefaultPageSize = 25

// PageSizes lists the page sizes the API accepts. Anything else falls back
// to DefaultPageSize.
var PageSizes = []int{25, 50, 100}

// Params holds the raw pagination request before clamping against a total.
type Params struct {
	Page     int
	PageSize int
}

// FromContext extracts pagination parameters from the echo context.
// page defaults to 1; page_size is normalized to one of PageSizes.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	return Params{Page: page, PageSize: NormalizeSize(size)}
}

// NormalizeSize maps an arbitrary page size onto the closed set of accepted
// sizes, falling back to the default for anything unrecognized.
func NormalizeSize(size int) int {
	for _, s := range PageSizes {
		if size == s {
			return s
		}
	}
	return DefaultPageSize
}

// Page describes one resolved page of a result set.
type Page struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalItems int  `json:"total_items"`
	TotalPages int  `json:"total_pages"`
	HasPrev    bool `json:"has_prev"`
	HasNext    bool `json:"has_next"`
}

// New resolves a requested page against a total item count. Out-of-range
// page numbers clamp instead of erroring: page < 1 becomes 1, and a page
// past the end becomes the last page (or 1 when the set is empty).
func New(page, pageSize, totalItems int) Page {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	totalPages := (totalItems + pageSize - 1) / pageSize
	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	if totalPages == 0 {
		page = 1
	}
	return Page{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
}

// Offset returns the row offset of the first item on this page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}
