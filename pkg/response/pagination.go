package response

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultPageSize is used when the caller omits pageSize.
	DefaultPageSize = 20
	// MaxPageSize is the upper clamp for pageSize.
	MaxPageSize = 100
)

// Page holds clamped pagination parameters. Out-of-range inputs are clamped,
// never rejected: page has floor 1, pageSize is bounded to [1, MaxPageSize].
type Page struct {
	Page     int
	PageSize int
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Paginated is the standard paginated list payload.
type Paginated struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// NewPaginated builds the paginated payload, computing totalPages.
func NewPaginated(data interface{}, total int, p Page) Paginated {
	pages := total / p.PageSize
	if total%p.PageSize != 0 {
		pages++
	}
	return Paginated{Data: data, Total: total, Page: p.Page, PageSize: p.PageSize, TotalPages: pages}
}

// ParsePage reads and clamps ?page= and ?pageSize= query parameters.
func ParsePage(c *gin.Context) Page {
	return ClampPage(
		atoiDefault(c.Query("page"), 1),
		atoiDefault(c.Query("pageSize"), DefaultPageSize),
	)
}

// ClampPage clamps raw pagination values into valid bounds.
func ClampPage(page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Page{Page: page, PageSize: pageSize}
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
