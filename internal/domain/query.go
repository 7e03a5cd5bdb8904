package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Page is a normalized 1-based page request.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

type PageMeta struct {
	Total       int64 `json:"total"`
	Page        int   `json:"page"`
	PageSize    int   `json:"page_size"`
	TotalPages  int   `json:"total_page"`
	HasNextPage bool  `json:"has_next_page"`
	HasPrevPage bool  `json:"has_prev_page"`
}

func NewPageMeta(total int64, page Page) PageMeta {
	pages := 0
	if page.Size > 0 {
		pages = int((total + int64(page.Size) - 1) / int64(page.Size))
	}
	return PageMeta{
		Total:       total,
		Page:        page.Number,
		PageSize:    page.Size,
		TotalPages:  pages,
		HasNextPage: page.Number < pages,
		HasPrevPage: page.Number > 1,
	}
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type DatasetQuery struct {
	UserID string
	Name   string
	Page   Page
}

// RecordQuery lists records of one dataset. SortField and FilterKey name keys
// inside the record's JSON data; an empty SortField means newest first.
type RecordQuery struct {
	DatasetID   string
	Page        Page
	SortField   string
	SortOrder   SortOrder
	FilterKey   string
	FilterValue string
}
