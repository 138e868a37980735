// Package pagination derives page windows from a total row count.
package pagination

const windowRadius = 2

type Window struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int   `json:"total"`
	TotalPages int   `json:"total_pages"`
	Offset     int   `json:"offset"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
	Pages      []int `json:"pages,omitempty"`
}

// Offset is the zero-based row offset for a 1-based page.
func Offset(page, pageSize int) int {
	if page < 1 || pageSize < 1 {
		return 0
	}
	return (page - 1) * pageSize
}

// TotalPages is ceil(total/pageSize); zero rows means zero pages.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Compute builds the window around page, showing up to two pages either side.
func Compute(page, pageSize, total int) Window {
	if page < 1 {
		page = 1
	}
	tp := TotalPages(total, pageSize)
	w := Window{
		Page:       page,
		PageSize:   pageSize,
		Total:      max(total, 0),
		TotalPages: tp,
		Offset:     Offset(page, pageSize),
		HasPrev:    page > 1,
		HasNext:    page < tp,
	}
	if tp == 0 {
		return w
	}
	lo := max(1, min(page, tp)-windowRadius)
	hi := min(tp, max(page, 1)+windowRadius)
	for p := lo; p <= hi; p++ {
		w.Pages = append(w.Pages, p)
	}
	return w
}
