// internal/utils/pagination.go
package utils

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NormalizePage clamps a page number to a sane minimum.
func NormalizePage(page int) int {
	if page < 1 {
		return defaultPage
	}
	return page
}

// NormalizeLimit clamps a page size between 1 and the maximum.
func NormalizeLimit(limit int) int {
	if limit < 1 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// NewPagination builds pagination metadata for a result set.
func NewPagination(page, limit int, total int64) Pagination {
	page = NormalizePage(page)
	limit = NormalizeLimit(limit)

	totalPages := int(total) / limit
	if int(total)%limit > 0 {
		totalPages++
	}

	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
