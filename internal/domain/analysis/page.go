package analysis

import "math"

// DefaultPageSize applies when a caller asks for a non-positive page size.
const DefaultPageSize = 20

// PageWindow turns a 1-based page into a row offset and limit. ok is false
// when the offset does not fit in an int; such a page is always empty.
func PageWindow(page, pageSize int) (offset, limit int, ok bool) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page-1 > math.MaxInt/pageSize {
		return 0, pageSize, false
	}
	return (page - 1) * pageSize, pageSize, true
}
