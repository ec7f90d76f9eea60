package utils

import "github.com/gofiber/fiber/v2"

// Entry listings default to one page of recent predictions; limit is
// capped so a single request cannot dump a whole history table.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination is the page window applied to entry listings.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePagination reads the page and limit query params, clamping both
// to sane bounds.
func ParsePagination(c *fiber.Ctx) Pagination {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	limit := c.QueryInt("limit", defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}
