package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yukikurage/annotation-api/internal/constants"
)

// PaginationParams holds the pagination parameters
type PaginationParams struct {
	Page     int
	PageSize int
}

// PaginationResponse represents the pagination metadata in API responses
type PaginationResponse struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// GetPaginationParams extracts and validates pagination parameters from the request.
// "limit" is accepted as an alias of "page_size".
func GetPaginationParams(c *gin.Context) PaginationParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(constants.MinPageSize)))

	rawSize := c.Query("page_size")
	if rawSize == "" {
		rawSize = c.DefaultQuery("limit", strconv.Itoa(constants.DefaultPageSize))
	}
	pageSize, _ := strconv.Atoi(rawSize)

	if page < constants.MinPageSize {
		page = constants.MinPageSize
	}
	if pageSize < constants.MinPageSize || pageSize > constants.MaxPageSize {
		pageSize = constants.DefaultPageSize
	}

	return PaginationParams{
		Page:     page,
		PageSize: pageSize,
	}
}

// Response builds the pagination metadata for a result set of total rows.
func (p PaginationParams) Response(total int64) PaginationResponse {
	pages := 0
	if p.PageSize > 0 {
		pages = int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	}
	return PaginationResponse{
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      total,
		TotalPages: pages,
	}
}
