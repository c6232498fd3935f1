// internal/utils/pagination.go
package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type PaginationParams struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Sort  string `json:"sort"`
	Order string `json:"order"`
}

type PaginationResult struct {
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	Total      int64       `json:"total"`
	TotalPages int         `json:"total_pages"`
	Data       interface{} `json:"data"`
}

// GetPaginationParams reads page, limit, sort and order from the query string.
func GetPaginationParams(c *gin.Context) PaginationParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))

	return PaginationParams{
		Page:  page,
		Limit: limit,
		Sort:  c.Query("sort"),
		Order: c.DefaultQuery("order", "desc"),
	}.normalized()
}

func (p PaginationParams) normalized() PaginationParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > maxPageLimit {
		p.Limit = defaultPageLimit
	}
	if p.Order != "asc" {
		p.Order = "desc"
	}
	return p
}

// Paginate orders by params.Sort when it is one of sortable, otherwise by the
// first sortable column, which must be unique so pages never overlap.
func Paginate(db *gorm.DB, params PaginationParams, sortable ...string) *gorm.DB {
	params = params.normalized()
	if len(sortable) == 0 {
		return db.Offset((params.Page - 1) * params.Limit).Limit(params.Limit)
	}

	key := sortable[0]
	query := db
	for _, column := range sortable[1:] {
		if column == params.Sort {
			query = query.Order(column + " " + params.Order)
			break
		}
	}
	return query.Order(key + " " + params.Order).
		Offset((params.Page - 1) * params.Limit).
		Limit(params.Limit)
}

func CreatePaginationResult(data interface{}, total int64, params PaginationParams) PaginationResult {
	params = params.normalized()
	return PaginationResult{
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      total,
		TotalPages: int((total + int64(params.Limit) - 1) / int64(params.Limit)),
		Data:       data,
	}
}

func SetPaginationHeaders(c *gin.Context, result PaginationResult) {
	c.Header("X-Total-Count", strconv.FormatInt(result.Total, 10))
	c.Header("X-Page", strconv.Itoa(result.Page))
	c.Header("X-Per-Page", strconv.Itoa(result.Limit))
	c.Header("X-Total-Pages", strconv.Itoa(result.TotalPages))
}
