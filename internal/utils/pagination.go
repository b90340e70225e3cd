package utils

import "strings"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type PageRequest struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"page_size" json:"page_size"`
}

func (p PageRequest) Normalize() PageRequest {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func NewPageMeta(p PageRequest, total int64) PageMeta {
	n := p.Normalize()
	pages := int((total + int64(n.PageSize) - 1) / int64(n.PageSize))
	return PageMeta{
		Page:       n.Page,
		PageSize:   n.PageSize,
		TotalCount: total,
		TotalPages: pages,
		HasNext:    int64(n.Page*n.PageSize) < total,
	}
}

// LikePattern builds a case-insensitive LIKE pattern for use with LOWER(column).
func LikePattern(term string) string {
	return "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
}
