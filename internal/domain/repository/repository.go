// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"
)

// TxKey 事务上下文键类型
type TxKey struct{}

// Transactor 事务管理接口；嵌套调用复用外层事务
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

const (
	// DefaultPageSize 未指定时的每页条数
	DefaultPageSize = 20
	// MaxPageSize 每页条数上限
	MaxPageSize = 100
)

// Pagination 分页参数，页码从 1 开始
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// NewPagination 规范化分页参数
func NewPagination(page, pageSize int) Pagination {
	p := Pagination{Page: max(page, 1), PageSize: pageSize}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset 查询偏移量
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit 查询条数
func (p Pagination) Limit() int {
	return p.PageSize
}

// Pages total 条记录共有多少页
func (p Pagination) Pages(total int64) int {
	if p.PageSize <= 0 || total <= 0 {
		return 0
	}
	size := int64(p.PageSize)
	return int((total + size - 1) / size)
}

// PagedResult 分页结果
type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPagedResult 组装分页结果
func NewPagedResult[T any](items []T, total int64, p Pagination) *PagedResult[T] {
	return &PagedResult[T]{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.Pages(total),
	}
}

// TimeRange 半开时间区间 [Start, End)
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Since 从 since 到 now 的区间
func Since(since, now time.Time) TimeRange {
	return TimeRange{Start: since, End: now}
}

// Day 包含 t 的 UTC 自然日
func Day(t time.Time) TimeRange {
	start := t.UTC().Truncate(24 * time.Hour)
	return TimeRange{Start: start, End: start.Add(24 * time.Hour)}
}

// Contains t 是否落在区间内
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}
