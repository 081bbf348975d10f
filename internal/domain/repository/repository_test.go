package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, PageSize: DefaultPageSize}, NewPagination(0, 0))
	assert.Equal(t, Pagination{Page: 3, PageSize: MaxPageSize}, NewPagination(3, 1000))

	p := NewPagination(3, 20)
	assert.Equal(t, 40, p.Offset())
	assert.Equal(t, 20, p.Limit())
}

func TestNewPagedResult(t *testing.T) {
	res := NewPagedResult([]string{"a"}, 41, NewPagination(1, 20))
	assert.Equal(t, 3, res.TotalPages)

	empty := NewPagedResult[string](nil, 0, NewPagination(1, 20))
	assert.Zero(t, empty.TotalPages)
}

func TestDayRange(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	r := Day(time.Date(2026, 3, 2, 3, 0, 0, 0, loc))

	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.True(t, r.Contains(r.Start))
	assert.False(t, r.Contains(r.End))
	assert.True(t, r.Contains(time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)))
}
