package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampPage(t *testing.T) {
	tests := []struct {
		name         string
		page, size   int
		wantPage     int
		wantPageSize int
	}{
		{"defaults pass through", 1, 20, 1, 20},
		{"zero page floors to 1", 0, 20, 1, 20},
		{"negative page floors to 1", -3, 20, 1, 20},
		{"zero pageSize floors to 1", 2, 0, 2, 1},
		{"oversized pageSize clamps to max", 1, 500, 1, MaxPageSize},
		{"max pageSize untouched", 1, 100, 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ClampPage(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantPageSize, p.PageSize)
		})
	}
}

func TestPageOffset(t *testing.T) {
	assert.Equal(t, 0, Page{Page: 1, PageSize: 20}.Offset())
	assert.Equal(t, 40, Page{Page: 3, PageSize: 20}.Offset())
}

func TestNewPaginatedTotalPages(t *testing.T) {
	p := ClampPage(1, 20)
	assert.Equal(t, 0, NewPaginated(nil, 0, p).TotalPages)
	assert.Equal(t, 1, NewPaginated(nil, 20, p).TotalPages)
	assert.Equal(t, 2, NewPaginated(nil, 21, p).TotalPages)
}
