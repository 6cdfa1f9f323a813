// Package option composes optional query modifiers for gorm statements.
package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type Option interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type SortBy struct {
	Column string
	Desc   bool
}

// WithQuerySortBy maps user-supplied sort parameters onto an allow-listed
// column. Unknown columns fall back to created_at.
func WithQuerySortBy(sortBy, orderBy string, allowed map[string]bool) SortBy {
	column := strings.ToLower(strings.TrimSpace(sortBy))
	if !allowed[column] {
		column = "created_at"
	}
	return SortBy{
		Column: column,
		Desc:   strings.EqualFold(strings.TrimSpace(orderBy), "desc"),
	}
}

type sortOption struct {
	sort SortBy
}

func WithSortBy(sort SortBy) Option {
	return sortOption{sort: sort}
}

func (o sortOption) Apply(stmt *gorm.DB) *gorm.DB {
	if o.sort.Column == "" {
		return stmt
	}
	direction := "asc"
	if o.sort.Desc {
		direction = "desc"
	}
	return stmt.Order(fmt.Sprintf("%s %s", o.sort.Column, direction))
}
