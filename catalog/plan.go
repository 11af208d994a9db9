package catalog

import (
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson"
)

// SortField is a field a listing can be ordered by.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByName      SortField = "name"
)

// SortDirection is the ordering direction of a listing.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// Valid reports whether f is a recognised sort field.
func (f SortField) Valid() bool {
	switch f {
	case SortByCreatedAt, SortByUpdatedAt, SortByName:
		return true
	}
	return false
}

// SortPagePlan is the resolved ordering and window of a listing.
type SortPagePlan struct {
	Field     SortField
	Direction int
	Page      int
	Limit     int64
	Skip      int64
}

// Sort returns the store sort specification. Ties on the requested field are
// broken by _id, whose leading bytes are the insertion time, so consecutive
// pages never overlap or skip records.
func (p *SortPagePlan) Sort() bson.D {
	return bson.D{{Key: string(p.Field), Value: p.Direction}, {Key: "_id", Value: p.Direction}}
}

// PlanSortPage resolves the optional ordering and paging inputs. Empty
// orderBy means creation order, any direction other than "desc" is
// ascending, and zero page or limit take their defaults.
func PlanSortPage(orderBy SortField, direction SortDirection, page, limit int) (*SortPagePlan, error) {
	if orderBy == "" {
		orderBy = SortByCreatedAt
	}
	if !orderBy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSort, orderBy)
	}
	if page == 0 {
		page = DefaultPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if page < 1 || limit < 1 {
		return nil, ErrInvalidPage
	}
	// skip must fit in an int64
	if int64(page-1) > math.MaxInt64/int64(limit) {
		return nil, ErrInvalidPage
	}

	dir := 1
	if direction == SortDescending {
		dir = -1
	}

	return &SortPagePlan{
		Field:     orderBy,
		Direction: dir,
		Page:      page,
		Limit:     int64(limit),
		Skip:      int64(page-1) * int64(limit),
	}, nil
}
