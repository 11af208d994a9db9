package catalog

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestPlanSortPage_Defaults(t *testing.T) {
	plan, err := PlanSortPage("", "", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, SortByCreatedAt, plan.Field)
	assert.Equal(t, 1, plan.Direction)
	assert.Equal(t, 1, plan.Page)
	assert.Equal(t, int64(10), plan.Limit)
	assert.Equal(t, int64(0), plan.Skip)
	assert.Equal(t, bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}, plan.Sort())
}

func TestPlanSortPage_Direction(t *testing.T) {
	tests := []struct {
		direction SortDirection
		want      int
	}{
		{SortDescending, -1},
		{SortAscending, 1},
		{"", 1},
		{"DESC", 1},
		{"sideways", 1},
	}
	for _, tt := range tests {
		plan, err := PlanSortPage(SortByUpdatedAt, tt.direction, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, tt.want, plan.Direction, "direction %q", tt.direction)
		assert.Equal(t, bson.D{{Key: "updatedAt", Value: tt.want}, {Key: "_id", Value: tt.want}}, plan.Sort())
	}
}

func TestPlanSortPage_Skip(t *testing.T) {
	plan, err := PlanSortPage(SortByName, SortAscending, 3, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(25), plan.Limit)
	assert.Equal(t, int64(50), plan.Skip)

	plan, err = PlanSortPage(SortByName, SortAscending, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(30), plan.Skip)
}

func TestPlanSortPage_Rejects(t *testing.T) {
	_, err := PlanSortPage("popularity", "", 1, 10)
	assert.ErrorIs(t, err, ErrInvalidSort)

	_, err = PlanSortPage("", "", -1, 10)
	assert.ErrorIs(t, err, ErrInvalidPage)

	_, err = PlanSortPage("", "", 1, -5)
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestPlanSortPage_SkipOverflow(t *testing.T) {
	_, err := PlanSortPage("", "", 1<<60, 100)
	assert.ErrorIs(t, err, ErrInvalidPage)

	plan, err := PlanSortPage("", "", math.MaxInt64/100+1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64/100*100), plan.Skip)
}
