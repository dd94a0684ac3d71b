package workflow_test

import (
	"fmt"
	"testing"

	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/stretchr/testify/assert"
)

// TestPickLeastLoaded 测试选择负载最低的评审人
func TestPickLeastLoaded(t *testing.T) {
	loads := []workflow.ReviewerLoad{
		{ReviewerID: "rev-c", Count: 2},
		{ReviewerID: "rev-b", Count: 1},
		{ReviewerID: "rev-a", Count: 1},
	}
	assert.Equal(t, 2, workflow.PickLeastLoaded(loads), "tie goes to the lowest id")

	loads[0].Count = 0
	assert.Equal(t, 0, workflow.PickLeastLoaded(loads))

	assert.Equal(t, -1, workflow.PickLeastLoaded(nil))
}

// TestPickLeastLoaded_GreedyConverges 测试贪心分配后负载差不超过 1
func TestPickLeastLoaded_GreedyConverges(t *testing.T) {
	for n := 1; n <= 7; n++ {
		for m := 0; m <= 40; m++ {
			loads := make([]workflow.ReviewerLoad, n)
			for i := range loads {
				loads[i].ReviewerID = fmt.Sprintf("rev-%02d", i)
			}
			for j := 0; j < m; j++ {
				loads[workflow.PickLeastLoaded(loads)].Count++
			}
			assert.LessOrEqual(t, workflow.Spread(loads), 1, "n=%d m=%d", n, m)
		}
	}
}

func TestSpread(t *testing.T) {
	assert.Equal(t, 0, workflow.Spread(nil))
	assert.Equal(t, 4, workflow.Spread([]workflow.ReviewerLoad{{Count: 5}, {Count: 1}, {Count: 3}}))
}

func TestRole(t *testing.T) {
	assert.True(t, workflow.RoleOversight.Valid())
	assert.False(t, workflow.Role("guest").Valid())
	assert.True(t, workflow.RoleReviewer2.IsReviewerRole())
	assert.False(t, workflow.RoleAdmin.IsReviewerRole())
}
