package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
)

func TestTracker_LifeCycle(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	tr.nowFunc = func() time.Time { return now }

	tr.Transition("a", model.StatusInitializing)
	now = now.Add(time.Second)
	tr.Transition("b", model.StatusInitializing)
	now = now.Add(time.Second)
	tr.Transition("a", model.StatusEnriching)

	active := tr.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID, "oldest first")
	assert.Equal(t, model.StatusEnriching, active[0].Status)
	assert.Equal(t, now, active[0].UpdatedAt)
	assert.True(t, active[0].StartedAt.Before(active[0].UpdatedAt))

	tr.Transition("a", model.StatusTargetMet)
	tr.Transition("b", model.StatusCancelled)

	assert.Empty(t, tr.Active())
	assert.Equal(t, map[model.CampaignStatus]int{
		model.StatusTargetMet: 1,
		model.StatusCancelled: 1,
	}, tr.Finished())
}

func TestTracker_ConcurrentTransitions(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			tr.Transition(id, model.StatusSearching)
			_ = tr.Active()
		}(i)
	}
	wg.Wait()
	assert.Len(t, tr.Active(), 26)
}
