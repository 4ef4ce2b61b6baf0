package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/sells-group/prospect-cli/internal/model"
)

// ActiveCampaign is a campaign that has not reached a terminal state.
type ActiveCampaign struct {
	ID        string               `json:"id"`
	Status    model.CampaignStatus `json:"status"`
	StartedAt time.Time            `json:"started_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Tracker follows campaign state transitions in this process. It satisfies
// the controller's Observer.
type Tracker struct {
	mu       sync.Mutex
	active   map[string]*ActiveCampaign
	finished map[model.CampaignStatus]int

	nowFunc func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active:   make(map[string]*ActiveCampaign),
		finished: make(map[model.CampaignStatus]int),
		nowFunc:  time.Now,
	}
}

// Transition records a state change of campaign id.
func (t *Tracker) Transition(id string, status model.CampaignStatus) {
	now := t.nowFunc().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	if status.Terminal() {
		delete(t.active, id)
		t.finished[status]++
		return
	}
	a, ok := t.active[id]
	if !ok {
		a = &ActiveCampaign{ID: id, StartedAt: now}
		t.active[id] = a
	}
	a.Status = status
	a.UpdatedAt = now
}

// Active returns the running campaigns, oldest first.
func (t *Tracker) Active() []ActiveCampaign {
	t.mu.Lock()
	out := make([]ActiveCampaign, 0, len(t.active))
	for _, a := range t.active {
		out = append(out, *a)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Finished returns how many campaigns ended in each terminal state since
// the process started.
func (t *Tracker) Finished() map[model.CampaignStatus]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[model.CampaignStatus]int, len(t.finished))
	for k, v := range t.finished {
		out[k] = v
	}
	return out
}
