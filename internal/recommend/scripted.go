package recommend

import (
	"context"
	"sync"

	"SolarAlpha/internal/model"
)

// ScriptedAdvisor replays a fixed list of opportunities, one per call,
// then reports unavailable. Used for paper demos and tests.
type ScriptedAdvisor struct {
	mu    sync.Mutex
	queue []*model.Opportunity
}

func NewScriptedAdvisor(opps ...*model.Opportunity) *ScriptedAdvisor {
	return &ScriptedAdvisor{queue: opps}
}

func (a *ScriptedAdvisor) Name() string { return "scripted" }

func (a *ScriptedAdvisor) Propose(_ context.Context) (*model.Opportunity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return nil, ErrUnavailable
	}
	opp := a.queue[0]
	a.queue = a.queue[1:]
	return opp, nil
}
