package usecases

import (
	"strings"
	"sync"
)

// PlannerRegistry keeps one DepositPlanner per account so a refresh only supersedes
// the same account's running pass
type PlannerRegistry struct {
	deps PlannerDeps

	mu       sync.Mutex
	planners map[string]*DepositPlanner
}

func NewPlannerRegistry(deps PlannerDeps) *PlannerRegistry {
	return &PlannerRegistry{deps: deps, planners: make(map[string]*DepositPlanner)}
}

// Planner returns the planner of account, creating it on first use
func (r *PlannerRegistry) Planner(account string) *DepositPlanner {
	account = strings.ToLower(strings.TrimSpace(account))

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.planners[account]
	if !ok {
		p = NewDepositPlanner(r.deps)
		r.planners[account] = p
	}
	return p
}

// Close cancels every running pass
func (r *PlannerRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.planners {
		p.Cancel()
	}
}
