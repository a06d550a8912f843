package entities

import "time"

// PlannerStage is the progress stage of a deposit planning pass
type PlannerStage string

const (
	StageInitializing      PlannerStage = "initializing"
	StageDiscoveringRoutes PlannerStage = "discoveringRoutes"
	StageResolvingTokens   PlannerStage = "resolvingTokens"
	StageFetchingBalances  PlannerStage = "fetchingBalances"
	StageQuotingRoutes     PlannerStage = "quotingRoutes"
	StageFinalizing        PlannerStage = "finalizing"
	StageReady             PlannerStage = "ready"
)

// PlannerStages lists the stages in execution order
var PlannerStages = []PlannerStage{
	StageInitializing,
	StageDiscoveringRoutes,
	StageResolvingTokens,
	StageFetchingBalances,
	StageQuotingRoutes,
	StageFinalizing,
	StageReady,
}

// PlannerSnapshot is the externally observable state of the planner
type PlannerSnapshot struct {
	Generation      uint64          `json:"generation"`
	Stage           PlannerStage    `json:"stage"`
	CompletedStages []PlannerStage  `json:"completedStages"`
	Options         []PaymentOption `json:"options"`
	Error           string          `json:"error,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// IsLoading reports whether a pass is still running
func (s PlannerSnapshot) IsLoading() bool {
	return s.Stage != StageReady
}
