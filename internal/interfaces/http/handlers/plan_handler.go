package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/interfaces/http/response"
	"crosspay.backend/internal/usecases"
	"crosspay.backend/pkg/utils"
)

type plannerService interface {
	Refresh(ctx context.Context, goal entities.PaymentGoal) entities.PlannerSnapshot
	Snapshot() entities.PlannerSnapshot
	Option(id string) (entities.PaymentOption, bool)
	Goal() (entities.PaymentGoal, bool)
	Cancel()
}

type refinerService interface {
	Refine(ctx context.Context, req usecases.RefineRequest) (*usecases.RefineResult, error)
	RefineSwap(ctx context.Context, req usecases.RefineRequest) (*usecases.RefineResult, error)
}

type paymentPreparer interface {
	PrepareBridge(ctx context.Context, option entities.PaymentOption, quote *entities.QuoteSummary, depositor, recipient string) (*usecases.BridgeRun, error)
	PrepareSwap(ctx context.Context, option entities.PaymentOption, quote *entities.SwapQuoteSummary, depositor, recipient string) (*usecases.SwapRun, error)
}

// PlanHandler exposes the deposit planner and quote refinement. Every account plans independently.
type PlanHandler struct {
	planners        func(account string) plannerService
	refiner         refinerService
	preparers       func(ctx context.Context, account string) (paymentPreparer, error)
	showUnavailable bool
}

// NewPlanHandler creates a new plan handler. showUnavailable is the default for goals that do not set it.
// Prepared payments are recorded in the history of the requesting account.
func NewPlanHandler(planners *usecases.PlannerRegistry, refiner *usecases.QuoteRefiner, history *usecases.HistoryRegistry, recorder *usecases.ExecutionRecorder, showUnavailable bool) *PlanHandler {
	return &PlanHandler{
		planners: func(account string) plannerService { return planners.Planner(account) },
		refiner:  refiner,
		preparers: func(ctx context.Context, account string) (paymentPreparer, error) {
			store, err := history.Store(ctx, account)
			if err != nil {
				return nil, err
			}
			return recorder.WithHistory(store), nil
		},
		showUnavailable: showUnavailable,
	}
}

type refreshPlanRequest struct {
	Account                string            `json:"account"`
	Recipient              string            `json:"recipient"`
	TargetToken            string            `json:"targetToken" binding:"required"`
	TargetChainID          int64             `json:"targetChainId" binding:"required"`
	TargetAmount           string            `json:"targetAmount" binding:"required"`
	PriceOverrides         map[string]string `json:"priceOverrides"`
	ShowUnavailableOptions *bool             `json:"showUnavailableOptions"`
}

// RefreshPlan runs a planning pass for the submitted goal and returns the resulting snapshot.
// A newer refresh cancels the running one.
// POST /api/v1/plans/refresh
func (h *PlanHandler) RefreshPlan(c *gin.Context) {
	var input refreshPlanRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	account, ok := requireAccount(c, input.Account)
	if !ok {
		return
	}

	amount, ok := utils.ParseBigInt(input.TargetAmount)
	if !ok || amount.Sign() <= 0 {
		response.Error(c, domainerrors.BadRequest("targetAmount must be a positive integer"))
		return
	}
	overrides, err := parsePriceOverrides(input.PriceOverrides)
	if err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	showUnavailable := h.showUnavailable
	if input.ShowUnavailableOptions != nil {
		showUnavailable = *input.ShowUnavailableOptions
	}

	snapshot := h.planners(account).Refresh(c.Request.Context(), entities.PaymentGoal{
		Account:                account,
		Recipient:              strings.TrimSpace(input.Recipient),
		TargetToken:            input.TargetToken,
		TargetChainID:          input.TargetChainID,
		TargetAmount:           amount,
		PriceOverrides:         overrides,
		ShowUnavailableOptions: showUnavailable,
	})
	response.Success(c, http.StatusOK, gin.H{"plan": snapshot})
}

// GetPlan returns the latest snapshot of the account's planner
// GET /api/v1/plans/current
func (h *PlanHandler) GetPlan(c *gin.Context) {
	account, ok := requireAccount(c, "")
	if !ok {
		return
	}
	planner := h.planners(account)
	snapshot := planner.Snapshot()
	goal, ok := planner.Goal()
	if !ok {
		response.Success(c, http.StatusOK, gin.H{"plan": snapshot})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"plan": snapshot, "goal": goal})
}

// CancelPlan stops the running pass
// POST /api/v1/plans/cancel
func (h *PlanHandler) CancelPlan(c *gin.Context) {
	account, ok := requireAccount(c, "")
	if !ok {
		return
	}
	planner := h.planners(account)
	planner.Cancel()
	response.Success(c, http.StatusOK, gin.H{"plan": planner.Snapshot()})
}

type refineQuoteRequest struct {
	OptionID     string `json:"optionId" binding:"required"`
	TargetAmount string `json:"targetAmount"`
	BufferBps    int64  `json:"bufferBps"`
	Depositor    string `json:"depositor"`
	Recipient    string `json:"recipient"`
}

// RefineQuote converges the quote of a planned option toward the target output
// POST /api/v1/plans/refine
func (h *PlanHandler) RefineQuote(c *gin.Context) {
	var input refineQuoteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	account, ok := requireAccount(c, "")
	if !ok {
		return
	}
	req, err := h.refineRequest(h.planners(account), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.refine(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"optionId": req.Option.ID, "result": result})
}

type preparePaymentRequest struct {
	refineQuoteRequest
	Refine bool `json:"refine"`
}

// PreparePayment records the chosen option in the payment history and returns the quote to sign.
// With refine set the quote is refined first.
// POST /api/v1/plans/prepare
func (h *PlanHandler) PreparePayment(c *gin.Context) {
	var input preparePaymentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	account, ok := requireAccount(c, "")
	if !ok {
		return
	}
	req, err := h.refineRequest(h.planners(account), input.refineQuoteRequest)
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	preparer, err := h.preparers(ctx, account)
	if err != nil {
		response.Error(c, err)
		return
	}
	var refined *usecases.RefineResult
	if input.Refine {
		if refined, err = h.refine(ctx, req); err != nil {
			response.Error(c, err)
			return
		}
	}

	switch req.Option.Mode {
	case entities.PaymentModeBridge:
		var quote *entities.QuoteSummary
		if refined != nil {
			quote = refined.Quote
		}
		run, err := preparer.PrepareBridge(ctx, req.Option, quote, req.Depositor, req.Recipient)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusCreated, gin.H{"bridge": run, "refinement": refined})
	case entities.PaymentModeSwap:
		var quote *entities.SwapQuoteSummary
		if refined != nil {
			quote = refined.SwapQuote
		}
		run, err := preparer.PrepareSwap(ctx, req.Option, quote, req.Depositor, req.Recipient)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusCreated, gin.H{"swap": run, "refinement": refined})
	default:
		response.Error(c, domainerrors.BadRequest("direct options are paid with a plain transfer"))
	}
}

// refineRequest resolves the option and fills target, depositor and recipient from the planner's goal
func (h *PlanHandler) refineRequest(planner plannerService, input refineQuoteRequest) (usecases.RefineRequest, error) {
	option, ok := planner.Option(input.OptionID)
	if !ok {
		return usecases.RefineRequest{}, domainerrors.NotFound("payment option not found")
	}
	goal, _ := planner.Goal()

	req := usecases.RefineRequest{
		Option:       option,
		TargetAmount: goal.TargetAmount,
		BufferBps:    input.BufferBps,
		Depositor:    firstNonEmpty(input.Depositor, goal.Account),
		Recipient:    firstNonEmpty(input.Recipient, goal.Recipient),
	}
	if input.TargetAmount != "" {
		amount, ok := utils.ParseBigInt(input.TargetAmount)
		if !ok || amount.Sign() <= 0 {
			return usecases.RefineRequest{}, domainerrors.BadRequest("targetAmount must be a positive integer")
		}
		req.TargetAmount = amount
	}
	if req.TargetAmount == nil {
		return usecases.RefineRequest{}, domainerrors.BadRequest("targetAmount is required when no plan is active")
	}
	if input.BufferBps < 0 {
		return usecases.RefineRequest{}, domainerrors.BadRequest("bufferBps must not be negative")
	}
	return req, nil
}

func (h *PlanHandler) refine(ctx context.Context, req usecases.RefineRequest) (*usecases.RefineResult, error) {
	if req.Option.Mode == entities.PaymentModeSwap {
		return h.refiner.RefineSwap(ctx, req)
	}
	return h.refiner.Refine(ctx, req)
}

// parsePriceOverrides reads USD prices keyed by token key (chainId:address)
func parsePriceOverrides(raw map[string]string) (map[string]decimal.Decimal, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for key, value := range raw {
		price, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("invalid price override for %s", key)
		}
		out[strings.TrimSpace(key)] = price
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
