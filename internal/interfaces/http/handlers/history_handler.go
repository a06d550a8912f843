package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/interfaces/http/response"
	"crosspay.backend/internal/usecases"
	"crosspay.backend/pkg/utils"
)

type historyService interface {
	Account() string
	Snapshot() entities.PaymentHistorySnapshot
	Entry(id string) (*entities.PaymentHistoryEntry, error)
	MarkFailed(ctx context.Context, id, message string) (*entities.PaymentHistoryEntry, error)
	FetchRemoteDeposits(ctx context.Context) error
	Clear(ctx context.Context) error
}

type progressRecorder interface {
	RecordDirectTransfer(ctx context.Context, draft usecases.PaymentDraft, txHash string) (*entities.PaymentHistoryEntry, error)
	HandleProgress(ctx context.Context, id string, mode entities.PaymentMode, ev entities.ProgressEvent) error
}

// historySession resolves the history and recorder bound to one account
type historySession func(ctx context.Context, account string) (historyService, progressRecorder, error)

// HistoryHandler exposes the payment history of the account named by X-Account
type HistoryHandler struct {
	session historySession
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(registry *usecases.HistoryRegistry, recorder *usecases.ExecutionRecorder) *HistoryHandler {
	return &HistoryHandler{
		session: func(ctx context.Context, account string) (historyService, progressRecorder, error) {
			store, err := registry.Store(ctx, account)
			if err != nil {
				return nil, nil, err
			}
			return store, recorder.WithHistory(store), nil
		},
	}
}

// InitHistory loads the history of the request's account
// POST /api/v1/history/init
func (h *HistoryHandler) InitHistory(c *gin.Context) {
	var input struct {
		Account string `json:"account"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			response.Error(c, domainerrors.BadRequest(err.Error()))
			return
		}
	}
	account, ok := requireAccount(c, input.Account)
	if !ok {
		return
	}

	history, _, err := h.session(c.Request.Context(), account)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"history": history.Snapshot()})
}

// ListHistory returns the entries of the request's account, newest first
// GET /api/v1/history
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	history, _, ok := h.resolve(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"history": history.Snapshot()})
}

// GetEntry returns one history entry
// GET /api/v1/history/:id
func (h *HistoryHandler) GetEntry(c *gin.Context) {
	history, _, ok := h.resolve(c)
	if !ok {
		return
	}
	entry, err := history.Entry(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"entry": entry})
}

// FailEntry marks an entry as failed
// POST /api/v1/history/:id/fail
func (h *HistoryHandler) FailEntry(c *gin.Context) {
	history, _, ok := h.resolve(c)
	if !ok {
		return
	}
	var input struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	entry, err := history.MarkFailed(c.Request.Context(), c.Param("id"), input.Message)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"entry": entry})
}

// SyncHistory merges the indexer's deposits of the request's account into its history
// POST /api/v1/history/sync
func (h *HistoryHandler) SyncHistory(c *gin.Context) {
	history, _, ok := h.resolve(c)
	if !ok {
		return
	}
	if err := history.FetchRemoteDeposits(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"history": history.Snapshot()})
}

// ClearHistory drops every entry of the request's account
// DELETE /api/v1/history
func (h *HistoryHandler) ClearHistory(c *gin.Context) {
	history, _, ok := h.resolve(c)
	if !ok {
		return
	}
	if err := history.Clear(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type directTransferRequest struct {
	InputToken         entities.TokenConfig `json:"inputToken"`
	OutputToken        entities.TokenConfig `json:"outputToken"`
	OriginChainID      int64                `json:"originChainId" binding:"required"`
	DestinationChainID int64                `json:"destinationChainId"`
	InputAmount        string               `json:"inputAmount" binding:"required"`
	OutputAmount       string               `json:"outputAmount"`
	Depositor          string               `json:"depositor"`
	Recipient          string               `json:"recipient"`
	TxHash             string               `json:"txHash" binding:"required"`
}

// RecordDirect records a same-chain transfer the wallet already submitted
// POST /api/v1/history/direct
func (h *HistoryHandler) RecordDirect(c *gin.Context) {
	history, recorder, ok := h.resolve(c)
	if !ok {
		return
	}
	var input directTransferRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	if input.InputToken.Address == "" {
		response.Error(c, domainerrors.BadRequest("inputToken is required"))
		return
	}
	inputAmount, ok := utils.ParseBigInt(input.InputAmount)
	if !ok {
		response.Error(c, domainerrors.BadRequest("inputAmount must be an integer"))
		return
	}
	outputAmount := inputAmount
	if input.OutputAmount != "" {
		if outputAmount, ok = utils.ParseBigInt(input.OutputAmount); !ok {
			response.Error(c, domainerrors.BadRequest("outputAmount must be an integer"))
			return
		}
	}
	outputToken := input.OutputToken
	if outputToken.Address == "" {
		outputToken = input.InputToken
	}

	entry, err := recorder.RecordDirectTransfer(c.Request.Context(), usecases.PaymentDraft{
		InputToken:         input.InputToken,
		OutputToken:        outputToken,
		OriginChainID:      input.OriginChainID,
		DestinationChainID: input.DestinationChainID,
		InputAmount:        inputAmount,
		OutputAmount:       outputAmount,
		Depositor:          firstNonEmpty(input.Depositor, history.Account()),
		Recipient:          input.Recipient,
	}, input.TxHash)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"entry": entry})
}

type progressRequest struct {
	Mode      entities.PaymentMode    `json:"mode" binding:"required"`
	Step      entities.ProgressStep   `json:"step" binding:"required"`
	Status    entities.ProgressStatus `json:"status" binding:"required"`
	TxHash    string                  `json:"txHash"`
	Receipt   *entities.TxReceipt     `json:"txReceipt"`
	DepositID string                  `json:"depositId"`
	Error     string                  `json:"error"`
}

// RecordProgress applies a wallet execution progress event to an entry
// POST /api/v1/history/:id/progress
func (h *HistoryHandler) RecordProgress(c *gin.Context) {
	history, recorder, ok := h.resolve(c)
	if !ok {
		return
	}
	var input progressRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	ev := entities.ProgressEvent{
		Step:    input.Step,
		Status:  input.Status,
		TxHash:  strings.TrimSpace(input.TxHash),
		Receipt: input.Receipt,
	}
	if input.DepositID != "" {
		id, ok := utils.ParseBigInt(input.DepositID)
		if !ok {
			response.Error(c, domainerrors.BadRequest("depositId must be an integer"))
			return
		}
		ev.DepositID = id
	}
	if input.Error != "" {
		ev.Err = errors.New(input.Error)
	}

	id := c.Param("id")
	if err := recorder.HandleProgress(c.Request.Context(), id, input.Mode, ev); err != nil {
		response.Error(c, err)
		return
	}
	entry, err := history.Entry(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"entry": entry})
}

// resolve binds the request to the history of its X-Account
func (h *HistoryHandler) resolve(c *gin.Context) (historyService, progressRecorder, bool) {
	account, ok := requireAccount(c, "")
	if !ok {
		return nil, nil, false
	}
	history, recorder, err := h.session(c.Request.Context(), account)
	if err != nil {
		response.Error(c, err)
		return nil, nil, false
	}
	return history, recorder, true
}
