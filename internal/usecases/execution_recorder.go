package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/infrastructure/metrics"
	"crosspay.backend/pkg/logger"
)

const userRejectedMessage = "User rejected the request"

// ExecutionRecorder runs payments through the Executor and records every step in the history store.
// Without an Executor it only records: clients execute and report progress themselves.
type ExecutionRecorder struct {
	history  *PaymentHistoryStore
	executor Executor
	bridge   BridgeCapability
	metrics  metrics.Recorder
}

// NewExecutionRecorder creates the recorder. executor and capability may be nil.
func NewExecutionRecorder(history *PaymentHistoryStore, executor Executor, capability BridgeCapability, recorder metrics.Recorder) *ExecutionRecorder {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &ExecutionRecorder{
		history:  history,
		executor: executor,
		bridge:   capability,
		metrics:  recorder,
	}
}

// WithHistory returns a recorder sharing r's collaborators that records into history
func (r *ExecutionRecorder) WithHistory(history *PaymentHistoryStore) *ExecutionRecorder {
	bound := *r
	bound.history = history
	return &bound
}

// BridgeRun is a recorded bridge payment ready to be signed
type BridgeRun struct {
	Entry *entities.PaymentHistoryEntry `json:"entry"`
	Route entities.BridgeRoute          `json:"route"`
	Quote entities.QuoteSummary         `json:"quote"`
}

// SwapRun is a recorded swap payment ready to be signed
type SwapRun struct {
	Entry *entities.PaymentHistoryEntry `json:"entry"`
	Route entities.SwapRoute            `json:"route"`
	Quote entities.SwapQuoteSummary     `json:"quote"`
}

// PrepareBridge validates a bridge option, resolves its spoke pool and records the initial entry.
// Wallet clients sign the returned quote themselves and report progress through HandleProgress.
func (r *ExecutionRecorder) PrepareBridge(ctx context.Context, option entities.PaymentOption, quote *entities.QuoteSummary, depositor, recipient string) (*BridgeRun, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, domainerrors.ErrMissingRecipient
	}
	if option.Mode != entities.PaymentModeBridge || option.Route == nil {
		return nil, fmt.Errorf("option %s is not a bridge option: %w", option.ID, domainerrors.ErrInvalidInput)
	}
	if quote == nil {
		quote = option.Quote
	}
	if quote == nil || quote.InputAmount == nil {
		return nil, fmt.Errorf("option %s has no quote: %w", option.ID, domainerrors.ErrQuoteUnavailable)
	}

	q := *quote
	route := *option.Route
	if q.SpokePoolAddress == "" && r.bridge != nil {
		spoke, err := r.bridge.GetSpokePoolAddress(ctx, route.OriginChainID)
		if err != nil {
			return nil, fmt.Errorf("spoke pool for chain %d: %w", route.OriginChainID, err)
		}
		q.SpokePoolAddress = spoke
	}

	entry, err := r.history.RecordBridgeInit(ctx, PaymentDraft{
		InputToken:         option.DisplayToken,
		OutputToken:        routeOutputToken(route),
		OriginChainID:      route.OriginChainID,
		DestinationChainID: route.DestinationChainID,
		InputAmount:        q.InputAmount,
		OutputAmount:       q.OutputAmount,
		Depositor:          depositor,
		Recipient:          recipient,
	})
	if err != nil {
		return nil, err
	}
	return &BridgeRun{Entry: entry, Route: route, Quote: q}, nil
}

// ExecuteBridge records and executes a bridge option with its (refined) quote
func (r *ExecutionRecorder) ExecuteBridge(ctx context.Context, option entities.PaymentOption, quote *entities.QuoteSummary, depositor, recipient string) (*entities.PaymentHistoryEntry, error) {
	if r.executor == nil {
		return nil, domainerrors.ErrBridgeUnavailable
	}
	run, err := r.PrepareBridge(ctx, option, quote, depositor, recipient)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = r.executor.ExecuteQuote(ctx, run.Route, run.Quote, recipient, r.progressFor(ctx, run.Entry.ID, entities.PaymentModeBridge))
	r.metrics.ObserveLatency(metrics.OpExecute, time.Since(start), metrics.ChainLabels(run.Route.OriginChainID))
	return r.finish(ctx, run.Entry.ID, run.Route.OriginChainID, err)
}

// PrepareSwap validates a swap option and records the initial entry
func (r *ExecutionRecorder) PrepareSwap(ctx context.Context, option entities.PaymentOption, quote *entities.SwapQuoteSummary, depositor, recipient string) (*SwapRun, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, domainerrors.ErrMissingRecipient
	}
	if option.Mode != entities.PaymentModeSwap || option.SwapRoute == nil {
		return nil, fmt.Errorf("option %s is not a swap option: %w", option.ID, domainerrors.ErrInvalidInput)
	}
	if quote == nil {
		quote = option.SwapQuote
	}
	if quote == nil || quote.InputAmount == nil {
		return nil, fmt.Errorf("option %s has no swap quote: %w", option.ID, domainerrors.ErrQuoteUnavailable)
	}

	route := *option.SwapRoute
	entry, err := r.history.RecordSwapInit(ctx, PaymentDraft{
		InputToken:         route.InputToken,
		OutputToken:        route.OutputToken,
		OriginChainID:      route.OriginChainID,
		DestinationChainID: route.DestinationChainID,
		InputAmount:        quote.InputAmount,
		OutputAmount:       quote.ExpectedOutputAmount,
		Depositor:          depositor,
		Recipient:          recipient,
	})
	if err != nil {
		return nil, err
	}
	return &SwapRun{Entry: entry, Route: route, Quote: *quote}, nil
}

// ExecuteSwap records and executes a swap-then-bridge option
func (r *ExecutionRecorder) ExecuteSwap(ctx context.Context, option entities.PaymentOption, quote *entities.SwapQuoteSummary, depositor, recipient string) (*entities.PaymentHistoryEntry, error) {
	if r.executor == nil {
		return nil, domainerrors.ErrBridgeUnavailable
	}
	run, err := r.PrepareSwap(ctx, option, quote, depositor, recipient)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = r.executor.ExecuteSwapQuote(ctx, run.Route, run.Quote, recipient, r.progressFor(ctx, run.Entry.ID, entities.PaymentModeSwap))
	r.metrics.ObserveLatency(metrics.OpExecute, time.Since(start), metrics.ChainLabels(run.Route.OriginChainID))
	return r.finish(ctx, run.Entry.ID, run.Route.OriginChainID, err)
}

// RecordDirectTransfer records a same-chain transfer the caller already submitted.
// The store confirms it through the transaction receipt.
func (r *ExecutionRecorder) RecordDirectTransfer(ctx context.Context, draft PaymentDraft, txHash string) (*entities.PaymentHistoryEntry, error) {
	if strings.TrimSpace(draft.Recipient) == "" {
		return nil, domainerrors.ErrMissingRecipient
	}
	if strings.TrimSpace(txHash) == "" {
		return nil, fmt.Errorf("direct transfer needs a transaction hash: %w", domainerrors.ErrInvalidInput)
	}
	if draft.DestinationChainID == 0 {
		draft.DestinationChainID = draft.OriginChainID
	}
	return r.history.RecordDirectInit(ctx, draft, txHash)
}

// HandleProgress routes one progress event of entry id into the matching store transition
func (r *ExecutionRecorder) HandleProgress(ctx context.Context, id string, mode entities.PaymentMode, ev entities.ProgressEvent) error {
	txHash := ev.TxHash
	if txHash == "" && ev.Receipt != nil {
		txHash = ev.Receipt.TxHash
	}

	switch ev.Status {
	case entities.ProgressTxError:
		_, err := r.history.MarkFailed(ctx, id, failureMessage(ev.Err))
		return err
	case entities.ProgressTxPending, entities.ProgressTxSuccess:
	default:
		return fmt.Errorf("progress status %q: %w", ev.Status, domainerrors.ErrInvalidInput)
	}
	if ev.Status == entities.ProgressTxSuccess && ev.Receipt.Reverted() {
		_, err := r.history.MarkFailed(ctx, id, "Transaction reverted")
		return err
	}
	pending := ev.Status == entities.ProgressTxPending

	var err error
	switch {
	case mode == entities.PaymentModeBridge && ev.Step == entities.ProgressStepWrap:
		if pending {
			_, err = r.history.RecordWrapSubmitted(ctx, id, txHash)
		} else {
			_, err = r.history.RecordWrapConfirmed(ctx, id, txHash)
		}
	case mode == entities.PaymentModeBridge && ev.Step == entities.ProgressStepDeposit:
		if pending {
			_, err = r.history.RecordDepositSubmitted(ctx, id, txHash)
		} else {
			_, err = r.history.RecordDepositConfirmed(ctx, id, txHash, ev.DepositID)
		}
	case mode == entities.PaymentModeSwap && ev.Step == entities.ProgressStepApprove:
		if pending {
			_, err = r.history.RecordApprovalSubmitted(ctx, id, txHash)
		} else {
			_, err = r.history.RecordApprovalConfirmed(ctx, id, txHash)
		}
	case mode == entities.PaymentModeSwap && ev.Step == entities.ProgressStepSwap:
		if pending {
			_, err = r.history.RecordSwapSubmitted(ctx, id, txHash)
		} else {
			_, err = r.history.RecordSwapConfirmed(ctx, id, txHash, ev.DepositID)
		}
	case ev.Step == entities.ProgressStepFill && pending:
		_, err = r.history.UpdateEntry(ctx, id, func(e *entities.PaymentHistoryEntry) {
			if !e.Status.IsFinal() {
				r.history.observe(e, entities.PaymentStatusRelayPending, "")
			}
		})
	case mode == entities.PaymentModeBridge && ev.Step == entities.ProgressStepFill:
		_, err = r.history.RecordRelayFilled(ctx, id, txHash)
	case mode == entities.PaymentModeSwap && ev.Step == entities.ProgressStepFill:
		_, err = r.history.RecordSwapFilled(ctx, id, txHash)
	default:
		return fmt.Errorf("%s step %q in %s mode: %w", ev.Status, ev.Step, mode, domainerrors.ErrInvalidInput)
	}
	return err
}

func (r *ExecutionRecorder) progressFor(ctx context.Context, id string, mode entities.PaymentMode) ProgressFunc {
	return func(ev entities.ProgressEvent) {
		if err := r.HandleProgress(ctx, id, mode, ev); err != nil {
			logger.Warn(ctx, "Recording execution progress failed",
				zap.String("entry_id", id),
				zap.String("step", string(ev.Step)),
				zap.String("status", string(ev.Status)),
				zap.Error(err),
			)
		}
	}
}

// finish fails the entry when the executor returned an error and returns its latest state
func (r *ExecutionRecorder) finish(ctx context.Context, id string, chainID int64, execErr error) (*entities.PaymentHistoryEntry, error) {
	if execErr == nil {
		return r.history.Entry(id)
	}

	r.metrics.IncCounter(metrics.EventExecutionFailed, metrics.ChainLabels(chainID))
	entry, err := r.history.Entry(id)
	if err == nil && entry.Status != entities.PaymentStatusFailed {
		entry, err = r.history.MarkFailed(ctx, id, failureMessage(execErr))
	}
	if err != nil {
		logger.Error(ctx, "Recording execution failure failed", zap.String("entry_id", id), zap.Error(err))
	}
	return entry, fmt.Errorf("execute payment: %w", execErr)
}

func failureMessage(err error) string {
	switch {
	case err == nil:
		return "Transaction failed"
	case errors.Is(err, domainerrors.ErrUserRejected) || strings.Contains(strings.ToLower(err.Error()), "user rejected"):
		return userRejectedMessage
	}
	if reason, ok := decodeRevertDataFromError(err); ok && reason.Summary() != "" {
		return "Transaction reverted: " + reason.Summary()
	}
	return err.Error()
}

func routeOutputToken(route entities.BridgeRoute) entities.TokenConfig {
	return entities.TokenConfig{
		Address: route.DestinationToken,
		Symbol:  route.DestinationTokenSymbol,
		ChainID: route.DestinationChainID,
	}
}
