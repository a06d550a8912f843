package usecases

import (
	"context"
	"fmt"
	"math/big"

	"github.com/volatiletech/null/v8"

	"crosspay.backend/internal/domain/entities"
	"crosspay.backend/pkg/utils"
)

// PaymentDraft carries what is known about a payment before its first transaction
type PaymentDraft struct {
	InputToken         entities.TokenConfig
	OutputToken        entities.TokenConfig
	OriginChainID      int64
	DestinationChainID int64
	InputAmount        *big.Int
	OutputAmount       *big.Int
	Depositor          string
	Recipient          string
}

func (s *PaymentHistoryStore) newEntry(mode entities.PaymentMode, status entities.PaymentStatus, draft PaymentDraft) *entities.PaymentHistoryEntry {
	now := s.nowMs()
	return &entities.PaymentHistoryEntry{
		ID:                 fmt.Sprintf("%s-%d-%s", mode, now, utils.RandomSuffix(6)),
		Mode:               mode,
		Status:             status,
		CreatedAt:          now,
		UpdatedAt:          now,
		InputToken:         draft.InputToken,
		OutputToken:        draft.OutputToken,
		OriginChainID:      draft.OriginChainID,
		DestinationChainID: draft.DestinationChainID,
		InputAmount:        cloneBigInt(draft.InputAmount),
		OutputAmount:       cloneBigInt(draft.OutputAmount),
		Depositor:          draft.Depositor,
		Recipient:          draft.Recipient,
		Timeline: []entities.PaymentTimelineEntry{{
			Stage:     status,
			Label:     status.Label(),
			Timestamp: now,
		}},
	}
}

func (s *PaymentHistoryStore) create(ctx context.Context, e *entities.PaymentHistoryEntry) (*entities.PaymentHistoryEntry, error) {
	if err := s.AddEntry(ctx, e); err != nil {
		return nil, err
	}
	return e.Clone(), nil
}

// transition sets the status and records the milestone on the timeline
func (s *PaymentHistoryStore) transition(e *entities.PaymentHistoryEntry, status entities.PaymentStatus, txHash, notes string) {
	e.Status = status
	e.Timeline = appendTimeline(e.Timeline, entities.PaymentTimelineEntry{
		Stage:     status,
		Label:     status.Label(),
		Timestamp: s.nowMs(),
		TxHash:    txHash,
		Notes:     notes,
	})
}

// observe records a polled status once; repeated observations keep the first timestamp
func (s *PaymentHistoryStore) observe(e *entities.PaymentHistoryEntry, status entities.PaymentStatus, txHash string) bool {
	if e.Status == status {
		return false
	}
	e.Status = status
	for _, r := range e.Timeline {
		if r.Stage == status {
			return true
		}
	}
	e.Timeline = appendTimeline(e.Timeline, entities.PaymentTimelineEntry{
		Stage:     status,
		Label:     status.Label(),
		Timestamp: s.nowMs(),
		TxHash:    txHash,
	})
	return true
}

func (s *PaymentHistoryStore) fail(e *entities.PaymentHistoryEntry, message string) {
	if message == "" {
		message = "Payment failed"
	}
	e.Errors = unionStrings(e.Errors, []string{message})
	s.transition(e, entities.PaymentStatusFailed, "", message)
}

// fill applies a relay fill; the final status depends on the mode
func (s *PaymentHistoryStore) fill(e *entities.PaymentHistoryEntry, fillTxHash string) {
	if fillTxHash != "" {
		e.FillTxHash = null.StringFrom(fillTxHash)
	}
	status := entities.PaymentStatusRelayFilled
	if e.Mode == entities.PaymentModeSwap {
		status = entities.PaymentStatusFilled
	}
	s.transition(e, status, fillTxHash, "")
}

// Direct transfers

func (s *PaymentHistoryStore) RecordDirectInit(ctx context.Context, draft PaymentDraft, txHash string) (*entities.PaymentHistoryEntry, error) {
	e := s.newEntry(entities.PaymentModeDirect, entities.PaymentStatusDirectPending, draft)
	if txHash != "" {
		e.DepositTxHash = null.StringFrom(txHash)
		e.Timeline[0].TxHash = txHash
	}
	return s.create(ctx, e)
}

func (s *PaymentHistoryStore) RecordDirectConfirmed(ctx context.Context, id, txHash string) (*entities.PaymentHistoryEntry, error) {
	return s.UpdateEntry(ctx, id, func(e *entities.PaymentHistoryEntry) {
		if txHash != "" {
			e.DepositTxHash = null.StringFrom(txHash)
		}
		s.transition(e, entities.PaymentStatusDirectConfirmed, txHash, "")
	})
}

func (s *PaymentHistoryStore) FailDirect(ctx context.Context, id, message string) (*entities.PaymentHistoryEntry, error) {
	return s.MarkFailed(ctx, id, message)
}

// Bridge payments

func (s *PaymentHistoryStore) RecordBridgeInit(ctx context.Context, draft PaymentDraft) (*entities.PaymentHistoryEntry, error) {
	return s.create(ctx, s.newEntry(entities.PaymentModeBridge, entities.PaymentStatusInitial, draft))
}

func (s *PaymentHistoryStore) RecordWrapSubmitted(ctx context.Context, id, txHash string) (*entities.PaymentHistoryEntry, error) {
	return s.UpdateEntry(ctx, id, func(e *entities.PaymentHistoryEntry) {
		e.WrapTxHash = null.StringFrom(txHash)
		s.transition(e, entities.PaymentStatusWrapPending, txHash, "")
	})
}

func (s *PaymentHistoryStore) RecordWrapConfirmed(ctx context.Context, id, txHash string) (*entities.PaymentHistoryEntry, error) {
	return s.UpdateEntry(ctx, id, func(e *entities.PaymentHistoryEntry) {
		if txHash != "" {
			e.WrapTxHash = null.StringFrom(txHash)
		}
		s.transition(e, entities.PaymentStatusWrapConfirmed, txHash, "")
	})
}

func (s *PaymentHistoryStore) RecordDepositSubmitted(ctx context.Context, id, txHash string) (*entities.PaymentHistoryEntry, error) {
	return s.UpdateEntry(ctx, id, func(e *entities.PaymentHistoryEntry) {
		e.DepositTxHash = null.StringFrom(txHash)
		s.transition(e, entities.PaymentStatusDepositPending, txHash, "")
	})
}

// RecordDepositConfirmed stores the deposit id emitted by the spoke pool, when known
func (s *PaymentHistoryStore) RecordDepositConfirmed(ctx context.Context, id, txHash string, depositID *big.Int) (*entities.PaymentHistoryEntry, error) {
	return s.UpdateEntry(ctx, id, func(e *entities.PaymentHistoryEntry) {
		if txHash != "" {
			e.DepositTxHash = null.StringFrom(txHash)
		}
		if depositID != nil {
			e.DepositID = cloneBigInt(depositID)
		}
		s.transition(e, entities.PaymentStatusDepositConfirmed, txHash, "")
	})
}

func (s *PaymentHistoryStore) RecordRelayFilled(ctx context.Context, id, fillTxHash string) (*entities.PaymentHistoryEntry, error) {
	return s.UpdateEntry(ctx, id, func(e *entities.PaymentHistoryEntry) {
		s.fill(e, fillTxHash)
	})
}

func (s *PaymentHistoryStore) FailBridge(ctx context.Context, id, message string) (*entities.PaymentHistoryEntry, error) {
	return s.MarkFailed(ctx, id, message)
}

// Swap-then-bridge payments

func (s *PaymentHistoryStore) RecordSwapInit(ctx context.Context, draft PaymentDraft) (*entities.PaymentHistoryEntry, error) {
	return s.create(ctx, s.newEntry(entities.PaymentModeSwap, entities.PaymentStatusInitial, draft))
}

func (s *PaymentHistoryStore) RecordApprovalSubmitted(ctx context.Context, id, txHash string) (*entities.PaymentHistoryEntry, error) {
	return s.UpdateEntry(ctx, id, func(e *entities.PaymentHistoryEntry) {
		e.ApprovalTxHashes = unionStrings(e.ApprovalTxHashes, []string{txHash})
		s.transition(e, entities.PaymentStatusApprovalPending, txHash, "")
	})
}

func (s *PaymentHistoryStore) RecordApprovalConfirmed(ctx context.Context, id, txHash string) (*entities.PaymentHistoryEntry, error) {
	return s.UpdateEntry(ctx, id, func(e *entities.PaymentHistoryEntry) {
		e.ApprovalTxHashes = unionStrings(e.ApprovalTxHashes, []string{txHash})
		s.transition(e, entities.PaymentStatusApprovalConfirmed, txHash, "")
	})
}

func (s *PaymentHistoryStore) RecordSwapSubmitted(ctx context.Context, id, txHash string) (*entities.PaymentHistoryEntry, error) {
	return s.UpdateEntry(ctx, id, func(e *entities.PaymentHistoryEntry) {
		e.SwapTxHash = null.StringFrom(txHash)
		s.transition(e, entities.PaymentStatusSwapPending, txHash, "")
	})
}

// RecordSwapConfirmed marks the origin transaction mined. It also emitted the bridge
// deposit, so its hash becomes the deposit tx and relay polling starts.
func (s *PaymentHistoryStore) RecordSwapConfirmed(ctx context.Context, id, txHash string, depositID *big.Int) (*entities.PaymentHistoryEntry, error) {
	return s.UpdateEntry(ctx, id, func(e *entities.PaymentHistoryEntry) {
		if txHash != "" {
			e.SwapTxHash = null.StringFrom(txHash)
			e.DepositTxHash = null.StringFrom(txHash)
		}
		if depositID != nil {
			e.DepositID = cloneBigInt(depositID)
		}
		s.transition(e, entities.PaymentStatusSwapConfirmed, txHash, "")
	})
}

func (s *PaymentHistoryStore) RecordSwapFilled(ctx context.Context, id, fillTxHash string) (*entities.PaymentHistoryEntry, error) {
	return s.UpdateEntry(ctx, id, func(e *entities.PaymentHistoryEntry) {
		s.fill(e, fillTxHash)
	})
}

func (s *PaymentHistoryStore) FailSwap(ctx context.Context, id, message string) (*entities.PaymentHistoryEntry, error) {
	return s.MarkFailed(ctx, id, message)
}
