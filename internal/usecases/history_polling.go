package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/infrastructure/bridge"
	"crosspay.backend/internal/infrastructure/indexer"
	"crosspay.backend/internal/infrastructure/metrics"
	"crosspay.backend/pkg/logger"
)

// evaluatePolling starts or stops the poller of e after every change
func (s *PaymentHistoryStore) evaluatePolling(e *entities.PaymentHistoryEntry) {
	switch {
	case e.Mode == entities.PaymentModeDirect &&
		e.Status == entities.PaymentStatusDirectPending &&
		e.DepositTxHash.Valid && s.deps.Readers != nil:
		s.startPoller(e.ID, s.checkDirect)
	case e.IsPollable() && e.Status != entities.PaymentStatusRefunded &&
		(s.deps.Tracker != nil || s.deps.Indexer != nil):
		s.startPoller(e.ID, s.checkDeposit)
	default:
		s.poller.Stop(e.ID)
	}
}

func (s *PaymentHistoryStore) startPoller(id string, check func(ctx context.Context, account, id string) bool) {
	s.mu.Lock()
	ctx, account := s.baseCtx, s.account
	s.mu.Unlock()
	if account == "" {
		return
	}
	s.poller.Start(ctx, id, func(ctx context.Context) bool {
		return check(ctx, account, id)
	})
}

// checkDeposit is one relay status poll. It returns true once no further poll is needed.
func (s *PaymentHistoryStore) checkDeposit(ctx context.Context, account, id string) bool {
	if s.Account() != account {
		return true
	}
	e, err := s.Entry(id)
	if err != nil || !e.IsPollable() {
		return true
	}
	s.deps.Metrics.IncCounter(metrics.EventPollCheck, metrics.ChainLabels(e.OriginChainID))

	status := s.lookupDeposit(ctx, e)
	if status == nil || ctx.Err() != nil {
		return ctx.Err() != nil
	}
	return s.applyDepositStatus(ctx, id, status)
}

// lookupDeposit tries the bridge deposit lookup, then the fill-by-tx lookup, then the indexer
func (s *PaymentHistoryStore) lookupDeposit(ctx context.Context, e *entities.PaymentHistoryEntry) *bridge.DepositStatus {
	txHash := ""
	if e.DepositTxHash.Valid {
		txHash = e.DepositTxHash.String
	}

	if s.deps.Tracker != nil {
		st, err := s.deps.Tracker.GetDeposit(ctx, bridge.DepositLookup{
			OriginChainID: e.OriginChainID,
			DepositID:     e.DepositID,
			DepositTxHash: txHash,
		})
		if err == nil && st != nil {
			return st
		}
		logDepositMiss(ctx, "bridge deposit lookup", e, err)

		if txHash != "" {
			st, err = s.deps.Tracker.GetFillByDepositTx(ctx, e.OriginChainID, txHash)
			if err == nil && st != nil {
				return st
			}
			logDepositMiss(ctx, "bridge fill lookup", e, err)
		}
	}

	if s.deps.Indexer != nil {
		d, err := s.deps.Indexer.FindDeposit(ctx, indexer.Query{
			OriginChainID:      e.OriginChainID,
			DestinationChainID: e.DestinationChainID,
			DepositID:          e.DepositID,
			DepositTxHash:      txHash,
		})
		if err == nil && d != nil {
			status := strings.TrimSpace(d.Status)
			if d.IsFilled() && !strings.EqualFold(status, bridge.DepositStatusSettled) {
				status = bridge.DepositStatusFilled
			}
			return &bridge.DepositStatus{
				Status:             status,
				OriginChainID:      d.OriginChainID,
				DestinationChainID: d.DestinationChainID,
				DepositID:          d.DepositID,
				DepositTxHash:      d.DepositTxHash,
				FillTxHash:         d.FillTxHash,
			}
		}
		logDepositMiss(ctx, "indexer lookup", e, err)
	}
	return nil
}

func logDepositMiss(ctx context.Context, source string, e *entities.PaymentHistoryEntry, err error) {
	if err == nil || errors.Is(err, domainerrors.ErrNotFound) || ctx.Err() != nil {
		return
	}
	logger.Debug(ctx, "Deposit status lookup failed",
		zap.String("source", source),
		zap.String("entry_id", e.ID),
		zap.Int64("chain_id", e.OriginChainID),
		zap.Error(err),
	)
}

// applyDepositStatus folds a polled status into the entry. Entries that reached a final
// status in the meantime are left alone.
func (s *PaymentHistoryStore) applyDepositStatus(ctx context.Context, id string, st *bridge.DepositStatus) bool {
	done := false
	_, err := s.mutate(ctx, id, func(e *entities.PaymentHistoryEntry) bool {
		if e.Status.IsFinal() {
			done = true
			return false
		}
		changed := false
		if e.DepositID == nil && st.DepositID != nil {
			e.DepositID = cloneBigInt(st.DepositID)
			changed = true
		}
		if !e.DepositTxHash.Valid && st.DepositTxHash != "" {
			e.DepositTxHash = null.StringFrom(st.DepositTxHash)
			changed = true
		}

		switch st.Status {
		case bridge.DepositStatusFilled:
			s.fill(e, st.FillTxHash)
			changed = true
		case bridge.DepositStatusSettled:
			s.fill(e, st.FillTxHash)
			s.observe(e, entities.PaymentStatusSettled, st.FillTxHash)
			changed = true
		case bridge.DepositStatusSlowFillReady:
			changed = s.observe(e, entities.PaymentStatusSlowFillReady, "") || changed
		case bridge.DepositStatusSlowFillRequested:
			changed = s.observe(e, entities.PaymentStatusRequestedSlowFill, "") || changed
		case bridge.DepositStatusPending:
			changed = s.observe(e, entities.PaymentStatusRelayPending, "") || changed
		case bridge.DepositStatusExpired:
			changed = s.observe(e, entities.PaymentStatusExpired, "") || changed
		case bridge.DepositStatusRefunded:
			done = true
			changed = s.observe(e, entities.PaymentStatusRefunded, "") || changed
		}
		if e.Status.IsFinal() {
			done = true
		}
		return changed
	})
	if err != nil {
		return true
	}
	if done {
		s.deps.Metrics.IncCounter(metrics.EventPollFilled, metrics.ChainLabels(st.OriginChainID))
	}
	return done
}

// checkDirect resolves a direct transfer through its transaction receipt
func (s *PaymentHistoryStore) checkDirect(ctx context.Context, account, id string) bool {
	if s.Account() != account {
		return true
	}
	e, err := s.Entry(id)
	if err != nil || e.Status != entities.PaymentStatusDirectPending || !e.DepositTxHash.Valid {
		return true
	}

	reader, err := s.deps.Readers.Reader(e.OriginChainID)
	if err != nil {
		logger.Warn(ctx, "No reader for direct payment check", zap.Int64("chain_id", e.OriginChainID), zap.Error(err))
		return false
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.ReceiptTimeout)
	defer cancel()
	receipt, err := reader.WaitForTransactionReceipt(waitCtx, e.DepositTxHash.String)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		logger.Debug(ctx, "Direct payment receipt not available yet", zap.String("entry_id", id), zap.Error(err))
		return false
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		_, err = s.RecordDirectConfirmed(ctx, id, e.DepositTxHash.String)
	} else {
		_, err = s.FailDirect(ctx, id, "Transaction reverted")
	}
	if err != nil {
		logger.Warn(ctx, "Recording direct payment outcome failed", zap.String("entry_id", id), zap.Error(err))
	}
	return true
}

// FetchRemoteDeposits reconciles the active account's history with the indexer
func (s *PaymentHistoryStore) FetchRemoteDeposits(ctx context.Context) error {
	account := s.Account()
	if account == "" {
		return domainerrors.ErrNoAccountConfigured
	}
	if s.deps.Indexer == nil {
		return domainerrors.ErrIndexerUnavailable
	}

	deposits, err := s.deps.Indexer.GetDepositsByDepositor(ctx, account, s.opts.RemoteLimit)
	if err != nil {
		return fmt.Errorf("fetch remote deposits: %w", err)
	}
	remote := make([]*entities.PaymentHistoryEntry, 0, len(deposits))
	for _, d := range deposits {
		remote = append(remote, s.remoteEntry(ctx, d))
	}

	s.mu.Lock()
	if s.account != account {
		s.mu.Unlock()
		return nil
	}
	s.entries = MergeEntries(s.entries, remote)
	s.commitLocked(ctx, nil)

	s.deps.Metrics.IncCounter(metrics.EventRemoteMerged, nil)
	for _, e := range s.Snapshot().Entries {
		s.evaluatePolling(e)
	}
	return nil
}

// remoteEntry rebuilds a history entry from an indexer deposit with a synthesized timeline
func (s *PaymentHistoryStore) remoteEntry(ctx context.Context, d indexer.Deposit) *entities.PaymentHistoryEntry {
	ref := strings.ToLower(d.DepositTxHash)
	if ref == "" && d.DepositID != nil {
		ref = d.DepositID.String()
	}
	ts := d.QuoteTimestamp * 1000
	if ts == 0 {
		ts = s.nowMs()
	}

	e := &entities.PaymentHistoryEntry{
		ID:                 entities.RemoteEntryPrefix + ref,
		Mode:               entities.PaymentModeBridge,
		CreatedAt:          ts,
		UpdatedAt:          ts,
		InputToken:         s.remoteToken(ctx, d.InputToken, d.OriginChainID),
		OutputToken:        s.remoteToken(ctx, d.OutputToken, d.DestinationChainID),
		OriginChainID:      d.OriginChainID,
		DestinationChainID: d.DestinationChainID,
		InputAmount:        cloneBigInt(d.InputAmount),
		OutputAmount:       cloneBigInt(d.OutputAmount),
		DepositID:          cloneBigInt(d.DepositID),
		Depositor:          d.Depositor,
		Recipient:          d.Recipient,
	}
	if d.DepositTxHash != "" {
		e.DepositTxHash = null.StringFrom(d.DepositTxHash)
	}

	stage := func(status entities.PaymentStatus, txHash string) entities.PaymentTimelineEntry {
		return entities.PaymentTimelineEntry{Stage: status, Label: status.Label(), Timestamp: ts, TxHash: txHash}
	}
	timeline := []entities.PaymentTimelineEntry{stage(entities.PaymentStatusDepositConfirmed, d.DepositTxHash)}

	switch {
	case d.IsFilled():
		e.Status = entities.PaymentStatusSettled
		if d.FillTxHash != "" {
			e.FillTxHash = null.StringFrom(d.FillTxHash)
		}
		timeline = append(timeline,
			stage(entities.PaymentStatusRelayFilled, d.FillTxHash),
			stage(entities.PaymentStatusSettled, d.FillTxHash),
		)
	case strings.EqualFold(d.Status, bridge.DepositStatusSlowFillReady):
		e.Status = entities.PaymentStatusSlowFillReady
		timeline = append(timeline, stage(entities.PaymentStatusSlowFillReady, ""))
	case strings.EqualFold(d.Status, bridge.DepositStatusSlowFillRequested):
		e.Status = entities.PaymentStatusRequestedSlowFill
		timeline = append(timeline, stage(entities.PaymentStatusRequestedSlowFill, ""))
	case strings.EqualFold(d.Status, bridge.DepositStatusExpired):
		e.Status = entities.PaymentStatusExpired
		timeline = append(timeline, stage(entities.PaymentStatusExpired, ""))
	case strings.EqualFold(d.Status, bridge.DepositStatusRefunded):
		e.Status = entities.PaymentStatusRefunded
		timeline = append(timeline, stage(entities.PaymentStatusRefunded, ""))
	default:
		e.Status = entities.PaymentStatusRelayPending
		timeline = append(timeline, stage(entities.PaymentStatusRelayPending, ""))
	}
	sortTimeline(timeline)
	e.Timeline = timeline
	return e
}

func (s *PaymentHistoryStore) remoteToken(ctx context.Context, address string, chainID int64) entities.TokenConfig {
	if s.deps.Tokens != nil && address != "" {
		return s.deps.Tokens.ResolveToken(ctx, address, chainID)
	}
	return entities.TokenConfig{Address: address, ChainID: chainID}
}
