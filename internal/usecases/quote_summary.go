package usecases

import (
	"math/big"

	"crosspay.backend/internal/domain/entities"
	"crosspay.backend/internal/infrastructure/bridge"
)

// toQuoteSummary converts a bridge quote; fees are the sum of relayer capital, relayer gas and LP fees
func toQuoteSummary(q *bridge.Quote, limits *entities.DepositLimits) *entities.QuoteSummary {
	fees := new(big.Int)
	for _, fee := range []bridge.Fee{q.RelayerCapitalFee, q.RelayerGasFee, q.LpFee} {
		if fee.Total != nil {
			fees.Add(fees, fee.Total)
		}
	}

	summary := &entities.QuoteSummary{
		InputAmount:          cloneBigInt(q.InputAmount),
		OutputAmount:         cloneBigInt(q.OutputAmount),
		FeesTotal:            fees,
		ExpiresAt:            (q.QuoteTimestamp + QuoteValiditySeconds) * 1000,
		Limits:               q.Limits,
		EstimatedFillTimeSec: q.EstimatedFillTimeSec,
		SpokePoolAddress:     q.SpokePoolAddress,
		Raw:                  q.Raw,
	}
	if limits != nil {
		summary.Limits = *limits
	}
	return summary
}

// toSwapQuoteSummary expires the quote when the fill could no longer land before the deadline
func toSwapQuoteSummary(q *bridge.SwapQuote) *entities.SwapQuoteSummary {
	expiresAt := q.QuoteExpiryTimestamp * 1000
	if q.FillDeadline > 0 {
		expiresAt = (q.FillDeadline - q.ExpectedFillTimeSec) * 1000
	}
	return &entities.SwapQuoteSummary{
		InputAmount:          cloneBigInt(q.InputAmount),
		RequiredInputAmount:  cloneBigInt(q.RequiredInputAmount),
		ExpectedOutputAmount: cloneBigInt(q.ExpectedOutputAmount),
		MinOutputAmount:      cloneBigInt(q.MinOutputAmount),
		ApprovalTxns:         q.ApprovalTxns,
		OriginChainID:        q.OriginChainID,
		DestinationChainID:   q.DestinationChainID,
		ExpiresAt:            expiresAt,
		EstimatedFillTimeSec: q.ExpectedFillTimeSec,
		Raw:                  q.Raw,
	}
}

// requiredSwapInput is what the balance has to cover for a swap quote
func requiredSwapInput(q *entities.SwapQuoteSummary) *big.Int {
	if q.RequiredInputAmount != nil && q.RequiredInputAmount.Sign() > 0 {
		return q.RequiredInputAmount
	}
	return q.InputAmount
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
