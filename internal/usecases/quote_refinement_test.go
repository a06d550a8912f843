package usecases

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/infrastructure/bridge"
)

// feeQuote prices 1% plus a flat fee of 1000 units
func feeQuote(req bridge.QuoteRequest) (*bridge.Quote, error) {
	out := new(big.Int).Mul(req.Amount, big.NewInt(99))
	out.Quo(out, big.NewInt(100))
	out.Sub(out, big.NewInt(1000))
	return &bridge.Quote{InputAmount: new(big.Int).Set(req.Amount), OutputAmount: out, QuoteTimestamp: 1_700_000_000}, nil
}

func quotedBridgeOption(balance, input, output int64) entities.PaymentOption {
	opt := bridgeOption(10, usdcOP, balance)
	opt.Quote = &entities.QuoteSummary{
		InputAmount:  big.NewInt(input),
		OutputAmount: big.NewInt(output),
		Limits:       entities.DepositLimits{MinDeposit: big.NewInt(1), MaxDeposit: big.NewInt(1_000_000_000)},
	}
	return opt
}

func TestQuoteRefiner_ConvergesIntoWindow(t *testing.T) {
	b := new(MockBridge)
	b.On("GetQuote", mock.Anything, mock.Anything).Return(feeQuote, nil)
	r := NewQuoteRefiner(b, nil)

	res, err := r.Refine(context.Background(), RefineRequest{
		Option:       quotedBridgeOption(10_000_000, 2_000_000, 1_979_000),
		TargetAmount: big.NewInt(1_000_000),
	})
	require.NoError(t, err)
	assert.True(t, res.ReachedTarget)
	assert.LessOrEqual(t, res.Iterations, MaxRefinementIterations)
	b.AssertNumberOfCalls(t, "GetQuote", res.Iterations)

	out := res.Quote.OutputAmount
	assert.GreaterOrEqual(t, out.Cmp(big.NewInt(1_000_000)), 0)
	assert.LessOrEqual(t, out.Cmp(big.NewInt(1_005_000)), 0)
	assert.Equal(t, int64((1_700_000_000+300)*1000), res.Quote.ExpiresAt)
}

func TestQuoteRefiner_AlreadyInsideWindow(t *testing.T) {
	b := new(MockBridge)
	r := NewQuoteRefiner(b, nil)

	res, err := r.Refine(context.Background(), RefineRequest{
		Option:       quotedBridgeOption(10_000_000, 1_010_000, 1_002_000),
		TargetAmount: big.NewInt(1_000_000),
	})
	require.NoError(t, err)
	assert.Zero(t, res.Iterations)
	b.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything)
	assert.Equal(t, big.NewInt(1_002_000), res.Quote.OutputAmount)
}

func TestQuoteRefiner_UnreachableTargetReturnsHighest(t *testing.T) {
	b := new(MockBridge)
	b.On("GetQuote", mock.Anything, mock.Anything).Return(parQuote, nil).Once()
	r := NewQuoteRefiner(b, nil)

	res, err := r.Refine(context.Background(), RefineRequest{
		Option:       quotedBridgeOption(500_000, 100_000, 100_000),
		TargetAmount: big.NewInt(1_000_000),
	})
	require.NoError(t, err)
	assert.False(t, res.ReachedTarget)
	assert.Equal(t, big.NewInt(500_000), res.Quote.OutputAmount)
	assert.Equal(t, 1, res.Iterations, "second clamp to the balance stops the loop")
	assert.Equal(t, []*big.Int{big.NewInt(500_000)}, quotedAmounts(b))
	b.AssertExpectations(t)
}

func TestQuoteRefiner_MinimumAboveBalance(t *testing.T) {
	b := new(MockBridge)
	r := NewQuoteRefiner(b, nil)

	opt := quotedBridgeOption(500, 500, 490)
	opt.Quote.Limits.MinDeposit = big.NewInt(1000)

	_, err := r.Refine(context.Background(), RefineRequest{Option: opt, TargetAmount: big.NewInt(400)})
	require.ErrorIs(t, err, domainerrors.ErrRefinementFailed)
	b.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything)
}

func TestQuoteRefiner_FetchFailureKeepsError(t *testing.T) {
	b := new(MockBridge)
	b.On("GetQuote", mock.Anything, mock.Anything).Return(nil, errors.New("upstream 500"))
	r := NewQuoteRefiner(b, nil)

	opt := quotedBridgeOption(10_000_000, 2_000_000, 1_979_000)
	_, err := r.Refine(context.Background(), RefineRequest{Option: opt, TargetAmount: big.NewInt(1_000_000)})
	require.ErrorIs(t, err, domainerrors.ErrRefinementFailed)
	assert.Equal(t, big.NewInt(1_979_000), opt.Quote.OutputAmount, "previous quote is untouched")
}

func TestQuoteRefiner_FetchesLimitsWhenQuoteHasNone(t *testing.T) {
	b := new(MockBridge)
	b.On("GetLimits", mock.Anything, originChain(10)).
		Return(&entities.DepositLimits{MinDeposit: big.NewInt(5_000_000), MaxDeposit: big.NewInt(9_000_000)}, nil).Once()
	r := NewQuoteRefiner(b, nil)

	opt := bridgeOption(10, usdcOP, 1_000_000)
	_, err := r.Refine(context.Background(), RefineRequest{Option: opt, TargetAmount: big.NewInt(100)})
	require.ErrorIs(t, err, domainerrors.ErrRefinementFailed)
	b.AssertExpectations(t)
	b.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything)
}

func TestQuoteRefiner_RejectsWrongMode(t *testing.T) {
	r := NewQuoteRefiner(new(MockBridge), nil)
	_, err := r.Refine(context.Background(), RefineRequest{Option: swapOption(10, "0xdai", 1), TargetAmount: big.NewInt(1)})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)

	_, err = r.RefineSwap(context.Background(), RefineRequest{Option: bridgeOption(10, usdcOP, 1), TargetAmount: big.NewInt(1), Depositor: testUser})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestRefineLoop_KeepsClosestAboveTarget(t *testing.T) {
	outputs := []int64{1100, 1020, 999, 1003}
	calls := 0
	fetch := func(_ context.Context, amount *big.Int) (quotePoint[int], error) {
		out := outputs[calls]
		calls++
		return quotePoint[int]{quote: calls, input: new(big.Int).Set(amount), output: big.NewInt(out)}, nil
	}
	bounds := refineBounds{
		target:           big.NewInt(1000),
		targetWithBuffer: big.NewInt(1005),
		lower:            big.NewInt(1),
		upper:            big.NewInt(10_000),
	}
	initial := &quotePoint[int]{quote: 0, input: big.NewInt(1000), output: big.NewInt(900)}

	best, iterations, err := refineLoop(context.Background(), initial, bounds, MaxRefinementIterations, fetch)
	require.NoError(t, err)
	assert.Equal(t, 4, iterations)
	assert.Equal(t, big.NewInt(1003), best.output)
}

func TestRefineLoop_BoundedIterations(t *testing.T) {
	calls := 0
	// always lands far above the window with a drifting rate so the input keeps changing
	fetch := func(_ context.Context, amount *big.Int) (quotePoint[int], error) {
		calls++
		out := new(big.Int).Mul(amount, big.NewInt(2))
		out.Add(out, big.NewInt(int64(calls*100)))
		return quotePoint[int]{input: new(big.Int).Set(amount), output: out}, nil
	}
	bounds := refineBounds{
		target:           big.NewInt(1000),
		targetWithBuffer: big.NewInt(1005),
		lower:            big.NewInt(1),
		upper:            big.NewInt(1_000_000),
	}
	initial := &quotePoint[int]{input: big.NewInt(10), output: big.NewInt(5)}

	_, iterations, err := refineLoop(context.Background(), initial, bounds, MaxRefinementIterations, fetch)
	require.NoError(t, err)
	assert.LessOrEqual(t, iterations, MaxRefinementIterations)
	assert.Equal(t, iterations, calls)
}

func TestQuoteRefiner_SwapUsesExactInput(t *testing.T) {
	exactInput := mock.MatchedBy(func(req bridge.SwapQuoteRequest) bool { return req.TradeType == TradeTypeExactInput })
	b := new(MockBridge)
	b.On("GetSwapQuote", mock.Anything, exactInput).Return(func(req bridge.SwapQuoteRequest) (*bridge.SwapQuote, error) {
		out := new(big.Int).Quo(req.Amount, big.NewInt(2))
		return &bridge.SwapQuote{InputAmount: new(big.Int).Set(req.Amount), ExpectedOutputAmount: out, QuoteExpiryTimestamp: 1_700_000_000}, nil
	}, nil)
	r := NewQuoteRefiner(b, nil)

	opt := swapOption(10, "0xdai", 10_000)
	opt.SwapQuote = &entities.SwapQuoteSummary{InputAmount: big.NewInt(4000), ExpectedOutputAmount: big.NewInt(2000)}

	res, err := r.RefineSwap(context.Background(), RefineRequest{Option: opt, TargetAmount: big.NewInt(1000), Depositor: testUser})
	require.NoError(t, err)
	require.NotNil(t, res.SwapQuote)
	assert.True(t, res.ReachedTarget)
	assert.Equal(t, big.NewInt(1005), res.SwapQuote.ExpectedOutputAmount)

	_, err = r.RefineSwap(context.Background(), RefineRequest{Option: opt, TargetAmount: big.NewInt(1000)})
	assert.ErrorIs(t, err, domainerrors.ErrWalletNotConnected)
}
