package usecases

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/infrastructure/bridge"
	"crosspay.backend/internal/infrastructure/metrics"
	"crosspay.backend/pkg/logger"
	"crosspay.backend/pkg/utils"
)

// RefineRequest asks for an input amount whose output lands just above TargetAmount
type RefineRequest struct {
	Option       entities.PaymentOption
	TargetAmount *big.Int
	// BufferBps is the tolerated overshoot above the target; zero means DefaultSlippageBufferBps
	BufferBps int64
	Depositor string
	Recipient string
}

// RefineResult carries the best quote found. ReachedTarget is false when no quote
// reached the target and the highest output was returned instead.
type RefineResult struct {
	Quote         *entities.QuoteSummary     `json:"quote,omitempty"`
	SwapQuote     *entities.SwapQuoteSummary `json:"swapQuote,omitempty"`
	Iterations    int                        `json:"iterations"`
	ReachedTarget bool                       `json:"reachedTarget"`
}

// QuoteRefiner converges a quote's input toward the target output
type QuoteRefiner struct {
	bridge        BridgeCapability
	metrics       metrics.Recorder
	maxIterations int
}

func NewQuoteRefiner(capability BridgeCapability, recorder metrics.Recorder) *QuoteRefiner {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &QuoteRefiner{
		bridge:        capability,
		metrics:       recorder,
		maxIterations: MaxRefinementIterations,
	}
}

type quotePoint[Q any] struct {
	quote  Q
	input  *big.Int
	output *big.Int
}

type refineBounds struct {
	target           *big.Int
	targetWithBuffer *big.Int
	lower            *big.Int
	upper            *big.Int
}

// Refine re-quotes a bridge option at the input implied by its current rate
func (r *QuoteRefiner) Refine(ctx context.Context, req RefineRequest) (*RefineResult, error) {
	if r.bridge == nil {
		return nil, domainerrors.ErrBridgeUnavailable
	}
	opt := req.Option
	if opt.Mode != entities.PaymentModeBridge || opt.Route == nil {
		return nil, fmt.Errorf("option %s is not a bridge option: %w", opt.ID, domainerrors.ErrInvalidInput)
	}
	if req.TargetAmount == nil || req.TargetAmount.Sign() <= 0 {
		return nil, fmt.Errorf("target amount must be positive: %w", domainerrors.ErrInvalidInput)
	}

	route := bridge.RouteRequest{
		InputToken:         opt.Route.OriginToken,
		OutputToken:        opt.Route.DestinationToken,
		OriginChainID:      opt.Route.OriginChainID,
		DestinationChainID: opt.Route.DestinationChainID,
	}

	var limits *entities.DepositLimits
	if opt.Quote != nil && opt.Quote.Limits.MinDeposit != nil && opt.Quote.Limits.MaxDeposit != nil {
		l := opt.Quote.Limits
		limits = &l
	} else {
		fetched, err := r.bridge.GetLimits(ctx, route)
		if err != nil {
			return nil, fmt.Errorf("%w: limits: %v", domainerrors.ErrRefinementFailed, err)
		}
		limits = fetched
	}

	bounds, err := newRefineBounds(req, limits.MinDeposit, limits.MaxDeposit)
	if err != nil {
		return nil, err
	}

	fetch := func(ctx context.Context, amount *big.Int) (quotePoint[*entities.QuoteSummary], error) {
		start := time.Now()
		q, err := r.bridge.GetQuote(ctx, bridge.QuoteRequest{
			RouteRequest: route,
			Amount:       amount,
			Recipient:    req.Recipient,
			Depositor:    req.Depositor,
		})
		r.metrics.ObserveLatency(metrics.OpRefineQuote, time.Since(start), metrics.ChainLabels(route.OriginChainID))
		if err != nil {
			return quotePoint[*entities.QuoteSummary]{}, err
		}
		summary := toQuoteSummary(q, limits)
		return quotePoint[*entities.QuoteSummary]{quote: summary, input: summary.InputAmount, output: summary.OutputAmount}, nil
	}

	var initial *quotePoint[*entities.QuoteSummary]
	if opt.Quote != nil && opt.Quote.InputAmount != nil && opt.Quote.OutputAmount != nil {
		initial = &quotePoint[*entities.QuoteSummary]{quote: opt.Quote, input: opt.Quote.InputAmount, output: opt.Quote.OutputAmount}
	}

	best, iterations, err := refineLoop(ctx, initial, bounds, r.maxIterations, fetch)
	if err != nil {
		logger.Warn(ctx, "Quote refinement failed", zap.String("option_id", opt.ID), zap.Error(err))
		return nil, err
	}
	return &RefineResult{
		Quote:         best.quote,
		Iterations:    iterations,
		ReachedTarget: best.output.Cmp(bounds.target) >= 0,
	}, nil
}

// RefineSwap runs the same loop for a swap option using exact-input quotes
func (r *QuoteRefiner) RefineSwap(ctx context.Context, req RefineRequest) (*RefineResult, error) {
	if r.bridge == nil {
		return nil, domainerrors.ErrBridgeUnavailable
	}
	opt := req.Option
	if opt.Mode != entities.PaymentModeSwap || opt.SwapRoute == nil {
		return nil, fmt.Errorf("option %s is not a swap option: %w", opt.ID, domainerrors.ErrInvalidInput)
	}
	if req.TargetAmount == nil || req.TargetAmount.Sign() <= 0 {
		return nil, fmt.Errorf("target amount must be positive: %w", domainerrors.ErrInvalidInput)
	}
	if req.Depositor == "" {
		return nil, fmt.Errorf("%s: %w", SwapWalletRequiredMessage, domainerrors.ErrWalletNotConnected)
	}

	bounds, err := newRefineBounds(req, big.NewInt(1), nil)
	if err != nil {
		return nil, err
	}

	fetch := func(ctx context.Context, amount *big.Int) (quotePoint[*entities.SwapQuoteSummary], error) {
		start := time.Now()
		q, err := r.bridge.GetSwapQuote(ctx, bridge.SwapQuoteRequest{
			RouteRequest: bridge.RouteRequest{
				InputToken:         opt.SwapRoute.InputToken.Address,
				OutputToken:        opt.SwapRoute.OutputToken.Address,
				OriginChainID:      opt.SwapRoute.OriginChainID,
				DestinationChainID: opt.SwapRoute.DestinationChainID,
			},
			Amount:    amount,
			TradeType: TradeTypeExactInput,
			Depositor: req.Depositor,
			Recipient: req.Recipient,
		})
		r.metrics.ObserveLatency(metrics.OpRefineQuote, time.Since(start), metrics.ChainLabels(opt.SwapRoute.OriginChainID))
		if err != nil {
			return quotePoint[*entities.SwapQuoteSummary]{}, err
		}
		summary := toSwapQuoteSummary(q)
		input := summary.InputAmount
		if input == nil {
			input = amount
		}
		return quotePoint[*entities.SwapQuoteSummary]{quote: summary, input: input, output: utils.BigOrZero(summary.ExpectedOutputAmount)}, nil
	}

	var initial *quotePoint[*entities.SwapQuoteSummary]
	if q := opt.SwapQuote; q != nil && q.InputAmount != nil && q.ExpectedOutputAmount != nil {
		initial = &quotePoint[*entities.SwapQuoteSummary]{quote: q, input: q.InputAmount, output: q.ExpectedOutputAmount}
	}

	best, iterations, err := refineLoop(ctx, initial, bounds, r.maxIterations, fetch)
	if err != nil {
		logger.Warn(ctx, "Swap quote refinement failed", zap.String("option_id", opt.ID), zap.Error(err))
		return nil, err
	}
	return &RefineResult{
		SwapQuote:     best.quote,
		Iterations:    iterations,
		ReachedTarget: best.output.Cmp(bounds.target) >= 0,
	}, nil
}

// newRefineBounds clamps inputs to [minDeposit, min(balance, maxDeposit)]
func newRefineBounds(req RefineRequest, minDeposit, maxDeposit *big.Int) (refineBounds, error) {
	bufferBps := req.BufferBps
	if bufferBps <= 0 {
		bufferBps = DefaultSlippageBufferBps
	}
	target := new(big.Int).Set(req.TargetAmount)
	withBuffer := new(big.Int).Mul(target, big.NewInt(BpsDenominator+bufferBps))
	withBuffer.Quo(withBuffer, big.NewInt(BpsDenominator))

	lower := big.NewInt(1)
	if minDeposit != nil && minDeposit.Sign() > 0 {
		lower = new(big.Int).Set(minDeposit)
	}
	upper := utils.BigOrZero(req.Option.Balance)
	if maxDeposit != nil && maxDeposit.Sign() > 0 {
		upper = utils.MinBig(upper, maxDeposit)
	}
	if lower.Cmp(upper) > 0 {
		return refineBounds{}, fmt.Errorf("%w: minimum deposit %s exceeds spendable %s",
			domainerrors.ErrRefinementFailed, lower.String(), upper.String())
	}
	return refineBounds{target: target, targetWithBuffer: withBuffer, lower: lower, upper: upper}, nil
}

// refineLoop keeps the closest output at or above the target; when none reaches it,
// the highest output is kept as a last resort.
func refineLoop[Q any](
	ctx context.Context,
	initial *quotePoint[Q],
	b refineBounds,
	maxIterations int,
	fetch func(ctx context.Context, amount *big.Int) (quotePoint[Q], error),
) (*quotePoint[Q], int, error) {
	var best *quotePoint[Q]
	consider := func(p quotePoint[Q]) {
		if p.output == nil {
			return
		}
		switch {
		case best == nil:
			best = &p
		case p.output.Cmp(b.target) >= 0:
			if best.output.Cmp(b.target) < 0 || p.output.Cmp(best.output) < 0 {
				best = &p
			}
		case best.output.Cmp(b.target) < 0 && p.output.Cmp(best.output) > 0:
			best = &p
		}
	}
	inWindow := func(out *big.Int) bool {
		return out.Cmp(b.target) >= 0 && out.Cmp(b.targetWithBuffer) <= 0
	}

	var (
		current    quotePoint[Q]
		iterations int
		fetched    int
		fetchErr   error
	)
	if initial != nil {
		current = *initial
		consider(current)
	} else {
		seed := utils.ClampBig(b.targetWithBuffer, b.lower, b.upper)
		p, err := fetch(ctx, seed)
		iterations++
		if err != nil {
			return nil, iterations, fmt.Errorf("%w: %v", domainerrors.ErrRefinementFailed, err)
		}
		current = p
		consider(current)
	}

	violations := 0
	for iterations < maxIterations {
		if current.output == nil || current.output.Sign() == 0 || current.input == nil {
			break
		}
		if inWindow(current.output) {
			break
		}

		required := new(big.Int).Mul(current.input, b.targetWithBuffer)
		required.Quo(required, current.output)

		violated := false
		if required.Cmp(b.lower) < 0 {
			required.Set(b.lower)
			violated = true
		} else if required.Cmp(b.upper) > 0 {
			required.Set(b.upper)
			violated = true
		}
		if violated {
			violations++
			if violations >= 2 {
				break
			}
		} else {
			violations = 0
		}
		if required.Cmp(current.input) == 0 {
			break
		}

		p, err := fetch(ctx, required)
		iterations++
		if err != nil {
			fetchErr = err
			break
		}
		fetched++
		current = p
		consider(current)
	}

	if err := ctx.Err(); err != nil {
		return nil, iterations, err
	}
	if fetchErr != nil && fetched == 0 {
		return nil, iterations, fmt.Errorf("%w: %v", domainerrors.ErrRefinementFailed, fetchErr)
	}
	if best == nil {
		if fetchErr == nil {
			fetchErr = errors.New("no quote produced")
		}
		return nil, iterations, fmt.Errorf("%w: %v", domainerrors.ErrRefinementFailed, fetchErr)
	}
	return best, iterations, nil
}
