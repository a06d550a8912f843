package usecases

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/infrastructure/bridge"
	"crosspay.backend/internal/infrastructure/metrics"
	"crosspay.backend/pkg/logger"
	"crosspay.backend/pkg/utils"
)

// QuoteParams is the target every candidate is priced against
type QuoteParams struct {
	Target         entities.TokenConfig
	TargetAmount   *big.Int
	TargetPriceUSD decimal.NullDecimal
	Depositor      string
	Recipient      string
}

// RequiredUSD is the USD value of the target amount, when the target price is known
func (p QuoteParams) RequiredUSD() decimal.NullDecimal {
	return EstimateUSD(p.TargetAmount, p.Target.Decimals, p.TargetPriceUSD)
}

// QuoteFetcher prices bridge and swap candidates concurrently
type QuoteFetcher struct {
	bridge         BridgeCapability
	maxSwapOptions int
	concurrency    int
	metrics        metrics.Recorder
}

func NewQuoteFetcher(capability BridgeCapability, maxSwapOptions, concurrency int, recorder metrics.Recorder) *QuoteFetcher {
	if maxSwapOptions <= 0 {
		maxSwapOptions = DefaultMaxSwapQuoteOptions
	}
	if concurrency <= 0 {
		concurrency = DefaultQuoteConcurrency
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &QuoteFetcher{
		bridge:         capability,
		maxSwapOptions: maxSwapOptions,
		concurrency:    concurrency,
		metrics:        recorder,
	}
}

// QuoteBridgeOptions returns priced copies of options. Candidates whose limits or quote
// cannot be fetched are dropped; candidates that cannot plausibly meet the target are
// kept unpriced with an UnavailabilityReason.
func (f *QuoteFetcher) QuoteBridgeOptions(ctx context.Context, params QuoteParams, options []entities.PaymentOption) ([]entities.PaymentOption, error) {
	if f.bridge == nil {
		return nil, domainerrors.ErrBridgeUnavailable
	}
	return f.fanOut(ctx, options, func(ctx context.Context, opt entities.PaymentOption) (*entities.PaymentOption, error) {
		return f.quoteBridge(ctx, params, opt)
	})
}

func (f *QuoteFetcher) quoteBridge(ctx context.Context, params QuoteParams, opt entities.PaymentOption) (*entities.PaymentOption, error) {
	if opt.Route == nil {
		return nil, fmt.Errorf("bridge option %s has no route", opt.ID)
	}
	balance := opt.Balance
	if balance == nil || balance.Sign() == 0 {
		return unavailable(opt, entities.ReasonInsufficientBalance), nil
	}

	route := bridge.RouteRequest{
		InputToken:         opt.Route.OriginToken,
		OutputToken:        opt.Route.DestinationToken,
		OriginChainID:      opt.Route.OriginChainID,
		DestinationChainID: opt.Route.DestinationChainID,
	}
	limits, err := f.bridge.GetLimits(ctx, route)
	if err != nil {
		return nil, fmt.Errorf("limits: %w", err)
	}
	if limits.MinDeposit != nil && balance.Cmp(limits.MinDeposit) < 0 {
		return unavailable(opt, entities.ReasonBelowMinimumDeposit), nil
	}

	amount := new(big.Int).Set(balance)
	if limits.MaxDeposit != nil && limits.MaxDeposit.Sign() > 0 && amount.Cmp(limits.MaxDeposit) > 0 {
		amount.Set(limits.MaxDeposit)
	}

	if required := params.RequiredUSD(); required.Valid && opt.EstimatedBalanceUSD.Valid {
		floor := required.Decimal.Mul(decimal.New(USDShortfallBufferBps, 0)).Div(decimal.New(BpsDenominator, 0))
		if opt.EstimatedBalanceUSD.Decimal.LessThan(floor) {
			return unavailable(opt, entities.ReasonInsufficientUSD), nil
		}
	}

	start := time.Now()
	quote, err := f.bridge.GetQuote(ctx, bridge.QuoteRequest{
		RouteRequest: route,
		Amount:       amount,
		Recipient:    params.Recipient,
		Depositor:    params.Depositor,
	})
	f.metrics.ObserveLatency(metrics.OpBridgeQuote, time.Since(start), metrics.ChainLabels(route.OriginChainID))
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	opt.Quote = toQuoteSummary(quote, limits)
	opt.EstimatedFillTimeSec = quote.EstimatedFillTimeSec
	opt.CanMeetTarget = quote.OutputAmount != nil && quote.OutputAmount.Cmp(params.TargetAmount) >= 0
	opt.UnavailabilityReason = entities.ReasonNone
	if !opt.CanMeetTarget {
		opt.UnavailabilityReason = entities.ReasonInsufficientBalance
	}
	return &opt, nil
}

// QuoteSwapOptions prices the largest balances first and at most maxSwapOptions of them
func (f *QuoteFetcher) QuoteSwapOptions(ctx context.Context, params QuoteParams, options []entities.PaymentOption) ([]entities.PaymentOption, error) {
	if f.bridge == nil {
		return nil, domainerrors.ErrBridgeUnavailable
	}
	if params.Depositor == "" {
		return nil, fmt.Errorf("%s: %w", SwapWalletRequiredMessage, domainerrors.ErrWalletNotConnected)
	}

	sorted := append([]entities.PaymentOption(nil), options...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utils.BigOrZero(sorted[i].Balance).Cmp(utils.BigOrZero(sorted[j].Balance)) > 0
	})

	var skipped []entities.PaymentOption
	if len(sorted) > f.maxSwapOptions {
		for _, opt := range sorted[f.maxSwapOptions:] {
			reason := entities.ReasonQuoteUnavailable
			if utils.BigOrZero(opt.Balance).Sign() == 0 {
				reason = entities.ReasonInsufficientBalance
			}
			skipped = append(skipped, *unavailable(opt, reason))
		}
		sorted = sorted[:f.maxSwapOptions]
	}

	quoted, err := f.fanOut(ctx, sorted, func(ctx context.Context, opt entities.PaymentOption) (*entities.PaymentOption, error) {
		return f.quoteSwap(ctx, params, opt)
	})
	if err != nil {
		return nil, err
	}
	return append(quoted, skipped...), nil
}

func (f *QuoteFetcher) quoteSwap(ctx context.Context, params QuoteParams, opt entities.PaymentOption) (*entities.PaymentOption, error) {
	if opt.SwapRoute == nil {
		return nil, fmt.Errorf("swap option %s has no route", opt.ID)
	}
	balance := utils.BigOrZero(opt.Balance)
	if balance.Sign() == 0 {
		return unavailable(opt, entities.ReasonInsufficientBalance), nil
	}

	start := time.Now()
	quote, err := f.bridge.GetSwapQuote(ctx, bridge.SwapQuoteRequest{
		RouteRequest: bridge.RouteRequest{
			InputToken:         opt.SwapRoute.InputToken.Address,
			OutputToken:        opt.SwapRoute.OutputToken.Address,
			OriginChainID:      opt.SwapRoute.OriginChainID,
			DestinationChainID: opt.SwapRoute.DestinationChainID,
		},
		Amount:    params.TargetAmount,
		TradeType: TradeTypeMinOutput,
		Depositor: params.Depositor,
		Recipient: params.Recipient,
	})
	f.metrics.ObserveLatency(metrics.OpSwapQuote, time.Since(start), metrics.ChainLabels(opt.SwapRoute.OriginChainID))
	if err != nil {
		return nil, fmt.Errorf("swap quote: %w", err)
	}

	summary := toSwapQuoteSummary(quote)
	opt.SwapQuote = summary
	opt.EstimatedFillTimeSec = summary.EstimatedFillTimeSec

	meetsOutput := summary.ExpectedOutputAmount != nil && summary.ExpectedOutputAmount.Cmp(params.TargetAmount) >= 0
	required := requiredSwapInput(summary)
	coversInput := required != nil && balance.Cmp(required) >= 0
	opt.CanMeetTarget = meetsOutput && coversInput
	opt.UnavailabilityReason = entities.ReasonNone
	if !opt.CanMeetTarget {
		opt.UnavailabilityReason = entities.ReasonInsufficientBalance
	}
	return &opt, nil
}

type quoteFunc func(ctx context.Context, opt entities.PaymentOption) (*entities.PaymentOption, error)

// fanOut prices every option with bounded concurrency; per-candidate failures drop the candidate
func (f *QuoteFetcher) fanOut(ctx context.Context, options []entities.PaymentOption, quote quoteFunc) ([]entities.PaymentOption, error) {
	results := make([]*entities.PaymentOption, len(options))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, opt := range options {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			priced, err := quote(gctx, opt)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				f.dropCandidate(gctx, opt, err)
				return nil
			}
			results[i] = priced
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]entities.PaymentOption, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *QuoteFetcher) dropCandidate(ctx context.Context, opt entities.PaymentOption, err error) {
	f.metrics.IncCounter(metrics.EventCandidateDropped, metrics.ChainLabels(opt.DisplayToken.ChainID))
	logger.Warn(ctx, "Dropping payment candidate",
		zap.String("option_id", opt.ID),
		zap.Int64("chain_id", opt.DisplayToken.ChainID),
		zap.String("token", opt.DisplayToken.Address),
		zap.Error(err),
	)
}

func unavailable(opt entities.PaymentOption, reason entities.UnavailabilityReason) *entities.PaymentOption {
	opt.CanMeetTarget = false
	opt.UnavailabilityReason = reason
	opt.Quote = nil
	opt.SwapQuote = nil
	return &opt
}
