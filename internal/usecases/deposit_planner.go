package usecases

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/infrastructure/bridge"
	"crosspay.backend/internal/infrastructure/metrics"
	"crosspay.backend/pkg/logger"
	"crosspay.backend/pkg/utils"
)

// PlannerDeps wires the planner to its collaborators
type PlannerDeps struct {
	Bridge   BridgeCapability
	Resolver *TokenResolver
	Builder  *RouteBuilder
	Fetcher  *QuoteFetcher
	Chains   []entities.ChainConfig
	Metrics  metrics.Recorder
	// ShowUnavailableOptions is the default when a goal does not opt in itself
	ShowUnavailableOptions bool
}

// DepositPlanner runs staged planning passes and publishes a ranked option list.
// A newer Refresh cancels the previous pass; results of superseded passes are discarded.
type DepositPlanner struct {
	deps PlannerDeps
	now  func() time.Time

	mu           sync.Mutex
	generation   uint64
	cancel       context.CancelFunc
	snapshot     entities.PlannerSnapshot
	goal         *entities.PaymentGoal
	listeners    map[int]func(entities.PlannerSnapshot)
	nextListener int
}

func NewDepositPlanner(deps PlannerDeps) *DepositPlanner {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}
	p := &DepositPlanner{
		deps:      deps,
		now:       time.Now,
		listeners: make(map[int]func(entities.PlannerSnapshot)),
	}
	p.snapshot = entities.PlannerSnapshot{
		Stage:           entities.StageReady,
		CompletedStages: []entities.PlannerStage{},
		Options:         []entities.PaymentOption{},
		UpdatedAt:       p.now(),
	}
	return p
}

// Snapshot returns a copy of the current planner state
func (p *DepositPlanner) Snapshot() entities.PlannerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copySnapshot(p.snapshot)
}

// Subscribe registers fn for every published state change; the returned func unsubscribes
func (p *DepositPlanner) Subscribe(fn func(entities.PlannerSnapshot)) func() {
	p.mu.Lock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Option returns a published option by id
func (p *DepositPlanner) Option(id string) (entities.PaymentOption, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, opt := range p.snapshot.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return entities.PaymentOption{}, false
}

// Goal returns the goal of the latest pass
func (p *DepositPlanner) Goal() (entities.PaymentGoal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.goal == nil {
		return entities.PaymentGoal{}, false
	}
	return *p.goal, true
}

// Refresh runs a full planning pass for goal and returns the state it ended in.
// When a newer Refresh supersedes this one, the returned snapshot is the newer pass's state.
func (p *DepositPlanner) Refresh(ctx context.Context, goal entities.PaymentGoal) entities.PlannerSnapshot {
	passCtx, gen := p.begin(ctx, goal)
	start := time.Now()
	defer func() {
		p.deps.Metrics.ObserveLatency(metrics.OpPlannerPass, time.Since(start), nil)
	}()

	if err := p.checkPreconditions(goal); err != nil {
		logger.Warn(ctx, "Planner precondition failed", zap.Error(err))
		p.finish(gen, nil, nil, err.Error(), true)
		return p.Snapshot()
	}

	options, warnings, err := p.run(passCtx, gen, goal)
	if err != nil {
		if p.isCurrent(gen) {
			logger.Warn(ctx, "Planner pass failed", zap.Uint64("generation", gen), zap.Error(err))
			p.finish(gen, nil, warnings, err.Error(), false)
		}
		return p.Snapshot()
	}
	p.finish(gen, options, warnings, "", false)
	return p.Snapshot()
}

// Cancel stops the running pass, if any
func (p *DepositPlanner) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *DepositPlanner) begin(ctx context.Context, goal entities.PaymentGoal) (context.Context, uint64) {
	passCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.generation++
	gen := p.generation
	p.cancel = cancel
	g := goal
	p.goal = &g
	p.snapshot = entities.PlannerSnapshot{
		Generation:      gen,
		Stage:           entities.StageInitializing,
		CompletedStages: []entities.PlannerStage{},
		Options:         []entities.PaymentOption{},
		UpdatedAt:       p.now(),
	}
	snap, listeners := copySnapshot(p.snapshot), p.listenerList()
	p.mu.Unlock()

	notifyPlanner(listeners, snap)
	return passCtx, gen
}

func (p *DepositPlanner) checkPreconditions(goal entities.PaymentGoal) error {
	switch {
	case p.deps.Bridge == nil || p.deps.Fetcher == nil:
		return domainerrors.ErrBridgeUnavailable
	case goal.Account == "":
		return domainerrors.ErrWalletNotConnected
	case len(p.deps.Chains) == 0:
		return domainerrors.ErrNoChainsConfigured
	case goal.TargetAmount == nil || goal.TargetAmount.Sign() <= 0:
		return fmt.Errorf("target amount must be positive: %w", domainerrors.ErrInvalidInput)
	case goal.TargetToken == "" || goal.TargetChainID == 0:
		return fmt.Errorf("target token and chain are required: %w", domainerrors.ErrInvalidInput)
	}
	return nil
}

func (p *DepositPlanner) run(ctx context.Context, gen uint64, goal entities.PaymentGoal) ([]entities.PaymentOption, []string, error) {
	var warnings []string
	warn := func(msg string) {
		for _, w := range warnings {
			if w == msg {
				return
			}
		}
		warnings = append(warnings, msg)
	}

	chainIDs := make([]int64, 0, len(p.deps.Chains))
	for _, chain := range p.deps.Chains {
		chainIDs = append(chainIDs, chain.ChainID)
	}

	// initializing -> discoveringRoutes
	if !p.advance(gen, entities.StageDiscoveringRoutes) {
		return nil, warnings, context.Canceled
	}
	var (
		routes                 []entities.BridgeRoute
		swapTokens             []entities.SwapToken
		routesErr, swapListErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		routes, routesErr = p.deps.Bridge.GetAvailableRoutes(gctx, bridge.RouteFilter{
			DestinationChainID: goal.TargetChainID,
			DestinationToken:   goal.TargetToken,
		})
		return nil
	})
	g.Go(func() error {
		swapTokens, swapListErr = p.deps.Bridge.GetSwapTokens(gctx, chainIDs)
		return nil
	})
	_ = g.Wait()
	if routesErr != nil {
		logger.Warn(ctx, "Route discovery failed", zap.Int64("chain_id", goal.TargetChainID), zap.Error(routesErr))
		warn("Bridge routes are unavailable")
		routes = nil
	}
	if swapListErr != nil {
		logger.Warn(ctx, "Swap token discovery failed", zap.Error(swapListErr))
		warn("Swap tokens are unavailable")
		swapTokens = nil
	}
	if err := ctx.Err(); err != nil {
		return nil, warnings, err
	}

	// resolvingTokens
	if !p.advance(gen, entities.StageResolvingTokens) {
		return nil, warnings, context.Canceled
	}
	swapMeta := make([]entities.TokenConfig, 0, len(swapTokens))
	for _, st := range swapTokens {
		swapMeta = append(swapMeta, st.TokenConfig)
	}
	p.deps.Resolver.Prime(swapMeta...)
	target := p.deps.Resolver.ResolveToken(ctx, goal.TargetToken, goal.TargetChainID)

	set := p.deps.Builder.Build(RouteInput{
		Target:          target,
		TargetAmount:    goal.TargetAmount,
		SupportedChains: chainIDs,
		Routes:          routes,
		SwapTokens:      swapTokens,
		PriceOverrides:  goal.PriceOverrides,
	})
	options := set.Options
	if err := p.resolveDisplayTokens(ctx, options); err != nil {
		return nil, warnings, err
	}

	// fetchingBalances
	if !p.advance(gen, entities.StageFetchingBalances) {
		return nil, warnings, context.Canceled
	}
	tokens := make([]entities.TokenConfig, 0, len(options))
	for _, opt := range options {
		tokens = append(tokens, opt.BalanceToken())
	}
	balances := p.deps.Resolver.FetchBalances(ctx, goal.Account, tokens)
	for i := range options {
		token := options[i].BalanceToken()
		options[i].Balance = utils.BigOrZero(balances[token.Key()])
		options[i].EstimatedBalanceUSD = EstimateUSD(options[i].Balance, token.Decimals, options[i].PriceUSD)
	}
	if err := ctx.Err(); err != nil {
		return nil, warnings, err
	}

	// quotingRoutes
	if !p.advance(gen, entities.StageQuotingRoutes) {
		return nil, warnings, context.Canceled
	}
	params := QuoteParams{
		Target:         target,
		TargetAmount:   goal.TargetAmount,
		TargetPriceUSD: priceOf(set.Prices, target),
		Depositor:      goal.Account,
		Recipient:      goal.Recipient,
	}
	if params.Recipient == "" {
		params.Recipient = goal.Account
	}

	var direct, bridges, swaps []entities.PaymentOption
	for _, opt := range options {
		switch opt.Mode {
		case entities.PaymentModeDirect:
			direct = append(direct, evaluateDirect(opt, goal.TargetAmount))
		case entities.PaymentModeBridge:
			bridges = append(bridges, opt)
		case entities.PaymentModeSwap:
			swaps = append(swaps, opt)
		}
	}

	var (
		quotedBridges, quotedSwaps []entities.PaymentOption
		swapErr                    error
	)
	qg, qctx := errgroup.WithContext(ctx)
	qg.Go(func() error {
		out, err := p.deps.Fetcher.QuoteBridgeOptions(qctx, params, bridges)
		if err != nil {
			return err
		}
		quotedBridges = out
		return nil
	})
	qg.Go(func() error {
		if len(swaps) == 0 {
			return nil
		}
		out, err := p.deps.Fetcher.QuoteSwapOptions(qctx, params, swaps)
		if err != nil {
			if qctx.Err() != nil {
				return qctx.Err()
			}
			swapErr = err
			return nil
		}
		quotedSwaps = out
		return nil
	})
	if err := qg.Wait(); err != nil {
		return nil, warnings, err
	}
	if swapErr != nil {
		logger.Warn(ctx, "Swap quoting failed", zap.Error(swapErr))
		if errors.Is(swapErr, domainerrors.ErrWalletNotConnected) {
			warn(SwapWalletRequiredMessage)
		} else {
			warn("Swap quotes are unavailable")
		}
	}

	// finalizing
	if !p.advance(gen, entities.StageFinalizing) {
		return nil, warnings, context.Canceled
	}
	all := make([]entities.PaymentOption, 0, len(direct)+len(quotedBridges)+len(quotedSwaps))
	all = append(all, direct...)
	all = append(all, quotedBridges...)
	all = append(all, quotedSwaps...)
	RankOptions(all)

	show := goal.ShowUnavailableOptions || p.deps.ShowUnavailableOptions
	return FilterOptions(all, show), warnings, nil
}

func (p *DepositPlanner) resolveDisplayTokens(ctx context.Context, options []entities.PaymentOption) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultQuoteConcurrency)
	for i := range options {
		g.Go(func() error {
			resolved := p.deps.Resolver.ResolveToken(gctx, options[i].DisplayToken.Address, options[i].DisplayToken.ChainID)
			if options[i].DisplayToken.LogoURL != "" && resolved.LogoURL == "" {
				resolved.LogoURL = options[i].DisplayToken.LogoURL
			}
			options[i].DisplayToken = resolved
			return gctx.Err()
		})
	}
	return g.Wait()
}

func evaluateDirect(opt entities.PaymentOption, target *big.Int) entities.PaymentOption {
	opt.CanMeetTarget = opt.Balance != nil && opt.Balance.Cmp(target) >= 0
	opt.UnavailabilityReason = entities.ReasonNone
	if !opt.CanMeetTarget {
		opt.UnavailabilityReason = entities.ReasonInsufficientBalance
	}
	return opt
}

// RankOptions orders options: able to meet the target first, then direct, then by yield descending
func RankOptions(options []entities.PaymentOption) {
	sort.SliceStable(options, func(i, j int) bool {
		a, b := options[i], options[j]
		if a.CanMeetTarget != b.CanMeetTarget {
			return a.CanMeetTarget
		}
		aDirect, bDirect := a.Mode == entities.PaymentModeDirect, b.Mode == entities.PaymentModeDirect
		if aDirect != bDirect {
			return aDirect
		}
		return optionYield(a).Cmp(optionYield(b)) > 0
	})
}

// FilterOptions drops options that cannot meet the target unless show is set
func FilterOptions(options []entities.PaymentOption, show bool) []entities.PaymentOption {
	if show {
		return options
	}
	out := make([]entities.PaymentOption, 0, len(options))
	for _, opt := range options {
		if opt.CanMeetTarget {
			out = append(out, opt)
		}
	}
	return out
}

func optionYield(opt entities.PaymentOption) *big.Int {
	switch {
	case opt.Quote != nil && opt.Quote.OutputAmount != nil:
		return opt.Quote.OutputAmount
	case opt.SwapQuote != nil && opt.SwapQuote.ExpectedOutputAmount != nil:
		return opt.SwapQuote.ExpectedOutputAmount
	default:
		return utils.BigOrZero(opt.Balance)
	}
}

func (p *DepositPlanner) isCurrent(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation == gen
}

// advance completes the current stage and enters next; false when the pass was superseded
func (p *DepositPlanner) advance(gen uint64, next entities.PlannerStage) bool {
	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		return false
	}
	p.snapshot.CompletedStages = append(p.snapshot.CompletedStages, p.snapshot.Stage)
	p.snapshot.Stage = next
	p.snapshot.UpdatedAt = p.now()
	snap, listeners := copySnapshot(p.snapshot), p.listenerList()
	p.mu.Unlock()

	notifyPlanner(listeners, snap)
	return true
}

// finish publishes the pass result. Short-circuited passes keep an empty completed-stage list.
func (p *DepositPlanner) finish(gen uint64, options []entities.PaymentOption, warnings []string, errMsg string, shortCircuit bool) {
	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		return
	}
	if shortCircuit {
		p.snapshot.CompletedStages = []entities.PlannerStage{}
	} else if p.snapshot.Stage != entities.StageReady {
		p.snapshot.CompletedStages = append(p.snapshot.CompletedStages, p.snapshot.Stage)
	}
	if options == nil {
		options = []entities.PaymentOption{}
	}
	p.snapshot.Stage = entities.StageReady
	p.snapshot.Options = options
	p.snapshot.Error = errMsg
	p.snapshot.Warnings = warnings
	p.snapshot.UpdatedAt = p.now()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	snap, listeners := copySnapshot(p.snapshot), p.listenerList()
	p.mu.Unlock()

	notifyPlanner(listeners, snap)
}

func (p *DepositPlanner) listenerList() []func(entities.PlannerSnapshot) {
	out := make([]func(entities.PlannerSnapshot), 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}

func notifyPlanner(listeners []func(entities.PlannerSnapshot), snap entities.PlannerSnapshot) {
	for _, fn := range listeners {
		fn(snap)
	}
}

func copySnapshot(s entities.PlannerSnapshot) entities.PlannerSnapshot {
	s.CompletedStages = append([]entities.PlannerStage{}, s.CompletedStages...)
	s.Options = append([]entities.PaymentOption{}, s.Options...)
	s.Warnings = append([]string(nil), s.Warnings...)
	return s
}
