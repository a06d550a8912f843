package usecases

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crosspay.backend/internal/domain/entities"
	"crosspay.backend/internal/infrastructure/bridge"
)

func plannerReader(token string, balance int64) *MockChainReader {
	reader := new(MockChainReader)
	withMetadata(reader, token, "USDC", 6)
	reader.On("GetTokenBalances", mock.Anything, mock.Anything, mock.Anything).
		Return(batchBalances(map[string]*big.Int{token: big.NewInt(balance)}), nil).Maybe()
	reader.On("GetBalance", mock.Anything, mock.Anything).Return(big.NewInt(0), nil).Maybe()
	return reader
}

func plannerReaders(baseBalance, opBalance int64) map[int64]*MockChainReader {
	return map[int64]*MockChainReader{
		8453: plannerReader(usdcBase, baseBalance),
		10:   plannerReader(usdcOP, opBalance),
	}
}

var plannerRoutes = []entities.BridgeRoute{
	{OriginChainID: 10, DestinationChainID: 8453, OriginToken: usdcOP, DestinationToken: usdcBase, OriginTokenSymbol: "USDC"},
}

// stubPricing answers limit lookups with open limits and prices quotes with quote
func stubPricing(b *MockBridge, quote func(bridge.QuoteRequest) (*bridge.Quote, error)) {
	b.On("GetLimits", mock.Anything, mock.Anything).Return(openLimits(), nil).Maybe()
	b.On("GetQuote", mock.Anything, mock.Anything).Return(quote, nil).Maybe()
}

func plannerBridge() *MockBridge {
	b := new(MockBridge)
	b.On("GetAvailableRoutes", mock.Anything, mock.Anything).Return(plannerRoutes, nil).Maybe()
	b.On("GetSwapTokens", mock.Anything, mock.Anything).Return([]entities.SwapToken{}, nil).Maybe()
	stubPricing(b, parQuote)
	return b
}

func newTestPlanner(b *MockBridge, readers map[int64]*MockChainReader) *DepositPlanner {
	var capability BridgeCapability
	if b != nil {
		capability = b
	}
	return NewDepositPlanner(PlannerDeps{
		Bridge:   capability,
		Resolver: newTestResolver(readers),
		Builder:  NewRouteBuilder(testWrapped()),
		Fetcher:  NewQuoteFetcher(capability, 0, 0, nil),
		Chains:   testChains,
	})
}

func testGoal(amount int64) entities.PaymentGoal {
	return entities.PaymentGoal{
		Account:       testUser,
		TargetToken:   usdcBase,
		TargetChainID: 8453,
		TargetAmount:  big.NewInt(amount),
	}
}

func TestDepositPlanner_ZeroBalancesPublishNothing(t *testing.T) {
	p := newTestPlanner(plannerBridge(), plannerReaders(0, 0))

	snap := p.Refresh(context.Background(), testGoal(1_000_000))
	assert.Equal(t, entities.StageReady, snap.Stage)
	assert.Empty(t, snap.Error)
	assert.Empty(t, snap.Options)
	assert.Equal(t, entities.PlannerStages[:len(entities.PlannerStages)-1], snap.CompletedStages)
}

func TestDepositPlanner_ShowUnavailableOptions(t *testing.T) {
	p := newTestPlanner(plannerBridge(), plannerReaders(0, 0))
	goal := testGoal(1_000_000)
	goal.ShowUnavailableOptions = true

	snap := p.Refresh(context.Background(), goal)
	require.Len(t, snap.Options, 2)
	for _, opt := range snap.Options {
		assert.False(t, opt.CanMeetTarget)
		assert.Equal(t, entities.ReasonInsufficientBalance, opt.UnavailabilityReason)
	}
}

func TestDepositPlanner_DirectRanksFirst(t *testing.T) {
	b := plannerBridge()
	p := newTestPlanner(b, plannerReaders(2_000_000, 5_000_000))

	snap := p.Refresh(context.Background(), testGoal(1_000_000))
	require.Len(t, snap.Options, 2)
	assert.Equal(t, entities.PaymentModeDirect, snap.Options[0].Mode)
	assert.True(t, snap.Options[0].CanMeetTarget)
	assert.Equal(t, big.NewInt(2_000_000), snap.Options[0].Balance)
	assert.Equal(t, "USDC", snap.Options[0].DisplayToken.Symbol)
	assert.Equal(t, 6, snap.Options[0].DisplayToken.Decimals)

	bridgeOpt := snap.Options[1]
	assert.Equal(t, entities.PaymentModeBridge, bridgeOpt.Mode)
	assert.True(t, bridgeOpt.CanMeetTarget)
	require.NotNil(t, bridgeOpt.Quote)
	assert.Equal(t, big.NewInt(5_000_000), bridgeOpt.Quote.OutputAmount)

	got, ok := p.Option(bridgeOpt.ID)
	require.True(t, ok)
	assert.Equal(t, bridgeOpt.ID, got.ID)

	goal, ok := p.Goal()
	require.True(t, ok)
	assert.Equal(t, testUser, goal.Account)
}

func TestDepositPlanner_PreconditionsShortCircuit(t *testing.T) {
	tests := []struct {
		name   string
		bridge *MockBridge
		mutate func(*entities.PaymentGoal)
	}{
		{name: "no bridge", bridge: nil, mutate: func(*entities.PaymentGoal) {}},
		{name: "no account", bridge: plannerBridge(), mutate: func(g *entities.PaymentGoal) { g.Account = "" }},
		{name: "zero amount", bridge: plannerBridge(), mutate: func(g *entities.PaymentGoal) { g.TargetAmount = big.NewInt(0) }},
		{name: "no target", bridge: plannerBridge(), mutate: func(g *entities.PaymentGoal) { g.TargetToken = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPlanner(tt.bridge, plannerReaders(1, 1))
			goal := testGoal(1)
			tt.mutate(&goal)

			snap := p.Refresh(context.Background(), goal)
			assert.Equal(t, entities.StageReady, snap.Stage)
			assert.NotEmpty(t, snap.Error)
			assert.Empty(t, snap.CompletedStages)
			assert.Empty(t, snap.Options)
		})
	}
}

func TestDepositPlanner_NoChainsConfigured(t *testing.T) {
	b := new(MockBridge)
	p := NewDepositPlanner(PlannerDeps{
		Bridge:   b,
		Resolver: newTestResolver(nil),
		Builder:  NewRouteBuilder(nil),
		Fetcher:  NewQuoteFetcher(b, 0, 0, nil),
	})
	snap := p.Refresh(context.Background(), testGoal(1))
	assert.Contains(t, snap.Error, "no chains")
	assert.Empty(t, snap.CompletedStages)
	b.AssertNotCalled(t, "GetAvailableRoutes", mock.Anything, mock.Anything)
}

func TestDepositPlanner_DiscoveryFailuresBecomeWarnings(t *testing.T) {
	b := new(MockBridge)
	b.On("GetAvailableRoutes", mock.Anything, mock.Anything).Return(nil, errors.New("routes down")).Once()
	b.On("GetSwapTokens", mock.Anything, mock.Anything).Return(nil, errors.New("tokens down")).Once()
	stubPricing(b, parQuote)
	p := newTestPlanner(b, plannerReaders(2_000_000, 0))

	snap := p.Refresh(context.Background(), testGoal(1_000_000))
	assert.Empty(t, snap.Error)
	assert.Len(t, snap.Warnings, 2)
	require.Len(t, snap.Options, 1)
	assert.Equal(t, entities.PaymentModeDirect, snap.Options[0].Mode)
	b.AssertExpectations(t)
	b.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything)
}

func TestDepositPlanner_SubscribersSeeEveryStage(t *testing.T) {
	p := newTestPlanner(plannerBridge(), plannerReaders(1, 1))

	var (
		mu     sync.Mutex
		stages []entities.PlannerStage
	)
	unsubscribe := p.Subscribe(func(s entities.PlannerSnapshot) {
		mu.Lock()
		stages = append(stages, s.Stage)
		mu.Unlock()
	})

	p.Refresh(context.Background(), testGoal(1))
	mu.Lock()
	assert.Equal(t, entities.PlannerStages, stages)
	seen := len(stages)
	mu.Unlock()

	unsubscribe()
	p.Refresh(context.Background(), testGoal(1))
	mu.Lock()
	assert.Len(t, stages, seen)
	mu.Unlock()
}

func TestDepositPlanner_NewerRefreshSupersedes(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	b := new(MockBridge)
	b.On("GetAvailableRoutes", mock.Anything, mock.Anything).Return(plannerRoutes, nil)
	b.On("GetSwapTokens", mock.Anything, mock.Anything).Return([]entities.SwapToken{}, nil)
	stubPricing(b, func(req bridge.QuoteRequest) (*bridge.Quote, error) {
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
		return &bridge.Quote{InputAmount: req.Amount, OutputAmount: req.Amount}, nil
	})
	p := newTestPlanner(b, plannerReaders(0, 5_000_000))

	stale := make(chan entities.PlannerSnapshot, 1)
	go func() {
		stale <- p.Refresh(context.Background(), testGoal(1_000_000))
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never started quoting")
	}

	fresh := p.Refresh(context.Background(), testGoal(2_000_000))
	close(release)

	var staleSnap entities.PlannerSnapshot
	select {
	case staleSnap = <-stale:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never returned")
	}

	assert.Equal(t, uint64(2), fresh.Generation)
	assert.Equal(t, uint64(2), staleSnap.Generation)
	assert.Empty(t, p.Snapshot().Error)

	goal, _ := p.Goal()
	assert.Equal(t, big.NewInt(2_000_000), goal.TargetAmount)
	b.AssertNumberOfCalls(t, "GetAvailableRoutes", 2)
}

func TestRankOptions(t *testing.T) {
	options := []entities.PaymentOption{
		{ID: "a", Mode: entities.PaymentModeBridge, CanMeetTarget: false, Balance: big.NewInt(900)},
		{ID: "b", Mode: entities.PaymentModeBridge, CanMeetTarget: true, Quote: &entities.QuoteSummary{OutputAmount: big.NewInt(10)}},
		{ID: "c", Mode: entities.PaymentModeSwap, CanMeetTarget: true, SwapQuote: &entities.SwapQuoteSummary{ExpectedOutputAmount: big.NewInt(20)}},
		{ID: "d", Mode: entities.PaymentModeDirect, CanMeetTarget: true, Balance: big.NewInt(1)},
	}
	RankOptions(options)

	ids := make([]string, 0, len(options))
	for _, o := range options {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids)
	assert.Len(t, FilterOptions(options, false), 3)
	assert.Len(t, FilterOptions(options, true), 4)
}
