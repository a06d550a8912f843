package usecases

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/mock"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/infrastructure/blockchain"
	"crosspay.backend/internal/infrastructure/bridge"
	"crosspay.backend/internal/infrastructure/indexer"
)

type methodNotFoundError struct{}

func (methodNotFoundError) Error() string  { return "the method alchemy_getTokenBalances does not exist" }
func (methodNotFoundError) ErrorCode() int { return blockchain.MethodNotFoundCode }

var _ rpc.Error = methodNotFoundError{}

// MockChainReader
type MockChainReader struct {
	mock.Mock
}

func (m *MockChainReader) ReadContract(ctx context.Context, _ abi.ABI, to, method string, _ ...interface{}) ([]interface{}, error) {
	args := m.Called(ctx, to, method)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interface{}), args.Error(1)
}

func (m *MockChainReader) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockChainReader) GetTokenBalance(ctx context.Context, tokenAddress, ownerAddress string) (*big.Int, error) {
	args := m.Called(ctx, tokenAddress, ownerAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockChainReader) GetTokenBalances(ctx context.Context, owner string, tokens []string) (map[string]*big.Int, error) {
	args := m.Called(ctx, owner, tokens)
	switch v := args.Get(0).(type) {
	case func([]string) map[string]*big.Int:
		return v(tokens), args.Error(1)
	case map[string]*big.Int:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChainReader) Multicall(ctx context.Context, multicallAddress string, calls []blockchain.Call3) ([]blockchain.Call3Result, error) {
	args := m.Called(ctx, multicallAddress, calls)
	switch v := args.Get(0).(type) {
	case func([]blockchain.Call3) []blockchain.Call3Result:
		return v(calls), args.Error(1)
	case []blockchain.Call3Result:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChainReader) WaitForTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Receipt), args.Error(1)
}

// withMetadata answers the ERC20 symbol and decimals reads of token
func withMetadata(m *MockChainReader, token, symbol string, decimals uint8) {
	m.On("ReadContract", mock.Anything, token, "symbol").Return([]interface{}{symbol}, nil).Maybe()
	m.On("ReadContract", mock.Anything, token, "decimals").Return([]interface{}{decimals}, nil).Maybe()
}

// batchBalances answers batched balance reads from table; unknown tokens hold zero
func batchBalances(table map[string]*big.Int) func([]string) map[string]*big.Int {
	return func(tokens []string) map[string]*big.Int {
		out := make(map[string]*big.Int, len(tokens))
		for _, token := range tokens {
			balance := new(big.Int)
			if b, ok := table[strings.ToLower(token)]; ok {
				balance.Set(b)
			}
			out[strings.ToLower(token)] = balance
		}
		return out
	}
}

// multicallBalances answers balanceOf and getEthBalance calls from table
func multicallBalances(native *big.Int, table map[string]*big.Int) func([]blockchain.Call3) []blockchain.Call3Result {
	return func(calls []blockchain.Call3) []blockchain.Call3Result {
		results := make([]blockchain.Call3Result, len(calls))
		for i, call := range calls {
			balance := new(big.Int)
			if call.Target == common.HexToAddress(blockchain.DefaultMulticallAddress) {
				if native != nil {
					balance = native
				}
			} else if b, ok := table[strings.ToLower(call.Target.Hex())]; ok {
				balance = b
			}
			results[i] = blockchain.Call3Result{Success: true, ReturnData: common.LeftPadBytes(balance.Bytes(), 32)}
		}
		return results
	}
}

func readersFor(readers map[int64]*MockChainReader) ChainReaderProvider {
	return ChainReaderFunc(func(chainID int64) (ChainReader, error) {
		r, ok := readers[chainID]
		if !ok {
			return nil, domainerrors.ErrUnsupportedChain
		}
		return r, nil
	})
}

// MockBridge covers the pricing and tracking side of the bridge service.
// Quote and deposit lookups may return a func of the request to compute the answer.
type MockBridge struct {
	mock.Mock
}

func (m *MockBridge) GetAvailableRoutes(ctx context.Context, filter bridge.RouteFilter) ([]entities.BridgeRoute, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.BridgeRoute), args.Error(1)
}

func (m *MockBridge) GetSwapTokens(ctx context.Context, chainIDs []int64) ([]entities.SwapToken, error) {
	args := m.Called(ctx, chainIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.SwapToken), args.Error(1)
}

func (m *MockBridge) GetLimits(ctx context.Context, req bridge.RouteRequest) (*entities.DepositLimits, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DepositLimits), args.Error(1)
}

func (m *MockBridge) GetQuote(ctx context.Context, req bridge.QuoteRequest) (*bridge.Quote, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(bridge.QuoteRequest) (*bridge.Quote, error)); ok {
		return fn(req)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bridge.Quote), args.Error(1)
}

func (m *MockBridge) GetSwapQuote(ctx context.Context, req bridge.SwapQuoteRequest) (*bridge.SwapQuote, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(bridge.SwapQuoteRequest) (*bridge.SwapQuote, error)); ok {
		return fn(req)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bridge.SwapQuote), args.Error(1)
}

func (m *MockBridge) GetSpokePoolAddress(ctx context.Context, chainID int64) (string, error) {
	args := m.Called(ctx, chainID)
	return args.String(0), args.Error(1)
}

func (m *MockBridge) GetDeposit(ctx context.Context, lookup bridge.DepositLookup) (*bridge.DepositStatus, error) {
	args := m.Called(ctx, lookup)
	if fn, ok := args.Get(0).(func(bridge.DepositLookup) (*bridge.DepositStatus, error)); ok {
		return fn(lookup)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bridge.DepositStatus), args.Error(1)
}

func (m *MockBridge) GetFillByDepositTx(ctx context.Context, originChainID int64, txHash string) (*bridge.DepositStatus, error) {
	args := m.Called(ctx, originChainID, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bridge.DepositStatus), args.Error(1)
}

// parQuote prices every deposit one to one
func parQuote(req bridge.QuoteRequest) (*bridge.Quote, error) {
	return &bridge.Quote{
		InputAmount:    new(big.Int).Set(req.Amount),
		OutputAmount:   new(big.Int).Set(req.Amount),
		QuoteTimestamp: 1_700_000_000,
	}, nil
}

func openLimits() *entities.DepositLimits {
	return &entities.DepositLimits{MinDeposit: big.NewInt(1), MaxDeposit: new(big.Int).Lsh(big.NewInt(1), 128)}
}

func originChain(chainID int64) interface{} {
	return mock.MatchedBy(func(req bridge.RouteRequest) bool { return req.OriginChainID == chainID })
}

// quotedAmounts lists the input amount of every GetQuote call, in call order
func quotedAmounts(b *MockBridge) []*big.Int {
	var out []*big.Int
	for _, call := range b.Calls {
		if call.Method == "GetQuote" {
			out = append(out, call.Arguments.Get(1).(bridge.QuoteRequest).Amount)
		}
	}
	return out
}

// MockIndexer
type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) GetDepositsByDepositor(ctx context.Context, depositor string, limit int) ([]indexer.Deposit, error) {
	args := m.Called(ctx, depositor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]indexer.Deposit), args.Error(1)
}

func (m *MockIndexer) FindDeposit(ctx context.Context, query indexer.Query) (*indexer.Deposit, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*indexer.Deposit), args.Error(1)
}

// MockExecutor
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) ExecuteQuote(ctx context.Context, route entities.BridgeRoute, quote entities.QuoteSummary, recipient string, onProgress ProgressFunc) error {
	args := m.Called(ctx, route, quote, recipient, onProgress)
	return args.Error(0)
}

func (m *MockExecutor) ExecuteSwapQuote(ctx context.Context, route entities.SwapRoute, quote entities.SwapQuoteSummary, recipient string, onProgress ProgressFunc) error {
	args := m.Called(ctx, route, quote, recipient, onProgress)
	return args.Error(0)
}

// emitProgress replays events through the progress callback of an Execute call
func emitProgress(events ...entities.ProgressEvent) func(mock.Arguments) {
	return func(args mock.Arguments) {
		onProgress := args.Get(4).(ProgressFunc)
		for _, ev := range events {
			onProgress(ev)
		}
	}
}

// MockKeyValueStore
type MockKeyValueStore struct {
	mock.Mock
}

func (m *MockKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockKeyValueStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockKeyValueStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
