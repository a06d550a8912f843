package usecases

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"

	"crosspay.backend/internal/domain/entities"
	"crosspay.backend/internal/infrastructure/blockchain"
	"crosspay.backend/internal/infrastructure/bridge"
	"crosspay.backend/internal/infrastructure/indexer"
)

// ChainReader is the read-only RPC surface of one chain
type ChainReader interface {
	ReadContract(ctx context.Context, contractABI abi.ABI, to, method string, args ...interface{}) ([]interface{}, error)
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	GetTokenBalance(ctx context.Context, tokenAddress, ownerAddress string) (*big.Int, error)
	GetTokenBalances(ctx context.Context, owner string, tokens []string) (map[string]*big.Int, error)
	Multicall(ctx context.Context, multicallAddress string, calls []blockchain.Call3) ([]blockchain.Call3Result, error)
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error)
}

// ChainReaderProvider hands out the reader of a chain
type ChainReaderProvider interface {
	Reader(chainID int64) (ChainReader, error)
}

// ChainReaderFunc adapts a function to ChainReaderProvider
type ChainReaderFunc func(chainID int64) (ChainReader, error)

func (f ChainReaderFunc) Reader(chainID int64) (ChainReader, error) {
	return f(chainID)
}

// FactoryReaders serves readers from the per-chain client cache
func FactoryReaders(factory *blockchain.ClientFactory) ChainReaderProvider {
	return ChainReaderFunc(func(chainID int64) (ChainReader, error) {
		client, err := factory.ForChain(chainID)
		if err != nil {
			return nil, err
		}
		return client, nil
	})
}

// DepositTracker looks up the relay status of a bridge deposit
type DepositTracker interface {
	GetDeposit(ctx context.Context, lookup bridge.DepositLookup) (*bridge.DepositStatus, error)
	GetFillByDepositTx(ctx context.Context, originChainID int64, txHash string) (*bridge.DepositStatus, error)
}

// BridgeCapability is the pricing side of the bridge/swap service
type BridgeCapability interface {
	DepositTracker
	GetAvailableRoutes(ctx context.Context, filter bridge.RouteFilter) ([]entities.BridgeRoute, error)
	GetSwapTokens(ctx context.Context, chainIDs []int64) ([]entities.SwapToken, error)
	GetLimits(ctx context.Context, req bridge.RouteRequest) (*entities.DepositLimits, error)
	GetQuote(ctx context.Context, req bridge.QuoteRequest) (*bridge.Quote, error)
	GetSwapQuote(ctx context.Context, req bridge.SwapQuoteRequest) (*bridge.SwapQuote, error)
	GetSpokePoolAddress(ctx context.Context, chainID int64) (string, error)
}

// DepositIndexer is the remote read model of deposits
type DepositIndexer interface {
	GetDepositsByDepositor(ctx context.Context, depositor string, limit int) ([]indexer.Deposit, error)
	FindDeposit(ctx context.Context, query indexer.Query) (*indexer.Deposit, error)
}

// TokenLookup resolves token metadata for an address on a chain
type TokenLookup interface {
	ResolveToken(ctx context.Context, address string, chainID int64) entities.TokenConfig
}

// ProgressFunc receives execution progress events
type ProgressFunc func(event entities.ProgressEvent)

// Executor signs and submits payments. It is provided by the wallet side.
type Executor interface {
	ExecuteQuote(ctx context.Context, route entities.BridgeRoute, quote entities.QuoteSummary, recipient string, onProgress ProgressFunc) error
	ExecuteSwapQuote(ctx context.Context, route entities.SwapRoute, quote entities.SwapQuoteSummary, recipient string, onProgress ProgressFunc) error
}
