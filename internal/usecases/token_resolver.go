package usecases

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"crosspay.backend/internal/domain/entities"
	"crosspay.backend/internal/infrastructure/blockchain"
	"crosspay.backend/internal/infrastructure/metrics"
	"crosspay.backend/pkg/logger"
)

// BatchCapability tracks whether a chain's RPC serves batched token balances
type BatchCapability string

const (
	BatchUnknown     BatchCapability = "unknown"
	BatchSupported   BatchCapability = "supported"
	BatchUnsupported BatchCapability = "unsupported"
)

type cachedBalance struct {
	value     *big.Int
	fetchedAt time.Time
}

// TokenResolver resolves token metadata and wallet balances per chain
type TokenResolver struct {
	readers  ChainReaderProvider
	chains   map[int64]entities.ChainConfig
	known    map[string]entities.TokenConfig
	metrics  metrics.Recorder
	cacheTTL time.Duration
	now      func() time.Time

	tokenMu sync.RWMutex
	tokens  map[string]entities.TokenConfig

	balanceMu sync.RWMutex
	balances  map[string]map[string]cachedBalance

	capabilityMu sync.RWMutex
	capabilities map[int64]BatchCapability
}

func NewTokenResolver(
	readers ChainReaderProvider,
	chains []entities.ChainConfig,
	wrapped entities.WrappedTokenMap,
	recorder metrics.Recorder,
	cacheTTL time.Duration,
) *TokenResolver {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultBalanceCacheTTL
	}

	r := &TokenResolver{
		readers:      readers,
		chains:       make(map[int64]entities.ChainConfig, len(chains)),
		known:        make(map[string]entities.TokenConfig),
		metrics:      recorder,
		cacheTTL:     cacheTTL,
		now:          time.Now,
		tokens:       make(map[string]entities.TokenConfig),
		balances:     make(map[string]map[string]cachedBalance),
		capabilities: make(map[int64]BatchCapability),
	}
	for _, chain := range chains {
		r.chains[chain.ChainID] = chain
	}
	for _, bySymbol := range wrapped {
		for _, pair := range bySymbol {
			r.known[pair.Native.Key()] = pair.Native
			r.known[pair.Wrapped.Key()] = pair.Wrapped
		}
	}
	return r
}

// ResolveToken returns metadata for address on chainID.
// It never fails: unreadable contracts resolve to an UNKNOWN TOKEN with 18 decimals.
func (r *TokenResolver) ResolveToken(ctx context.Context, address string, chainID int64) entities.TokenConfig {
	if entities.IsNativeAddress(address) {
		return r.nativeToken(chainID)
	}

	key := entities.TokenKey(chainID, address)
	r.tokenMu.RLock()
	cached, ok := r.tokens[key]
	r.tokenMu.RUnlock()
	if ok {
		return cached
	}

	if token, ok := r.known[key]; ok {
		r.remember(token)
		return token
	}

	token, err := r.readERC20(ctx, address, chainID)
	if err != nil {
		logger.Warn(ctx, "Token metadata read failed, using fallback",
			zap.Int64("chain_id", chainID),
			zap.String("token", address),
			zap.Error(err),
		)
		return entities.TokenConfig{
			Address:  address,
			Symbol:   UnknownTokenSymbol,
			Decimals: DefaultTokenDecimals,
			ChainID:  chainID,
		}
	}
	r.remember(token)
	return token
}

// Prime seeds the cache with metadata that is already known, e.g. from the swap-token index
func (r *TokenResolver) Prime(tokens ...entities.TokenConfig) {
	r.tokenMu.Lock()
	defer r.tokenMu.Unlock()
	for _, token := range tokens {
		if token.Symbol == "" {
			continue
		}
		r.tokens[token.Key()] = token
	}
}

func (r *TokenResolver) remember(token entities.TokenConfig) {
	r.tokenMu.Lock()
	r.tokens[token.Key()] = token
	r.tokenMu.Unlock()
}

func (r *TokenResolver) nativeToken(chainID int64) entities.TokenConfig {
	if chain, ok := r.chains[chainID]; ok {
		return chain.NativeToken()
	}
	return entities.TokenConfig{
		Address:  entities.NativeTokenAddress,
		Symbol:   "ETH",
		Name:     "Ether",
		Decimals: DefaultTokenDecimals,
		ChainID:  chainID,
	}
}

func (r *TokenResolver) readERC20(ctx context.Context, address string, chainID int64) (entities.TokenConfig, error) {
	if r.readers == nil {
		return entities.TokenConfig{}, fmt.Errorf("no chain reader configured")
	}
	reader, err := r.readers.Reader(chainID)
	if err != nil {
		return entities.TokenConfig{}, err
	}

	symbolOut, err := reader.ReadContract(ctx, blockchain.ERC20ABI, address, "symbol")
	if err != nil {
		return entities.TokenConfig{}, fmt.Errorf("read symbol: %w", err)
	}
	decimalsOut, err := reader.ReadContract(ctx, blockchain.ERC20ABI, address, "decimals")
	if err != nil {
		return entities.TokenConfig{}, fmt.Errorf("read decimals: %w", err)
	}

	symbol, ok := firstOutput[string](symbolOut)
	if !ok || strings.TrimSpace(symbol) == "" {
		return entities.TokenConfig{}, fmt.Errorf("unexpected symbol output %v", symbolOut)
	}
	decimals, ok := firstOutput[uint8](decimalsOut)
	if !ok {
		return entities.TokenConfig{}, fmt.Errorf("unexpected decimals output %v", decimalsOut)
	}

	return entities.TokenConfig{
		Address:  address,
		Symbol:   symbol,
		Decimals: int(decimals),
		ChainID:  chainID,
	}, nil
}

func firstOutput[T any](values []interface{}) (T, bool) {
	var zero T
	if len(values) == 0 {
		return zero, false
	}
	v, ok := values[0].(T)
	return v, ok
}
