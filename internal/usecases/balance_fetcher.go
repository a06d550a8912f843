package usecases

import (
	"context"
	"math/big"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crosspay.backend/internal/domain/entities"
	"crosspay.backend/internal/infrastructure/blockchain"
	"crosspay.backend/internal/infrastructure/metrics"
	"crosspay.backend/pkg/logger"
)

// FetchBalances returns the balance of account for every token, keyed by entities.TokenKey.
// Lookups that fail on every fallback resolve to zero.
func (r *TokenResolver) FetchBalances(ctx context.Context, account string, tokens []entities.TokenConfig) map[string]*big.Int {
	byChain := make(map[int64][]string)
	seen := make(map[string]bool)
	for _, token := range tokens {
		key := token.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		byChain[token.ChainID] = append(byChain[token.ChainID], normalizeAddress(token.Address))
	}

	results := make([]map[string]*big.Int, 0, len(byChain))
	chainIDs := make([]int64, 0, len(byChain))
	for chainID := range byChain {
		chainIDs = append(chainIDs, chainID)
		results = append(results, nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, chainID := range chainIDs {
		g.Go(func() error {
			results[i] = r.fetchChainBalances(gctx, chainID, account, byChain[chainID])
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*big.Int, len(seen))
	for i, chainID := range chainIDs {
		for _, address := range byChain[chainID] {
			balance := results[i][address]
			if balance == nil {
				balance = new(big.Int)
			}
			out[entities.TokenKey(chainID, address)] = balance
		}
	}
	return out
}

// BatchCapability reports what is known about the chain's batched balance RPC
func (r *TokenResolver) BatchCapability(chainID int64) BatchCapability {
	r.capabilityMu.RLock()
	defer r.capabilityMu.RUnlock()
	if c, ok := r.capabilities[chainID]; ok {
		return c
	}
	return BatchUnknown
}

func (r *TokenResolver) setCapability(chainID int64, capability BatchCapability) {
	r.capabilityMu.Lock()
	defer r.capabilityMu.Unlock()
	// unsupported is sticky; only a concrete negative signal sets it
	if r.capabilities[chainID] == BatchUnsupported {
		return
	}
	r.capabilities[chainID] = capability
}

func (r *TokenResolver) fetchChainBalances(ctx context.Context, chainID int64, account string, addresses []string) map[string]*big.Int {
	cacheKey := balanceCacheKey(chainID, account)
	if cached, ok := r.cachedBalances(cacheKey, addresses); ok {
		return cached
	}

	start := time.Now()
	labels := metrics.ChainLabels(chainID)
	defer func() {
		r.metrics.ObserveLatency(metrics.OpFetchBalances, time.Since(start), labels)
	}()

	out := make(map[string]*big.Int, len(addresses))
	if r.readers == nil {
		return out
	}
	reader, err := r.readers.Reader(chainID)
	if err != nil {
		logger.Warn(ctx, "No reader for chain, balances default to zero",
			zap.Int64("chain_id", chainID),
			zap.Error(err),
		)
		r.metrics.IncCounter(metrics.EventBalanceLookupFailed, labels)
		return out
	}

	var erc20s []string
	for _, address := range addresses {
		if !entities.IsNativeAddress(address) {
			erc20s = append(erc20s, address)
		}
	}

	if len(erc20s) > 0 && r.BatchCapability(chainID) != BatchUnsupported {
		r.fetchBatch(ctx, reader, chainID, account, erc20s, out)
	}

	remaining := missingAddresses(addresses, out)
	if hasERC20(remaining) {
		r.fetchMulticall(ctx, reader, chainID, account, remaining, out)
		remaining = missingAddresses(addresses, out)
	}
	if len(remaining) > 0 {
		r.fetchIndividually(ctx, reader, chainID, account, remaining, out)
	}

	r.storeBalances(cacheKey, out)
	return out
}

func (r *TokenResolver) fetchBatch(ctx context.Context, reader ChainReader, chainID int64, account string, tokens []string, out map[string]*big.Int) {
	balances, err := reader.GetTokenBalances(ctx, account, tokens)
	if err != nil {
		if blockchain.IsMethodNotFound(err) {
			r.setCapability(chainID, BatchUnsupported)
			r.metrics.IncCounter(metrics.EventBalanceBatchUnsupported, metrics.ChainLabels(chainID))
			logger.Info(ctx, "Batched token balances unsupported, falling back to multicall",
				zap.Int64("chain_id", chainID),
				zap.Error(err),
			)
			return
		}
		logger.Warn(ctx, "Batched token balances failed",
			zap.Int64("chain_id", chainID),
			zap.Error(err),
		)
		return
	}

	r.setCapability(chainID, BatchSupported)
	for address, balance := range balances {
		out[normalizeAddress(address)] = balance
	}
}

func (r *TokenResolver) fetchMulticall(ctx context.Context, reader ChainReader, chainID int64, account string, addresses []string, out map[string]*big.Int) {
	multicallAddress := ""
	if chain, ok := r.chains[chainID]; ok {
		multicallAddress = chain.MulticallAddress
	}

	calls := make([]blockchain.Call3, 0, len(addresses))
	targets := make([]string, 0, len(addresses))
	for _, address := range addresses {
		var (
			call blockchain.Call3
			err  error
		)
		if entities.IsNativeAddress(address) {
			call, err = blockchain.NativeBalanceCall(multicallAddress, account)
		} else {
			call, err = blockchain.BalanceOfCall(address, account)
		}
		if err != nil {
			continue
		}
		calls = append(calls, call)
		targets = append(targets, address)
	}

	results, err := reader.Multicall(ctx, multicallAddress, calls)
	if err != nil {
		r.metrics.IncCounter(metrics.EventBalanceMulticallFailed, metrics.ChainLabels(chainID))
		logger.Warn(ctx, "Multicall balance batch failed, falling back to individual reads",
			zap.Int64("chain_id", chainID),
			zap.Int("calls", len(calls)),
			zap.Error(err),
		)
		return
	}

	for i, result := range results {
		if !result.Success {
			continue
		}
		balance, err := blockchain.DecodeUint256(result.ReturnData)
		if err != nil {
			continue
		}
		out[targets[i]] = balance
	}
}

func (r *TokenResolver) fetchIndividually(ctx context.Context, reader ChainReader, chainID int64, account string, addresses []string, out map[string]*big.Int) {
	for _, address := range addresses {
		var (
			balance *big.Int
			err     error
		)
		if entities.IsNativeAddress(address) {
			balance, err = reader.GetBalance(ctx, account)
		} else {
			balance, err = reader.GetTokenBalance(ctx, address, account)
		}
		if err != nil {
			r.metrics.IncCounter(metrics.EventBalanceLookupFailed, metrics.ChainLabels(chainID))
			logger.Warn(ctx, "Balance lookup failed, using zero",
				zap.Int64("chain_id", chainID),
				zap.String("token", address),
				zap.Error(err),
			)
			balance = new(big.Int)
		}
		out[address] = balance
	}
}

func (r *TokenResolver) cachedBalances(key string, addresses []string) (map[string]*big.Int, bool) {
	r.balanceMu.RLock()
	defer r.balanceMu.RUnlock()
	snapshot, ok := r.balances[key]
	if !ok {
		return nil, false
	}

	now := r.now()
	out := make(map[string]*big.Int, len(addresses))
	for _, address := range addresses {
		cached, ok := snapshot[address]
		if !ok || now.Sub(cached.fetchedAt) >= r.cacheTTL {
			return nil, false
		}
		out[address] = cached.value
	}
	return out, true
}

// storeBalances merges a fetch into the account's snapshot; addresses it did not cover keep their entries
func (r *TokenResolver) storeBalances(key string, balances map[string]*big.Int) {
	fetchedAt := r.now()
	r.balanceMu.Lock()
	defer r.balanceMu.Unlock()
	snapshot, ok := r.balances[key]
	if !ok {
		snapshot = make(map[string]cachedBalance, len(balances))
		r.balances[key] = snapshot
	}
	for address, balance := range balances {
		snapshot[address] = cachedBalance{value: balance, fetchedAt: fetchedAt}
	}
}

func balanceCacheKey(chainID int64, account string) string {
	return strconv.FormatInt(chainID, 10) + ":" + strings.ToLower(account)
}

func normalizeAddress(address string) string {
	if entities.IsNativeAddress(address) {
		return entities.NativeTokenAddress
	}
	return strings.ToLower(strings.TrimSpace(address))
}

func missingAddresses(addresses []string, found map[string]*big.Int) []string {
	var missing []string
	for _, address := range addresses {
		if _, ok := found[address]; !ok {
			missing = append(missing, address)
		}
	}
	return missing
}

func hasERC20(addresses []string) bool {
	for _, address := range addresses {
		if !entities.IsNativeAddress(address) {
			return true
		}
	}
	return false
}
