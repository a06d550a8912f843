package blockchain

import (
	"errors"
	"fmt"
	"sync"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
)

var beforeGetEVMClientWriteLockHook = func(string) {}

// ClientFactory manages blockchain clients
type ClientFactory struct {
	evmClients map[string]*EVMClient
	chains     map[int64]entities.ChainConfig
	mu         sync.RWMutex
}

// NewClientFactory creates a new client factory
func NewClientFactory(chains ...entities.ChainConfig) *ClientFactory {
	f := &ClientFactory{
		evmClients: make(map[string]*EVMClient),
		chains:     make(map[int64]entities.ChainConfig, len(chains)),
	}
	for _, chain := range chains {
		f.chains[chain.ChainID] = chain
	}
	return f
}

// GetEVMClient returns an EVM client for the given RPC URL
// If a client already exists for the URL, it returns the cached client
func (f *ClientFactory) GetEVMClient(rpcURL string) (*EVMClient, error) {
	f.mu.RLock()
	client, ok := f.evmClients[rpcURL]
	f.mu.RUnlock()
	if ok {
		return client, nil
	}

	beforeGetEVMClientWriteLockHook(rpcURL)

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double check
	if client, ok := f.evmClients[rpcURL]; ok {
		return client, nil
	}

	newClient, err := NewEVMClient(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create EVM client: %w", err)
	}

	f.evmClients[rpcURL] = newClient
	return newClient, nil
}

// ForChain returns a client for the first reachable RPC URL of a configured chain
func (f *ClientFactory) ForChain(chainID int64) (*EVMClient, error) {
	f.mu.RLock()
	chain, ok := f.chains[chainID]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", chainID, domainerrors.ErrUnsupportedChain)
	}
	if len(chain.RPCURLs) == 0 {
		return nil, fmt.Errorf("chain %d has no rpc urls: %w", chainID, domainerrors.ErrUnsupportedChain)
	}

	var errs []error
	for _, url := range chain.RPCURLs {
		client, err := f.GetEVMClient(url)
		if err == nil {
			return client, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// Chain returns the chain config registered for chainID
func (f *ClientFactory) Chain(chainID int64) (entities.ChainConfig, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	chain, ok := f.chains[chainID]
	return chain, ok
}

// RegisterEVMClient injects/overrides cached client for a specific rpcURL.
// Useful for deterministic unit tests.
func (f *ClientFactory) RegisterEVMClient(rpcURL string, client *EVMClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evmClients[rpcURL] = client
}

// Close closes every cached client
func (f *ClientFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for url, client := range f.evmClients {
		client.Close()
		delete(f.evmClients, url)
	}
}
