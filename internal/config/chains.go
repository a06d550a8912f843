package config

import "crosspay.backend/internal/domain/entities"

var ether = entities.NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18}

func defaultChains() []entities.ChainConfig {
	return []entities.ChainConfig{
		{
			ChainID:        1,
			Name:           "Ethereum",
			RPCURLs:        []string{"https://eth.llamarpc.com", "https://cloudflare-eth.com"},
			ExplorerURL:    "https://etherscan.io",
			NativeCurrency: ether,
		},
		{
			ChainID:        10,
			Name:           "Optimism",
			RPCURLs:        []string{"https://mainnet.optimism.io"},
			ExplorerURL:    "https://optimistic.etherscan.io",
			NativeCurrency: ether,
		},
		{
			ChainID:        137,
			Name:           "Polygon",
			RPCURLs:        []string{"https://polygon-rpc.com"},
			ExplorerURL:    "https://polygonscan.com",
			NativeCurrency: entities.NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
		},
		{
			ChainID:        8453,
			Name:           "Base",
			RPCURLs:        []string{"https://mainnet.base.org"},
			ExplorerURL:    "https://basescan.org",
			NativeCurrency: ether,
		},
		{
			ChainID:        42161,
			Name:           "Arbitrum",
			RPCURLs:        []string{"https://arb1.arbitrum.io/rpc"},
			ExplorerURL:    "https://arbiscan.io",
			NativeCurrency: ether,
		},
	}
}

// wrapped native token addresses per chain
var wrappedNative = map[int64]entities.TokenConfig{
	1:     {Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
	10:    {Address: "0x4200000000000000000000000000000000000006", Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
	137:   {Address: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", Symbol: "WPOL", Name: "Wrapped POL", Decimals: 18},
	8453:  {Address: "0x4200000000000000000000000000000000000006", Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
	42161: {Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
}

func defaultWrappedTokens(chains []entities.ChainConfig) entities.WrappedTokenMap {
	m := entities.WrappedTokenMap{}
	for _, chain := range chains {
		wrapped, ok := wrappedNative[chain.ChainID]
		if !ok {
			continue
		}
		wrapped.ChainID = chain.ChainID
		m.Add(chain.ChainID, entities.WrappedPair{Native: chain.NativeToken(), Wrapped: wrapped})
	}
	return m
}
