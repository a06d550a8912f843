package entities

import (
	"strconv"
	"strings"
)

// NativeTokenAddress is the sentinel address used for a chain's native currency
const NativeTokenAddress = "0x0000000000000000000000000000000000000000"

// NativeCurrency describes the gas token of a chain
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ChainConfig represents a configured chain. Loaded once, never mutated.
type ChainConfig struct {
	ChainID          int64          `json:"chainId"`
	Name             string         `json:"name"`
	RPCURLs          []string       `json:"rpcUrls"`
	ExplorerURL      string         `json:"explorerUrl,omitempty"`
	NativeCurrency   NativeCurrency `json:"nativeCurrency"`
	MulticallAddress string         `json:"multicallAddress,omitempty"`
}

// NativeToken returns the native currency as a token config
func (c ChainConfig) NativeToken() TokenConfig {
	return TokenConfig{
		Address:  NativeTokenAddress,
		Symbol:   c.NativeCurrency.Symbol,
		Name:     c.NativeCurrency.Name,
		Decimals: c.NativeCurrency.Decimals,
		ChainID:  c.ChainID,
	}
}

// TokenConfig represents an ERC20 or native token on a chain
type TokenConfig struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Decimals int    `json:"decimals"`
	ChainID  int64  `json:"chainId"`
	LogoURL  string `json:"logoUrl,omitempty"`
}

// Key returns the cache key of the token
func (t TokenConfig) Key() string {
	return TokenKey(t.ChainID, t.Address)
}

// IsNative reports whether the token is the chain's native currency
func (t TokenConfig) IsNative() bool {
	return IsNativeAddress(t.Address)
}

// TokenKey builds the chainId:address key used by every token/price lookup
func TokenKey(chainID int64, address string) string {
	return strconv.FormatInt(chainID, 10) + ":" + strings.ToLower(address)
}

// IsNativeAddress reports whether address is the native sentinel
func IsNativeAddress(address string) bool {
	a := strings.ToLower(strings.TrimSpace(address))
	return a == "" || a == NativeTokenAddress || a == "native"
}

// WrappedPair links a chain's native token with its wrapped ERC20 form (ETH/WETH)
type WrappedPair struct {
	Native  TokenConfig `json:"native"`
	Wrapped TokenConfig `json:"wrapped"`
}

// WrappedTokenMap is keyed by chain id, then by upper-cased symbol of either side of the pair
type WrappedTokenMap map[int64]map[string]WrappedPair

// Lookup finds the pair a symbol belongs to on a chain
func (m WrappedTokenMap) Lookup(chainID int64, symbol string) (WrappedPair, bool) {
	bySymbol, ok := m[chainID]
	if !ok {
		return WrappedPair{}, false
	}
	pair, ok := bySymbol[strings.ToUpper(symbol)]
	return pair, ok
}

// Add registers a pair under both of its symbols
func (m WrappedTokenMap) Add(chainID int64, pair WrappedPair) {
	if m[chainID] == nil {
		m[chainID] = make(map[string]WrappedPair)
	}
	m[chainID][strings.ToUpper(pair.Native.Symbol)] = pair
	m[chainID][strings.ToUpper(pair.Wrapped.Symbol)] = pair
}
