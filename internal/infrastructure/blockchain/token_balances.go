package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// TokenBalancesMethod is the provider extension used for batched ERC20 balances
const TokenBalancesMethod = "alchemy_getTokenBalances"

// MethodNotFoundCode is the JSON-RPC code for an unknown method
const MethodNotFoundCode = -32601

var methodNotFoundPattern = regexp.MustCompile(`(?i)method not found|does not exist|not supported|unsupported method|not available`)

// ErrBatchBalancesUnavailable is returned when the client has no raw rpc handle
var ErrBatchBalancesUnavailable = errors.New("batched token balances unavailable")

type tokenBalancesResponse struct {
	Address       string `json:"address"`
	TokenBalances []struct {
		ContractAddress string  `json:"contractAddress"`
		TokenBalance    *string `json:"tokenBalance"`
		Error           *string `json:"error"`
	} `json:"tokenBalances"`
}

// GetTokenBalances fetches ERC20 balances of owner in one RPC call.
// The map is keyed by lower-cased token address; tokens the node reported an error for are omitted.
func (c *EVMClient) GetTokenBalances(ctx context.Context, owner string, tokens []string) (map[string]*big.Int, error) {
	if c.rpc == nil {
		return nil, ErrBatchBalancesUnavailable
	}
	if len(tokens) == 0 {
		return map[string]*big.Int{}, nil
	}

	var resp tokenBalancesResponse
	if err := c.rpc.CallContext(ctx, &resp, TokenBalancesMethod, owner, tokens); err != nil {
		return nil, err
	}

	out := make(map[string]*big.Int, len(resp.TokenBalances))
	for _, tb := range resp.TokenBalances {
		if tb.Error != nil || tb.TokenBalance == nil {
			continue
		}
		raw := *tb.TokenBalance
		if raw == "0x" || raw == "" {
			out[strings.ToLower(tb.ContractAddress)] = new(big.Int)
			continue
		}
		val, err := hexutil.DecodeBig(trimHexZeros(raw))
		if err != nil {
			return nil, fmt.Errorf("decode balance of %s: %w", tb.ContractAddress, err)
		}
		out[strings.ToLower(tb.ContractAddress)] = val
	}
	return out, nil
}

// hexutil.DecodeBig rejects leading zero digits, which providers return as 32-byte padded words
func trimHexZeros(s string) string {
	digits := strings.TrimLeft(strings.TrimPrefix(strings.ToLower(s), "0x"), "0")
	if digits == "" {
		digits = "0"
	}
	return "0x" + digits
}

// IsMethodNotFound reports whether err is a concrete "method unsupported" signal from the node
func IsMethodNotFound(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == MethodNotFoundCode {
		return true
	}
	return methodNotFoundPattern.MatchString(err.Error())
}
