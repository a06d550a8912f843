package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMulticallAddress is the Multicall3 deployment shared by every major EVM chain
const DefaultMulticallAddress = "0xcA11bde05977b3631167028862bE2a173976CA11"

const erc20ABIJSON = `[
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const multicall3ABIJSON = `[
	{"type":"function","name":"aggregate3","stateMutability":"payable",
	 "inputs":[{"name":"calls","type":"tuple[]","components":[
		{"name":"target","type":"address"},
		{"name":"allowFailure","type":"bool"},
		{"name":"callData","type":"bytes"}]}],
	 "outputs":[{"name":"returnData","type":"tuple[]","components":[
		{"name":"success","type":"bool"},
		{"name":"returnData","type":"bytes"}]}]},
	{"type":"function","name":"getEthBalance","stateMutability":"view",
	 "inputs":[{"name":"addr","type":"address"}],"outputs":[{"name":"balance","type":"uint256"}]}
]`

var (
	// ERC20ABI covers the metadata and balance reads the resolver needs
	ERC20ABI      = mustParseABI(erc20ABIJSON)
	Multicall3ABI = mustParseABI(multicall3ABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Call3 is one entry of a Multicall3 aggregate3 batch
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Call3Result is the per-call outcome of aggregate3
type Call3Result struct {
	Success    bool
	ReturnData []byte
}

// Multicall batches read-only calls through Multicall3 aggregate3 at multicallAddress
func (c *EVMClient) Multicall(ctx context.Context, multicallAddress string, calls []Call3) ([]Call3Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if multicallAddress == "" {
		multicallAddress = DefaultMulticallAddress
	}

	data, err := Multicall3ABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate3: %w", err)
	}
	out, err := c.CallView(ctx, multicallAddress, data)
	if err != nil {
		return nil, err
	}
	return DecodeAggregate3(out, len(calls))
}

// DecodeAggregate3 unpacks aggregate3 return data and checks the result count
func DecodeAggregate3(out []byte, expected int) ([]Call3Result, error) {
	values, err := Multicall3ABI.Unpack("aggregate3", out)
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate3: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected aggregate3 output count %d", len(values))
	}
	results := *abi.ConvertType(values[0], new([]Call3Result)).(*[]Call3Result)
	if len(results) != expected {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(results), expected)
	}
	return results, nil
}

// BalanceOfCall builds the multicall entry for an ERC20 balance
func BalanceOfCall(token, owner string) (Call3, error) {
	data, err := ERC20ABI.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return Call3{}, err
	}
	return Call3{Target: common.HexToAddress(token), AllowFailure: true, CallData: data}, nil
}

// NativeBalanceCall builds the multicall entry for a native balance via getEthBalance
func NativeBalanceCall(multicallAddress, owner string) (Call3, error) {
	if multicallAddress == "" {
		multicallAddress = DefaultMulticallAddress
	}
	data, err := Multicall3ABI.Pack("getEthBalance", common.HexToAddress(owner))
	if err != nil {
		return Call3{}, err
	}
	return Call3{Target: common.HexToAddress(multicallAddress), AllowFailure: true, CallData: data}, nil
}

// DecodeUint256 reads a single uint256 word returned by a call
func DecodeUint256(data []byte) (*big.Int, error) {
	if len(data) < 32 {
		return nil, fmt.Errorf("short uint256 return data (%d bytes)", len(data))
	}
	return new(big.Int).SetBytes(data[:32]), nil
}
