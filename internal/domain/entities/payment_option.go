package entities

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// UnavailabilityReason explains why an option cannot meet the target
type UnavailabilityReason string

const (
	ReasonNone                UnavailabilityReason = ""
	ReasonInsufficientBalance UnavailabilityReason = "insufficient_balance"
	ReasonBelowMinimumDeposit UnavailabilityReason = "below_minimum_deposit"
	ReasonInsufficientUSD     UnavailabilityReason = "insufficient_usd_value"
	ReasonQuoteUnavailable    UnavailabilityReason = "quote_unavailable"
	ReasonWalletNotConnected  UnavailabilityReason = "wallet_not_connected"
)

// BridgeRoute is one origin->destination token route offered by the bridge
type BridgeRoute struct {
	OriginChainID          int64  `json:"originChainId"`
	DestinationChainID     int64  `json:"destinationChainId"`
	OriginToken            string `json:"originToken"`
	DestinationToken       string `json:"destinationToken"`
	OriginTokenSymbol      string `json:"originTokenSymbol"`
	DestinationTokenSymbol string `json:"destinationTokenSymbol"`
	IsNative               bool   `json:"isNative"`
}

// SwapRoute routes an origin token into the target through the swap capability
type SwapRoute struct {
	OriginChainID      int64       `json:"originChainId"`
	DestinationChainID int64       `json:"destinationChainId"`
	InputToken         TokenConfig `json:"inputToken"`
	OutputToken        TokenConfig `json:"outputToken"`
}

// SwapToken is an entry of the swap-token index
type SwapToken struct {
	TokenConfig
	PriceUSD decimal.NullDecimal `json:"priceUsd"`
}

// DepositLimits bounds the amount a bridge deposit may carry
type DepositLimits struct {
	MinDeposit        *big.Int `json:"minDeposit"`
	MaxDeposit        *big.Int `json:"maxDeposit"`
	MaxDepositInstant *big.Int `json:"maxDepositInstant,omitempty"`
}

// QuoteSummary is an immutable bridge quote; refinement supersedes it with a new value
type QuoteSummary struct {
	InputAmount          *big.Int        `json:"inputAmount"`
	OutputAmount         *big.Int        `json:"outputAmount"`
	FeesTotal            *big.Int        `json:"feesTotal"`
	ExpiresAt            int64           `json:"expiresAt"`
	Limits               DepositLimits   `json:"limits"`
	EstimatedFillTimeSec int64           `json:"estimatedFillTimeSec"`
	SpokePoolAddress     string          `json:"spokePoolAddress,omitempty"`
	Raw                  json.RawMessage `json:"raw,omitempty"`
}

// ApprovalTxn is an allowance transaction a swap needs before execution
type ApprovalTxn struct {
	ChainID int64  `json:"chainId"`
	To      string `json:"to"`
	Data    string `json:"data"`
}

// SwapQuoteSummary is the swap-mode analogue of QuoteSummary
type SwapQuoteSummary struct {
	InputAmount          *big.Int        `json:"inputAmount"`
	RequiredInputAmount  *big.Int        `json:"requiredInputAmount,omitempty"`
	ExpectedOutputAmount *big.Int        `json:"expectedOutputAmount"`
	MinOutputAmount      *big.Int        `json:"minOutputAmount"`
	ApprovalTxns         []ApprovalTxn   `json:"approvalTxns"`
	OriginChainID        int64           `json:"originChainId"`
	DestinationChainID   int64           `json:"destinationChainId"`
	ExpiresAt            int64           `json:"expiresAt"`
	EstimatedFillTimeSec int64           `json:"estimatedFillTimeSec"`
	Raw                  json.RawMessage `json:"raw,omitempty"`
}

// PaymentOption is a candidate funding path. Options are rebuilt on every planning pass.
type PaymentOption struct {
	ID                   string               `json:"id"`
	Mode                 PaymentMode          `json:"mode"`
	DisplayToken         TokenConfig          `json:"displayToken"`
	WrappedToken         *TokenConfig         `json:"wrappedToken,omitempty"`
	RequiresWrap         bool                 `json:"requiresWrap"`
	Balance              *big.Int             `json:"balance"`
	PriceUSD             decimal.NullDecimal  `json:"priceUsd"`
	EstimatedBalanceUSD  decimal.NullDecimal  `json:"estimatedBalanceUsd"`
	Route                *BridgeRoute         `json:"route,omitempty"`
	SwapRoute            *SwapRoute           `json:"swapRoute,omitempty"`
	Quote                *QuoteSummary        `json:"quote,omitempty"`
	SwapQuote            *SwapQuoteSummary    `json:"swapQuote,omitempty"`
	CanMeetTarget        bool                 `json:"canMeetTarget"`
	UnavailabilityReason UnavailabilityReason `json:"unavailabilityReason,omitempty"`
	EstimatedFillTimeSec int64                `json:"estimatedFillTimeSec"`
}

// BalanceToken returns the token whose balance funds the option
func (o *PaymentOption) BalanceToken() TokenConfig {
	return o.DisplayToken
}

// OptionID builds the stable option key mode:chainId:token[:wrap]
func OptionID(mode PaymentMode, chainID int64, tokenAddress string, requiresWrap bool) string {
	id := string(mode) + ":" + strconv.FormatInt(chainID, 10) + ":" + strings.ToLower(tokenAddress)
	if requiresWrap {
		id += ":wrap"
	}
	return id
}

// PaymentGoal is what the caller wants collected
type PaymentGoal struct {
	Account                string                     `json:"account"`
	Recipient              string                     `json:"recipient"`
	TargetToken            string                     `json:"targetToken"`
	TargetChainID          int64                      `json:"targetChainId"`
	TargetAmount           *big.Int                   `json:"targetAmount"`
	PriceOverrides         map[string]decimal.Decimal `json:"priceOverrides,omitempty"`
	ShowUnavailableOptions bool                       `json:"showUnavailableOptions"`
}
