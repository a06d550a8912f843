package bridge

import (
	"encoding/json"
	"math/big"

	"crosspay.backend/internal/domain/entities"
	"crosspay.backend/pkg/utils"
)

// Deposit statuses reported by /deposit/status
const (
	DepositStatusPending           = "pending"
	DepositStatusFilled            = "filled"
	DepositStatusSlowFillRequested = "slowFillRequested"
	DepositStatusExpired           = "expired"
	DepositStatusRefunded          = "refunded"
	DepositStatusSlowFillReady     = "slowFillReady"
	DepositStatusSettled           = "settled"
)

// RouteFilter narrows /available-routes; zero values are omitted
type RouteFilter struct {
	OriginChainID      int64
	DestinationChainID int64
	OriginToken        string
	DestinationToken   string
}

// RouteRequest identifies one token pair across two chains
type RouteRequest struct {
	InputToken         string
	OutputToken        string
	OriginChainID      int64
	DestinationChainID int64
}

// QuoteRequest asks /suggested-fees for an exact input amount
type QuoteRequest struct {
	RouteRequest
	Amount    *big.Int
	Recipient string
	Depositor string
}

// SwapQuoteRequest asks /swap/approval for a swap-then-bridge quote
type SwapQuoteRequest struct {
	RouteRequest
	Amount            *big.Int
	TradeType         string // exactInput | minOutput
	Depositor         string
	Recipient         string
	SlippageTolerance float64
}

// Fee is one fee component of a quote
type Fee struct {
	Pct   *big.Int
	Total *big.Int
}

// Quote is a bridge price quote for an exact input amount
type Quote struct {
	InputAmount          *big.Int
	OutputAmount         *big.Int
	RelayerCapitalFee    Fee
	RelayerGasFee        Fee
	LpFee                Fee
	TotalRelayFee        Fee
	QuoteTimestamp       int64 // seconds
	FillDeadline         int64 // seconds, 0 when the api omits it
	EstimatedFillTimeSec int64
	SpokePoolAddress     string
	IsAmountTooLow       bool
	Limits               entities.DepositLimits
	Raw                  json.RawMessage
}

// SwapQuote is a swap-then-bridge quote
type SwapQuote struct {
	InputAmount          *big.Int
	RequiredInputAmount  *big.Int
	ExpectedOutputAmount *big.Int
	MinOutputAmount      *big.Int
	ApprovalTxns         []entities.ApprovalTxn
	OriginChainID        int64
	DestinationChainID   int64
	ExpectedFillTimeSec  int64
	FillDeadline         int64
	QuoteExpiryTimestamp int64
	Raw                  json.RawMessage
}

// DepositLookup identifies a deposit by id or by origin tx hash
type DepositLookup struct {
	OriginChainID int64
	DepositID     *big.Int
	DepositTxHash string
}

// DepositStatus is the bridge's view of a deposit
type DepositStatus struct {
	Status             string
	OriginChainID      int64
	DestinationChainID int64
	DepositID          *big.Int
	DepositTxHash      string
	FillTxHash         string
}

// IsFilled reports whether the relay reached the recipient
func (s *DepositStatus) IsFilled() bool {
	return s != nil && s.Status == DepositStatusFilled
}

type routeResponse struct {
	OriginChainID          int64  `json:"originChainId"`
	OriginToken            string `json:"originToken"`
	DestinationChainID     int64  `json:"destinationChainId"`
	DestinationToken       string `json:"destinationToken"`
	OriginTokenSymbol      string `json:"originTokenSymbol"`
	DestinationTokenSymbol string `json:"destinationTokenSymbol"`
	IsNative               bool   `json:"isNative"`
}

type limitsResponse struct {
	MinDeposit        utils.FlexBigInt `json:"minDeposit"`
	MaxDeposit        utils.FlexBigInt `json:"maxDeposit"`
	MaxDepositInstant utils.FlexBigInt `json:"maxDepositInstant"`
}

func (l limitsResponse) toEntity() entities.DepositLimits {
	return entities.DepositLimits{
		MinDeposit:        utils.BigOrZero(l.MinDeposit.Big()),
		MaxDeposit:        l.MaxDeposit.Big(),
		MaxDepositInstant: l.MaxDepositInstant.Big(),
	}
}

type feeResponse struct {
	Pct   utils.FlexBigInt `json:"pct"`
	Total utils.FlexBigInt `json:"total"`
}

func (f feeResponse) toFee() Fee {
	return Fee{Pct: utils.BigOrZero(f.Pct.Big()), Total: utils.BigOrZero(f.Total.Big())}
}

type suggestedFeesResponse struct {
	EstimatedFillTimeSec        int64            `json:"estimatedFillTimeSec"`
	Timestamp                   utils.FlexBigInt `json:"timestamp"`
	FillDeadline                utils.FlexBigInt `json:"fillDeadline"`
	IsAmountTooLow              bool             `json:"isAmountTooLow"`
	SpokePoolAddress            string           `json:"spokePoolAddress"`
	DestinationSpokePoolAddress string           `json:"destinationSpokePoolAddress"`
	OutputAmount                utils.FlexBigInt `json:"outputAmount"`
	TotalRelayFee               feeResponse      `json:"totalRelayFee"`
	RelayerCapitalFee           feeResponse      `json:"relayerCapitalFee"`
	RelayerGasFee               feeResponse      `json:"relayerGasFee"`
	LpFee                       feeResponse      `json:"lpFee"`
	Limits                      limitsResponse   `json:"limits"`
}

type swapTokenResponse struct {
	ChainID  int64   `json:"chainId"`
	Address  string  `json:"address"`
	Name     string  `json:"name"`
	Symbol   string  `json:"symbol"`
	Decimals int     `json:"decimals"`
	LogoURL  string  `json:"logoUrl"`
	PriceUSD *string `json:"priceUsd"`
}

type swapTokenRef struct {
	ChainID int64  `json:"chainId"`
	Address string `json:"address"`
}

type swapApprovalResponse struct {
	Checks struct {
		Balance struct {
			Actual   utils.FlexBigInt `json:"actual"`
			Expected utils.FlexBigInt `json:"expected"`
		} `json:"balance"`
	} `json:"checks"`
	ApprovalTxns []struct {
		ChainID int64  `json:"chainId"`
		To      string `json:"to"`
		Data    string `json:"data"`
	} `json:"approvalTxns"`
	InputToken           swapTokenRef     `json:"inputToken"`
	OutputToken          swapTokenRef     `json:"outputToken"`
	InputAmount          utils.FlexBigInt `json:"inputAmount"`
	ExpectedOutputAmount utils.FlexBigInt `json:"expectedOutputAmount"`
	MinOutputAmount      utils.FlexBigInt `json:"minOutputAmount"`
	ExpectedFillTime     int64            `json:"expectedFillTime"`
	FillDeadline         utils.FlexBigInt `json:"fillDeadline"`
	QuoteExpiryTimestamp int64            `json:"quoteExpiryTimestamp"`
}

type depositStatusResponse struct {
	Status             string           `json:"status"`
	OriginChainID      int64            `json:"originChainId"`
	DestinationChainID int64            `json:"destinationChainId"`
	DepositID          utils.FlexBigInt `json:"depositId"`
	DepositTxHash      string           `json:"depositTxHash"`
	FillTx             string           `json:"fillTx"`
}

type apiError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
