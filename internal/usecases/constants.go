package usecases

import "time"

// Planner defaults
const DefaultMaxSwapQuoteOptions = 20
const DefaultQuoteConcurrency = 8
const DefaultBalanceCacheTTL = 15 * time.Second

// USDShortfallBufferBps discounts the required USD value before a bridge candidate is priced (98%)
const USDShortfallBufferBps = 9800

// Refinement
const MaxRefinementIterations = 6
const DefaultSlippageBufferBps = 50
const QuoteValiditySeconds = 300
const BpsDenominator = 10000

// History
const HistoryStorageKey = "across-payment-history-v1"
const DefaultHistoryPollInterval = 10 * time.Second
const DefaultRemoteDepositLimit = 50

// UnknownTokenSymbol is reported when token metadata cannot be read
const UnknownTokenSymbol = "UNKNOWN TOKEN"
const DefaultTokenDecimals = 18

// Swap trade types accepted by the swap capability
const TradeTypeMinOutput = "minOutput"
const TradeTypeExactInput = "exactInput"

// SwapWalletRequiredMessage is surfaced when swap quotes are requested without a depositor
const SwapWalletRequiredMessage = "Connect a wallet to load swap quotes"
