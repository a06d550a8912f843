package metrics

import "time"

// Label keys understood by every recorder
const (
	LabelChain = "chain"
)

// Event and operation names
const (
	EventBalanceBatchUnsupported = "balance_batch_unsupported"
	EventBalanceMulticallFailed  = "balance_multicall_failed"
	EventBalanceLookupFailed     = "balance_lookup_failed"
	EventCandidateDropped        = "candidate_dropped"
	EventPollCheck               = "history_poll_check"
	EventPollFilled              = "history_poll_filled"
	EventRemoteMerged            = "history_remote_merged"
	EventExecutionFailed         = "execution_failed"

	OpFetchBalances = "fetch_balances"
	OpBridgeQuote   = "bridge_quote"
	OpSwapQuote     = "swap_quote"
	OpRefineQuote   = "refine_quote"
	OpPlannerPass   = "planner_refresh"
	OpExecute       = "execute_payment"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
