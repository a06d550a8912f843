package entities

import (
	"math/big"
	"strings"

	"github.com/volatiletech/null/v8"
)

// PaymentMode represents how a payment is funded
type PaymentMode string

const (
	PaymentModeDirect PaymentMode = "direct"
	PaymentModeBridge PaymentMode = "bridge"
	PaymentModeSwap   PaymentMode = "swap"
)

// PaymentStatus represents the lifecycle status of a payment history entry
type PaymentStatus string

const (
	PaymentStatusInitial           PaymentStatus = "initial"
	PaymentStatusWrapPending       PaymentStatus = "wrap_pending"
	PaymentStatusWrapConfirmed     PaymentStatus = "wrap_confirmed"
	PaymentStatusApprovalPending   PaymentStatus = "approval_pending"
	PaymentStatusApprovalConfirmed PaymentStatus = "approval_confirmed"
	PaymentStatusSwapPending       PaymentStatus = "swap_pending"
	PaymentStatusSwapConfirmed     PaymentStatus = "swap_confirmed"
	PaymentStatusDepositPending    PaymentStatus = "deposit_pending"
	PaymentStatusDepositConfirmed  PaymentStatus = "deposit_confirmed"
	PaymentStatusRelayPending      PaymentStatus = "relay_pending"
	PaymentStatusRequestedSlowFill PaymentStatus = "requested_slow_fill"
	PaymentStatusSlowFillReady     PaymentStatus = "slow_fill_ready"
	PaymentStatusRelayFilled       PaymentStatus = "relay_filled"
	PaymentStatusFilled            PaymentStatus = "filled"
	PaymentStatusSettled           PaymentStatus = "settled"
	PaymentStatusDirectPending     PaymentStatus = "direct_pending"
	PaymentStatusDirectConfirmed   PaymentStatus = "direct_confirmed"
	PaymentStatusExpired           PaymentStatus = "expired"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusFailed            PaymentStatus = "failed"
)

var finalStatuses = map[PaymentStatus]bool{
	PaymentStatusSettled:         true,
	PaymentStatusRelayFilled:     true,
	PaymentStatusFilled:          true,
	PaymentStatusFailed:          true,
	PaymentStatusDirectConfirmed: true,
	PaymentStatusSlowFillReady:   true,
}

// IsFinal reports whether no further polling is needed for the status
func (s PaymentStatus) IsFinal() bool {
	return finalStatuses[s]
}

// PaymentTimelineEntry is one milestone of a payment. At most one per stage.
type PaymentTimelineEntry struct {
	Stage     PaymentStatus `json:"stage"`
	Label     string        `json:"label"`
	Timestamp int64         `json:"timestamp"`
	TxHash    string        `json:"txHash,omitempty"`
	Notes     string        `json:"notes,omitempty"`
}

// PaymentHistoryEntry is the lifecycle record of one payment attempt.
// Entries are owned by the history store; callers mutate them only through it.
type PaymentHistoryEntry struct {
	ID                 string                 `json:"id"`
	Mode               PaymentMode            `json:"mode"`
	Status             PaymentStatus          `json:"status"`
	CreatedAt          int64                  `json:"createdAt"`
	UpdatedAt          int64                  `json:"updatedAt"`
	InputToken         TokenConfig            `json:"inputToken"`
	OutputToken        TokenConfig            `json:"outputToken"`
	OriginChainID      int64                  `json:"originChainId"`
	DestinationChainID int64                  `json:"destinationChainId"`
	InputAmount        *big.Int               `json:"inputAmount"`
	OutputAmount       *big.Int               `json:"outputAmount"`
	DepositID          *big.Int               `json:"depositId,omitempty"`
	DepositTxHash      null.String            `json:"depositTxHash"`
	FillTxHash         null.String            `json:"fillTxHash"`
	WrapTxHash         null.String            `json:"wrapTxHash"`
	SwapTxHash         null.String            `json:"swapTxHash"`
	ApprovalTxHashes   []string               `json:"approvalTxHashes,omitempty"`
	Depositor          string                 `json:"depositor,omitempty"`
	Recipient          string                 `json:"recipient,omitempty"`
	Errors             []string               `json:"errors,omitempty"`
	Timeline           []PaymentTimelineEntry `json:"timeline"`
}

// IsRemote reports whether the entry was reconstructed from indexer data
func (e *PaymentHistoryEntry) IsRemote() bool {
	return strings.HasPrefix(e.ID, RemoteEntryPrefix)
}

// IsPollable reports whether the entry can be tracked against the bridge
func (e *PaymentHistoryEntry) IsPollable() bool {
	if e.Status.IsFinal() || e.Mode == PaymentModeDirect {
		return false
	}
	return e.DepositTxHash.Valid || e.DepositID != nil
}

// Clone returns a deep copy so snapshots never alias store-owned memory
func (e *PaymentHistoryEntry) Clone() *PaymentHistoryEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.InputAmount = cloneBig(e.InputAmount)
	c.OutputAmount = cloneBig(e.OutputAmount)
	c.DepositID = cloneBig(e.DepositID)
	c.ApprovalTxHashes = append([]string(nil), e.ApprovalTxHashes...)
	c.Errors = append([]string(nil), e.Errors...)
	c.Timeline = append([]PaymentTimelineEntry(nil), e.Timeline...)
	return &c
}

// RemoteEntryPrefix prefixes ids of entries sourced from the indexer
const RemoteEntryPrefix = "remote-"

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

var statusOrder = []PaymentStatus{
	PaymentStatusInitial,
	PaymentStatusWrapPending,
	PaymentStatusWrapConfirmed,
	PaymentStatusApprovalPending,
	PaymentStatusApprovalConfirmed,
	PaymentStatusSwapPending,
	PaymentStatusSwapConfirmed,
	PaymentStatusDepositPending,
	PaymentStatusDepositConfirmed,
	PaymentStatusRelayPending,
	PaymentStatusRequestedSlowFill,
	PaymentStatusSlowFillReady,
	PaymentStatusRelayFilled,
	PaymentStatusFilled,
	PaymentStatusSettled,
	PaymentStatusDirectPending,
	PaymentStatusDirectConfirmed,
	PaymentStatusExpired,
	PaymentStatusRefunded,
	PaymentStatusFailed,
}

var statusLabels = map[PaymentStatus]string{
	PaymentStatusInitial:           "Payment created",
	PaymentStatusWrapPending:       "Wrapping native token",
	PaymentStatusWrapConfirmed:     "Native token wrapped",
	PaymentStatusApprovalPending:   "Approval submitted",
	PaymentStatusApprovalConfirmed: "Approval confirmed",
	PaymentStatusSwapPending:       "Swap submitted",
	PaymentStatusSwapConfirmed:     "Swap confirmed",
	PaymentStatusDepositPending:    "Deposit submitted",
	PaymentStatusDepositConfirmed:  "Deposit confirmed",
	PaymentStatusRelayPending:      "Waiting for relayer",
	PaymentStatusRequestedSlowFill: "Slow fill requested",
	PaymentStatusSlowFillReady:     "Slow fill ready",
	PaymentStatusRelayFilled:       "Relay filled",
	PaymentStatusFilled:            "Filled",
	PaymentStatusSettled:           "Settled",
	PaymentStatusDirectPending:     "Transfer submitted",
	PaymentStatusDirectConfirmed:   "Transfer confirmed",
	PaymentStatusExpired:           "Deposit expired",
	PaymentStatusRefunded:          "Deposit refunded",
	PaymentStatusFailed:            "Payment failed",
}

// PaymentStatuses lists every status in lifecycle order
func PaymentStatuses() []PaymentStatus {
	return append([]PaymentStatus(nil), statusOrder...)
}

// Rank orders statuses along the lifecycle; unknown statuses sort last
func (s PaymentStatus) Rank() int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return len(statusOrder)
}

// Label is the human readable timeline label of the status
func (s PaymentStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// PaymentHistorySnapshot is an immutable copy of the history store state
type PaymentHistorySnapshot struct {
	Account string                 `json:"account"`
	Entries []*PaymentHistoryEntry `json:"entries"`
	Version uint64                 `json:"version"`
}

// Find returns the entry with id
func (s PaymentHistorySnapshot) Find(id string) (*PaymentHistoryEntry, bool) {
	for _, e := range s.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}
