package entities

import "math/big"

// ProgressStep identifies which execution step emitted a progress event
type ProgressStep string

const (
	ProgressStepWrap    ProgressStep = "wrap"
	ProgressStepApprove ProgressStep = "approve"
	ProgressStepSwap    ProgressStep = "swap"
	ProgressStepDeposit ProgressStep = "deposit"
	ProgressStepFill    ProgressStep = "fill"
)

// ProgressStatus is the state of a step's transaction
type ProgressStatus string

const (
	ProgressTxPending ProgressStatus = "txPending"
	ProgressTxSuccess ProgressStatus = "txSuccess"
	ProgressTxError   ProgressStatus = "txError"
)

// ReceiptStatus is the execution outcome reported with a mined transaction
type ReceiptStatus string

const (
	ReceiptStatusSuccess  ReceiptStatus = "success"
	ReceiptStatusReverted ReceiptStatus = "reverted"
)

// TxReceipt is the subset of a transaction receipt the recorder needs.
// Wallets report the outcome either as status or as a success flag; both may be absent.
type TxReceipt struct {
	TxHash      string        `json:"txHash"`
	BlockNumber uint64        `json:"blockNumber"`
	Status      ReceiptStatus `json:"status,omitempty"`
	Success     *bool         `json:"success,omitempty"`
}

// Reverted reports whether the receipt explicitly records a reverted transaction.
// A receipt without an outcome is not treated as reverted.
func (r *TxReceipt) Reverted() bool {
	if r == nil {
		return false
	}
	if r.Status != "" {
		return r.Status == ReceiptStatusReverted
	}
	return r.Success != nil && !*r.Success
}

// ProgressEvent is emitted by the execution capability while a payment runs
type ProgressEvent struct {
	Step      ProgressStep   `json:"step"`
	Status    ProgressStatus `json:"status"`
	TxHash    string         `json:"txHash,omitempty"`
	Receipt   *TxReceipt     `json:"txReceipt,omitempty"`
	DepositID *big.Int       `json:"depositId,omitempty"`
	Err       error          `json:"-"`
}
