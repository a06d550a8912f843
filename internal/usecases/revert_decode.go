package usecases

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	selectorError = "0x08c379a0"
	selectorPanic = "0x4e487b71"
)

// RevertReason is the decoded revert payload of a failed transaction
type RevertReason struct {
	RawHex   string `json:"rawHex"`
	Selector string `json:"selector,omitempty"`
	Name     string `json:"name,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Summary renders the reason for a history entry, empty when nothing readable was decoded
func (r RevertReason) Summary() string {
	switch {
	case r.Name == "Error" && r.Message != "":
		return r.Message
	case r.Message != "":
		return r.Name + ": " + r.Message
	default:
		return r.Name
	}
}

var hexPattern = regexp.MustCompile(`0x[0-9a-fA-F]{8,}`)

// spoke pool errors a deposit commonly reverts with
var knownSpokePoolErrors = selectorNames(
	"DepositsArePaused()",
	"FillsArePaused()",
	"InvalidQuoteTimestamp()",
	"InvalidFillDeadline()",
	"InvalidExclusiveRelayer()",
	"MsgValueDoesNotMatchInputAmount()",
	"ExpiredFillDeadline()",
	"RelayFilled()",
	"DisabledRoute()",
	"InvalidDepositorSignature()",
)

func selectorNames(signatures ...string) map[string]string {
	out := make(map[string]string, len(signatures))
	for _, sig := range signatures {
		selector := "0x" + hex.EncodeToString(crypto.Keccak256([]byte(sig))[:4])
		out[selector] = strings.TrimSuffix(sig, "()")
	}
	return out
}

// decodeRevertDataFromError attempts to parse hex-encoded revert bytes from RPC errors.
// It supports rpc.DataError payloads and fallback extraction from error strings.
func decodeRevertDataFromError(err error) (RevertReason, bool) {
	if err == nil {
		return RevertReason{}, false
	}
	if data, ok := extractRevertHexFromDataError(err); ok {
		return decodeRevertData(data), true
	}
	if data, ok := extractRevertHexFromErrorString(err.Error()); ok {
		return decodeRevertData(data), true
	}
	return RevertReason{}, false
}

func decodeRevertData(data []byte) RevertReason {
	result := RevertReason{RawHex: "0x" + hex.EncodeToString(data)}
	if len(data) < 4 {
		return result
	}

	result.Selector = "0x" + hex.EncodeToString(data[:4])
	switch result.Selector {
	case selectorError:
		stringType, err := abi.NewType("string", "", nil)
		if err != nil {
			return result
		}
		values, err := abi.Arguments{{Type: stringType}}.Unpack(data[4:])
		if err == nil && len(values) == 1 {
			if msg, ok := values[0].(string); ok {
				result.Name = "Error"
				result.Message = msg
			}
		}
	case selectorPanic:
		if len(data) >= 36 {
			result.Name = "Panic"
			result.Message = fmt.Sprintf("panic code: %s", new(big.Int).SetBytes(data[4:36]).String())
		}
	default:
		result.Name = knownSpokePoolErrors[result.Selector]
	}
	return result
}

func extractRevertHexFromDataError(err error) ([]byte, bool) {
	type rpcDataError interface {
		ErrorData() interface{}
	}
	dataErr, ok := err.(rpcDataError)
	if !ok {
		return nil, false
	}
	return parseRevertBytesFromAny(dataErr.ErrorData())
}

func parseRevertBytesFromAny(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case string:
		return parseHexBytes(v)
	case []byte:
		if len(v) == 0 {
			return nil, false
		}
		out := make([]byte, len(v))
		copy(out, v)
		return out, true
	case map[string]interface{}:
		if raw, ok := v["data"]; ok {
			return parseRevertBytesFromAny(raw)
		}
		if raw, ok := v["result"]; ok {
			return parseRevertBytesFromAny(raw)
		}
	case map[string]string:
		if raw, ok := v["data"]; ok {
			return parseHexBytes(raw)
		}
		if raw, ok := v["result"]; ok {
			return parseHexBytes(raw)
		}
	}
	return nil, false
}

func extractRevertHexFromErrorString(message string) ([]byte, bool) {
	for _, candidate := range hexPattern.FindAllString(message, -1) {
		if data, ok := parseHexBytes(candidate); ok {
			return data, true
		}
	}
	return nil, false
}

func parseHexBytes(raw string) ([]byte, bool) {
	value := strings.TrimSpace(strings.TrimPrefix(raw, "0x"))
	if len(value) < 8 || len(value)%2 != 0 {
		return nil, false
	}
	data, err := hex.DecodeString(value)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}
