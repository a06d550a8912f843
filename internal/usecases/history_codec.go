package usecases

import (
	"encoding/json"
	"fmt"
	"strings"

	"crosspay.backend/internal/domain/entities"
	"crosspay.backend/pkg/utils"
)

// storedEntry shadows the big integer fields so they persist as decimal strings
type storedEntry struct {
	*entities.PaymentHistoryEntry
	InputAmount  string `json:"inputAmount"`
	OutputAmount string `json:"outputAmount"`
	DepositID    string `json:"depositId,omitempty"`
}

// encodeHistory renders {account: entries} with every account key lower-cased
func encodeHistory(byAccount map[string][]*entities.PaymentHistoryEntry) (string, error) {
	out := make(map[string][]storedEntry, len(byAccount))
	for account, entries := range byAccount {
		stored := make([]storedEntry, 0, len(entries))
		for _, e := range entries {
			stored = append(stored, storedEntry{
				PaymentHistoryEntry: e,
				InputAmount:         utils.BigString(e.InputAmount),
				OutputAmount:        utils.BigString(e.OutputAmount),
				DepositID:           utils.BigString(e.DepositID),
			})
		}
		out[strings.ToLower(account)] = stored
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return string(raw), nil
}

func decodeHistory(raw string) (map[string][]*entities.PaymentHistoryEntry, error) {
	out := make(map[string][]*entities.PaymentHistoryEntry)
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}

	var byAccount map[string][]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &byAccount); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	for account, items := range byAccount {
		entries := make([]*entities.PaymentHistoryEntry, 0, len(items))
		for _, item := range items {
			e := &entities.PaymentHistoryEntry{}
			stored := storedEntry{PaymentHistoryEntry: e}
			if err := json.Unmarshal(item, &stored); err != nil {
				return nil, fmt.Errorf("decode history entry: %w", err)
			}
			e.InputAmount, _ = utils.ParseBigInt(stored.InputAmount)
			e.OutputAmount, _ = utils.ParseBigInt(stored.OutputAmount)
			e.DepositID, _ = utils.ParseBigInt(stored.DepositID)
			if e.Timeline == nil {
				e.Timeline = []entities.PaymentTimelineEntry{}
			}
			entries = append(entries, e)
		}
		out[strings.ToLower(account)] = entries
	}
	return out, nil
}
