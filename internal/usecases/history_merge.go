package usecases

import (
	"sort"
	"strconv"
	"strings"

	"crosspay.backend/internal/domain/entities"
)

// entryKey identifies the same payment across local and remote sources
func entryKey(e *entities.PaymentHistoryEntry) string {
	if e.DepositTxHash.Valid && e.DepositTxHash.String != "" {
		return "tx:" + strings.ToLower(e.DepositTxHash.String)
	}
	if e.DepositID != nil {
		return "deposit:" + strconv.FormatInt(e.OriginChainID, 10) + ":" +
			strconv.FormatInt(e.DestinationChainID, 10) + ":" + e.DepositID.String()
	}
	return "id:" + e.ID
}

// MergeEntries folds remote entries into local ones. Remote values win, except errors
// (set union) and the timeline (newest record per stage). The result is newest first.
func MergeEntries(local, remote []*entities.PaymentHistoryEntry) []*entities.PaymentHistoryEntry {
	merged := make(map[string]*entities.PaymentHistoryEntry, len(local)+len(remote))
	order := make([]string, 0, len(local)+len(remote))

	for _, e := range local {
		key := entryKey(e)
		if existing, ok := merged[key]; ok {
			merged[key] = mergeEntry(existing, e)
			continue
		}
		merged[key] = e.Clone()
		order = append(order, key)
	}
	for _, e := range remote {
		key := entryKey(e)
		if existing, ok := merged[key]; ok {
			merged[key] = mergeEntry(existing, e)
			continue
		}
		merged[key] = e.Clone()
		order = append(order, key)
	}

	out := make([]*entities.PaymentHistoryEntry, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	sortEntries(out)
	return out
}

// mergeEntry overlays the non-empty fields of incoming on base
func mergeEntry(base, incoming *entities.PaymentHistoryEntry) *entities.PaymentHistoryEntry {
	out := base.Clone()

	// a local id survives so in-flight callers can keep addressing the entry
	if out.IsRemote() && !incoming.IsRemote() {
		out.ID = incoming.ID
	}
	if incoming.Mode != "" {
		out.Mode = incoming.Mode
	}
	if incoming.Status != "" && !(out.Status.IsFinal() && !incoming.Status.IsFinal()) {
		out.Status = incoming.Status
	}
	if incoming.CreatedAt > 0 && (out.CreatedAt == 0 || incoming.CreatedAt < out.CreatedAt) {
		out.CreatedAt = incoming.CreatedAt
	}
	if incoming.UpdatedAt > out.UpdatedAt {
		out.UpdatedAt = incoming.UpdatedAt
	}
	if incoming.InputToken.Address != "" {
		out.InputToken = incoming.InputToken
	}
	if incoming.OutputToken.Address != "" {
		out.OutputToken = incoming.OutputToken
	}
	if incoming.OriginChainID != 0 {
		out.OriginChainID = incoming.OriginChainID
	}
	if incoming.DestinationChainID != 0 {
		out.DestinationChainID = incoming.DestinationChainID
	}
	if incoming.InputAmount != nil {
		out.InputAmount = cloneBigInt(incoming.InputAmount)
	}
	if incoming.OutputAmount != nil {
		out.OutputAmount = cloneBigInt(incoming.OutputAmount)
	}
	if incoming.DepositID != nil {
		out.DepositID = cloneBigInt(incoming.DepositID)
	}
	if incoming.DepositTxHash.Valid {
		out.DepositTxHash = incoming.DepositTxHash
	}
	if incoming.FillTxHash.Valid {
		out.FillTxHash = incoming.FillTxHash
	}
	if incoming.WrapTxHash.Valid {
		out.WrapTxHash = incoming.WrapTxHash
	}
	if incoming.SwapTxHash.Valid {
		out.SwapTxHash = incoming.SwapTxHash
	}
	if len(incoming.ApprovalTxHashes) > 0 {
		out.ApprovalTxHashes = unionStrings(out.ApprovalTxHashes, incoming.ApprovalTxHashes)
	}
	if incoming.Depositor != "" {
		out.Depositor = incoming.Depositor
	}
	if incoming.Recipient != "" {
		out.Recipient = incoming.Recipient
	}

	out.Errors = unionStrings(out.Errors, incoming.Errors)
	out.Timeline = mergeTimeline(out.Timeline, incoming.Timeline)
	return out
}

// mergeTimeline keeps one record per stage, the newest one
func mergeTimeline(current, next []entities.PaymentTimelineEntry) []entities.PaymentTimelineEntry {
	byStage := make(map[entities.PaymentStatus]entities.PaymentTimelineEntry, len(current)+len(next))
	for _, list := range [][]entities.PaymentTimelineEntry{current, next} {
		for _, e := range list {
			if prev, ok := byStage[e.Stage]; !ok || newerTimeline(e, prev) {
				byStage[e.Stage] = e
			}
		}
	}

	out := make([]entities.PaymentTimelineEntry, 0, len(byStage))
	for _, e := range byStage {
		out = append(out, e)
	}
	sortTimeline(out)
	return out
}

// newerTimeline breaks timestamp ties on content so merge order does not matter
func newerTimeline(a, b entities.PaymentTimelineEntry) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	if a.TxHash != b.TxHash {
		return a.TxHash > b.TxHash
	}
	return a.Label+a.Notes > b.Label+b.Notes
}

// sortTimeline orders by timestamp, then by lifecycle rank for records of the same instant
func sortTimeline(timeline []entities.PaymentTimelineEntry) {
	sort.SliceStable(timeline, func(i, j int) bool {
		if timeline[i].Timestamp != timeline[j].Timestamp {
			return timeline[i].Timestamp < timeline[j].Timestamp
		}
		return timeline[i].Stage.Rank() < timeline[j].Stage.Rank()
	})
}

func sortEntries(entries []*entities.PaymentHistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt > entries[j].CreatedAt
	})
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
