// Package dedup removes duplicate trade records from a fetched history.
package dedup

import "github.com/account-sync/internal/types"

// Result holds the outcome of a deduplication pass
type Result struct {
	Unique         []types.TradeRecord
	DuplicateCount int
}

// Dedupe removes trades that share a ticket id with an earlier record.
// First occurrence wins and insertion order among first-seen records is
// preserved. Records without a ticket cannot be identified and are dropped
// silently without counting as duplicates. The operation is idempotent:
// deduping an already-deduped list yields the same list with a zero
// duplicate count.
func Dedupe(trades []types.TradeRecord) Result {
	if len(trades) == 0 {
		return Result{Unique: []types.TradeRecord{}}
	}

	seen := make(map[types.TicketID]struct{}, len(trades))
	unique := make([]types.TradeRecord, 0, len(trades))
	duplicates := 0

	for _, trade := range trades {
		if trade.Ticket.IsZero() {
			continue
		}
		if _, ok := seen[trade.Ticket]; ok {
			duplicates++
			continue
		}
		seen[trade.Ticket] = struct{}{}
		unique = append(unique, trade)
	}

	return Result{Unique: unique, DuplicateCount: duplicates}
}
