// Package metrics converts raw trade and day records plus a date window into
// aggregated statistics. Everything here is a pure function of its inputs;
// no I/O and no shared mutable state beyond the generation counter.
package metrics

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/account-sync/internal/types"
)

// generation backs the GeneratedAt marker; it only ever increases, so two
// aggregates computed from identical inputs still differ by marker and
// callers can detect recomputation without deep comparison.
var generation atomic.Int64

// Timestamp layouts accepted from the remote backend, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeTimestamp parses a raw trade timestamp into a canonical UTC
// instant. Numeric values are treated as epoch seconds, or epoch
// milliseconds when they are too large to be a plausible seconds value.
func NormalizeTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// Epoch-second values fit in 12 digits until the year 33658.
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}

	return time.Time{}, false
}

// inRange is the single inclusive day-granularity boundary check shared by
// trade filtering and daily-result filtering. Using one implementation for
// both keeps the two aggregates consistent with each other.
func inRange(day time.Time, r types.DateRange) bool {
	d := dayOf(day)
	return !d.Before(dayOf(r.StartDate)) && !d.After(dayOf(r.EndDate))
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// FilterTrades returns the trades whose normalized timestamp falls inside
// the range, plus the count of trades excluded for unparseable timestamps.
func FilterTrades(trades []types.TradeRecord, r types.DateRange) ([]types.TradeRecord, int) {
	filtered := make([]types.TradeRecord, 0, len(trades))
	invalid := 0

	for _, trade := range trades {
		instant, ok := NormalizeTimestamp(trade.Time)
		if !ok {
			invalid++
			continue
		}
		if inRange(instant, r) {
			filtered = append(filtered, trade)
		}
	}

	return filtered, invalid
}

// BuildDailyResults regenerates the derived per-day aggregates from raw
// trades. Called before every cache write so the persisted dailies always
// agree with the persisted trades. Trades with unparseable timestamps are
// skipped, matching the processor's filtering.
func BuildDailyResults(trades []types.TradeRecord) map[string]types.DailyResult {
	results := make(map[string]types.DailyResult)

	for _, trade := range trades {
		instant, ok := NormalizeTimestamp(trade.Time)
		if !ok {
			continue
		}

		key := types.DayKey(instant)
		day := results[key]
		day.Profit += trade.Profit
		day.TradeCount++
		day.Status = dayStatus(day.Profit)
		results[key] = day
	}

	return results
}

func dayStatus(profit float64) types.DayStatus {
	switch {
	case profit > 0:
		return types.DayWin
	case profit < 0:
		return types.DayLoss
	default:
		return types.DayBreakEven
	}
}

// Process computes the aggregate statistics for a snapshot over a date
// range. Inputs are never mutated and each call returns a fresh value with
// a new GeneratedAt marker. A range whose start is after its end yields an
// empty aggregate, not an error.
func Process(snapshot *types.AccountSnapshot, r types.DateRange) types.ProcessedMetrics {
	m := types.ProcessedMetrics{
		RangeLabel:   r.Label,
		ProfitFactor: 1,
		GeneratedAt:  generation.Add(1),
	}
	if snapshot == nil {
		return m
	}
	m.AccountID = snapshot.AccountID

	filtered, invalid := FilterTrades(snapshot.RawTrades, r)
	m.InvalidTrades = invalid
	m.TotalTrades = len(filtered)

	var grossWin, grossLoss float64
	for _, trade := range filtered {
		m.NetProfit += trade.Profit
		switch {
		case trade.Profit > 0:
			m.WinningTrades++
			grossWin += trade.Profit
		case trade.Profit < 0:
			m.LosingTrades++
			grossLoss += -trade.Profit
		default:
			m.BreakEven++
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	}

	// Profit factor convention: |avg win / avg loss|, defined as 1 both when
	// there are no losing trades (and at least one winner) and when there are
	// no trades at all.
	if m.LosingTrades > 0 && m.WinningTrades > 0 {
		avgWin := grossWin / float64(m.WinningTrades)
		avgLoss := grossLoss / float64(m.LosingTrades)
		m.ProfitFactor = avgWin / avgLoss
	} else if m.LosingTrades > 0 {
		m.ProfitFactor = 0
	}

	for key, day := range snapshot.DailyResults {
		date, err := time.Parse("2006-01-02", key)
		if err != nil {
			continue
		}
		if !inRange(date, r) {
			continue
		}

		m.DailyNetProfit += day.Profit
		switch day.Status {
		case types.DayWin:
			m.WinningDays++
		case types.DayLoss:
			m.LosingDays++
		default:
			m.BreakEvenDays++
		}
	}

	// Break-even days are excluded from the day win rate denominator.
	decisiveDays := m.WinningDays + m.LosingDays
	if decisiveDays > 0 {
		m.DayWinRate = float64(m.WinningDays) / float64(decisiveDays)
	}

	return m
}
