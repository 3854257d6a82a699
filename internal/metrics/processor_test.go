package metrics

import (
	"testing"
	"time"

	"github.com/account-sync/internal/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRange(t *testing.T, start, end string) types.DateRange {
	t.Helper()
	r, err := types.NewDateRange(start, end, "")
	require.NoError(t, err)
	return r
}

func trade(ticket, ts string, profit float64) types.TradeRecord {
	return types.TradeRecord{Ticket: types.TicketID(ticket), Time: ts, Profit: profit}
}

func snapshotOf(trades ...types.TradeRecord) *types.AccountSnapshot {
	return &types.AccountSnapshot{
		AccountID:    "acct-1",
		RawTrades:    trades,
		DailyResults: BuildDailyResults(trades),
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"rfc3339", "2024-03-15T10:30:00Z", "2024-03-15T10:30:00Z", true},
		{"datetime no zone", "2024-03-15T10:30:00", "2024-03-15T10:30:00Z", true},
		{"space separated", "2024-03-15 10:30:00", "2024-03-15T10:30:00Z", true},
		{"date only", "2024-03-15", "2024-03-15T00:00:00Z", true},
		{"epoch seconds", "1710498600", "2024-03-15T10:30:00Z", true},
		{"epoch millis", "1710498600000", "2024-03-15T10:30:00Z", true},
		{"empty", "", "", false},
		{"garbage", "not-a-time", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTimestamp(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				want, err := time.Parse(time.RFC3339, tt.want)
				require.NoError(t, err)
				assert.True(t, got.Equal(want), "got %v want %v", got, want)
			}
		})
	}
}

func TestFilterTradesBoundaries(t *testing.T) {
	r := mustRange(t, "2024-03-10", "2024-03-15")

	t.Run("last instant of end day is included", func(t *testing.T) {
		trades := []types.TradeRecord{trade("1", "2024-03-15T23:59:59Z", 5)}
		filtered, invalid := FilterTrades(trades, r)
		assert.Len(t, filtered, 1)
		assert.Equal(t, 0, invalid)
	})

	t.Run("first instant of the next day is excluded", func(t *testing.T) {
		trades := []types.TradeRecord{trade("1", "2024-03-16T00:00:00Z", 5)}
		filtered, _ := FilterTrades(trades, r)
		assert.Empty(t, filtered)
	})

	t.Run("first instant of start day is included", func(t *testing.T) {
		trades := []types.TradeRecord{trade("1", "2024-03-10T00:00:00Z", 5)}
		filtered, _ := FilterTrades(trades, r)
		assert.Len(t, filtered, 1)
	})

	t.Run("unparseable timestamps are counted not dropped silently", func(t *testing.T) {
		trades := []types.TradeRecord{
			trade("1", "2024-03-12 09:00:00", 5),
			trade("2", "bogus", 5),
		}
		filtered, invalid := FilterTrades(trades, r)
		assert.Len(t, filtered, 1)
		assert.Equal(t, 1, invalid)
	})

	t.Run("reversed range yields no trades", func(t *testing.T) {
		reversed := mustRange(t, "2024-03-15", "2024-03-10")
		trades := []types.TradeRecord{trade("1", "2024-03-12 09:00:00", 5)}
		filtered, _ := FilterTrades(trades, reversed)
		assert.Empty(t, filtered)
	})
}

func TestBuildDailyResults(t *testing.T) {
	t.Run("aggregates per calendar day", func(t *testing.T) {
		trades := []types.TradeRecord{
			trade("1", "2024-03-12 09:00:00", 10),
			trade("2", "2024-03-12 15:00:00", -4),
			trade("3", "2024-03-13 09:00:00", -7),
		}

		results := BuildDailyResults(trades)
		require.Len(t, results, 2)

		day12 := results["2024-03-12"]
		assert.Equal(t, float64(6), day12.Profit)
		assert.Equal(t, 2, day12.TradeCount)
		assert.Equal(t, types.DayWin, day12.Status)

		day13 := results["2024-03-13"]
		assert.Equal(t, types.DayLoss, day13.Status)
	})

	t.Run("flat day is break even", func(t *testing.T) {
		trades := []types.TradeRecord{
			trade("1", "2024-03-12 09:00:00", 10),
			trade("2", "2024-03-12 15:00:00", -10),
		}

		results := BuildDailyResults(trades)
		assert.Equal(t, types.DayBreakEven, results["2024-03-12"].Status)
	})

	t.Run("unparseable timestamps are skipped", func(t *testing.T) {
		trades := []types.TradeRecord{trade("1", "bogus", 10)}
		assert.Empty(t, BuildDailyResults(trades))
	})
}

func TestProcess(t *testing.T) {
	r := mustRange(t, "2024-03-01", "2024-03-31")

	t.Run("nil snapshot yields empty aggregate with defaults", func(t *testing.T) {
		m := Process(nil, r)
		assert.Equal(t, 0, m.TotalTrades)
		assert.Equal(t, float64(1), m.ProfitFactor)
		assert.Equal(t, float64(0), m.WinRate)
	})

	t.Run("basic aggregation", func(t *testing.T) {
		snapshot := snapshotOf(
			trade("1", "2024-03-12 09:00:00", 30),
			trade("2", "2024-03-12 11:00:00", 10),
			trade("3", "2024-03-13 09:00:00", -10),
			trade("4", "2024-03-14 09:00:00", 0),
		)

		m := Process(snapshot, r)
		assert.Equal(t, 4, m.TotalTrades)
		assert.Equal(t, 2, m.WinningTrades)
		assert.Equal(t, 1, m.LosingTrades)
		assert.Equal(t, 1, m.BreakEven)
		assert.Equal(t, float64(30), m.NetProfit)
		assert.InDelta(t, 0.5, m.WinRate, 1e-9)
		// avg win 20, avg loss 10
		assert.InDelta(t, 2.0, m.ProfitFactor, 1e-9)
	})

	t.Run("profit factor is one with winners and no losers", func(t *testing.T) {
		snapshot := snapshotOf(trade("1", "2024-03-12 09:00:00", 30))
		m := Process(snapshot, r)
		assert.Equal(t, float64(1), m.ProfitFactor)
	})

	t.Run("profit factor is zero with losers and no winners", func(t *testing.T) {
		snapshot := snapshotOf(trade("1", "2024-03-12 09:00:00", -30))
		m := Process(snapshot, r)
		assert.Equal(t, float64(0), m.ProfitFactor)
	})

	t.Run("break even days are excluded from day win rate", func(t *testing.T) {
		snapshot := snapshotOf(
			trade("1", "2024-03-12 09:00:00", 10), // win day
			trade("2", "2024-03-13 09:00:00", -10), // loss day
			trade("3", "2024-03-14 09:00:00", 5),   // break-even day
			trade("4", "2024-03-14 11:00:00", -5),
		)

		m := Process(snapshot, r)
		assert.Equal(t, 1, m.WinningDays)
		assert.Equal(t, 1, m.LosingDays)
		assert.Equal(t, 1, m.BreakEvenDays)
		assert.InDelta(t, 0.5, m.DayWinRate, 1e-9)
	})

	t.Run("trade window and day window agree", func(t *testing.T) {
		narrow := mustRange(t, "2024-03-12", "2024-03-12")
		snapshot := snapshotOf(
			trade("1", "2024-03-12 09:00:00", 10),
			trade("2", "2024-03-13 09:00:00", 20),
		)

		m := Process(snapshot, narrow)
		assert.Equal(t, 1, m.TotalTrades)
		assert.Equal(t, 1, m.WinningDays)
		assert.Equal(t, 0, m.LosingDays)
		assert.Equal(t, float64(10), m.NetProfit)
		assert.Equal(t, float64(10), m.DailyNetProfit)
	})

	t.Run("recomputation is deterministic apart from the generation marker", func(t *testing.T) {
		snapshot := snapshotOf(
			trade("1", "2024-03-12 09:00:00", 10),
			trade("2", "2024-03-13 09:00:00", -4),
		)

		first := Process(snapshot, r)
		second := Process(snapshot, r)

		assert.Greater(t, second.GeneratedAt, first.GeneratedAt)
		first.GeneratedAt = 0
		second.GeneratedAt = 0
		assert.Equal(t, first, second)
	})

	t.Run("inputs are never mutated", func(t *testing.T) {
		trades := []types.TradeRecord{
			trade("1", "2024-03-12 09:00:00", 10),
			trade("2", "bogus", -4),
		}
		snapshot := snapshotOf(trades...)
		before := make([]types.TradeRecord, len(trades))
		copy(before, snapshot.RawTrades)

		Process(snapshot, r)
		assert.Equal(t, before, snapshot.RawTrades)
	})
}

func TestProcessProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	r, err := types.NewDateRange("2024-03-01", "2024-03-31", "")
	require.NoError(t, err)

	genDay := gen.IntRange(1, 31)
	genProfit := gen.Float64Range(-1000, 1000)

	genSnapshot := gen.SliceOf(gopter.CombineGens(genDay, genProfit).Map(
		func(values []interface{}) types.TradeRecord {
			day := values[0].(int)
			profit := values[1].(float64)
			ts := time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC).Format("2006-01-02 15:04:05")
			return types.TradeRecord{Ticket: "t", Time: ts, Profit: profit}
		},
	)).Map(func(trades []types.TradeRecord) *types.AccountSnapshot {
		for i := range trades {
			trades[i].Ticket = types.TicketID(time.Date(2024, 3, 1, 0, 0, i, 0, time.UTC).String())
		}
		return &types.AccountSnapshot{
			AccountID:    "acct-1",
			RawTrades:    trades,
			DailyResults: BuildDailyResults(trades),
		}
	})

	// Trade categories always partition the filtered set.
	properties.Property("winning, losing and break-even trades sum to total", prop.ForAll(
		func(snapshot *types.AccountSnapshot) bool {
			m := Process(snapshot, r)
			return m.WinningTrades+m.LosingTrades+m.BreakEven == m.TotalTrades
		},
		genSnapshot,
	))

	// Both aggregates derive from the same trades, so their net profit agrees.
	properties.Property("daily net profit matches trade net profit", prop.ForAll(
		func(snapshot *types.AccountSnapshot) bool {
			m := Process(snapshot, r)
			diff := m.NetProfit - m.DailyNetProfit
			return diff < 1e-6 && diff > -1e-6
		},
		genSnapshot,
	))

	properties.Property("win rate stays within the unit interval", prop.ForAll(
		func(snapshot *types.AccountSnapshot) bool {
			m := Process(snapshot, r)
			return m.WinRate >= 0 && m.WinRate <= 1 && m.DayWinRate >= 0 && m.DayWinRate <= 1
		},
		genSnapshot,
	))

	properties.TestingRun(t)
}
