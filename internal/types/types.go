// Package types provides common type definitions for the account sync engine.
package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DayStatus represents the outcome of a single trading day
type DayStatus string

const (
	// DayWin represents a day that closed with positive profit
	DayWin DayStatus = "win"
	// DayLoss represents a day that closed with negative profit
	DayLoss DayStatus = "loss"
	// DayBreakEven represents a day that closed flat
	DayBreakEven DayStatus = "break_even"
)

// UpdateState represents the coordinator's refresh state
type UpdateState string

const (
	// StateIdle means no refresh is in progress
	StateIdle UpdateState = "idle"
	// StateUpdating means a refresh is currently running
	StateUpdating UpdateState = "updating"
	// StateSuccess means the last refresh completed successfully
	StateSuccess UpdateState = "success"
	// StateFailed means the last refresh failed with no usable fallback
	StateFailed UpdateState = "failed"
)

// TicketID is the unique trade identifier within one account's history.
// Remote backends serialize it as either a JSON string or a JSON number,
// so it unmarshals from both. An empty TicketID marks an unidentifiable
// record that cannot participate in deduplication.
type TicketID string

// UnmarshalJSON accepts both string and numeric ticket representations
func (t *TicketID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*t = ""
		return nil
	}

	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TicketID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = TicketID(n.String())
	return nil
}

// IsZero reports whether the ticket is missing
func (t TicketID) IsZero() bool {
	return t == ""
}

// TradeRecord represents a single trade as delivered by the remote backend.
// Time is kept in its raw wire form; normalization to a canonical instant
// happens in the metrics processor so that unparseable timestamps can be
// excluded and counted instead of failing the whole payload.
type TradeRecord struct {
	Ticket TicketID `json:"ticket"`
	Time   string   `json:"time"`
	Profit float64  `json:"profit"`
	Symbol string   `json:"symbol,omitempty"`
	Volume float64  `json:"volume,omitempty"`
	Type   string   `json:"type,omitempty"`
}

// DailyResult aggregates one calendar day of trading. Derived from raw
// trades, never hand-edited; regenerated whenever the source trades change.
type DailyResult struct {
	Profit     float64   `json:"profit"`
	TradeCount int       `json:"tradeCount"`
	Status     DayStatus `json:"status"`
}

// BalanceInfo holds the account-level balance figures returned by the backend
type BalanceInfo struct {
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Currency string  `json:"currency,omitempty"`
}

// AccountSnapshot is the full cached state for one account as of its last
// successful write. Owned by the snapshot repository; the coordinator
// mutates it only through the repository's write path.
type AccountSnapshot struct {
	AccountID    string                 `json:"accountId"`
	RawTrades    []TradeRecord          `json:"rawTrades"`
	DailyResults map[string]DailyResult `json:"dailyResults"`
	Balance      BalanceInfo            `json:"balance"`
	LastUpdated  time.Time              `json:"lastUpdated"`
}

// DateRange is a caller-visible date window, compared at day granularity.
// Immutable once passed into the metrics processor.
type DateRange struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Label     string    `json:"label,omitempty"`
}

// NewDateRange builds a range from YYYY-MM-DD day strings
func NewDateRange(start, end, label string) (DateRange, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return DateRange{}, err
	}
	return DateRange{StartDate: s, EndDate: e, Label: label}, nil
}

// ProcessedMetrics is the aggregate recomputed from a snapshot and a date
// range. Never persisted as authoritative; always recomputable. GeneratedAt
// increases monotonically so callers can detect new aggregates by value
// without deep comparison.
type ProcessedMetrics struct {
	AccountID      string  `json:"accountId"`
	RangeLabel     string  `json:"rangeLabel,omitempty"`
	TotalTrades    int     `json:"totalTrades"`
	WinningTrades  int     `json:"winningTrades"`
	LosingTrades   int     `json:"losingTrades"`
	BreakEven      int     `json:"breakEvenTrades"`
	NetProfit      float64 `json:"netProfit"`
	WinRate        float64 `json:"winRate"`
	ProfitFactor   float64 `json:"profitFactor"`
	DayWinRate     float64 `json:"dayWinRate"`
	WinningDays    int     `json:"winningDays"`
	LosingDays     int     `json:"losingDays"`
	BreakEvenDays  int     `json:"breakEvenDays"`
	DailyNetProfit float64 `json:"dailyNetProfit"`
	InvalidTrades  int     `json:"invalidTrades"`
	GeneratedAt    int64   `json:"generatedAt"`
}

// UpdateStatus is the refresh status broadcast to subscribers. Read-only for
// subscribers; only the update coordinator mutates it.
type UpdateStatus struct {
	IsUpdating        bool        `json:"isUpdating"`
	LastUpdate        *time.Time  `json:"lastUpdate"`
	Error             string      `json:"error,omitempty"`
	UpdateCount       int         `json:"updateCount"`
	AutoUpdateEnabled bool        `json:"autoUpdateEnabled"`
	NextUpdateTime    *time.Time  `json:"nextUpdateTime"`
	State             UpdateState `json:"state"`
	Stale             bool        `json:"stale"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// DayKey formats a time as the calendar-date key used by DailyResults
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// EpochMillis formats a time as the epoch-millisecond string persisted under
// the refresh-timing keys
func EpochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ParseEpochMillis parses an epoch-millisecond string; returns the zero time
// for malformed values
func ParseEpochMillis(s string) time.Time {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
