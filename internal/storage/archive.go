package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/account-sync/internal/config"
	"github.com/account-sync/internal/metrics"
	"github.com/account-sync/internal/types"
)

// TradeArchive appends deduplicated trades to ClickHouse after each
// successful refresh. It is an analytics sink only: the engine never reads
// it back, and duplicate rows across refreshes are tolerated (queries
// deduplicate on ticket).
type TradeArchive struct {
	conn driver.Conn
}

// NewTradeArchive opens a ClickHouse connection for the trade archive
func NewTradeArchive(cfg *config.ArchiveConfig) (*TradeArchive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     5,
		MaxIdleConns:     2,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	archive := &TradeArchive{conn: conn}
	if err := archive.ensureSchema(ctx); err != nil {
		return nil, err
	}

	return archive, nil
}

// Close closes the ClickHouse connection
func (a *TradeArchive) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// Ping checks if the archive is reachable
func (a *TradeArchive) Ping(ctx context.Context) error {
	return a.conn.Ping(ctx)
}

func (a *TradeArchive) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS account_trades (
			account_id  String,
			ticket      String,
			symbol      String,
			trade_type  String,
			volume      Float64,
			profit      Float64,
			trade_time  DateTime64(3, 'UTC'),
			archived_at DateTime64(3, 'UTC')
		)
		ENGINE = MergeTree()
		ORDER BY (account_id, trade_time, ticket)
	`

	if err := a.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create account_trades table: %w", err)
	}
	return nil
}

// InsertTrades appends a batch of trades for an account. Trades whose
// timestamp cannot be normalized are archived at the epoch rather than
// dropped, so the archive stays complete for audits.
func (a *TradeArchive) InsertTrades(ctx context.Context, accountID string, trades []types.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO account_trades (
			account_id, ticket, symbol, trade_type, volume, profit, trade_time, archived_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	archivedAt := time.Now().UTC()
	for _, trade := range trades {
		tradeTime, ok := metrics.NormalizeTimestamp(trade.Time)
		if !ok {
			tradeTime = time.Unix(0, 0).UTC()
		}

		err = batch.Append(
			accountID,
			string(trade.Ticket),
			trade.Symbol,
			trade.Type,
			trade.Volume,
			trade.Profit,
			tradeTime,
			archivedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append trade %s: %w", trade.Ticket, err)
		}
	}

	return batch.Send()
}
