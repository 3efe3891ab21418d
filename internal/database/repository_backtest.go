package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"crypto-pattern-bot/internal/backtest"
	"crypto-pattern-bot/internal/patterns"
)

// BacktestSummary is a listing row for a stored backtest
type BacktestSummary struct {
	ID                string                      `json:"id"`
	Symbol            string                      `json:"symbol"`
	Interval          string                      `json:"interval"`
	InitialBalance    float64                     `json:"initial_balance"`
	FinalBalance      float64                     `json:"final_balance"`
	ProfitLossPercent float64                     `json:"profit_loss_percent"`
	Metrics           backtest.PerformanceMetrics `json:"metrics"`
	CreatedAt         time.Time                   `json:"created_at"`
}

// backtestRow holds the encoded columns of backtest_results
type backtestRow struct {
	metrics     []byte
	equityCurve []byte
}

func encodeBacktestRow(r *backtest.Result) (backtestRow, error) {
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return backtestRow{}, fmt.Errorf("failed to encode metrics: %w", err)
	}
	curve := r.EquityCurve
	if curve == nil {
		curve = []backtest.EquityPoint{}
	}
	equity, err := json.Marshal(curve)
	if err != nil {
		return backtestRow{}, fmt.Errorf("failed to encode equity curve: %w", err)
	}
	return backtestRow{metrics: metrics, equityCurve: equity}, nil
}

func (row backtestRow) decodeInto(r *backtest.Result) error {
	if err := json.Unmarshal(row.metrics, &r.Metrics); err != nil {
		return fmt.Errorf("failed to decode metrics: %w", err)
	}
	if err := json.Unmarshal(row.equityCurve, &r.EquityCurve); err != nil {
		return fmt.Errorf("failed to decode equity curve: %w", err)
	}
	return nil
}

// parseID converts a result id to the UUID column encoding. Ids that are
// not UUIDs cannot exist in the table.
func parseID(id string) ([16]byte, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}, fmt.Errorf("backtest %q: %w", id, ErrNotFound)
	}
	return [16]byte(uid), nil
}

// SaveBacktestResult saves a backtest result and its trades in a transaction
func (r *Repository) SaveBacktestResult(ctx context.Context, result *backtest.Result) error {
	row, err := encodeBacktestRow(result)
	if err != nil {
		return err
	}
	uid, err := uuid.Parse(result.ID)
	if err != nil {
		return fmt.Errorf("invalid backtest id %q: %w", result.ID, err)
	}
	id := [16]byte(uid)

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO backtest_results (
			id, symbol, interval, initial_balance, final_balance,
			profit_loss, profit_loss_percent, insufficient_data, bars_processed,
			metrics, equity_curve, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.Exec(ctx, query,
		id, result.Symbol, result.Interval, result.InitialBalance, result.FinalBalance,
		result.ProfitLoss, result.ProfitLossPercent, result.InsufficientData, result.BarsProcessed,
		row.metrics, row.equityCurve, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backtest result: %w", err)
	}

	if len(result.Trades) > 0 {
		rows := make([][]interface{}, len(result.Trades))
		for i, t := range result.Trades {
			rows[i] = []interface{}{
				id, i, t.EntryDate, t.ExitDate, t.EntryPrice, t.ExitPrice,
				string(t.Type), t.Size, t.Profit, t.Commission, t.Result, string(t.Pattern),
			}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"backtest_trades"},
			[]string{
				"backtest_result_id", "seq", "entry_date", "exit_date", "entry_price", "exit_price",
				"type", "size", "profit", "commission", "result", "pattern",
			},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to insert backtest trades: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetBacktestResult loads a stored result with its trades
func (r *Repository) GetBacktestResult(ctx context.Context, id string) (*backtest.Result, error) {
	query := `
		SELECT id, symbol, interval, initial_balance, final_balance,
			profit_loss, profit_loss_percent, insufficient_data, bars_processed,
			metrics, equity_curve, created_at
		FROM backtest_results
		WHERE id = $1
	`

	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var result backtest.Result
	var row backtestRow
	var rid [16]byte
	err = r.db.Pool.QueryRow(ctx, query, uid).Scan(
		&rid, &result.Symbol, &result.Interval, &result.InitialBalance, &result.FinalBalance,
		&result.ProfitLoss, &result.ProfitLossPercent, &result.InsufficientData, &result.BarsProcessed,
		&row.metrics, &row.equityCurve, &result.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest result %s: %w", id, notFound(err))
	}
	result.ID = uuid.UUID(rid).String()
	if err := row.decodeInto(&result); err != nil {
		return nil, err
	}

	trades, err := r.GetBacktestTrades(ctx, id)
	if err != nil {
		return nil, err
	}
	result.Trades = trades
	return &result, nil
}

// GetBacktestResults lists the most recent results, newest first
func (r *Repository) GetBacktestResults(ctx context.Context, limit int) ([]BacktestSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, symbol, interval, initial_balance, final_balance,
			profit_loss_percent, metrics, created_at
		FROM backtest_results
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest results: %w", err)
	}
	defer rows.Close()

	summaries := make([]BacktestSummary, 0)
	for rows.Next() {
		var s BacktestSummary
		var rid [16]byte
		var metrics []byte
		if err := rows.Scan(&rid, &s.Symbol, &s.Interval, &s.InitialBalance, &s.FinalBalance,
			&s.ProfitLossPercent, &metrics, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backtest result: %w", err)
		}
		s.ID = uuid.UUID(rid).String()
		if err := json.Unmarshal(metrics, &s.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode metrics for %s: %w", s.ID, err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// GetBacktestTrades returns the trades of a result in execution order
func (r *Repository) GetBacktestTrades(ctx context.Context, id string) ([]backtest.Trade, error) {
	query := `
		SELECT entry_date, exit_date, entry_price, exit_price, type,
			size, profit, commission, result, pattern
		FROM backtest_trades
		WHERE backtest_result_id = $1
		ORDER BY seq
	`

	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest trades: %w", err)
	}
	defer rows.Close()

	trades := make([]backtest.Trade, 0)
	for rows.Next() {
		var t backtest.Trade
		var typ, pattern string
		if err := rows.Scan(&t.EntryDate, &t.ExitDate, &t.EntryPrice, &t.ExitPrice, &typ,
			&t.Size, &t.Profit, &t.Commission, &t.Result, &pattern); err != nil {
			return nil, fmt.Errorf("failed to scan backtest trade: %w", err)
		}
		t.Type = backtest.PositionType(typ)
		t.Pattern = patterns.PatternType(pattern)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// DeleteBacktestResult removes a result and, by cascade, its trades
func (r *Repository) DeleteBacktestResult(ctx context.Context, id string) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM backtest_results WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("failed to delete backtest result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
