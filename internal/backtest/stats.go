package backtest

import (
	"fmt"
	"sort"
	"time"

	"crypto-pattern-bot/internal/patterns"
)

// PatternPerformance tracks performance by pattern type
type PatternPerformance struct {
	PatternType patterns.PatternType `json:"pattern_type"`
	TotalTrades int                  `json:"total_trades"`
	Wins        int                  `json:"wins"`
	Losses      int                  `json:"losses"`
	WinRate     float64              `json:"win_rate"` // percent
	AvgProfit   float64              `json:"avg_profit"`
	AvgLoss     float64              `json:"avg_loss"`
	NetProfit   float64              `json:"net_profit"`
}

// PatternStats groups trades by the pattern that opened them, sorted by
// pattern type
func PatternStats(trades []Trade) []PatternPerformance {
	byType := make(map[patterns.PatternType]*PatternPerformance)
	for _, t := range trades {
		stats, exists := byType[t.Pattern]
		if !exists {
			stats = &PatternPerformance{PatternType: t.Pattern}
			byType[t.Pattern] = stats
		}

		net := t.NetProfit()
		stats.TotalTrades++
		if t.Profit > 0 {
			stats.Wins++
			stats.AvgProfit = ((stats.AvgProfit * float64(stats.Wins-1)) + net) / float64(stats.Wins)
		} else {
			stats.Losses++
			stats.AvgLoss = ((stats.AvgLoss * float64(stats.Losses-1)) + net) / float64(stats.Losses)
		}
		stats.NetProfit += net
		stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades) * 100
	}

	out := make([]PatternPerformance, 0, len(byType))
	for _, s := range byType {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatternType < out[j].PatternType })
	return out
}

// Period is a calendar bucket for StatsByPeriod
type Period string

const (
	Day   Period = "day"
	Week  Period = "week"
	Month Period = "month"
)

// ParsePeriod parses day, week or month
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case Day, Week, Month:
		return p, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// PeriodStats aggregates the trades that exited within one period
type PeriodStats struct {
	Period        string  `json:"period"`
	TotalProfit   float64 `json:"total_profit"`
	AverageProfit float64 `json:"average_profit"`
	TradeCount    int     `json:"trade_count"`
	LongCount     int     `json:"long_count"`
	ShortCount    int     `json:"short_count"`
	WinRate       float64 `json:"win_rate"`
}

// StatsByPeriod buckets trades by the UTC calendar period of their exit
// date, oldest period first. Profit figures are gross of commission.
func StatsByPeriod(trades []Trade, period Period) []PeriodStats {
	byKey := make(map[string]*PeriodStats)
	wins := make(map[string]int)
	for _, t := range trades {
		key := periodKey(t.ExitDate.UTC(), period)
		s, ok := byKey[key]
		if !ok {
			s = &PeriodStats{Period: key}
			byKey[key] = s
		}
		s.TradeCount++
		s.TotalProfit += t.Profit
		if t.Type == Long {
			s.LongCount++
		} else {
			s.ShortCount++
		}
		if t.Profit > 0 {
			wins[key]++
		}
	}

	out := make([]PeriodStats, 0, len(byKey))
	for key, s := range byKey {
		s.AverageProfit = s.TotalProfit / float64(s.TradeCount)
		s.WinRate = float64(wins[key]) / float64(s.TradeCount)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

func periodKey(t time.Time, period Period) string {
	switch period {
	case Week:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case Month:
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}
