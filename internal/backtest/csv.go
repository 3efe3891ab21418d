package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var tradeCSVHeader = []string{
	"entry_date", "exit_date", "type", "pattern", "entry_price", "exit_price",
	"size", "profit", "commission", "net_profit", "result",
}

// WriteTradesCSV writes one row per trade with a header row
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeCSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i, t := range trades {
		row := []string{
			t.EntryDate.UTC().Format(time.RFC3339),
			t.ExitDate.UTC().Format(time.RFC3339),
			string(t.Type),
			string(t.Pattern),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			formatFloat(t.Size),
			formatFloat(t.Profit),
			formatFloat(t.Commission),
			formatFloat(t.NetProfit()),
			t.Result,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write trade %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
