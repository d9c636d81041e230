package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/amirphl/signal-trader/internal/position"
	"github.com/amirphl/signal-trader/internal/utils"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)
)

func signed(v float64, format string) string {
	s := fmt.Sprintf(format, v)
	switch {
	case v > 0:
		return gainStyle.Render(s)
	case v < 0:
		return lossStyle.Render(s)
	}
	return s
}

func money(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}

func formatPF(pf Float64) string {
	if math.IsInf(float64(pf), 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", float64(pf))
}

// PrintResult writes a human-readable summary of a run.
func PrintResult(w io.Writer, res *Result) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Backtest Results (%s %s %s)", res.Strategy, res.Symbol, res.Timeframe)))
	fmt.Fprintf(w, "  Period: %s -> %s (%d bars)\n",
		res.Start.Format(time.RFC3339), res.End.Format(time.RFC3339), res.Bars)
	fmt.Fprintf(w, "  Capital: %s -> %s (leverage %.1fx)\n",
		money(res.InitialCapital), money(res.FinalCapital), res.Leverage)
	if res.Bankrupt {
		fmt.Fprintln(w, lossStyle.Render("  Account bankrupt, replay stopped early"))
	}

	s := res.Stats
	if s == nil {
		fmt.Fprintln(w, "  No trades")
		return
	}
	fmt.Fprintf(w, "  Trades=%d (Long=%d, Short=%d), Wins=%d, Losses=%d, WinRate=%.2f%%\n",
		s.TradeCount, s.LongTrades, s.ShortTrades, s.Wins, s.Losses, s.WinRate)
	fmt.Fprintf(w, "  Return=%s, Buy&Hold=%s\n",
		signed(s.TotalReturnPct, "%.2f%%"), signed(s.BuyAndHoldPct, "%.2f%%"))
	fmt.Fprintf(w, "  MaxDrawdown=%.2f%%, Sharpe=%.2f, ProfitFactor=%s\n",
		s.MaxDrawdownPct, s.SharpeRatio, formatPF(s.ProfitFactor))
	fmt.Fprintf(w, "  AvgWin=%.2f%%, AvgLoss=%.2f%%, MaxConsecWins=%d, MaxConsecLosses=%d\n",
		s.AvgWinPct, s.AvgLossPct, s.MaxConsecutiveWins, s.MaxConsecutiveLosses)
	fmt.Fprintf(w, "  Holding: avg %.1fh (min %.1fh, max %.1fh); <6h %d (%.0f%%), 6-24h %d (%.0f%%), >=24h %d (%.0f%%)\n",
		s.AvgDurationHours, s.MinDurationHours, s.MaxDurationHours,
		s.ShortHolds, s.ShortHoldPct, s.MediumHolds, s.MediumHoldPct, s.LongHolds, s.LongHoldPct)

	reasons := make([]string, 0, len(s.ExitReasons))
	for _, r := range []position.ExitReason{position.ExitTakeProfit, position.ExitStopLoss, position.ExitForcedClose} {
		if n := s.ExitReasons[r]; n > 0 {
			reasons = append(reasons, fmt.Sprintf("%s=%d", r, n))
		}
	}
	fmt.Fprintf(w, "  Exits: %s, Liquidations=%d\n", strings.Join(reasons, ", "), s.Liquidations)

	sessions := make([]string, 0, len(s.Sessions))
	for _, sess := range s.Sessions {
		if sess.Trades > 0 {
			sessions = append(sessions, fmt.Sprintf("%s %d trades, %.0f%% won, PnL %s",
				sess.Name, sess.Trades, sess.WinRate, signed(sess.PnL, "%.2f")))
		}
	}
	fmt.Fprintf(w, "  Sessions: %s\n", strings.Join(sessions, "; "))

	fmt.Fprintln(w, "  Trade Log Summary (Last 10 trades):")
	from := max(0, len(res.Trades)-10)
	for i := from; i < len(res.Trades); i++ {
		t := res.Trades[i]
		fmt.Fprintf(w, "    Trade %d: %s Entry=%.2f at %s, Exit=%.2f at %s, PnL=%s, Reason=%s\n",
			i+1, t.Direction, t.EntryPrice, t.EntryTime.Format(time.RFC3339),
			t.ExitPrice, t.ExitTime.Format(time.RFC3339), signed(t.PnL, "%.2f"), t.ExitReason)
	}
}

// PrintRankings renders the comparison table.
func PrintRankings(w io.Writer, rankings []Ranking) {
	rows := make([][]string, 0, len(rankings))
	for _, r := range rankings {
		if r.NoTrades {
			rows = append(rows, []string{strconv.Itoa(r.Rank), r.Strategy, "-", "no trades", "-", "-", "-", "-", "-"})
			continue
		}
		s := r.Result.Stats
		rows = append(rows, []string{
			strconv.Itoa(r.Rank),
			r.Strategy,
			fmt.Sprintf("%.2f", r.Score),
			signed(s.TotalReturnPct, "%.2f%%"),
			fmt.Sprintf("%.1f%%", s.WinRate),
			formatPF(s.ProfitFactor),
			fmt.Sprintf("%.2f%%", s.MaxDrawdownPct),
			fmt.Sprintf("%.2f", s.SharpeRatio),
			strconv.Itoa(s.TradeCount),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "Strategy", "Score", "Return", "WinRate", "PF", "MaxDD", "Sharpe", "Trades").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(rankings) && rankings[row].NoTrades:
				return dimStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

type resultSummary struct {
	RunID          string    `json:"run_id"`
	Strategy       string    `json:"strategy"`
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Bars           int       `json:"bars"`
	InitialCapital float64   `json:"initial_capital"`
	FinalCapital   float64   `json:"final_capital"`
	Leverage       float64   `json:"leverage"`
	Bankrupt       bool      `json:"bankrupt"`
	NoTrades       bool      `json:"no_trades"`
	Stats          *Stats    `json:"stats,omitempty"`
}

// SaveResult writes a JSON summary, the trade log and the equity curve into
// dir and returns the written paths. It assigns a RunID when missing.
func SaveResult(dir string, res *Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	base := filepath.Join(dir, fileStem(res.Strategy, res.Symbol, res.Timeframe))

	summary := resultSummary{
		RunID: res.RunID, Strategy: res.Strategy, Symbol: res.Symbol, Timeframe: res.Timeframe,
		Start: res.Start, End: res.End, Bars: res.Bars,
		InitialCapital: res.InitialCapital, FinalCapital: res.FinalCapital, Leverage: res.Leverage,
		Bankrupt: res.Bankrupt, NoTrades: res.Stats == nil, Stats: res.Stats,
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	summaryPath := base + "_summary.json"
	if err := os.WriteFile(summaryPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}

	tradeRows := [][]string{{"trade", "direction", "entry_time", "entry_price", "exit_time", "exit_price",
		"exit_reason", "size", "return_pct", "pnl", "pnl_pct", "liquidated"}}
	for i, t := range res.Trades {
		tradeRows = append(tradeRows, []string{
			strconv.Itoa(i + 1),
			string(t.Direction),
			t.EntryTime.Format(time.RFC3339),
			ftoa(t.EntryPrice),
			t.ExitTime.Format(time.RFC3339),
			ftoa(t.ExitPrice),
			string(t.ExitReason),
			ftoa(t.Size),
			ftoa(t.ReturnPct),
			ftoa(t.PnL),
			ftoa(t.PnLPct),
			strconv.FormatBool(t.Liquidated),
		})
	}
	tradesPath := base + "_trades.csv"
	if err := saveCSV(tradesPath, tradeRows); err != nil {
		return nil, err
	}

	equityRows := [][]string{{"time", "equity", "price"}}
	for _, p := range res.Equity {
		equityRows = append(equityRows, []string{p.Time.Format(time.RFC3339), ftoa(p.Equity), ftoa(p.Price)})
	}
	equityPath := base + "_equity.csv"
	if err := saveCSV(equityPath, equityRows); err != nil {
		return nil, err
	}
	return []string{summaryPath, tradesPath, equityPath}, nil
}

// SaveRankings writes the comparison table as CSV.
func SaveRankings(path string, rankings []Ranking) error {
	rows := [][]string{{"rank", "strategy", "score", "no_trades", "total_return_pct", "win_rate",
		"profit_factor", "max_drawdown_pct", "sharpe_ratio", "trades"}}
	for _, r := range rankings {
		row := []string{strconv.Itoa(r.Rank), r.Strategy, ftoa(r.Score), strconv.FormatBool(r.NoTrades)}
		if s := r.Result.Stats; s != nil {
			row = append(row, ftoa(s.TotalReturnPct), ftoa(s.WinRate), formatPF(s.ProfitFactor),
				ftoa(s.MaxDrawdownPct), ftoa(s.SharpeRatio), strconv.Itoa(s.TradeCount))
		} else {
			row = append(row, "", "", "", "", "", "0")
		}
		rows = append(rows, row)
	}
	return saveCSV(path, rows)
}

func fileStem(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, strings.NewReplacer("/", "-", " ", "_").Replace(p))
		}
	}
	return strings.Join(kept, "_")
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// saveCSV saves data to a CSV file
func saveCSV(filename string, rows [][]string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create %s: %w", filename, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}

	utils.GetLogger().Infof("saveCSV | Saved results to %s", filename)
	return nil
}
