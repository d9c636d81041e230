package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/amirphl/signal-trader/internal/position"
	"github.com/amirphl/signal-trader/internal/strategy"
)

// ErrNoTrades is returned by Summarize when there is nothing to measure.
var ErrNoTrades = errors.New("no closed trades")

// Float64 encodes NaN as 0 and infinities as "inf"/"-inf".
type Float64 float64

func (f Float64) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`0`), nil
	case math.IsInf(v, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-inf"`), nil
	}
	return json.Marshal(v)
}

func (f *Float64) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"inf"`:
		*f = Float64(math.Inf(1))
		return nil
	case `"-inf"`:
		*f = Float64(math.Inf(-1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float64(v)
	return nil
}

// Duration bucket bounds, in hours.
const (
	shortTradeHours  = 6
	mediumTradeHours = 24
)

// sessionHours is the width of the trading sessions in the per-session
// breakdown, starting at 00:00 UTC.
const sessionHours = 8

// SessionStats aggregates the trades entered during one UTC session.
type SessionStats struct {
	Name      string  `json:"name"`
	StartHour int     `json:"start_hour"`
	EndHour   int     `json:"end_hour"`
	Trades    int     `json:"trades"`
	Wins      int     `json:"wins"`
	WinRate   float64 `json:"win_rate"`
	PnL       float64 `json:"pnl"`
	AvgPnLPct float64 `json:"avg_pnl_pct"`
}

func newSessions() []SessionStats {
	out := make([]SessionStats, 24/sessionHours)
	for i := range out {
		start, end := i*sessionHours, (i+1)*sessionHours
		out[i] = SessionStats{Name: fmt.Sprintf("%02d-%02d UTC", start, end), StartHour: start, EndHour: end}
	}
	return out
}

// Stats summarizes a run. Percentages are in percent units.
type Stats struct {
	TradeCount  int `json:"trade_count"`
	LongTrades  int `json:"long_trades"`
	ShortTrades int `json:"short_trades"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`

	WinRate        float64 `json:"win_rate"`
	TotalReturnPct float64 `json:"total_return_pct"`
	FinalCapital   float64 `json:"final_capital"`
	GrossProfit    float64 `json:"gross_profit"`
	GrossLoss      float64 `json:"gross_loss"`
	// ProfitFactor is +Inf when there are winning trades and no losing ones.
	ProfitFactor   Float64 `json:"profit_factor"`
	AvgWinPct      float64 `json:"avg_win_pct"`
	AvgLossPct     float64 `json:"avg_loss_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	BuyAndHoldPct  float64 `json:"buy_and_hold_pct"`

	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`

	AvgDurationHours float64 `json:"avg_duration_hours"`
	MinDurationHours float64 `json:"min_duration_hours"`
	MaxDurationHours float64 `json:"max_duration_hours"`
	ShortHolds       int     `json:"short_holds"`
	MediumHolds      int     `json:"medium_holds"`
	LongHolds        int     `json:"long_holds"`
	ShortHoldPct     float64 `json:"short_hold_pct"`
	MediumHoldPct    float64 `json:"medium_hold_pct"`
	LongHoldPct      float64 `json:"long_hold_pct"`

	ExitReasons  map[position.ExitReason]int `json:"exit_reasons"`
	Liquidations int                         `json:"liquidations"`

	// Sessions splits trades by the UTC hour of their entry.
	Sessions []SessionStats `json:"sessions"`
}

// Summarize computes run statistics. periodsPerYear annualizes the Sharpe
// ratio of per-bar equity returns.
func Summarize(trades []position.ClosedTrade, equity []EquityPoint, initialCapital, periodsPerYear float64) (*Stats, error) {
	if len(trades) == 0 {
		return nil, ErrNoTrades
	}
	n := float64(len(trades))
	s := &Stats{
		TradeCount:       len(trades),
		ExitReasons:      make(map[position.ExitReason]int),
		MinDurationHours: math.Inf(1),
		Sessions:         newSessions(),
	}

	var winPct, lossPct, pnl, totalHours float64
	wins, losses := 0, 0
	for _, t := range trades {
		pnl += t.PnL
		switch {
		case t.PnL > 0:
			s.Wins++
			s.GrossProfit += t.PnL
			winPct += t.PnLPct
			wins++
			losses = 0
		case t.PnL < 0:
			s.Losses++
			s.GrossLoss += t.PnL
			lossPct += t.PnLPct
			losses++
			wins = 0
		}
		s.MaxConsecutiveWins = max(s.MaxConsecutiveWins, wins)
		s.MaxConsecutiveLosses = max(s.MaxConsecutiveLosses, losses)

		if t.Direction == strategy.Short {
			s.ShortTrades++
		} else {
			s.LongTrades++
		}
		s.ExitReasons[t.ExitReason]++
		if t.Liquidated {
			s.Liquidations++
		}

		sess := &s.Sessions[t.EntryTime.UTC().Hour()/sessionHours]
		sess.Trades++
		sess.PnL += t.PnL
		sess.AvgPnLPct += t.PnLPct
		if t.PnL > 0 {
			sess.Wins++
		}

		hours := t.Duration().Hours()
		totalHours += hours
		s.MinDurationHours = math.Min(s.MinDurationHours, hours)
		s.MaxDurationHours = math.Max(s.MaxDurationHours, hours)
		switch {
		case hours < shortTradeHours:
			s.ShortHolds++
		case hours < mediumTradeHours:
			s.MediumHolds++
		default:
			s.LongHolds++
		}
	}

	s.WinRate = float64(s.Wins) / n * 100
	if s.Wins > 0 {
		s.AvgWinPct = winPct / float64(s.Wins) * 100
	}
	if s.Losses > 0 {
		s.AvgLossPct = lossPct / float64(s.Losses) * 100
	}
	switch {
	case s.GrossLoss < 0:
		s.ProfitFactor = Float64(s.GrossProfit / -s.GrossLoss)
	case s.GrossProfit > 0:
		s.ProfitFactor = Float64(math.Inf(1))
	}

	s.FinalCapital = math.Max(0, initialCapital+pnl)
	if initialCapital > 0 {
		s.TotalReturnPct = (s.FinalCapital - initialCapital) / initialCapital * 100
	}

	for i := range s.Sessions {
		sess := &s.Sessions[i]
		if sess.Trades > 0 {
			sess.WinRate = float64(sess.Wins) / float64(sess.Trades) * 100
			sess.AvgPnLPct = sess.AvgPnLPct / float64(sess.Trades) * 100
		}
	}

	s.AvgDurationHours = totalHours / n
	s.ShortHoldPct = float64(s.ShortHolds) / n * 100
	s.MediumHoldPct = float64(s.MediumHolds) / n * 100
	s.LongHoldPct = float64(s.LongHolds) / n * 100

	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Equity
	}
	s.MaxDrawdownPct = MaxDrawdown(values) * 100
	s.SharpeRatio = Sharpe(values, periodsPerYear)
	if len(equity) > 1 && equity[0].Price > 0 {
		first, last := equity[0].Price, equity[len(equity)-1].Price
		s.BuyAndHoldPct = (last - first) / first * 100
	}
	return s, nil
}

// RunningPeak is the cumulative maximum of values.
func RunningPeak(values []float64) []float64 {
	peaks := make([]float64, len(values))
	peak := math.Inf(-1)
	for i, v := range values {
		peak = math.Max(peak, v)
		peaks[i] = peak
	}
	return peaks
}

// MaxDrawdown returns the deepest fall from the running peak as a fraction
// (<= 0).
func MaxDrawdown(values []float64) float64 {
	worst := 0.0
	for i, peak := range RunningPeak(values) {
		if peak <= 0 {
			continue
		}
		worst = math.Min(worst, (values[i]-peak)/peak)
	}
	return worst
}

// Sharpe is the mean over the sample standard deviation of period returns,
// scaled by sqrt(periodsPerYear). It is 0 for fewer than two returns or zero
// variance.
func Sharpe(values []float64, periodsPerYear float64) float64 {
	var returns []float64
	for i := 1; i < len(values); i++ {
		if values[i-1] > 0 {
			returns = append(returns, values[i]/values[i-1]-1)
		}
	}
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	if std < 1e-12 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}
