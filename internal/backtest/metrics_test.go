package backtest

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/signal-trader/internal/position"
	"github.com/amirphl/signal-trader/internal/strategy"
)

func createTrade(dir strategy.Direction, pnl float64, hours int, reason position.ExitReason) position.ClosedTrade {
	return position.ClosedTrade{
		Position: position.Position{
			Direction:      dir,
			EntryTime:      t0,
			EntryPrice:     100,
			Size:           1,
			Leverage:       1,
			CapitalAtEntry: 1000,
		},
		ExitTime:   t0.Add(time.Duration(hours) * time.Hour),
		ExitPrice:  100 + pnl/10,
		ExitReason: reason,
		PnL:        pnl,
		PnLPct:     pnl / 1000,
	}
}

func equityOf(values ...float64) []EquityPoint {
	out := make([]EquityPoint, len(values))
	for i, v := range values {
		out[i] = EquityPoint{Time: at(i), Equity: v, Price: 100 + float64(i)}
	}
	return out
}

func TestSummarize(t *testing.T) {
	trades := []position.ClosedTrade{
		createTrade(strategy.Long, 100, 2, position.ExitTakeProfit),
		createTrade(strategy.Short, -50, 10, position.ExitStopLoss),
		createTrade(strategy.Long, 30, 30, position.ExitTakeProfit),
		createTrade(strategy.Long, -20, 48, position.ExitForcedClose),
	}
	trades[1].Liquidated = true
	equity := equityOf(1000, 1100, 1050, 1080, 1060)

	s, err := Summarize(trades, equity, 1000, 8760)
	require.NoError(t, err)

	assert.Equal(t, 4, s.TradeCount)
	assert.Equal(t, 3, s.LongTrades)
	assert.Equal(t, 1, s.ShortTrades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.InDelta(t, 50.0, s.WinRate, 1e-9)
	assert.InDelta(t, 130.0/70.0, float64(s.ProfitFactor), 1e-9)
	assert.InDelta(t, 1060.0, s.FinalCapital, 1e-9)
	assert.InDelta(t, 6.0, s.TotalReturnPct, 1e-9)
	assert.InDelta(t, 6.5, s.AvgWinPct, 1e-9)
	assert.InDelta(t, -3.5, s.AvgLossPct, 1e-9)
	assert.InDelta(t, (1050.0-1100.0)/1100.0*100, s.MaxDrawdownPct, 1e-9)
	assert.InDelta(t, 4.0, s.BuyAndHoldPct, 1e-9)

	assert.Equal(t, 1, s.ShortHolds)
	assert.Equal(t, 1, s.MediumHolds)
	assert.Equal(t, 2, s.LongHolds)
	assert.InDelta(t, 50.0, s.LongHoldPct, 1e-9)
	assert.InDelta(t, 22.5, s.AvgDurationHours, 1e-9)
	assert.InDelta(t, 2.0, s.MinDurationHours, 1e-9)
	assert.InDelta(t, 48.0, s.MaxDurationHours, 1e-9)

	assert.Equal(t, 2, s.ExitReasons[position.ExitTakeProfit])
	assert.Equal(t, 1, s.ExitReasons[position.ExitStopLoss])
	assert.Equal(t, 1, s.ExitReasons[position.ExitForcedClose])
	assert.Equal(t, 1, s.Liquidations)
	assert.Equal(t, 1, s.MaxConsecutiveWins)
	assert.Equal(t, 1, s.MaxConsecutiveLosses)
	assert.NotZero(t, s.SharpeRatio)
}

func TestSummarize_NoTrades(t *testing.T) {
	s, err := Summarize(nil, equityOf(1000, 1000), 1000, 8760)
	assert.ErrorIs(t, err, ErrNoTrades)
	assert.Nil(t, s)
}

func TestSummarize_NoLosses(t *testing.T) {
	trades := []position.ClosedTrade{
		createTrade(strategy.Long, 10, 1, position.ExitTakeProfit),
		createTrade(strategy.Long, 20, 1, position.ExitTakeProfit),
	}
	s, err := Summarize(trades, equityOf(1000, 1010, 1030), 1000, 8760)
	require.NoError(t, err)
	assert.True(t, math.IsInf(float64(s.ProfitFactor), 1))
	assert.Equal(t, 0.0, s.MaxDrawdownPct)
	assert.Equal(t, 2, s.MaxConsecutiveWins)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"profit_factor":"inf"`)

	var back Stats
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsInf(float64(back.ProfitFactor), 1))
}

func TestSummarize_Sessions(t *testing.T) {
	enteredAt := func(hour int, pnl float64) position.ClosedTrade {
		tr := createTrade(strategy.Long, pnl, 1, position.ExitTakeProfit)
		tr.EntryTime = t0.Add(time.Duration(hour) * time.Hour)
		tr.ExitTime = tr.EntryTime.Add(time.Hour)
		return tr
	}
	trades := []position.ClosedTrade{
		enteredAt(0, 10),
		enteredAt(7, -20),
		enteredAt(8, 30),
		enteredAt(17, 40),
		enteredAt(23, 50),
		enteredAt(41, -10), // 17:00 on the next day
	}
	s, err := Summarize(trades, equityOf(1000, 1100), 1000, 8760)
	require.NoError(t, err)
	require.Len(t, s.Sessions, 3)

	asia, europe, us := s.Sessions[0], s.Sessions[1], s.Sessions[2]
	assert.Equal(t, "00-08 UTC", asia.Name)
	assert.Equal(t, 2, asia.Trades)
	assert.Equal(t, 1, asia.Wins)
	assert.InDelta(t, 50.0, asia.WinRate, 1e-9)
	assert.InDelta(t, -10.0, asia.PnL, 1e-9)
	assert.InDelta(t, -0.5, asia.AvgPnLPct, 1e-9)

	assert.Equal(t, "08-16 UTC", europe.Name)
	assert.Equal(t, 1, europe.Trades)
	assert.InDelta(t, 100.0, europe.WinRate, 1e-9)

	assert.Equal(t, 16, us.StartHour)
	assert.Equal(t, 24, us.EndHour)
	assert.Equal(t, 3, us.Trades)
	assert.Equal(t, 2, us.Wins)
	assert.InDelta(t, 80.0, us.PnL, 1e-9)

	total := 0
	for _, sess := range s.Sessions {
		total += sess.Trades
	}
	assert.Equal(t, s.TradeCount, total)
}

func TestSummarize_EmptySessions(t *testing.T) {
	trades := []position.ClosedTrade{createTrade(strategy.Long, 10, 1, position.ExitTakeProfit)}
	s, err := Summarize(trades, equityOf(1000, 1010), 1000, 8760)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Sessions[0].Trades)
	assert.Zero(t, s.Sessions[1].Trades)
	assert.Zero(t, s.Sessions[1].WinRate)
	assert.Zero(t, s.Sessions[2].AvgPnLPct)
}

func TestFloat64_JSON(t *testing.T) {
	for _, tt := range []struct {
		v    float64
		want string
	}{
		{1.5, `1.5`},
		{math.NaN(), `0`},
		{math.Inf(1), `"inf"`},
		{math.Inf(-1), `"-inf"`},
	} {
		data, err := json.Marshal(Float64(tt.v))
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(data))
	}
}

func TestRunningPeak(t *testing.T) {
	values := []float64{100, 120, 90, 130, 80, 80, 140}
	peaks := RunningPeak(values)
	assert.Equal(t, []float64{100, 120, 120, 130, 130, 130, 140}, peaks)
	for i := 1; i < len(peaks); i++ {
		assert.GreaterOrEqual(t, peaks[i], peaks[i-1])
		assert.GreaterOrEqual(t, peaks[i], values[i])
	}
	assert.InDelta(t, (80.0-130.0)/130.0, MaxDrawdown(values), 1e-12)
	assert.Equal(t, 0.0, MaxDrawdown([]float64{1, 2, 3}))
	assert.Equal(t, -1.0, MaxDrawdown([]float64{100, 0}))
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe([]float64{100, 101}, 8760), "needs two returns")
	assert.Equal(t, 0.0, Sharpe([]float64{100, 100, 100, 100}, 8760), "zero variance")
	assert.Equal(t, 0.0, Sharpe([]float64{100, 110, 100}, 0))

	// returns of +10%, -10%, +10%
	values := []float64{100, 110, 99, 108.9}
	r := []float64{0.1, -0.1, 0.1}
	mean := (r[0] + r[1] + r[2]) / 3
	var ss float64
	for _, x := range r {
		ss += (x - mean) * (x - mean)
	}
	want := mean / math.Sqrt(ss/2) * math.Sqrt(252)
	assert.InDelta(t, want, Sharpe(values, 252), 1e-9)
}
