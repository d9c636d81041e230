package backtest

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/indicator"
	"github.com/amirphl/signal-trader/internal/position"
	"github.com/amirphl/signal-trader/internal/strategy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(i int) time.Time {
	return t0.Add(time.Duration(i) * time.Hour)
}

func makeBar(i int, open, high, low, close float64) candle.Candle {
	return candle.Candle{
		Timestamp: at(i),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    100,
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Source:    "test",
	}
}

func flatBar(i int, price float64) candle.Candle {
	return makeBar(i, price, price+0.5, price-0.5, price)
}

// scriptedStrategy emits a fixed signal template at chosen bar indices.
type scriptedStrategy struct {
	name    string
	signals map[time.Time]strategy.Signal
	calls   []time.Time
	every   *strategy.Signal
}

func (s *scriptedStrategy) Name() string { return s.name }

func (s *scriptedStrategy) Analyze(snap indicator.Snapshot, tf string) *strategy.Signal {
	s.calls = append(s.calls, snap.Time)
	tmpl, ok := s.signals[snap.Time]
	if !ok {
		if s.every == nil {
			return nil
		}
		tmpl = *s.every
	}
	sig := tmpl
	sig.Strategy = s.name
	sig.Time = snap.Time
	// template levels are offsets from price
	sig.StopLoss = snap.Price + tmpl.StopLoss
	sig.TakeProfit = snap.Price + tmpl.TakeProfit
	sig.Price = snap.Price
	sig.Timeframe = tf
	return &sig
}

func longAt(stopOffset, targetOffset float64) strategy.Signal {
	return strategy.Signal{Direction: strategy.Long, Strength: 60, StopLoss: stopOffset, TakeProfit: targetOffset}
}

func shortAt(stopOffset, targetOffset float64) strategy.Signal {
	return strategy.Signal{Direction: strategy.Short, Strength: 60, StopLoss: stopOffset, TakeProfit: targetOffset}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Indicators.MinBars = 2
	cfg.Symbol = "BTCUSDT"
	cfg.Timeframe = "1h"
	return cfg
}

func run(t *testing.T, cfg Config, strat strategy.Strategy, bars []candle.Candle) *Result {
	t.Helper()
	engine, err := NewEngine(cfg, strat)
	require.NoError(t, err)
	res, err := engine.Run(bars)
	require.NoError(t, err)
	return res
}

func TestEngine_LongStopLoss(t *testing.T) {
	strat := &scriptedStrategy{name: "s", signals: map[time.Time]strategy.Signal{at(1): longAt(-2, 4)}}
	bars := []candle.Candle{flatBar(0, 100), flatBar(1, 100), makeBar(2, 98.5, 99, 97, 98)}

	res := run(t, testConfig(), strat, bars)
	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, position.ExitStopLoss, trade.ExitReason)
	assert.Equal(t, 98.0, trade.ExitPrice)
	assert.InDelta(t, -0.02, trade.ReturnPct, 1e-12)
	assert.InDelta(t, -200.0, trade.PnL, 1e-9)
	assert.Equal(t, at(1), trade.EntryTime)
	assert.Equal(t, at(2), trade.ExitTime)
	assert.InDelta(t, 9800.0, res.FinalCapital, 1e-9)

	require.Len(t, res.Equity, 2)
	assert.InDelta(t, 10000.0, res.Equity[0].Equity, 1e-9)
	assert.InDelta(t, 9800.0, res.Equity[1].Equity, 1e-9)
	require.NotNil(t, res.Stats)
	assert.InDelta(t, -2.0, res.Stats.MaxDrawdownPct, 1e-9)
	assert.Equal(t, []time.Time{at(1), at(2)}, strat.calls, "replay starts at the first ready bar")
}

func TestEngine_ShortTakeProfit(t *testing.T) {
	strat := &scriptedStrategy{name: "s", signals: map[time.Time]strategy.Signal{at(1): shortAt(2, -4)}}
	bars := []candle.Candle{flatBar(0, 100), flatBar(1, 100), makeBar(2, 100, 101, 95, 96)}

	res := run(t, testConfig(), strat, bars)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, position.ExitTakeProfit, res.Trades[0].ExitReason)
	assert.Equal(t, 96.0, res.Trades[0].ExitPrice)
	assert.InDelta(t, 400.0, res.Trades[0].PnL, 1e-9)
	assert.InDelta(t, 10400.0, res.FinalCapital, 1e-9)
}

func TestEngine_Liquidation(t *testing.T) {
	cfg := testConfig()
	cfg.Leverage = 10
	cfg.PositionSize = 0.1
	cfg.Sizing = SizingFixed

	strat := &scriptedStrategy{name: "s", signals: map[time.Time]strategy.Signal{at(1): longAt(-15, 20)}}
	bars := []candle.Candle{flatBar(0, 100), flatBar(1, 100), makeBar(2, 100, 101, 84, 86), flatBar(3, 86)}

	res := run(t, cfg, strat, bars)
	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.True(t, trade.Liquidated)
	assert.InDelta(t, -1000.0, trade.PnL, 1e-9, "loss is capped at capital * size")
	assert.InDelta(t, 9000.0, res.FinalCapital, 1e-9)
	assert.False(t, res.Bankrupt)
	assert.Equal(t, 1, res.Stats.Liquidations)
}

func TestEngine_Bankruptcy(t *testing.T) {
	cfg := testConfig()
	cfg.Leverage = 10
	cfg.Sizing = SizingFixed

	strat := &scriptedStrategy{name: "s", every: ptr(longAt(-15, 20))}
	bars := []candle.Candle{flatBar(0, 100), flatBar(1, 100), makeBar(2, 100, 101, 84, 86), flatBar(3, 86), flatBar(4, 86)}

	res := run(t, cfg, strat, bars)
	assert.True(t, res.Bankrupt)
	assert.Equal(t, 0.0, res.FinalCapital)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, at(2), res.End, "replay stops on the bankrupt bar")
	assert.Equal(t, 0.0, res.Equity[len(res.Equity)-1].Equity)
	assert.NotContains(t, strat.calls, at(3))
}

func TestEngine_ForcedClose(t *testing.T) {
	strat := &scriptedStrategy{name: "s", signals: map[time.Time]strategy.Signal{at(1): longAt(-10, 10)}}
	bars := []candle.Candle{flatBar(0, 100), flatBar(1, 100), flatBar(2, 101), flatBar(3, 103)}

	res := run(t, testConfig(), strat, bars)
	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, position.ExitForcedClose, trade.ExitReason)
	assert.Equal(t, 103.0, trade.ExitPrice)
	assert.Equal(t, at(3), trade.ExitTime)
	assert.InDelta(t, 300.0, trade.PnL, 1e-9)
	assert.InDelta(t, 10300.0, res.Equity[len(res.Equity)-1].Equity, 1e-9)
}

func TestEngine_NoTrades(t *testing.T) {
	strat := &scriptedStrategy{name: "quiet"}
	bars := []candle.Candle{flatBar(0, 100), flatBar(1, 100), flatBar(2, 101)}

	res := run(t, testConfig(), strat, bars)
	assert.Empty(t, res.Trades)
	assert.Nil(t, res.Stats)
	assert.Equal(t, 10000.0, res.FinalCapital)
	assert.Len(t, res.Equity, 2)
}

func TestEngine_Cooldown(t *testing.T) {
	// every entry is stopped out on the following bar
	strat := &scriptedStrategy{name: "s", every: ptr(longAt(-1, 10))}
	var bars []candle.Candle
	for i := range 12 {
		bars = append(bars, makeBar(i, 100, 100.5, 98.5, 100))
	}

	res := run(t, testConfig(), strat, bars)
	entries := make([]time.Time, len(res.Trades))
	for i, tr := range res.Trades {
		entries[i] = tr.EntryTime
		assert.Less(t, tr.PnL, 0.0)
	}
	// losses close on bars 2, 3 and 4; bar 4 and the next five bars stay flat
	assert.Equal(t, []time.Time{at(1), at(2), at(3), at(10)}, entries)
	for i := 4; i <= 9; i++ {
		assert.NotContains(t, strat.calls, at(i), "bar %d is in cooldown", i)
	}

	// the third entry follows two losses and is halved
	assert.Equal(t, 1.0, res.Trades[1].Size)
	assert.Equal(t, 0.5, res.Trades[2].Size)
}

func TestEngine_SameBarReentry(t *testing.T) {
	strat := &scriptedStrategy{name: "s", every: ptr(longAt(-2, 1))}
	bars := []candle.Candle{flatBar(0, 100), flatBar(1, 100), makeBar(2, 100, 101.5, 99.5, 101), flatBar(3, 101)}

	res := run(t, testConfig(), strat, bars)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, position.ExitTakeProfit, res.Trades[0].ExitReason)
	assert.Equal(t, at(2), res.Trades[1].EntryTime, "a new position may open on the exit bar")
}

func TestEngine_Errors(t *testing.T) {
	strat := &scriptedStrategy{name: "s"}

	engine, err := NewEngine(DefaultConfig(), strat)
	require.NoError(t, err)
	_, err = engine.Run([]candle.Candle{flatBar(0, 100), flatBar(1, 100)})
	assert.ErrorIs(t, err, indicator.ErrInsufficientData)

	bars := []candle.Candle{flatBar(0, 100), flatBar(2, 100), flatBar(1, 100)}
	_, err = engine.Run(bars)
	assert.ErrorIs(t, err, candle.ErrInvalidSeries)

	bad := flatBar(3, 100)
	bad.Close = math.NaN()
	_, err = engine.Run([]candle.Candle{flatBar(0, 100), flatBar(1, 100), flatBar(2, 100), bad})
	assert.ErrorIs(t, err, candle.ErrInvalidSeries)

	_, err = NewEngine(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEntryWindow_Contains(t *testing.T) {
	hour := func(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }
	tests := []struct {
		name   string
		window EntryWindow
		in     []int
		out    []int
	}{
		{"zero value", EntryWindow{}, []int{0, 5, 12, 23}, nil},
		{"daytime", EntryWindow{StartHour: 8, EndHour: 16}, []int{8, 12, 15}, []int{7, 16, 23}},
		{"until midnight", EntryWindow{StartHour: 16, EndHour: 24}, []int{16, 20, 23}, []int{0, 8, 15}},
		{"wraps midnight", EntryWindow{StartHour: 22, EndHour: 2}, []int{22, 23, 0, 1}, []int{2, 12, 21}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, h := range tt.in {
				assert.True(t, tt.window.Contains(hour(h)), "hour %d", h)
			}
			for _, h := range tt.out {
				assert.False(t, tt.window.Contains(hour(h)), "hour %d", h)
			}
		})
	}

	// hours are taken in UTC regardless of the timestamp's zone
	tehran := time.FixedZone("IRST", 3*3600+1800)
	assert.True(t, EntryWindow{StartHour: 16, EndHour: 24}.Contains(time.Date(2024, 1, 1, 20, 0, 0, 0, tehran)))
}

func TestEngine_EntryWindow(t *testing.T) {
	var bars []candle.Candle
	for i := range 6 {
		bars = append(bars, flatBar(i, 100))
	}
	every := ptr(longAt(-10, 10))

	cfg := testConfig()
	cfg.EntryWindow = EntryWindow{StartHour: 16, EndHour: 24}
	strat := &scriptedStrategy{name: "s", every: every}
	res := run(t, cfg, strat, bars)
	assert.Empty(t, res.Trades, "bars at 00:00-05:00 UTC are outside the window")
	assert.Empty(t, strat.calls)

	cfg.EntryWindow = EntryWindow{StartHour: 3, EndHour: 5}
	strat = &scriptedStrategy{name: "s", every: every}
	res = run(t, cfg, strat, bars)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, at(3), res.Trades[0].EntryTime)
	assert.Equal(t, position.ExitForcedClose, res.Trades[0].ExitReason)
	assert.Equal(t, []time.Time{at(3)}, strat.calls, "no analysis while a position is open or outside the window")

	cfg.EntryWindow = EntryWindow{StartHour: 23, EndHour: 2}
	strat = &scriptedStrategy{name: "s", every: every}
	res = run(t, cfg, strat, bars)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, at(1), res.Trades[0].EntryTime, "a wrapping window admits early hours")
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }},
		{"nan capital", func(c *Config) { c.InitialCapital = math.NaN() }},
		{"zero leverage", func(c *Config) { c.Leverage = 0 }},
		{"oversized", func(c *Config) { c.PositionSize = 1.5 }},
		{"negative cooldown", func(c *Config) { c.CooldownBars = -1 }},
		{"unknown sizing", func(c *Config) { c.Sizing = "kelly" }},
		{"bad indicators", func(c *Config) { c.Indicators.MinBars = 1 }},
		{"window start out of range", func(c *Config) { c.EntryWindow.StartHour = 24 }},
		{"negative window end", func(c *Config) { c.EntryWindow.EndHour = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

// randomStrategy signals pseudo-randomly with a deterministic seed.
type randomStrategy struct {
	rng *rand.Rand
}

func (s *randomStrategy) Name() string { return "random" }

func (s *randomStrategy) Analyze(snap indicator.Snapshot, tf string) *strategy.Signal {
	if s.rng.Float64() < 0.7 {
		return nil
	}
	dir := strategy.Long
	if s.rng.Float64() < 0.5 {
		dir = strategy.Short
	}
	stop := snap.Price * (0.01 + s.rng.Float64()*0.05)
	target := snap.Price * (0.01 + s.rng.Float64()*0.05)
	return &strategy.Signal{
		Strategy:   "random",
		Direction:  dir,
		Strength:   s.rng.Intn(101),
		Price:      snap.Price,
		StopLoss:   snap.Price - dir.Sign()*stop,
		TakeProfit: snap.Price + dir.Sign()*target,
		Time:       snap.Time,
	}
}

func wavyBars(n int, seed int64) []candle.Candle {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]candle.Candle, n)
	price := 100.0
	for i := range bars {
		drift := math.Sin(float64(i)/12)*0.8 + rng.NormFloat64()*0.6
		open := price
		closePrice := math.Max(1, price+drift)
		high := math.Max(open, closePrice) + rng.Float64()*0.8
		low := math.Max(0.5, math.Min(open, closePrice)-rng.Float64()*0.8)
		bars[i] = candle.Candle{
			Timestamp: at(i), Open: open, High: high, Low: low, Close: closePrice,
			Volume: 50 + rng.Float64()*100, Symbol: "BTCUSDT", Timeframe: "1h",
		}
		price = closePrice
	}
	return bars
}

func TestEngine_Invariants(t *testing.T) {
	bars := wavyBars(400, 7)
	cfg := testConfig()
	cfg.Leverage = 20

	res := run(t, cfg, &randomStrategy{rng: rand.New(rand.NewSource(1))}, bars)
	require.NotEmpty(t, res.Trades)

	for i, tr := range res.Trades {
		assert.False(t, tr.ExitTime.Before(tr.EntryTime))
		assert.Greater(t, tr.EntryPrice, 0.0)
		assert.Greater(t, tr.ExitPrice, 0.0)
		assert.GreaterOrEqual(t, tr.PnL, -tr.CapitalAtEntry*tr.Size-1e-9, "liquidation bound")
		if tr.ReturnPct != 0 {
			assert.Equal(t, tr.ReturnPct > 0, tr.PnL > 0, "pnl sign follows the move")
		}
		if i > 0 {
			assert.False(t, tr.EntryTime.Before(res.Trades[i-1].ExitTime), "one position at a time")
		}
	}
	assert.GreaterOrEqual(t, res.FinalCapital, 0.0)
}

func TestEngine_Deterministic(t *testing.T) {
	bars := wavyBars(400, 3)
	cfg := DefaultConfig()
	cfg.Symbol, cfg.Timeframe = "BTCUSDT", "1h"
	cfg.Leverage = 3

	for _, name := range strategy.Names() {
		t.Run(name, func(t *testing.T) {
			strat, err := strategy.New(name, strategy.DefaultParams())
			require.NoError(t, err)
			first := run(t, cfg, strat, bars)
			second := run(t, cfg, strat, bars)
			assert.Equal(t, first, second)
		})
	}
}

func ptr[T any](v T) *T { return &v }
