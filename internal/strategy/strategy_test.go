package strategy

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/signal-trader/internal/indicator"
)

var barTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createSnapshot returns a ready snapshot at price 100 with every other
// value missing, so defaults apply (ATR = 1).
func createSnapshot(mutate func(s *indicator.Snapshot)) indicator.Snapshot {
	s := indicator.Blank(barTime, 100)
	if mutate != nil {
		mutate(&s)
	}
	return s
}

func rangingLong(s *indicator.Snapshot) {
	s.ADX = 15
	s.RSI = 18
	s.BBPercentB = -0.1
	s.StochK, s.StochD = 12, 10
	s.S1 = 99.7
	s.VolumeRatio = 2
	s.OBVChange = 5
}

func assertBracket(t *testing.T, sig *Signal) {
	t.Helper()
	if sig.Direction == Long {
		assert.Less(t, sig.StopLoss, sig.Price, "long stop below entry")
		assert.Less(t, sig.Price, sig.TakeProfit, "long target above entry")
	} else {
		assert.Less(t, sig.TakeProfit, sig.Price, "short target below entry")
		assert.Less(t, sig.Price, sig.StopLoss, "short stop above entry")
	}
	assert.Greater(t, sig.StopLoss, 0.0)
	assert.Greater(t, sig.TakeProfit, 0.0)
}

func mustNew(t *testing.T, name string, p Params) Strategy {
	t.Helper()
	s, err := New(name, p)
	require.NoError(t, err)
	return s
}

func TestComposite_RangingLong(t *testing.T) {
	s := mustNew(t, NameComposite, DefaultParams())
	sig := s.Analyze(createSnapshot(rangingLong), "1h")
	require.NotNil(t, sig)

	assert.Equal(t, NameComposite, sig.Strategy)
	assert.Equal(t, Long, sig.Direction)
	assert.Equal(t, StrongBuy, sig.Category)
	assert.InDelta(t, 65.0, sig.Score, 1e-9)
	assert.Equal(t, 65, sig.Strength)
	assert.Equal(t, 97.2, sig.StopLoss)
	assert.Equal(t, 101.6, sig.TakeProfit)
	assert.Equal(t, "1h", sig.Timeframe)
	assert.Equal(t, barTime, sig.Time)
	assert.Contains(t, sig.Reasons[0], "ranging")
}

func TestComposite_RangingShort(t *testing.T) {
	s := mustNew(t, NameComposite, DefaultParams())
	sig := s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
		s.ADX = 15
		s.RSI = 85
		s.BBPercentB = 1.1
		s.StochK, s.StochD = 88, 90
		s.R1 = 100.2
		s.VolumeRatio = 2
		s.OBVChange = -5
	}), "1h")
	require.NotNil(t, sig)

	assert.Equal(t, Short, sig.Direction)
	assert.Equal(t, StrongSell, sig.Category)
	assert.InDelta(t, -55.0, sig.Score, 1e-9)
	assert.Equal(t, 55, sig.Strength)
	assert.Equal(t, 102.8, sig.StopLoss)
	assert.Equal(t, 98.4, sig.TakeProfit)
}

func TestComposite_TrendFilter(t *testing.T) {
	snap := createSnapshot(func(s *indicator.Snapshot) {
		rangingLong(s)
		s.MA200 = 100
		s.MA50 = 97
	})

	s := mustNew(t, NameComposite, DefaultParams())
	assert.Nil(t, s.Analyze(snap, "1h"), "long against a falling MA50/MA200 is filtered")

	p := DefaultParams()
	p.Composite.TrendFilter = false
	s = mustNew(t, NameComposite, p)
	assert.NotNil(t, s.Analyze(snap, "1h"))
}

func TestComposite_RoundingBreaksBracket(t *testing.T) {
	p := DefaultParams()
	p.Composite.PricePrecision = 0
	s := mustNew(t, NameComposite, p)

	// target 100.48 rounds to the entry price
	sig := s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
		rangingLong(s)
		s.ATR = 0.3
	}), "1h")
	assert.Nil(t, sig)
}

func TestTrend(t *testing.T) {
	uptrend := func(s *indicator.Snapshot) {
		s.ADX = 30
		s.MA20, s.MA50 = 99, 98
		s.EMA9, s.EMA21 = 99.8, 99.5
		s.RSI = 45
		s.BBPercentB = 0.5
		s.StochK = 40
		s.MACDHist = 0.2
	}
	s := mustNew(t, NameTrend, DefaultParams())

	t.Run("pullback long", func(t *testing.T) {
		sig := s.Analyze(createSnapshot(uptrend), "4h")
		require.NotNil(t, sig)
		assert.Equal(t, Long, sig.Direction)
		assert.Equal(t, StrongBuy, sig.Category)
		assert.Equal(t, 100, sig.Strength)
		assert.Equal(t, 99.2, sig.StopLoss)
		assert.Equal(t, 102.2, sig.TakeProfit)
	})

	t.Run("weak adx", func(t *testing.T) {
		assert.Nil(t, s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
			uptrend(s)
			s.ADX = 20
		}), "4h"))
	})

	t.Run("no momentum", func(t *testing.T) {
		assert.Nil(t, s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
			uptrend(s)
			s.MACDHist = -0.1
			s.DIPlus, s.DIMinus = 10, 20
		}), "4h"))
	})

	t.Run("shallow pullback", func(t *testing.T) {
		// only the EMA21 proximity rule fires
		assert.Nil(t, s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
			uptrend(s)
			s.RSI = 70
			s.BBPercentB = 0.9
			s.StochK = 80
		}), "4h"))
	})

	t.Run("no trend", func(t *testing.T) {
		assert.Nil(t, s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
			s.ADX = 30
		}), "4h"))
	})
}

func TestBreakout(t *testing.T) {
	breakout := func(s *indicator.Snapshot) {
		s.BBPercentB = 1.2
		s.BBUpper = 99.5
		s.High20 = 100
		s.Low20 = 95
		s.ADX = 30
		s.VolumeRatio = 2
	}
	s := mustNew(t, NameBreakout, DefaultParams())

	t.Run("upside", func(t *testing.T) {
		sig := s.Analyze(createSnapshot(breakout), "1h")
		require.NotNil(t, sig)
		assert.Equal(t, Long, sig.Direction)
		assert.InDelta(t, 95.0, sig.Score, 1e-9)
		assert.Equal(t, StrongBuy, sig.Category)
		assert.Equal(t, 99.5, sig.StopLoss)
		assert.Equal(t, 103.0, sig.TakeProfit)
	})

	t.Run("downside", func(t *testing.T) {
		sig := s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
			s.BBPercentB = -0.2
			s.BBLower = 100.5
			s.High20 = 105
			s.Low20 = 100
			s.S1 = 101
			s.ADX = 30
			s.VolumeRatio = 3
		}), "1h")
		require.NotNil(t, sig)
		assert.Equal(t, Short, sig.Direction)
		assert.InDelta(t, -125.0, sig.Score, 1e-9)
		assert.Equal(t, 100, sig.Strength)
		// broken level is S1 at 101, buffered by 0.5 ATR
		assert.Equal(t, 101.5, sig.StopLoss)
		assert.Equal(t, 97.0, sig.TakeProfit)
	})

	t.Run("needs volume", func(t *testing.T) {
		assert.Nil(t, s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
			breakout(s)
			s.VolumeRatio = 1.0
		}), "1h"))
	})

	t.Run("no trigger", func(t *testing.T) {
		assert.Nil(t, s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
			s.High20, s.Low20 = 105, 95
			s.VolumeRatio = 3
		}), "1h"))
	})
}

func TestCombo(t *testing.T) {
	s := mustNew(t, NameCombo, DefaultParams())

	t.Run("trending", func(t *testing.T) {
		sig := s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
			s.ADX = 30
			s.EMA9, s.EMA21 = 101, 100
			s.MA20, s.MA50 = 99, 98
			s.RSI = 45
			s.BBPercentB = 0.5
			s.MACDHist = 0.1
		}), "1h")
		require.NotNil(t, sig)
		assert.InDelta(t, 90.0, sig.Score, 1e-9)
		assert.Equal(t, 99.1, sig.StopLoss)
		assert.Equal(t, 102.0, sig.TakeProfit)
	})

	t.Run("ranging short", func(t *testing.T) {
		sig := s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
			s.ADX = 15
			s.RSI = 80
			s.BBPercentB = 0.95
			s.StochK = 85
		}), "1h")
		require.NotNil(t, sig)
		assert.Equal(t, Short, sig.Direction)
		assert.Equal(t, StrongSell, sig.Category)
		assert.Equal(t, 100.8, sig.StopLoss)
		assert.Equal(t, 99.0, sig.TakeProfit)
	})

	t.Run("neutral regime", func(t *testing.T) {
		assert.Nil(t, s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
			s.ADX = 22
			s.RSI = 10
			s.BBPercentB = -0.5
			s.StochK = 5
		}), "1h"))
	})
}

func TestMeanRev(t *testing.T) {
	oversold := func(s *indicator.Snapshot) {
		s.RSI = 20
		s.BBPercentB = -0.1
		s.StochK, s.StochD = 15, 20
		s.S1 = 99.5
		s.MACDHist = 0.1
		s.VolumeRatio = 2
	}

	t.Run("structure levels", func(t *testing.T) {
		s := mustNew(t, NameMeanRev, DefaultParams())
		sig := s.Analyze(createSnapshot(oversold), "1h")
		require.NotNil(t, sig)
		assert.InDelta(t, 65.5, sig.Score, 1e-9)
		assert.Equal(t, StrongBuy, sig.Category)
		// stop snaps to S1 minus a quarter ATR, target to the ATR target
		assert.Equal(t, 99.25, sig.StopLoss)
		assert.Equal(t, 101.0, sig.TakeProfit)
		assert.GreaterOrEqual(t, sig.RiskReward(), 1.0)
	})

	t.Run("fallback target", func(t *testing.T) {
		p := DefaultParams()
		p.MeanRev.TargetATR = 0.5
		s := mustNew(t, NameMeanRev, p)
		sig := s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
			oversold(s)
			s.BBUpper = 100.6
		}), "1h")
		require.NotNil(t, sig)
		assert.Equal(t, 99.25, sig.StopLoss)
		assert.Equal(t, 100.75, sig.TakeProfit)
	})

	t.Run("atr mode", func(t *testing.T) {
		p := DefaultParams()
		p.MeanRev.Levels = LevelsATR
		s := mustNew(t, NameMeanRev, p)
		sig := s.Analyze(createSnapshot(oversold), "1h")
		require.NotNil(t, sig)
		assert.Equal(t, 99.2, sig.StopLoss)
		assert.Equal(t, 101.0, sig.TakeProfit)
	})
}

func TestAnalyze_Gates(t *testing.T) {
	r := NewDefaultRegistry()
	for _, s := range r.All() {
		t.Run(s.Name(), func(t *testing.T) {
			assert.Nil(t, s.Analyze(indicator.Blank(barTime, 0), "1h"))
			assert.Nil(t, s.Analyze(indicator.Blank(barTime, math.NaN()), "1h"))
			assert.Nil(t, s.Analyze(indicator.Blank(barTime, math.Inf(1)), "1h"))
			assert.Nil(t, s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
				rangingLong(s)
				s.ATR = 10
			}), "1h"), "volatility above band")
			assert.Nil(t, s.Analyze(createSnapshot(func(s *indicator.Snapshot) {
				rangingLong(s)
				s.ATR = 0.05
			}), "1h"), "volatility below band")
		})
	}
}

func randomSnapshot(rng *rand.Rand) indicator.Snapshot {
	price := 50 + rng.Float64()*100
	around := func(pct float64) float64 { return price * (1 + (rng.Float64()*2-1)*pct) }
	s := indicator.Blank(barTime, price)
	s.ATR = price * (0.001 + rng.Float64()*0.04)
	s.ADX = rng.Float64() * 50
	s.DIPlus, s.DIMinus = rng.Float64()*40, rng.Float64()*40
	s.RSI = rng.Float64() * 100
	s.StochK, s.StochD = rng.Float64()*100, rng.Float64()*100
	s.BBPercentB = rng.Float64()*1.6 - 0.3
	s.BBWidth = rng.Float64() * 0.08
	s.BBUpper, s.BBMiddle, s.BBLower = around(0.03), around(0.01), around(0.03)
	s.MA20, s.MA50, s.MA200 = around(0.02), around(0.03), around(0.05)
	s.EMA9, s.EMA21 = around(0.01), around(0.015)
	s.MACD, s.MACDSignal = rng.NormFloat64(), rng.NormFloat64()
	s.MACDHist = s.MACD - s.MACDSignal
	s.VolumeRatio = rng.Float64() * 4
	s.OBVChange = rng.NormFloat64()
	s.S1, s.R1 = around(0.02), around(0.02)
	s.Fib382, s.Fib618 = around(0.02), around(0.02)
	s.High20, s.Low20 = price*(1+rng.Float64()*0.03), price*(1-rng.Float64()*0.03)
	return s
}

func TestAnalyze_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := NewDefaultRegistry()
	signals := 0

	for range 3000 {
		snap := randomSnapshot(rng)
		for _, s := range r.All() {
			sig := s.Analyze(snap, "1h")
			if sig == nil {
				continue
			}
			signals++
			assertBracket(t, sig)
			assert.GreaterOrEqual(t, sig.Strength, 0)
			assert.LessOrEqual(t, sig.Strength, 100)
			assert.Equal(t, snap.Time, sig.Time)
			assert.Equal(t, snap.Price, sig.Price)
			assert.Equal(t, sig.Score > 0, sig.Direction == Long)
			assert.NotEmpty(t, sig.Reasons)

			again := s.Analyze(snap, "1h")
			assert.Equal(t, sig, again, "analyze is pure")
		}
	}
	assert.Positive(t, signals)
}

func TestThresholds_Categorize(t *testing.T) {
	th := Thresholds{Entry: 28, Buy: 28, Strong: 45}
	tests := []struct {
		score float64
		want  Category
	}{
		{50, StrongBuy},
		{45, StrongBuy},
		{30, Buy},
		{10, Neutral},
		{-10, Neutral},
		{-28, Sell},
		{-45, StrongSell},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Categorize(tt.score), "score %v", tt.score)
	}
}

func TestSignal_RiskReward(t *testing.T) {
	sig := &Signal{Price: 100, StopLoss: 98, TakeProfit: 105}
	assert.InDelta(t, 2.5, sig.RiskReward(), 1e-9)
	assert.Zero(t, (&Signal{Price: 100, StopLoss: 100, TakeProfit: 105}).RiskReward())
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name   string
		mutate func(p *Params)
		field  string
	}{
		{"negative stop", func(p *Params) { p.Composite.StopATR = -1 }, "stop_atr"},
		{"zero target", func(p *Params) { p.Trend.TargetATR = 0 }, "stop_atr"},
		{"entry above strong", func(p *Params) { p.Breakout.Thresholds.Entry = 80 }, "thresholds"},
		{"zero entry", func(p *Params) { p.Combo.Thresholds.Entry = 0 }, "thresholds"},
		{"inverted atr band", func(p *Params) { p.MeanRev.MinATRPct = 5 }, "max_atr_pct"},
		{"zero risk reward", func(p *Params) { p.MeanRev.MinRiskReward = 0 }, "min_risk_reward"},
		{"unknown levels", func(p *Params) { p.Trend.Levels = "fib" }, "levels"},
		{"structure stop too tight", func(p *Params) { p.MeanRev.StopATR = 0.2 }, "stop_atr"},
		{"combo adx", func(p *Params) { p.Combo.RangeADX = 30 }, "range_adx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Equal(t, []string{"breakout", "combo", "meanrev", "score", "trend"}, r.List())

	s, ok := r.Get(NameTrend)
	require.True(t, ok)
	assert.Equal(t, NameTrend, s.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Error(t, r.Register(s), "duplicate names are rejected")

	_, err := New("martingale", DefaultParams())
	assert.Error(t, err)

	p := DefaultParams()
	p.Trend.StopATR = 0
	_, err = Build([]string{NameTrend}, p)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	partial, err := Build([]string{NameCombo, NameComposite}, DefaultParams())
	require.NoError(t, err)
	assert.Len(t, partial.All(), 2)
	assert.Equal(t, NameCombo, partial.All()[0].Name())
}
