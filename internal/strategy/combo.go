package strategy

import (
	"github.com/amirphl/signal-trader/internal/indicator"
)

// Combo switches between trend-following and range-reversion rules by ADX
// and stays flat in between.
type Combo struct {
	params ComboParams
}

func NewCombo(p ComboParams) (*Combo, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Combo{params: p}, nil
}

func (s *Combo) Name() string { return NameCombo }

func (s *Combo) regime(snap indicator.Snapshot) Regime {
	switch {
	case snap.ADX > s.params.TrendADX:
		return RegimeTrending
	case snap.ADX < s.params.RangeADX:
		return RegimeRanging
	}
	return RegimeNeutral
}

func (s *Combo) Analyze(raw indicator.Snapshot, timeframe string) *Signal {
	if !validPrice(raw.Price) {
		return nil
	}
	snap := raw.WithDefaults()
	p := s.params
	if !p.inBand(snap) {
		return nil
	}

	var t tally
	stopATR, targetATR := p.StopATR, p.TargetATR
	switch s.regime(snap) {
	case RegimeTrending:
		t = comboTrend(snap)
	case RegimeRanging:
		t = comboRange(snap)
		stopATR, targetATR = p.RangeStopATR, p.RangeTargetATR
	default:
		return nil
	}
	return finish(NameCombo, p.Common, snap, timeframe, t.score, t.reasons, stopATR, targetATR)
}

func comboTrend(s indicator.Snapshot) tally {
	var t tally
	switch {
	case s.EMA9 > s.EMA21 && s.MA20 > s.MA50 && s.Price > s.MA20:
		t.add(30, "trending up (ADX %.1f)", s.ADX)
		if s.RSI >= 35 && s.RSI <= 50 {
			t.add(30, "RSI pullback (%.1f)", s.RSI)
		}
		if s.BBPercentB >= 0.3 && s.BBPercentB <= 0.6 {
			t.add(20, "price mid-band")
		}
		if s.MACDHist > 0 {
			t.add(10, "MACD histogram positive")
		}
	case s.EMA9 < s.EMA21 && s.MA20 < s.MA50 && s.Price < s.MA20:
		t.add(-30, "trending down (ADX %.1f)", s.ADX)
		if s.RSI >= 50 && s.RSI <= 65 {
			t.add(-30, "RSI bounce (%.1f)", s.RSI)
		}
		if s.BBPercentB >= 0.4 && s.BBPercentB <= 0.7 {
			t.add(-20, "price mid-band")
		}
		if s.MACDHist < 0 {
			t.add(-10, "MACD histogram negative")
		}
	}
	return t
}

func comboRange(s indicator.Snapshot) tally {
	var t tally
	switch {
	case s.RSI < 25:
		t.add(35, "ranging, RSI oversold (%.1f)", s.RSI)
		if s.BBPercentB < 0.1 {
			t.add(25, "at lower Bollinger band")
		}
		if s.StochK < 20 {
			t.add(20, "stochastic oversold")
		}
	case s.RSI > 75:
		t.add(-35, "ranging, RSI overbought (%.1f)", s.RSI)
		if s.BBPercentB > 0.9 {
			t.add(-25, "at upper Bollinger band")
		}
		if s.StochK > 80 {
			t.add(-20, "stochastic overbought")
		}
	}
	return t
}
