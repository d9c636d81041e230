package strategy

import (
	"fmt"
	"math"

	"github.com/amirphl/signal-trader/internal/indicator"
)

type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeRanging  Regime = "ranging"
	RegimeNeutral  Regime = "mixed"
)

// tally accumulates points and the reasons behind them.
type tally struct {
	score   float64
	reasons []string
}

func (t *tally) add(points float64, format string, args ...any) {
	t.score += points
	t.reasons = append(t.reasons, fmt.Sprintf(format, args...))
}

// bounded returns the score clamped to ±limit.
func (t *tally) bounded(limit float64) float64 {
	return clamp(t.score, -limit, limit)
}

func (t *tally) merge(o tally) {
	t.reasons = append(t.reasons, o.reasons...)
}

// distPct is the percent distance of price from level.
func distPct(price, level float64) float64 {
	return (price - level) / level * 100
}

func near(price, level, pct float64) bool {
	return level > 0 && math.Abs(price-level)/level*100 < pct
}

// compositeRegime classifies by ADX and Bollinger width (a fraction of the
// midline).
func compositeRegime(s indicator.Snapshot) Regime {
	switch {
	case s.ADX > 30 && s.BBWidth > 0.04:
		return RegimeTrending
	case s.ADX < 20 || s.BBWidth < 0.02:
		return RegimeRanging
	}
	return RegimeNeutral
}

// meanRevScore rewards oversold readings and penalizes overbought ones (±100).
func meanRevScore(s indicator.Snapshot) tally {
	var t tally
	switch {
	case s.RSI < 20:
		t.add(50, "RSI extremely oversold (%.1f)", s.RSI)
	case s.RSI < 30:
		t.add(35, "RSI oversold (%.1f)", s.RSI)
	case s.RSI < 40:
		t.add(15, "RSI weak (%.1f)", s.RSI)
	case s.RSI > 80:
		t.add(-50, "RSI extremely overbought (%.1f)", s.RSI)
	case s.RSI > 70:
		t.add(-35, "RSI overbought (%.1f)", s.RSI)
	case s.RSI > 60:
		t.add(-15, "RSI strong (%.1f)", s.RSI)
	}

	switch b := s.BBPercentB; {
	case b < -0.05:
		t.add(40, "price below lower Bollinger band")
	case b < 0.1:
		t.add(25, "price at lower Bollinger band")
	case b > 1.05:
		t.add(-40, "price above upper Bollinger band")
	case b > 0.9:
		t.add(-25, "price at upper Bollinger band")
	}

	k, d := s.StochK, s.StochD
	switch {
	case k < 15 && d < 20 && k > d:
		t.add(35, "stochastic bullish cross in oversold zone")
	case k > 85 && d > 80 && k < d:
		t.add(-35, "stochastic bearish cross in overbought zone")
	case k < 25 && k > d:
		t.add(20, "stochastic turning up")
	case k > 75 && k < d:
		t.add(-20, "stochastic turning down")
	}
	t.score = t.bounded(100)
	return t
}

// trendScore measures moving-average alignment and momentum (±100).
func trendScore(s indicator.Snapshot) tally {
	var t tally
	p := s.Price
	switch {
	case s.EMA9 > s.EMA21*1.002:
		t.add(20, "EMA9 above EMA21")
	case s.EMA9 < s.EMA21*0.998:
		t.add(-20, "EMA9 below EMA21")
	}
	switch {
	case s.MA20 > s.MA50*1.005:
		t.add(25, "MA20 above MA50")
	case s.MA20 < s.MA50*0.995:
		t.add(-25, "MA20 below MA50")
	}
	switch {
	case p > s.MA20 && p > s.MA50 && p > s.EMA21:
		t.add(20, "price above key averages")
	case p < s.MA20 && p < s.MA50 && p < s.EMA21:
		t.add(-20, "price below key averages")
	}
	switch {
	case s.MACDHist > 0 && s.MACD > s.MACDSignal:
		t.add(25, "MACD bullish")
	case s.MACDHist < 0 && s.MACD < s.MACDSignal:
		t.add(-25, "MACD bearish")
	}
	if s.ADX > 25 {
		switch {
		case s.DIPlus > s.DIMinus*1.2:
			t.add(20, "ADX %.1f with +DI dominant", s.ADX)
		case s.DIMinus > s.DIPlus*1.2:
			t.add(-20, "ADX %.1f with -DI dominant", s.ADX)
		}
	}
	t.score = t.bounded(100)
	return t
}

// volumeScore rewards volume expansion and OBV direction (±50).
func volumeScore(s indicator.Snapshot) tally {
	var t tally
	switch vr := s.VolumeRatio; {
	case vr > 2.5:
		t.add(30, "volume surge (%.1fx)", vr)
	case vr > 1.8:
		t.add(20, "high volume (%.1fx)", vr)
	case vr > 1.3:
		t.add(10, "above-average volume (%.1fx)", vr)
	case vr < 0.5:
		t.add(-15, "thin volume (%.1fx)", vr)
	}
	if s.OBVChange > 0 {
		t.add(15, "OBV rising")
	} else {
		t.add(-15, "OBV falling")
	}
	t.score = t.bounded(50)
	return t
}

// structureScore rewards proximity to support and penalizes proximity to
// resistance (±60).
func structureScore(s indicator.Snapshot) tally {
	var t tally
	p := s.Price
	if s.S1 > 0 {
		switch d := distPct(p, s.S1); {
		case d > 0 && d < 0.8:
			t.add(25, "holding above S1")
		case d > -0.3 && d <= 0:
			t.add(35, "testing S1")
		}
	}
	if s.R1 > 0 {
		switch d := distPct(p, s.R1); {
		case d > -0.8 && d < 0:
			t.add(-25, "approaching R1")
		case d >= 0 && d < 0.3:
			t.add(-35, "testing R1")
		}
	}
	switch {
	case near(p, s.Fib382, 0.5):
		t.add(20, "at Fibonacci 38.2%%")
	case near(p, s.Fib618, 0.5):
		t.add(25, "at Fibonacci 61.8%%")
	}
	t.score = t.bounded(60)
	return t
}

// reversionScore is the stricter oversold/overbought reading used by the
// overnight strategy (±100).
func reversionScore(s indicator.Snapshot) tally {
	var t tally
	switch {
	case s.RSI < 25:
		t.add(45, "RSI deeply oversold (%.1f)", s.RSI)
	case s.RSI < 35:
		t.add(30, "RSI oversold (%.1f)", s.RSI)
	case s.RSI > 75:
		t.add(-45, "RSI deeply overbought (%.1f)", s.RSI)
	case s.RSI > 65:
		t.add(-30, "RSI overbought (%.1f)", s.RSI)
	}
	switch b := s.BBPercentB; {
	case b < 0:
		t.add(40, "price below lower Bollinger band")
	case b < 0.15:
		t.add(25, "price near lower Bollinger band")
	case b > 1:
		t.add(-40, "price above upper Bollinger band")
	case b > 0.85:
		t.add(-25, "price near upper Bollinger band")
	}
	switch {
	case s.StochK < 20 && s.StochD < 25:
		t.add(30, "stochastic oversold")
	case s.StochK > 80 && s.StochD > 75:
		t.add(-30, "stochastic overbought")
	}
	t.score = t.bounded(100)
	return t
}

// supportScore is the wider-band structure reading of the overnight
// strategy (±80).
func supportScore(s indicator.Snapshot) tally {
	var t tally
	p := s.Price
	if s.S1 > 0 {
		switch d := distPct(p, s.S1); {
		case d > 0 && d < 1:
			t.add(35, "near S1 support")
		case d > -0.5 && d <= 0:
			t.add(45, "at S1 support")
		}
	}
	if s.R1 > 0 {
		switch d := distPct(p, s.R1); {
		case d > -1 && d < 0:
			t.add(-35, "near R1 resistance")
		case d >= 0 && d < 0.5:
			t.add(-45, "at R1 resistance")
		}
	}
	switch {
	case near(p, s.Fib618, 0.8):
		t.add(25, "at Fibonacci 61.8%%")
	case near(p, s.Fib382, 0.8):
		t.add(20, "at Fibonacci 38.2%%")
	}
	t.score = t.bounded(80)
	return t
}

// momentumScore is a light MACD and volume confirmation (±30).
func momentumScore(s indicator.Snapshot) tally {
	var t tally
	if s.MACDHist > 0 {
		t.add(15, "MACD histogram positive")
	} else {
		t.add(-15, "MACD histogram negative")
	}
	switch {
	case s.VolumeRatio > 1.5:
		t.add(10, "volume confirms (%.1fx)", s.VolumeRatio)
	case s.VolumeRatio < 0.6:
		t.add(-10, "volume fading (%.1fx)", s.VolumeRatio)
	}
	t.score = t.bounded(30)
	return t
}

// finish applies the entry gate and level derivation shared by all variants
// and builds the signal.
func finish(name string, c Common, snap indicator.Snapshot, tf string, score float64, reasons []string,
	stopATR, targetATR float64) *Signal {
	if math.IsNaN(score) || math.Abs(score) < c.Thresholds.Entry {
		return nil
	}
	category := c.Thresholds.Categorize(score)
	if category == Neutral {
		return nil
	}
	dir := Long
	if score < 0 {
		dir = Short
	}
	stop, target, ok := c.levels(dir, snap, stopATR, targetATR)
	if !ok {
		return nil
	}
	return newSignal(name, dir, category, score, snap, stop, target, reasons, tf)
}

func newSignal(name string, dir Direction, category Category, score float64, snap indicator.Snapshot,
	stop, target float64, reasons []string, tf string) *Signal {
	return &Signal{
		Strategy:   name,
		Direction:  dir,
		Category:   category,
		Strength:   strength(score),
		Score:      score,
		Price:      snap.Price,
		StopLoss:   stop,
		TakeProfit: target,
		Reasons:    reasons,
		Timeframe:  tf,
		Time:       snap.Time,
	}
}
