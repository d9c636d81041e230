package strategy

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/amirphl/signal-trader/internal/indicator"
)

// levels derives stop and target for a signal at snap.Price using the given
// ATR multiples and the configured mode. ok is false when no valid bracket
// exists.
func (c Common) levels(dir Direction, snap indicator.Snapshot, stopATR, targetATR float64) (stop, target float64, ok bool) {
	price, atr := snap.Price, snap.ATR
	if c.Levels != LevelsStructure {
		stop = price - dir.Sign()*stopATR*atr
		target = price + dir.Sign()*targetATR*atr
		return c.bracket(dir, price, stop, target)
	}

	buf := c.StructureBufferATR * atr
	minStop := c.MinStopATR * atr

	// Candidates are mirrored for shorts: distances are measured on the loss
	// side for stops and the profit side for targets.
	var stops, targets []float64
	if dir == Long {
		stops = []float64{price - stopATR*atr, level(snap.S1) - buf, level(snap.BBLower) - buf}
		targets = []float64{price + targetATR*atr, level(snap.R1), level(snap.BBMiddle), level(snap.BBUpper)}
	} else {
		stops = []float64{price + stopATR*atr, level(snap.R1) + buf, level(snap.BBUpper) + buf}
		targets = []float64{price - targetATR*atr, level(snap.S1), level(snap.BBMiddle), level(snap.BBLower)}
	}

	stopDist := math.Inf(1)
	for _, s := range stops {
		if math.IsNaN(s) {
			continue
		}
		d := dir.Sign() * (price - s)
		if s > 0 && d > 0 && d >= minStop && d < stopDist {
			stopDist, stop = d, s
		}
	}
	if math.IsInf(stopDist, 1) {
		return 0, 0, false
	}

	minTarget := c.MinRiskReward * stopDist
	targetDist := math.Inf(1)
	for _, t := range targets {
		if math.IsNaN(t) {
			continue
		}
		d := dir.Sign() * (t - price)
		if t > 0 && d > 0 && d >= minTarget && d < targetDist {
			targetDist, target = d, t
		}
	}
	if math.IsInf(targetDist, 1) {
		target = price + dir.Sign()*minTarget
	}
	return c.bracket(dir, price, stop, target)
}

// bracket rounds stop and target and reports whether they still bracket the
// price on the correct sides.
func (c Common) bracket(dir Direction, price, stop, target float64) (float64, float64, bool) {
	stop, target = c.round(stop), c.round(target)
	if stop <= 0 || target <= 0 || math.IsNaN(stop) || math.IsNaN(target) {
		return 0, 0, false
	}
	if dir == Long && !(stop < price && price < target) {
		return 0, 0, false
	}
	if dir == Short && !(target < price && price < stop) {
		return 0, 0, false
	}
	return stop, target, true
}

func (c Common) round(v float64) float64 {
	if c.PricePrecision < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(int32(c.PricePrecision)).InexactFloat64()
}

// level maps an unavailable (zero) support/resistance level to NaN.
func level(v float64) float64 {
	if v <= 0 {
		return math.NaN()
	}
	return v
}

// inBand applies the volatility gate.
func (c Common) inBand(snap indicator.Snapshot) bool {
	pct := snap.ATRPercent()
	return pct >= c.MinATRPct && pct <= c.MaxATRPct
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
