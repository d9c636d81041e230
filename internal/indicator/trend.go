package indicator

import (
	"math"

	"github.com/amirphl/signal-trader/internal/candle"
)

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the fast/slow EMA difference and its signal EMA.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	line := nanSlice(len(closes))
	for i := range closes {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			line[i] = emaFast[i] - emaSlow[i]
		}
	}
	sig := EMA(line, signal)
	hist := nanSlice(len(closes))
	for i := range closes {
		if !math.IsNaN(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}
}

// DirectionalResult holds Wilder's ADX and the directional indicators.
type DirectionalResult struct {
	ADX     []float64
	DIPlus  []float64
	DIMinus []float64
}

// ADX computes Wilder's average directional index. DI values first appear at
// index period and ADX at index 2*period-1.
func ADX(candles []candle.Candle, period int) DirectionalResult {
	n := len(candles)
	tr := nanSlice(n)
	plusDM := nanSlice(n)
	minusDM := nanSlice(n)
	for i := 1; i < n; i++ {
		cur, prev := candles[i], candles[i-1]
		tr[i] = trueRange(cur, prev.Close)
		up := cur.High - prev.High
		down := prev.Low - cur.Low
		plusDM[i], minusDM[i] = 0, 0
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	atr := Wilder(tr, period)
	plus := Wilder(plusDM, period)
	minus := Wilder(minusDM, period)

	res := DirectionalResult{DIPlus: nanSlice(n), DIMinus: nanSlice(n)}
	dx := nanSlice(n)
	for i := range n {
		if math.IsNaN(atr[i]) {
			continue
		}
		if atr[i] == 0 {
			res.DIPlus[i], res.DIMinus[i], dx[i] = 0, 0, 0
			continue
		}
		res.DIPlus[i] = 100 * plus[i] / atr[i]
		res.DIMinus[i] = 100 * minus[i] / atr[i]
		sum := res.DIPlus[i] + res.DIMinus[i]
		if sum == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = 100 * math.Abs(res.DIPlus[i]-res.DIMinus[i]) / sum
	}
	res.ADX = Wilder(dx, period)
	return res
}

func trueRange(c candle.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}
