package indicator

import (
	"math"

	"github.com/amirphl/signal-trader/internal/candle"
)

// OBV is on-balance volume starting from zero at the first bar.
func OBV(candles []candle.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			out[i] = out[i-1] + candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			out[i] = out[i-1] - candles[i].Volume
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// VolumeRatio is the bar volume divided by its trailing average. It is NaN
// while the average is undefined or zero.
func VolumeRatio(volumes []float64, period int) (ratio, average []float64) {
	average = SMA(volumes, period)
	ratio = nanSlice(len(volumes))
	for i, v := range volumes {
		if average[i] > 0 {
			ratio[i] = v / average[i]
		}
	}
	return ratio, average
}

// VWAP is the rolling volume-weighted typical price.
func VWAP(candles []candle.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	if period <= 0 {
		return out
	}
	tp := typicalPrice(candles)
	for i := period - 1; i < len(candles); i++ {
		pv, vol := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			pv += tp[j] * candles[j].Volume
			vol += candles[j].Volume
		}
		if vol > 0 {
			out[i] = pv / vol
		}
	}
	return out
}

// Pivots are classic floor-trader levels from a single bar.
type Pivots struct {
	Pivot, R1, R2, R3, S1, S2, S3 float64
}

// ClassicPivots derives pivot levels from one bar's high, low and close.
func ClassicPivots(c candle.Candle) Pivots {
	p := (c.High + c.Low + c.Close) / 3
	return Pivots{
		Pivot: p,
		R1:    2*p - c.Low,
		S1:    2*p - c.High,
		R2:    p + (c.High - c.Low),
		S2:    p - (c.High - c.Low),
		R3:    c.High + 2*(p-c.Low),
		S3:    c.Low - 2*(c.High-p),
	}
}

// Fibonacci holds retracement levels measured up from the window low.
type Fibonacci struct {
	Low, L236, L382, L500, L618, L786, High float64
}

// FibonacciLevels computes retracements over the trailing window ending at
// index end (inclusive).
func FibonacciLevels(candles []candle.Candle, end, window int) Fibonacci {
	start := max(0, end-window+1)
	hi, lo := math.Inf(-1), math.Inf(1)
	for i := start; i <= end; i++ {
		hi = math.Max(hi, candles[i].High)
		lo = math.Min(lo, candles[i].Low)
	}
	diff := hi - lo
	return Fibonacci{
		Low:  lo,
		L236: lo + diff*0.236,
		L382: lo + diff*0.382,
		L500: lo + diff*0.5,
		L618: lo + diff*0.618,
		L786: lo + diff*0.786,
		High: hi,
	}
}
