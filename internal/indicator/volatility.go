package indicator

import (
	"math"

	"github.com/amirphl/signal-trader/internal/candle"
)

// ATR is Wilder's average true range. The first bar's true range is its
// high-low span.
func ATR(candles []candle.Candle, period int) []float64 {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		tr[i] = trueRange(c, candles[i-1].Close)
	}
	return Wilder(tr, period)
}

// BandsResult holds a price channel. Width is (upper-lower)/middle and
// PercentB is the close position inside the band.
type BandsResult struct {
	Upper    []float64
	Middle   []float64
	Lower    []float64
	Width    []float64
	PercentB []float64
}

// Bollinger computes Bollinger bands with a population standard deviation.
func Bollinger(closes []float64, period int, k float64) BandsResult {
	mid := SMA(closes, period)
	sd := StdDev(closes, period)
	upper := nanSlice(len(closes))
	lower := nanSlice(len(closes))
	for i := range closes {
		if math.IsNaN(mid[i]) {
			continue
		}
		upper[i] = mid[i] + k*sd[i]
		lower[i] = mid[i] - k*sd[i]
	}
	return bands(closes, upper, mid, lower)
}

// Keltner computes the classic Keltner channel: SMAs of the typical price and
// of the (4H-2L+C)/3 and (-2H+4L+C)/3 projections.
func Keltner(candles []candle.Candle, period int) BandsResult {
	hi := make([]float64, len(candles))
	lo := make([]float64, len(candles))
	for i, c := range candles {
		hi[i] = (4*c.High - 2*c.Low + c.Close) / 3
		lo[i] = (-2*c.High + 4*c.Low + c.Close) / 3
	}
	_, _, closes := hlc(candles)
	return bands(closes, SMA(hi, period), SMA(typicalPrice(candles), period), SMA(lo, period))
}

func bands(closes, upper, mid, lower []float64) BandsResult {
	res := BandsResult{Upper: upper, Middle: mid, Lower: lower, Width: nanSlice(len(closes)), PercentB: nanSlice(len(closes))}
	for i := range closes {
		if math.IsNaN(mid[i]) {
			continue
		}
		if mid[i] != 0 {
			res.Width[i] = (upper[i] - lower[i]) / mid[i]
		}
		if span := upper[i] - lower[i]; span > 0 {
			res.PercentB[i] = (closes[i] - lower[i]) / span
		} else {
			res.PercentB[i] = 0.5
		}
	}
	return res
}
