package indicator

import (
	"errors"
	"fmt"
	"math"

	"github.com/amirphl/signal-trader/internal/candle"
)

// StochasticResult holds the results of stochastic oscillator calculation
type StochasticResult struct {
	K []float64 // %K line values
	D []float64 // %D line values
}

// CalculateStochastic calculates the Stochastic Oscillator (%K and %D):
//
//	k = sma(100 * (close - lowest(low, periodK)) / (highest(high, periodK) - lowest(low, periodK)), smoothK)
//	d = sma(k, periodD)
//
// A window with no range reports 50.
func CalculateStochastic(candles []candle.Candle, periodK, smoothK, periodD int) (*StochasticResult, error) {
	if len(candles) == 0 {
		return nil, errors.New("candles array cannot be empty")
	}
	if periodK <= 0 || smoothK <= 0 || periodD <= 0 {
		return nil, errors.New("all periods must be positive integers")
	}
	if len(candles) < periodK {
		return nil, fmt.Errorf("insufficient data: need at least %d candles for periodK", periodK)
	}

	highs, lows, closes := hlc(candles)
	highest := RollingMax(highs, periodK)
	lowest := RollingMin(lows, periodK)

	raw := nanSlice(len(candles))
	for i := periodK - 1; i < len(candles); i++ {
		if highest[i] == lowest[i] {
			raw[i] = 50.0
			continue
		}
		raw[i] = 100.0 * (closes[i] - lowest[i]) / (highest[i] - lowest[i])
	}

	k := raw
	if smoothK > 1 {
		k = SMA(raw, smoothK)
	}
	return &StochasticResult{K: k, D: SMA(k, periodD)}, nil
}

// RSI is Wilder's relative strength index. The first value appears at index
// period. A window with no movement reports 50.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}
	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}
	avgGain := Wilder(gains, period)
	avgLoss := Wilder(losses, period)
	for i := period - 1; i < len(gains); i++ {
		g, l := avgGain[i], avgLoss[i]
		switch {
		case g == 0 && l == 0:
			out[i+1] = 50
		case l == 0:
			out[i+1] = 100
		default:
			out[i+1] = 100 - 100/(1+g/l)
		}
	}
	return out
}

// CCI is the commodity channel index over the typical price.
func CCI(candles []candle.Candle, period int) []float64 {
	tp := typicalPrice(candles)
	mean := SMA(tp, period)
	out := nanSlice(len(candles))
	for i := range candles {
		if math.IsNaN(mean[i]) {
			continue
		}
		dev := 0.0
		for j := i - period + 1; j <= i; j++ {
			dev += math.Abs(tp[j] - mean[i])
		}
		dev /= float64(period)
		if dev == 0 {
			out[i] = 0
			continue
		}
		out[i] = (tp[i] - mean[i]) / (0.015 * dev)
	}
	return out
}

// WilliamsR is Williams %R in [-100, 0].
func WilliamsR(candles []candle.Candle, period int) []float64 {
	highs, lows, closes := hlc(candles)
	highest := RollingMax(highs, period)
	lowest := RollingMin(lows, period)
	out := nanSlice(len(candles))
	for i := range candles {
		if math.IsNaN(highest[i]) {
			continue
		}
		if highest[i] == lowest[i] {
			out[i] = -50
			continue
		}
		out[i] = -100 * (highest[i] - closes[i]) / (highest[i] - lowest[i])
	}
	return out
}

func hlc(candles []candle.Candle) (highs, lows, closes []float64) {
	highs = make([]float64, len(candles))
	lows = make([]float64, len(candles))
	closes = make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	return highs, lows, closes
}

func typicalPrice(candles []candle.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = (c.High + c.Low + c.Close) / 3
	}
	return out
}
