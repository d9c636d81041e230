// Package indicator provides technical analysis indicators for financial markets.
//
// Every series function returns a slice the same length as its input. Index i
// depends only on inputs [0..i]; positions without enough history are NaN.
package indicator

import "math"

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	sum := 0.0
	valid := 0
	for i, v := range values {
		if math.IsNaN(v) {
			sum, valid = 0, 0
			continue
		}
		sum += v
		valid++
		if valid > period {
			sum -= values[i-period]
			valid = period
		}
		if valid == period {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA is the exponential moving average with alpha 2/(period+1). The average
// is seeded with the first non-NaN input and reported once period values have
// been folded in.
func EMA(values []float64, period int) []float64 {
	if period <= 0 {
		return nanSlice(len(values))
	}
	return ewm(values, 2/float64(period+1), period)
}

// Wilder is Wilder's smoothing (alpha 1/period) seeded with the simple
// average of the first period values.
func Wilder(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	start := firstValid(values)
	if start < 0 || len(values)-start < period {
		return out
	}
	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[start+period-1] = prev
	for i := start + period; i < len(values); i++ {
		prev = (prev*float64(period-1) + values[i]) / float64(period)
		out[i] = prev
	}
	return out
}

func ewm(values []float64, alpha float64, minPeriods int) []float64 {
	out := nanSlice(len(values))
	start := firstValid(values)
	if start < 0 {
		return out
	}
	prev := values[start]
	for i := start; i < len(values); i++ {
		if i > start {
			prev = alpha*values[i] + (1-alpha)*prev
		}
		if i-start+1 >= minPeriods {
			out[i] = prev
		}
	}
	return out
}

func firstValid(values []float64) int {
	for i, v := range values {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}

// RollingMax is the highest value over the trailing window, current included.
func RollingMax(values []float64, period int) []float64 {
	return rolling(values, period, math.Max)
}

// RollingMin is the lowest value over the trailing window, current included.
func RollingMin(values []float64, period int) []float64 {
	return rolling(values, period, math.Min)
}

func rolling(values []float64, period int, pick func(a, b float64) float64) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		v := values[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			v = pick(v, values[j])
		}
		out[i] = v
	}
	return out
}

// StdDev is the rolling population standard deviation.
func StdDev(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	mean := SMA(values, period)
	for i := period - 1; i >= 0 && i < len(values); i++ {
		if math.IsNaN(mean[i]) {
			continue
		}
		ss := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean[i]
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(period))
	}
	return out
}

// Diff returns values[i] - values[i-1].
func Diff(values []float64) []float64 {
	out := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}

// Shift moves a series n positions forward, padding the front with NaN.
func Shift(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	for i := n; i < len(values); i++ {
		out[i] = values[i-n]
	}
	return out
}
