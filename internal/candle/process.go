package candle

import (
	"fmt"
	"sort"
	"time"

	"github.com/amirphl/signal-trader/internal/tfutils"
)

// Process sorts candles, drops duplicates (first occurrence wins), trims them
// to [start, to) and, when fillGaps is set, inserts flat synthetic candles
// for missing intervals. A zero start or to disables that bound.
func Process(candles []Candle, timeframe string, start, to time.Time, fillGaps bool) []Candle {
	if len(candles) == 0 {
		return nil
	}
	duration := tfutils.GetTimeframeDuration(timeframe)

	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	seen := make(map[time.Time]struct{}, len(sorted))
	trimmed := make([]Candle, 0, len(sorted))
	for _, c := range sorted {
		if duration > 0 {
			c.Timestamp = c.Timestamp.Truncate(duration)
		}
		if _, ok := seen[c.Timestamp]; ok {
			continue
		}
		seen[c.Timestamp] = struct{}{}
		if !start.IsZero() && c.Timestamp.Before(start) {
			continue
		}
		if !to.IsZero() && !c.Timestamp.Before(to) {
			continue
		}
		trimmed = append(trimmed, c)
	}

	if !fillGaps || duration == 0 || len(trimmed) == 0 {
		return trimmed
	}

	complete := make([]Candle, 0, len(trimmed))
	basePrice := trimmed[0].Close
	current := trimmed[0].Timestamp
	last := trimmed[len(trimmed)-1].Timestamp
	i := 0
	for !current.After(last) {
		if i < len(trimmed) && trimmed[i].Timestamp.Equal(current) {
			complete = append(complete, trimmed[i])
			basePrice = trimmed[i].Close
			i++
		} else {
			complete = append(complete, Candle{
				Timestamp: current,
				Open:      basePrice,
				High:      basePrice,
				Low:       basePrice,
				Close:     basePrice,
				Symbol:    trimmed[0].Symbol,
				Timeframe: timeframe,
				Source:    "synthetic",
			})
		}
		current = current.Add(duration)
	}
	return complete
}

// Aggregate folds lower-timeframe candles into buckets of the target
// timeframe. Input must be sorted by time. Buckets are stamped with their open time. The last bucket is
// dropped when partial is false and it has not closed yet relative to the
// last input candle.
func Aggregate(candles []Candle, timeframe string, partial bool) ([]Candle, error) {
	if len(candles) == 0 {
		return nil, nil
	}
	dur, err := tfutils.ParseTimeframe(timeframe)
	if err != nil {
		return nil, fmt.Errorf("invalid timeframe %s: %w", timeframe, err)
	}
	srcDur := tfutils.GetTimeframeDuration(candles[0].Timeframe)
	if srcDur > 0 && srcDur > dur {
		return nil, fmt.Errorf("source timeframe %s is larger than target %s", candles[0].Timeframe, timeframe)
	}

	var result []Candle
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("invalid candle at index %d: %w", i, err)
		}
		bucket := c.Timestamp.Truncate(dur)
		if n := len(result); n > 0 && result[n-1].Timestamp.Equal(bucket) {
			agg := &result[n-1]
			agg.High = max(agg.High, c.High)
			agg.Low = min(agg.Low, c.Low)
			agg.Close = c.Close
			agg.Volume += c.Volume
			continue
		}
		result = append(result, Candle{
			Timestamp: bucket,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
			Symbol:    c.Symbol,
			Timeframe: timeframe,
			Source:    c.Source,
		})
	}

	if !partial && srcDur > 0 {
		lastEnd := candles[len(candles)-1].Timestamp.Add(srcDur)
		if n := len(result); n > 0 && lastEnd.Before(result[n-1].Timestamp.Add(dur)) {
			result = result[:n-1]
		}
	}
	return result, nil
}
