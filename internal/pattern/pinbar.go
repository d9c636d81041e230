package pattern

import (
	"fmt"

	"github.com/amirphl/signal-trader/internal/candle"
)

// PinBarDetector finds a last bar with one long wick, a short opposite wick
// and a range large relative to price.
type PinBarDetector struct {
	// MinWickBody is the long wick over the body.
	MinWickBody float64
	// MaxOppositeBody caps the opposite wick over the body.
	MaxOppositeBody float64
	// MinRangePct is the bar range as a percent of the close.
	MinRangePct float64
}

func NewPinBarDetector() *PinBarDetector {
	return &PinBarDetector{MinWickBody: 2, MaxOppositeBody: 0.5, MinRangePct: 1}
}

func (d *PinBarDetector) Name() string { return "pin_bar" }

func (d *PinBarDetector) Description() string {
	return "Detects bullish (long lower wick) and bearish (long upper wick) pin bars"
}

func (d *PinBarDetector) Detect(candles []candle.Candle, timeframe string) *Alert {
	if len(candles) < 5 {
		return nil
	}
	last := candles[len(candles)-1]
	body := last.Body()
	if body == 0 || last.Range() == 0 {
		return nil
	}
	lower := last.LowerWick() / body
	upper := last.UpperWick() / body
	rangePct := last.Range() / last.Close * 100

	if rangePct <= d.MinRangePct {
		return nil
	}
	switch {
	case lower > d.MinWickBody && upper < d.MaxOppositeBody:
		return newAlert(AlertPinBar, Up, SeverityWarning, "Bullish pin bar", last, timeframe, map[string]string{
			"lower_wick_ratio": ratio(lower),
			"pin_range":        pct(rangePct),
			"low_price":        fmt.Sprintf("%.2f", last.Low),
		})
	case upper > d.MinWickBody && lower < d.MaxOppositeBody:
		return newAlert(AlertPinBar, Down, SeverityWarning, "Bearish pin bar", last, timeframe, map[string]string{
			"upper_wick_ratio": ratio(upper),
			"pin_range":        pct(rangePct),
			"high_price":       fmt.Sprintf("%.2f", last.High),
		})
	}
	return nil
}
