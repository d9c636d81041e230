package pattern

import (
	"strconv"

	"github.com/amirphl/signal-trader/internal/candle"
)

// TrendDetector flags a one-sided run: most of the recent closes moved the
// same way, the window gained or lost enough, and price sits away from its
// 20-bar mean.
type TrendDetector struct {
	Periods      int
	MinSteps     int
	MinChangePct float64
	MinDevPct    float64
}

func NewTrendDetector() *TrendDetector {
	return &TrendDetector{Periods: 10, MinSteps: 7, MinChangePct: 3, MinDevPct: 2}
}

func (d *TrendDetector) Name() string { return "trend" }

func (d *TrendDetector) Description() string {
	return "Detects strong one-sided trends from step counts, window change and MA20 deviation"
}

func (d *TrendDetector) Detect(candles []candle.Candle, timeframe string) *Alert {
	if len(candles) < max(d.Periods+5, MinBars) {
		return nil
	}
	window := candles[len(candles)-d.Periods:]
	ups, downs := 0, 0
	for i := 1; i < len(window); i++ {
		switch {
		case window[i].Close > window[i-1].Close:
			ups++
		case window[i].Close < window[i-1].Close:
			downs++
		}
	}

	last := candles[len(candles)-1]
	change := changePct(window[0].Close, last.Close)
	ma20 := meanClose(candles[len(candles)-20:])
	deviation := changePct(ma20, last.Close)

	switch {
	case ups >= d.MinSteps && change > d.MinChangePct && deviation > d.MinDevPct:
		return newAlert(AlertTrend, Up, SeverityWarning, "Strong uptrend", last, timeframe, map[string]string{
			"up_count":     strconv.Itoa(ups),
			"price_change": pct(change),
			"deviation":    pct(deviation),
		})
	case downs >= d.MinSteps && change < -d.MinChangePct && deviation < -d.MinDevPct:
		return newAlert(AlertTrend, Down, SeverityWarning, "Strong downtrend", last, timeframe, map[string]string{
			"down_count":   strconv.Itoa(downs),
			"price_change": pct(change),
			"deviation":    pct(deviation),
		})
	}
	return nil
}
