package pattern

import "github.com/amirphl/signal-trader/internal/candle"

// WaterfallDetector flags violent moves on heavy volume, either over the
// last five closes or within the last bar.
type WaterfallDetector struct {
	MoveChangePct  float64
	MoveVolRatio   float64
	SingleBarPct   float64
	SingleVolRatio float64
}

func NewWaterfallDetector() *WaterfallDetector {
	return &WaterfallDetector{MoveChangePct: 4, MoveVolRatio: 1.5, SingleBarPct: 2.5, SingleVolRatio: 2}
}

func (d *WaterfallDetector) Name() string { return "waterfall" }

func (d *WaterfallDetector) Description() string {
	return "Detects waterfall drops and vertical spikes confirmed by volume"
}

func (d *WaterfallDetector) Detect(candles []candle.Candle, timeframe string) *Alert {
	if len(candles) < 10 {
		return nil
	}
	last := candles[len(candles)-1]
	change5 := changePct(candles[len(candles)-5].Close, last.Close)
	single := changePct(last.Open, last.Close)
	vol := volumeRatio(candles, 20)

	move := func(dir Direction, msg string) *Alert {
		return newAlert(AlertWaterfall, dir, SeverityDanger, msg, last, timeframe, map[string]string{
			"change_5":  pct(change5),
			"vol_ratio": ratio(vol),
		})
	}
	bar := func(dir Direction, msg string) *Alert {
		return newAlert(AlertWaterfall, dir, SeverityDanger, msg, last, timeframe, map[string]string{
			"single_change": pct(single),
			"vol_ratio":     ratio(vol),
		})
	}

	switch {
	case change5 < -d.MoveChangePct && vol > d.MoveVolRatio:
		return move(Down, "Waterfall drop")
	case change5 > d.MoveChangePct && vol > d.MoveVolRatio:
		return move(Up, "Vertical spike")
	case single < -d.SingleBarPct && vol > d.SingleVolRatio:
		return bar(Down, "Large bearish bar")
	case single > d.SingleBarPct && vol > d.SingleVolRatio:
		return bar(Up, "Large bullish bar")
	}
	return nil
}
