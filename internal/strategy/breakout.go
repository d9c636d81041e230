package strategy

import (
	"math"

	"github.com/amirphl/signal-trader/internal/indicator"
)

// Breakout trades closes beyond the Bollinger band, the 20-bar range or the
// first pivot level, confirmed by volume.
type Breakout struct {
	params BreakoutParams
}

func NewBreakout(p BreakoutParams) (*Breakout, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Breakout{params: p}, nil
}

func (s *Breakout) Name() string { return NameBreakout }

func (s *Breakout) Analyze(raw indicator.Snapshot, timeframe string) *Signal {
	if !validPrice(raw.Price) {
		return nil
	}
	snap := raw.WithDefaults()
	p := s.params
	if !p.inBand(snap) {
		return nil
	}

	price := snap.Price
	var t tally
	brokenLevel := math.NaN()
	triggered := false

	if snap.BBPercentB > 1 {
		t.add(40, "close above upper Bollinger band")
		brokenLevel, triggered = snap.BBUpper, true
	}
	if price > snap.High20*0.998 {
		t.add(35, "new 20-bar high")
		brokenLevel, triggered = snap.High20, true
	}
	if snap.R1 > 0 && price > snap.R1 {
		t.add(30, "above R1")
		brokenLevel, triggered = snap.R1, true
	}
	if snap.BBPercentB < 0 {
		t.add(-40, "close below lower Bollinger band")
		brokenLevel, triggered = snap.BBLower, true
	}
	if price < snap.Low20*1.002 {
		t.add(-35, "new 20-bar low")
		brokenLevel, triggered = snap.Low20, true
	}
	if snap.S1 > 0 && price < snap.S1 {
		t.add(-30, "below S1")
		brokenLevel, triggered = snap.S1, true
	}
	if !triggered || t.score == 0 {
		return nil
	}
	if snap.ADX > p.ADXConfirm {
		if t.score > 0 {
			t.add(20, "ADX %.1f confirms", snap.ADX)
		} else {
			t.add(-20, "ADX %.1f confirms", snap.ADX)
		}
	}
	if snap.VolumeRatio < p.MinVolumeRatio {
		return nil
	}
	t.add(0, "volume %.1fx average", snap.VolumeRatio)

	c := p.Common
	if math.Abs(t.score) < c.Thresholds.Entry {
		return nil
	}
	category := c.Thresholds.Categorize(t.score)
	if category == Neutral {
		return nil
	}

	// The stop sits beyond the broken level, or beyond price when the
	// level is on the far side of it.
	dir, buffer := Long, c.StopATR*snap.ATR
	stop := math.Min(brokenLevel, price) - buffer
	if t.score < 0 {
		dir = Short
		stop = math.Max(brokenLevel, price) + buffer
	}
	target := price + dir.Sign()*c.TargetATR*snap.ATR
	stop, target, ok := c.bracket(dir, price, stop, target)
	if !ok {
		return nil
	}
	return newSignal(NameBreakout, dir, category, t.score, snap, stop, target, t.reasons, timeframe)
}
