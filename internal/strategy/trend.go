package strategy

import (
	"math"

	"github.com/amirphl/signal-trader/internal/indicator"
)

// Trend enters pullbacks within an established ADX-confirmed trend.
type Trend struct {
	params TrendParams
}

func NewTrend(p TrendParams) (*Trend, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Trend{params: p}, nil
}

func (s *Trend) Name() string { return NameTrend }

func (s *Trend) Analyze(raw indicator.Snapshot, timeframe string) *Signal {
	if !validPrice(raw.Price) {
		return nil
	}
	snap := raw.WithDefaults()
	p := s.params
	if !p.inBand(snap) || snap.ADX < p.MinADX {
		return nil
	}

	price := snap.Price
	votes := []bool{price > snap.MA20, price > snap.MA50, snap.EMA9 > snap.EMA21, snap.MA20 > snap.MA50}
	downVotes := []bool{price < snap.MA20, price < snap.MA50, snap.EMA9 < snap.EMA21, snap.MA20 < snap.MA50}
	up, down := count(votes), count(downVotes)

	var t tally
	nearEMA := math.Abs(price-snap.EMA21)/snap.EMA21 < 0.01
	switch {
	case up >= 3:
		t.add(0, "uptrend (%d/4 votes, ADX %.1f)", up, snap.ADX)
		if snap.RSI >= 25 && snap.RSI <= 55 {
			t.add(30, "RSI pulled back (%.1f)", snap.RSI)
		}
		if snap.BBPercentB >= 0.3 && snap.BBPercentB <= 0.6 {
			t.add(25, "price mid-band")
		}
		if nearEMA {
			t.add(25, "price at EMA21")
		}
		if snap.StochK >= 30 && snap.StochK <= 50 {
			t.add(20, "stochastic reset")
		}
	case down >= 3:
		t.add(0, "downtrend (%d/4 votes, ADX %.1f)", down, snap.ADX)
		if snap.RSI >= 45 && snap.RSI <= 75 {
			t.add(-30, "RSI bounced (%.1f)", snap.RSI)
		}
		if snap.BBPercentB >= 0.4 && snap.BBPercentB <= 0.7 {
			t.add(-25, "price mid-band")
		}
		if nearEMA {
			t.add(-25, "price at EMA21")
		}
		if snap.StochK >= 50 && snap.StochK <= 70 {
			t.add(-20, "stochastic reset")
		}
	default:
		return nil
	}

	if math.Abs(t.score) < p.MinPullback {
		return nil
	}
	if t.score > 0 && !(snap.MACDHist > 0 || snap.DIPlus > snap.DIMinus) {
		return nil
	}
	if t.score < 0 && !(snap.MACDHist < 0 || snap.DIMinus > snap.DIPlus) {
		return nil
	}
	return finish(NameTrend, p.Common, snap, timeframe, t.score, t.reasons, p.StopATR, p.TargetATR)
}

func count(votes []bool) int {
	n := 0
	for _, v := range votes {
		if v {
			n++
		}
	}
	return n
}
